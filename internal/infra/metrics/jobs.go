package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		jobsStarted,
		jobsFinished,
		segmentsFinished,
		autoRetries,
		jobsCleaned,
	)
}

var (
	jobsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "compare_jobs_started_total",
			Help: "Batch comparison jobs accepted and handed to the scheduler.",
		},
	)

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compare_jobs_finished_total",
			Help: "Batch comparison jobs that reached a terminal status.",
		},
		[]string{"status"},
	)

	segmentsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compare_segments_finished_total",
			Help: "Segments that reached a terminal state, by outcome.",
		},
		[]string{"outcome"},
	)

	autoRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "compare_auto_retries_total",
			Help: "Automatic re-attempts of failed segments.",
		},
	)

	jobsCleaned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "compare_jobs_cleaned_total",
			Help: "Jobs dropped from the registry by retention cleanup.",
		},
	)
)

func IncJobStarted() { jobsStarted.Inc() }

func IncJobFinished(status string) { jobsFinished.WithLabelValues(norm(status)).Inc() }

func IncSegmentFinished(outcome string) { segmentsFinished.WithLabelValues(norm(outcome)).Inc() }

func IncAutoRetry() { autoRetries.Inc() }

func AddJobsCleaned(n int) { jobsCleaned.Add(float64(n)) }
