package metrics

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		analysisLatencyMs,
		analysisDegraded,
	)
}

var (
	analysisLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_calls_latency_ms",
			Help:    "Analysis call latency distribution in milliseconds.",
			Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 90000, 120000},
		},
		[]string{"provider", "success"},
	)

	analysisDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_degraded_responses_total",
			Help: "Upstream responses that could not be parsed and were degraded to placeholder results.",
		},
		[]string{"provider"},
	)
)

func ObserveAnalysis(provider string, latencyMs int64, success bool) {
	analysisLatencyMs.WithLabelValues(norm(provider), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncDegradedResponse(provider string) {
	analysisDegraded.WithLabelValues(norm(provider)).Inc()
}

func norm(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "unknown"
	}
	return s
}
