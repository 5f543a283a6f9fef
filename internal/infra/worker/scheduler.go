// File: internal/infra/worker/scheduler.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clipcompare/internal/domain"
	"clipcompare/internal/domain/model"
	"clipcompare/internal/domain/ports/adapter"
	"clipcompare/internal/domain/ports/store"
	"clipcompare/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// task is the scheduler-internal unit of work: one segment attempt.
type task struct {
	segment int
	pair    model.PairRef
	retry   int
}

// outcome always resolves, success or not, so a failed analyze call can never
// wedge the drain loop.
type outcome struct {
	segment int
	retry   int
	result  *model.AnalysisResult
	err     error
	elapsed time.Duration
}

// Scheduler drains one job's task queue with bounded concurrency, writing
// every state change into the job store. One Run loop owns one job; distinct
// jobs never share mutable state.
type Scheduler struct {
	store       store.JobStore
	analyzer    adapter.Analyzer
	concurrency int
	taskTimeout time.Duration
	log         *zerolog.Logger
}

func NewScheduler(jobStore store.JobStore, analyzer adapter.Analyzer, concurrency int, taskTimeout time.Duration, logger *zerolog.Logger) *Scheduler {
	if concurrency <= 0 {
		concurrency = 4
	}
	compLog := logger.With().Str("component", "Scheduler").Logger()
	return &Scheduler{
		store:       jobStore,
		analyzer:    analyzer,
		concurrency: concurrency,
		taskTimeout: taskTimeout,
		log:         &compLog,
	}
}

// Launch starts the drain loop for job in its own goroutine and returns
// immediately. ctx should be the application lifetime context, not a request
// context, so in-flight batches outlive the submitting call.
func (s *Scheduler) Launch(ctx context.Context, job *model.Job) error {
	if s.analyzer == nil {
		return errors.New("scheduler has no analyzer")
	}
	if job == nil || len(job.OriginalTasks) == 0 {
		return fmt.Errorf("nothing to schedule: %w", domain.ErrInvalidArgument)
	}
	metrics.IncJobStarted()
	go s.run(ctx, job)
	return nil
}

// run loops until every submitted task has reached a terminal state. Tasks
// start in submission order and may finish out of order; identity is carried
// by segment index throughout. An automatic retry re-enters at the back of
// the queue so it never blocks segments that have not started yet.
func (s *Scheduler) run(ctx context.Context, job *model.Job) {
	log := s.log.With().Str("job_id", job.ID).Logger()
	log.Info().Int("segments", job.TotalSegments).Int("concurrency", s.concurrency).Msg("batch started")
	start := time.Now()

	queue := make([]task, 0, len(job.OriginalTasks))
	for i, pair := range job.OriginalTasks {
		queue = append(queue, task{segment: i, pair: pair})
	}

	results := make(chan outcome, s.concurrency)
	inFlight := 0

	for len(queue) > 0 || inFlight > 0 {
		for inFlight < s.concurrency && len(queue) > 0 {
			t := queue[0]
			queue = queue[1:]

			status := model.SegmentStatusProcessing
			if t.retry > 0 {
				status = model.SegmentStatusRetrying
				metrics.IncAutoRetry()
			}
			if err := s.store.RecordTransition(ctx, job.ID, t.segment, status, store.Transition{Attempt: t.retry}); err != nil {
				log.Error().Err(err).Int("segment", t.segment).Msg("record start transition failed")
			}

			inFlight++
			go s.runTask(ctx, t, results)
		}

		out := <-results
		inFlight--

		if out.err == nil {
			if err := s.store.RecordTransition(ctx, job.ID, out.segment, model.SegmentStatusCompleted, store.Transition{
				Result:  out.result,
				Attempt: out.retry,
				Elapsed: out.elapsed,
			}); err != nil {
				log.Error().Err(err).Int("segment", out.segment).Msg("record completion failed")
			}
			metrics.IncSegmentFinished("completed")
			log.Debug().Int("segment", out.segment).Dur("duration", out.elapsed).Msg("segment completed")
			continue
		}

		if err := s.store.RecordTransition(ctx, job.ID, out.segment, model.SegmentStatusError, store.Transition{
			Error:   out.err.Error(),
			Attempt: out.retry,
			Elapsed: out.elapsed,
		}); err != nil {
			log.Error().Err(err).Int("segment", out.segment).Msg("record failure failed")
		}

		if out.retry < job.MaxAutoRetries {
			log.Warn().Err(out.err).Int("segment", out.segment).Int("attempt", out.retry).Msg("segment failed, re-queueing")
			queue = append(queue, task{
				segment: out.segment,
				pair:    job.OriginalTasks[out.segment],
				retry:   out.retry + 1,
			})
		} else {
			metrics.IncSegmentFinished("error")
			log.Error().Err(out.err).Int("segment", out.segment).Int("attempt", out.retry).Msg("segment permanently failed")
		}
	}

	s.finish(ctx, job.ID, &log)
	log.Info().Dur("duration", time.Since(start)).Msg("batch finished")
}

// runTask wraps one analyze call with the optional per-task deadline. A
// deadline expiry is reported as an upstream failure so it follows the normal
// retry path instead of occupying a slot forever.
func (s *Scheduler) runTask(ctx context.Context, t task, results chan<- outcome) {
	tctx := ctx
	if s.taskTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, s.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.analyzer.Analyze(tctx, t.pair)
	elapsed := time.Since(start)

	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("analysis timed out after %s: %w", s.taskTimeout, domain.ErrUpstreamFailure)
	}
	metrics.ObserveAnalysis(s.analyzer.Provider(), elapsed.Milliseconds(), err == nil)

	results <- outcome{segment: t.segment, retry: t.retry, result: res, err: err, elapsed: elapsed}
}

// finish computes the aggregate over completed segments and marks the job
// terminal. Reaching "completed" means the batch finished running, not that
// every segment succeeded.
func (s *Scheduler) finish(ctx context.Context, jobID string, log *zerolog.Logger) {
	job, err := s.store.Find(ctx, jobID)
	if err != nil {
		// registry entry expired mid-run; nothing left to finalize
		log.Warn().Err(err).Msg("job vanished before finalization")
		return
	}

	agg := &model.BatchResult{
		OverallMatchPercentage: job.OverallMatchPercentage(),
		CompletedSegments:      job.CompletedCount,
		FailedSegments:         job.FailedCount,
	}
	if err := s.store.MarkTerminal(ctx, jobID, model.JobStatusCompleted, agg); err != nil {
		log.Error().Err(err).Msg("mark terminal failed")
		return
	}
	metrics.IncJobFinished(string(model.JobStatusCompleted))
}
