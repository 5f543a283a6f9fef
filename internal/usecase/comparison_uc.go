package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"clipcompare/internal/domain"
	"clipcompare/internal/domain/model"
	"clipcompare/internal/domain/ports/adapter"
	"clipcompare/internal/domain/ports/store"
	"clipcompare/internal/infra/logging"

	"github.com/rs/zerolog"
)

// BatchScheduler is what the use case needs from the worker package: hand a
// created job to a background drain loop.
type BatchScheduler interface {
	Launch(ctx context.Context, job *model.Job) error
}

// SubmitReceipt is the immediate response to a batch submission or a manual
// retry; analysis has not run yet when it is returned.
type SubmitReceipt struct {
	JobID         string
	Status        model.JobStatus
	TotalSegments int
}

// ComparisonUseCase ties pre-flight validation, the job registry, and the
// scheduler together behind the three operations callers see: submit a
// batch, poll its progress, retry what failed.
type ComparisonUseCase struct {
	store  store.JobStore
	prober adapter.Prober
	sched  BatchScheduler

	// runCtx is the application lifetime context: launched batches must
	// outlive the HTTP request that submitted them.
	runCtx context.Context

	maxClipDuration time.Duration
	maxAutoRetries  int
	log             *zerolog.Logger
}

func NewComparisonUseCase(
	runCtx context.Context,
	jobStore store.JobStore,
	prober adapter.Prober,
	sched BatchScheduler,
	maxClipDuration time.Duration,
	maxAutoRetries int,
	logger *zerolog.Logger,
) *ComparisonUseCase {
	compLog := logger.With().Str("component", "ComparisonUC").Logger()
	return &ComparisonUseCase{
		store:           jobStore,
		prober:          prober,
		sched:           sched,
		runCtx:          runCtx,
		maxClipDuration: maxClipDuration,
		maxAutoRetries:  maxAutoRetries,
		log:             &compLog,
	}
}

// SubmitBatch validates every pair up front, creates the job, and hands it to
// the scheduler. Validation failures reject the whole batch synchronously:
// an invalid batch never reaches the registry, not even partially.
func (uc *ComparisonUseCase) SubmitBatch(ctx context.Context, pairs []model.PairRef) (*SubmitReceipt, error) {
	defer logging.TraceDuration(uc.log, "ComparisonUC.SubmitBatch")()

	if len(pairs) == 0 {
		return nil, fmt.Errorf("empty batch: %w", domain.ErrInvalidArgument)
	}

	if verr := uc.preflight(ctx, pairs); verr != nil {
		uc.log.Warn().Int("violations", len(verr.Violations)).Msg("batch rejected at pre-flight")
		return nil, verr
	}

	job, err := uc.store.Create(ctx, pairs, uc.maxAutoRetries)
	if err != nil {
		return nil, err
	}

	if err := uc.sched.Launch(uc.runCtx, job); err != nil {
		// the job exists but will never run; record that honestly
		_ = uc.store.MarkTerminal(ctx, job.ID, model.JobStatusFailedToStart, nil)
		return nil, fmt.Errorf("launch batch: %w", err)
	}

	uc.log.Info().Str("job_id", job.ID).Int("segments", job.TotalSegments).Msg("batch submitted")
	return &SubmitReceipt{JobID: job.ID, Status: job.Status, TotalSegments: job.TotalSegments}, nil
}

// preflight checks both references of every pair against the FileNotFound and
// DurationExceeded rules, collecting every violation before rejecting.
func (uc *ComparisonUseCase) preflight(ctx context.Context, pairs []model.PairRef) *domain.ValidationError {
	var violations []domain.SegmentViolation
	for i, pair := range pairs {
		for _, ref := range []string{pair.InstructorRef, pair.UserRef} {
			info, err := uc.prober.Probe(ctx, ref)
			if err != nil {
				violations = append(violations, domain.SegmentViolation{Segment: i, Ref: ref, Reason: err})
				continue
			}
			if uc.maxClipDuration > 0 && info.Duration > uc.maxClipDuration {
				violations = append(violations, domain.SegmentViolation{
					Segment: i,
					Ref:     ref,
					Reason: fmt.Errorf("clip is %s (limit %s): %w",
						info.Duration.Round(time.Second), uc.maxClipDuration, domain.ErrDurationExceeded),
				})
			}
		}
	}
	if len(violations) > 0 {
		return &domain.ValidationError{Violations: violations}
	}
	return nil
}

// Progress returns a point-in-time snapshot of the job for polling clients.
func (uc *ComparisonUseCase) Progress(ctx context.Context, jobID string) (*model.Job, error) {
	return uc.store.Find(ctx, jobID)
}

// RetryFailed creates a derivative job covering the permanently failed
// segments of a completed job, optionally narrowed to explicit indices. The
// original job is never mutated; retry history is append-only across jobs.
func (uc *ComparisonUseCase) RetryFailed(ctx context.Context, jobID string, segments []int) (*SubmitReceipt, error) {
	job, err := uc.store.Find(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Status, domain.ErrJobNotCompleted)
	}
	if len(job.OriginalTasks) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNoRetryContext)
	}

	failed := job.FailedSegmentIndices()
	selected := failed
	if len(segments) > 0 {
		// explicit indices not currently in error are silently excluded
		wanted := make(map[int]struct{}, len(segments))
		for _, idx := range segments {
			wanted[idx] = struct{}{}
		}
		selected = nil
		for _, idx := range failed {
			if _, ok := wanted[idx]; ok {
				selected = append(selected, idx)
			}
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNoFailedSegments)
	}
	sort.Ints(selected)

	tasks := make([]model.PairRef, 0, len(selected))
	for _, idx := range selected {
		tasks = append(tasks, job.OriginalTasks[idx])
	}

	// fresh job, fresh automatic-retry budget
	retryJob, err := uc.store.Create(ctx, tasks, uc.maxAutoRetries)
	if err != nil {
		return nil, err
	}
	if err := uc.sched.Launch(uc.runCtx, retryJob); err != nil {
		_ = uc.store.MarkTerminal(ctx, retryJob.ID, model.JobStatusFailedToStart, nil)
		return nil, fmt.Errorf("launch retry batch: %w", err)
	}

	uc.log.Info().Str("job_id", retryJob.ID).Str("origin_job_id", jobID).
		Ints("segments", selected).Msg("retry batch submitted")
	return &SubmitReceipt{JobID: retryJob.ID, Status: retryJob.Status, TotalSegments: retryJob.TotalSegments}, nil
}
