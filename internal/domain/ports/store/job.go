package store

import (
	"context"
	"time"

	"clipcompare/internal/domain/model"
)

// Transition carries the optional payload of one segment status change.
type Transition struct {
	Result  *model.AnalysisResult
	Error   string
	Attempt int           // retry ordinal of the attempt, 0 for the first
	Elapsed time.Duration // wall time of the finished attempt, zero otherwise
}

// JobStore is the process-wide registry of batch comparison jobs: the single
// source of truth polled by clients. It is passed by handle to both the
// scheduler and the API layer so backends stay swappable.
type JobStore interface {
	// Create registers a new job sized to tasks with every segment pending
	// and job status "processing".
	Create(ctx context.Context, tasks []model.PairRef, maxAutoRetries int) (*model.Job, error)

	// Find returns a point-in-time copy of the job, or ErrJobNotFound.
	Find(ctx context.Context, id string) (*model.Job, error)

	// RecordTransition is the only mutation entry point for segment state.
	// It maintains the count invariant, progress percentage, and the
	// remaining-time estimate. Unknown job IDs return ErrJobNotFound.
	RecordTransition(ctx context.Context, id string, segment int, next model.SegmentStatus, tr Transition) error

	// MarkTerminal finishes the job with the given status and aggregate.
	MarkTerminal(ctx context.Context, id string, status model.JobStatus, agg *model.BatchResult) error

	// Cleanup drops jobs whose StartTime is older than the retention window
	// and reports how many were removed.
	Cleanup(ctx context.Context, retention time.Duration) (int, error)
}
