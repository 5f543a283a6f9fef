package model

import (
	"fmt"
	"math"
	"time"
)

type JobStatus string

const (
	JobStatusPending       JobStatus = "pending"
	JobStatusProcessing    JobStatus = "processing"
	JobStatusCompleted     JobStatus = "completed"
	JobStatusFailedToStart JobStatus = "failed_to_start"
)

type SegmentStatus string

const (
	SegmentStatusPending    SegmentStatus = "pending"
	SegmentStatusProcessing SegmentStatus = "processing"
	SegmentStatusRetrying   SegmentStatus = "retrying"
	SegmentStatusCompleted  SegmentStatus = "completed"
	SegmentStatusError      SegmentStatus = "error"
)

// Terminal reports whether a segment in this status is done for the current
// job. A segment parked in "error" may still re-enter "retrying" while the
// scheduler has automatic retry budget left; from the registry's point of
// view both completed and error count toward finished work.
func (s SegmentStatus) Terminal() bool {
	return s == SegmentStatusCompleted || s == SegmentStatusError
}

// InFlight reports whether a segment currently occupies a concurrency slot.
func (s SegmentStatus) InFlight() bool {
	return s == SegmentStatusProcessing || s == SegmentStatusRetrying
}

// SegmentState is the registry's record for one instructor/user pair within
// a job.
type SegmentState struct {
	Status        SegmentStatus   `json:"status"`
	Result        *AnalysisResult `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	RetryAttempts int             `json:"retry_attempts"`
}

// Job is one batch comparison request and its tracked lifecycle. Jobs are
// mutated exclusively through the JobStore; everything here is plain data so
// stores can copy or serialize it whole.
type Job struct {
	ID             string         `json:"id"`
	Status         JobStatus      `json:"status"`
	TotalSegments  int            `json:"total_segments"`
	CompletedCount int            `json:"completed_count"`
	FailedCount    int            `json:"failed_count"`
	InProgress     int            `json:"in_progress_count"`
	Progress       int            `json:"progress"`
	Segments       []SegmentState `json:"segments"`
	MaxAutoRetries int            `json:"max_auto_retries"`
	StartTime      time.Time      `json:"start_time"`

	// EstimatedRemaining extrapolates from the average duration of finished
	// segments; zero until at least one segment has finished.
	EstimatedRemaining time.Duration `json:"estimated_remaining"`

	// FinishedWork accumulates the wall time of every finished attempt and
	// feeds the remaining-time estimate.
	FinishedWork     time.Duration `json:"finished_work"`
	FinishedAttempts int           `json:"finished_attempts"`

	// OriginalTasks keeps the submitted pairs so a later manual retry can
	// rebuild tasks by segment index.
	OriginalTasks []PairRef `json:"original_tasks"`

	Aggregate *BatchResult `json:"aggregate,omitempty"`
}

// NewJob builds a fresh job with every segment pending.
func NewJob(id string, tasks []PairRef, maxAutoRetries int) *Job {
	segs := make([]SegmentState, len(tasks))
	for i := range segs {
		segs[i].Status = SegmentStatusPending
	}
	return &Job{
		ID:             id,
		Status:         JobStatusProcessing,
		TotalSegments:  len(tasks),
		Segments:       segs,
		MaxAutoRetries: maxAutoRetries,
		StartTime:      time.Now(),
		OriginalTasks:  append([]PairRef(nil), tasks...),
	}
}

// PendingCount derives the number of segments not yet picked up. The master
// invariant is CompletedCount+FailedCount+InProgress+PendingCount ==
// TotalSegments after every mutation.
func (j *Job) PendingCount() int {
	return j.TotalSegments - j.CompletedCount - j.FailedCount - j.InProgress
}

// FailedSegmentIndices returns the segments whose last known status is
// "error", in index order.
func (j *Job) FailedSegmentIndices() []int {
	var out []int
	for i := range j.Segments {
		if j.Segments[i].Status == SegmentStatusError {
			out = append(out, i)
		}
	}
	return out
}

// OverallMatchPercentage is the mean match over completed segments only;
// nil while nothing has completed.
func (j *Job) OverallMatchPercentage() *float64 {
	sum, n := 0.0, 0
	for i := range j.Segments {
		s := &j.Segments[i]
		if s.Status == SegmentStatusCompleted && s.Result != nil {
			sum += s.Result.MatchPercentage
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}

// ApplyTransition moves one segment to its next status and maintains every
// derived field: the count invariant, progress, and the remaining-time
// estimate. Stores call this under their own locking; the bookkeeping itself
// is deterministic data manipulation.
//
// Count rules: leaving processing/retrying frees an in-flight slot and
// entering one takes it; entering completed counts the segment done and, when
// it was previously parked in error, stops counting it failed; entering error
// counts it failed once; re-entering retrying from error likewise moves it
// out of the failed bucket while the re-attempt runs.
func (j *Job) ApplyTransition(segment int, next SegmentStatus, result *AnalysisResult, errMsg string, attempt int, elapsed time.Duration) error {
	if segment < 0 || segment >= len(j.Segments) {
		return fmt.Errorf("segment %d out of range [0,%d)", segment, len(j.Segments))
	}

	seg := &j.Segments[segment]
	prev := seg.Status

	if prev.InFlight() {
		j.InProgress--
	}
	if next.InFlight() {
		j.InProgress++
	}

	switch next {
	case SegmentStatusCompleted:
		j.CompletedCount++
		if prev == SegmentStatusError {
			j.FailedCount--
		}
		seg.Result = result
		seg.Error = ""
	case SegmentStatusError:
		if prev != SegmentStatusError {
			j.FailedCount++
		}
		seg.Error = errMsg
	case SegmentStatusRetrying:
		if prev == SegmentStatusError {
			j.FailedCount--
		}
	}

	if attempt > seg.RetryAttempts {
		seg.RetryAttempts = attempt
	}
	seg.Status = next

	if next.Terminal() && elapsed > 0 {
		j.FinishedWork += elapsed
		j.FinishedAttempts++
	}

	j.recompute()
	return nil
}

// recompute refreshes progress and the remaining-time estimate from the
// counts. Estimation extrapolates the mean duration of finished attempts over
// the unfinished segments; zero until something has finished.
func (j *Job) recompute() {
	finished := j.CompletedCount + j.FailedCount
	if j.TotalSegments > 0 {
		j.Progress = int(math.Round(100 * float64(finished) / float64(j.TotalSegments)))
	}
	if j.FinishedAttempts > 0 && finished < j.TotalSegments {
		avg := j.FinishedWork / time.Duration(j.FinishedAttempts)
		j.EstimatedRemaining = avg * time.Duration(j.TotalSegments-finished)
	} else {
		j.EstimatedRemaining = 0
	}
}

// Finish stamps the terminal status and aggregate once the scheduler loop
// has drained.
func (j *Job) Finish(status JobStatus, agg *BatchResult) {
	j.Status = status
	j.Aggregate = agg
	j.EstimatedRemaining = 0
}

// Clone deep-copies the job so store snapshots never alias live state.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Segments = make([]SegmentState, len(j.Segments))
	for i := range j.Segments {
		cp.Segments[i] = j.Segments[i]
		if r := j.Segments[i].Result; r != nil {
			rc := *r
			if r.Differences != nil {
				rc.Differences = append([]string(nil), r.Differences...)
			}
			cp.Segments[i].Result = &rc
		}
	}
	cp.OriginalTasks = append([]PairRef(nil), j.OriginalTasks...)
	if j.Aggregate != nil {
		ac := *j.Aggregate
		if j.Aggregate.OverallMatchPercentage != nil {
			v := *j.Aggregate.OverallMatchPercentage
			ac.OverallMatchPercentage = &v
		}
		cp.Aggregate = &ac
	}
	return &cp
}
