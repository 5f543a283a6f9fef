package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Common domain errors
	ErrJobNotFound      = errors.New("job not found")
	ErrJobNotCompleted  = errors.New("job has not finished running")
	ErrNoRetryContext   = errors.New("job retains no original tasks to retry")
	ErrNoFailedSegments = errors.New("no failed segments selected for retry")
	ErrInvalidArgument  = errors.New("invalid argument")

	// Clip / analysis errors
	ErrFileNotFound     = errors.New("clip file not found")
	ErrDurationExceeded = errors.New("clip duration exceeds configured maximum")
	ErrPayloadTooLarge  = errors.New("clip exceeds inline transfer budget")
	ErrUpstreamFailure  = errors.New("analysis upstream call failed")
)

// SegmentViolation names one pre-flight check failure: which segment, which
// of its two clip references, and why it was rejected.
type SegmentViolation struct {
	Segment int
	Ref     string
	Reason  error
}

// ValidationError rejects a whole batch before any job is created. It carries
// every offending segment so the caller can fix all of them at once.
type ValidationError struct {
	Violations []SegmentViolation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "batch validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("segment %d (%s): %v", v.Segment, v.Ref, v.Reason))
	}
	return "batch validation failed: " + strings.Join(parts, "; ")
}
