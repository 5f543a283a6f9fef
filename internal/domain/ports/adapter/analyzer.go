package adapter

import (
	"context"
	"time"

	"clipcompare/internal/domain/model"
)

// Analyzer is the port for the slow, fallible comparison call. Implementations
// wrap an external AI provider; a response that cannot be parsed into the
// expected schema must degrade to a zero-score placeholder result instead of
// returning an error, so a malformed response never stalls a batch.
type Analyzer interface {
	// Analyze compares the two clips of one pair and returns a scored result.
	Analyze(ctx context.Context, pair model.PairRef) (*model.AnalysisResult, error)

	// Provider names the backing service for logs and metrics.
	Provider() string
}

// ClipInfo is what pre-flight validation needs to know about one clip.
type ClipInfo struct {
	Duration  time.Duration
	SizeBytes int64
}

// Prober resolves a clip reference into its basic properties. A missing
// reference returns ErrFileNotFound.
type Prober interface {
	Probe(ctx context.Context, ref string) (*ClipInfo, error)
}
