package analysis

import (
	"context"

	"clipcompare/internal/domain/model"
	"clipcompare/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.Analyzer = (*limitedAnalyzer)(nil)

// limitedAnalyzer caps concurrent upstream calls across ALL jobs. Per-job
// concurrency stays with the scheduler; this guards the provider quota when
// many batches run at once.
type limitedAnalyzer struct {
	inner adapter.Analyzer
	sem   chan struct{}
}

func NewLimitedAnalyzer(inner adapter.Analyzer, maxConcurrent int) adapter.Analyzer {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAnalyzer{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAnalyzer) Provider() string { return l.inner.Provider() }

func (l *limitedAnalyzer) Analyze(ctx context.Context, pair model.PairRef) (*model.AnalysisResult, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Analyze(ctx, pair)
}
