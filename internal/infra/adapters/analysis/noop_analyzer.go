package analysis

import (
	"context"
	"time"

	"clipcompare/internal/domain/model"
	"clipcompare/internal/domain/ports/adapter"
)

var _ adapter.Analyzer = (*NoopAnalyzer)(nil)

// NoopAnalyzer implements the Analyzer port for local/dev runs. It simulates
// a short upstream delay and returns a fixed score instead of calling a real
// provider.
type NoopAnalyzer struct{}

func NewNoopAnalyzer() *NoopAnalyzer { return &NoopAnalyzer{} }

func (a *NoopAnalyzer) Provider() string { return "noop" }

func (a *NoopAnalyzer) Analyze(ctx context.Context, pair model.PairRef) (*model.AnalysisResult, error) {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &model.AnalysisResult{
		MatchPercentage: 75,
		Summary:         "noop analyzer placeholder comparison",
	}, nil
}
