// File: internal/infra/adapters/analysis/openai_analyzer.go
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"clipcompare/internal/domain"
	"clipcompare/internal/domain/model"
	"clipcompare/internal/domain/ports/adapter"
	"clipcompare/internal/infra/metrics"
)

var _ adapter.Analyzer = (*OpenAIAnalyzer)(nil)

// OpenAIAnalyzer scores a pair through the Chat Completions API. Clip
// references are passed to the model by URL; the byte budget is still
// enforced so oversized clips fail the same way on every provider.
type OpenAIAnalyzer struct {
	client       openai.Client
	model        string
	maxClipBytes int64
}

func NewOpenAIAnalyzer(apiKey, model string, maxClipBytes int64) (*OpenAIAnalyzer, error) {
	if apiKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	return &OpenAIAnalyzer{
		client:       openai.NewClient(option.WithAPIKey(apiKey)),
		model:        model,
		maxClipBytes: maxClipBytes,
	}, nil
}

func (o *OpenAIAnalyzer) Provider() string { return "openai" }

func (o *OpenAIAnalyzer) Analyze(ctx context.Context, pair model.PairRef) (*model.AnalysisResult, error) {
	for _, ref := range []string{pair.InstructorRef, pair.UserRef} {
		if err := o.checkClip(ref); err != nil {
			return nil, err
		}
	}

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstruction),
			openai.UserMessage(buildPrompt(pair)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat: %v: %w", err, domain.ErrUpstreamFailure)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices: %w", domain.ErrUpstreamFailure)
	}

	result := parseResult(completion.Choices[0].Message.Content)
	if result.Degraded {
		metrics.IncDegradedResponse(o.Provider())
	}
	return result, nil
}

// checkClip applies the inline-transfer budget to local references. Remote
// URLs are the upstream's problem and pass through.
func (o *OpenAIAnalyzer) checkClip(ref string) error {
	fi, err := os.Stat(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if o.maxClipBytes > 0 && fi.Size() > o.maxClipBytes {
		return fmt.Errorf("%s is %d bytes (budget %d): %w", ref, fi.Size(), o.maxClipBytes, domain.ErrPayloadTooLarge)
	}
	return nil
}
