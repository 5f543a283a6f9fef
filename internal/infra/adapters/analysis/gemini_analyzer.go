// File: internal/infra/adapters/analysis/gemini_analyzer.go
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"

	"google.golang.org/genai"

	"clipcompare/internal/domain"
	"clipcompare/internal/domain/model"
	"clipcompare/internal/domain/ports/adapter"
	"clipcompare/internal/infra/metrics"
)

var _ adapter.Analyzer = (*GeminiAnalyzer)(nil)

// GeminiAnalyzer sends both clips inline with the prompt, so the configured
// byte budget caps what a single call may carry.
type GeminiAnalyzer struct {
	client       *genai.Client
	model        string
	maxOut       int
	maxClipBytes int64
}

func NewGeminiAnalyzer(ctx context.Context, apiKey, baseURL, model string, maxOut int, maxClipBytes int64) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAnalyzer{client: c, model: model, maxOut: maxOut, maxClipBytes: maxClipBytes}, nil
}

func (g *GeminiAnalyzer) Provider() string { return "gemini" }

func (g *GeminiAnalyzer) Analyze(ctx context.Context, pair model.PairRef) (*model.AnalysisResult, error) {
	parts := []*genai.Part{
		{Text: systemInstruction + "\n\n" + buildPrompt(pair)},
	}
	for _, ref := range []string{pair.InstructorRef, pair.UserRef} {
		data, err := g.readClip(ref)
		if err != nil {
			return nil, err
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: mimeFor(ref), Data: data},
		})
	}

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: int32(g.maxOut),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %v: %w", err, domain.ErrUpstreamFailure)
	}

	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		if t := resp.Candidates[0].Content.Parts[0].Text; t != "" {
			text = t
		}
	}
	if text == "" {
		return nil, fmt.Errorf("gemini returned no candidates: %w", domain.ErrUpstreamFailure)
	}

	result := parseResult(text)
	if result.Degraded {
		metrics.IncDegradedResponse(g.Provider())
	}
	return result, nil
}

func (g *GeminiAnalyzer) readClip(ref string) ([]byte, error) {
	fi, err := os.Stat(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", ref, domain.ErrFileNotFound)
		}
		return nil, err
	}
	if g.maxClipBytes > 0 && fi.Size() > g.maxClipBytes {
		return nil, fmt.Errorf("%s is %d bytes (budget %d): %w", ref, fi.Size(), g.maxClipBytes, domain.ErrPayloadTooLarge)
	}
	return os.ReadFile(ref)
}
