// Package analysis holds the concrete Analyzer adapters. Each one wraps an
// external AI provider behind the same port; the batch scheduler never knows
// which provider produced a result.
package analysis

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"clipcompare/internal/domain/model"
)

const systemInstruction = `You compare two short videos of the same exercise: an instructor reference clip and a user attempt. Score how closely the user's movement matches the instructor's. Respond with a single JSON object:
{"match_percentage": <0-100 number>, "summary": "<one paragraph>", "differences": ["<difference>", ...]}
Respond with JSON only, no prose around it.`

func buildPrompt(pair model.PairRef) string {
	return fmt.Sprintf("Instructor clip: %s\nUser clip: %s\nCompare the user's movement against the instructor's and score the match.", pair.InstructorRef, pair.UserRef)
}

// parseResult turns the model's reply into an AnalysisResult. A reply that
// cannot be parsed degrades to a zero-score placeholder carrying the raw text
// instead of an error, so a malformed response never stalls a batch.
func parseResult(raw string) *model.AnalysisResult {
	text := stripFences(raw)

	var parsed struct {
		MatchPercentage float64  `json:"match_percentage"`
		Summary         string   `json:"summary"`
		Differences     []string `json:"differences"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return &model.AnalysisResult{Degraded: true, Raw: raw}
	}
	if parsed.MatchPercentage < 0 {
		parsed.MatchPercentage = 0
	}
	if parsed.MatchPercentage > 100 {
		parsed.MatchPercentage = 100
	}
	return &model.AnalysisResult{
		MatchPercentage: parsed.MatchPercentage,
		Summary:         parsed.Summary,
		Differences:     parsed.Differences,
	}
}

// stripFences removes a surrounding markdown code fence, which chat models
// add even when told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func mimeFor(ref string) string {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "video/mp4"
	}
}
