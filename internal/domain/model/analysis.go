package model

// PairRef identifies one instructor/user clip pair to be compared.
type PairRef struct {
	InstructorRef string `json:"instructor_ref"`
	UserRef       string `json:"user_ref"`
}

// AnalysisResult is the outcome of a single pair comparison. The scheduler
// only ever inspects MatchPercentage; everything else is payload carried
// through to the caller.
type AnalysisResult struct {
	MatchPercentage float64  `json:"match_percentage"`
	Summary         string   `json:"summary,omitempty"`
	Differences     []string `json:"differences,omitempty"`

	// Degraded is set when the upstream response could not be parsed into the
	// expected schema. Raw then holds the unparsed text so nothing is lost.
	Degraded bool   `json:"degraded,omitempty"`
	Raw      string `json:"raw,omitempty"`
}

// BatchResult is the aggregate computed once every segment of a job has
// reached a terminal state.
type BatchResult struct {
	OverallMatchPercentage *float64 `json:"overall_match_percentage"`
	CompletedSegments      int      `json:"completed_segments"`
	FailedSegments         int      `json:"failed_segments"`
}
