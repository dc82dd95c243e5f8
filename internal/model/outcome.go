package model

// OutcomeStatus tags the variant of an Outcome.
type OutcomeStatus string

const (
	StatusConfident   OutcomeStatus = "resolved_confident"
	StatusNeedsReview OutcomeStatus = "resolved_needs_review"
	StatusUnresolved  OutcomeStatus = "unresolved"
)

// RankedCandidate is a candidate with its verification score, as surfaced to
// reviewers.
type RankedCandidate struct {
	URL     string   `json:"url"`
	Method  Method   `json:"method,omitempty"`
	Score   float64  `json:"score"`
	Signals []string `json:"signals"`
	Error   string   `json:"error,omitempty"`
}

// Outcome is the result of one resolution. Which fields are set depends on
// Status: confident outcomes carry ResolvedURL/Confidence/MatchedBy/Signals,
// the other two carry Candidates.
type Outcome struct {
	Status      OutcomeStatus     `json:"status"`
	ResolvedURL string            `json:"resolved_url,omitempty"`
	Confidence  float64           `json:"confidence,omitempty"`
	MatchedBy   string            `json:"matched_by,omitempty"`
	Signals     []string          `json:"signals,omitempty"`
	Snippet     string            `json:"snippet,omitempty"`
	Candidates  []RankedCandidate `json:"candidates,omitempty"`
}

// Confident reports whether the outcome resolved to a trusted URL.
func (o *Outcome) Confident() bool {
	return o != nil && o.Status == StatusConfident
}
