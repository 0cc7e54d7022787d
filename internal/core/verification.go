package core

import (
	"fmt"
	"time"
)

// VerificationReport is the raw outcome of re-analyzing a file after a fix
// was applied: a signature-based diff of the pre-fix and post-fix issue sets.
// Reports are immutable once created.
type VerificationReport struct {
	ProblemID     string    `json:"problem_id"`
	SuggestionID  string    `json:"suggestion_id"`
	Fixed         []Issue   `json:"fixed"`     // original issues absent after the fix
	Remaining     []Issue   `json:"remaining"` // original issues still present
	NewIssues     []Issue   `json:"new_issues"`
	SuccessRate   float64   `json:"success_rate"` // fixed / max(1, total original)
	TargetFixed   bool      `json:"target_fixed"` // the problem's own defect is gone
	LowConfidence bool      `json:"low_confidence,omitempty"` // re-analysis itself failed
	AnalysisError string    `json:"analysis_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// FixStatus is the terminal classification of a verified fix.
type FixStatus string

const (
	FixSuccess        FixStatus = "success"
	FixPartialSuccess FixStatus = "partial_success"
	FixUncertain      FixStatus = "uncertain"
	FixFailed         FixStatus = "failed"
	FixRegressed      FixStatus = "regressed"
)

// IsValid checks if the fix status value is valid.
func (s FixStatus) IsValid() bool {
	switch s {
	case FixSuccess, FixPartialSuccess, FixUncertain, FixFailed, FixRegressed:
		return true
	}
	return false
}

// RecommendedAction is what the workflow should do with a verified fix.
type RecommendedAction string

const (
	ActionAccept       RecommendedAction = "accept"
	ActionImprove      RecommendedAction = "improve"
	ActionManualReview RecommendedAction = "manual_review"
	ActionReject       RecommendedAction = "reject"
)

// IsValid checks if the recommended action value is valid.
func (a RecommendedAction) IsValid() bool {
	switch a {
	case ActionAccept, ActionImprove, ActionManualReview, ActionReject:
		return true
	}
	return false
}

// ComprehensiveReport merges the static verification diff with an optional
// external qualitative assessment into one scored verdict. One record is
// persisted per verification attempt, keyed (session id, problem id).
type ComprehensiveReport struct {
	ID            string             `json:"id"`
	SessionID     string             `json:"session_id"`
	ProblemID     string             `json:"problem_id"`
	SuggestionID  string             `json:"suggestion_id"`
	Static        VerificationReport `json:"static"`
	StaticScore   float64            `json:"static_score"`
	ExternalScore *float64           `json:"external_score,omitempty"` // nil when no signal was available
	CombinedScore float64            `json:"combined_score"`
	Status        FixStatus          `json:"status"`
	Action        RecommendedAction  `json:"action"`
	NewIssueCount int                `json:"new_issue_count"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Validate checks if the report has valid field values.
func (r *ComprehensiveReport) Validate() error {
	if r.SessionID == "" || r.ProblemID == "" {
		return fmt.Errorf("session_id and problem_id are required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	if !r.Action.IsValid() {
		return fmt.Errorf("invalid action: %s", r.Action)
	}
	if r.CombinedScore < 0.0 || r.CombinedScore > 1.0 {
		return fmt.Errorf("combined_score must be between 0.0 and 1.0 (got %.2f)", r.CombinedScore)
	}
	if r.NewIssueCount != len(r.Static.NewIssues) {
		return fmt.Errorf("new_issue_count (%d) does not match new_issues length (%d)",
			r.NewIssueCount, len(r.Static.NewIssues))
	}
	return nil
}
