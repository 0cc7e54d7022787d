package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ProblemStatus is the remediation state of a tracked defect. Status moves
// only through the workflow state machine; no other component may flip it.
type ProblemStatus string

const (
	ProblemPending    ProblemStatus = "pending"
	ProblemInProgress ProblemStatus = "in_progress"
	ProblemResolved   ProblemStatus = "resolved"
	ProblemSkipped    ProblemStatus = "skipped"
)

// IsValid checks if the problem status value is valid.
func (s ProblemStatus) IsValid() bool {
	switch s {
	case ProblemPending, ProblemInProgress, ProblemResolved, ProblemSkipped:
		return true
	}
	return false
}

// Terminal reports whether the status is an end state.
func (s ProblemStatus) Terminal() bool {
	return s == ProblemResolved || s == ProblemSkipped
}

// SkipReason is the explicit reason code required to skip a problem.
type SkipReason string

const (
	SkipFalsePositive  SkipReason = "false_positive"
	SkipIntentional    SkipReason = "intentional"
	SkipOutOfScope     SkipReason = "out_of_scope"
	SkipRetryExhausted SkipReason = "retry_exhausted"
)

// IsValid checks if the skip reason value is valid.
func (r SkipReason) IsValid() bool {
	switch r {
	case SkipFalsePositive, SkipIntentional, SkipOutOfScope, SkipRetryExhausted:
		return true
	}
	return false
}

// Problem is a tracked unit of remediation work derived from an AggregatedIssue.
// At most one open Problem exists per aggregated issue id.
type Problem struct {
	ID          string        `json:"id"`
	SessionID   string        `json:"session_id"`
	IssueID     string        `json:"issue_id"` // originating AggregatedIssue
	File        string        `json:"file"`
	Line        int           `json:"line"`
	Severity    Severity      `json:"severity"`
	Category    string        `json:"category,omitempty"`
	Description string        `json:"description"`
	Snippet     string        `json:"snippet,omitempty"`
	Status      ProblemStatus `json:"status"`
	RetryCount  int           `json:"retry_count"`
	SkipReason  SkipReason    `json:"skip_reason,omitempty"`
	ResolvedBy  string        `json:"resolved_by,omitempty"` // suggestion id, required for audit
	LastError   string        `json:"last_error,omitempty"`  // annotation from a failed apply/verify
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Validate checks if the problem has valid field values.
func (p *Problem) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.IssueID == "" {
		return fmt.Errorf("issue_id is required")
	}
	if p.File == "" {
		return fmt.Errorf("file is required")
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", p.Status)
	}
	if p.RetryCount < 0 {
		return fmt.Errorf("retry_count cannot be negative (got %d)", p.RetryCount)
	}
	if p.Status == ProblemSkipped && !p.SkipReason.IsValid() {
		return fmt.Errorf("skipped problems require a valid skip reason (got %q)", p.SkipReason)
	}
	if p.Status == ProblemResolved && p.ResolvedBy == "" {
		return fmt.Errorf("resolved problems require the originating suggestion id")
	}
	return nil
}

// FixSuggestion is a candidate patch produced by the external suggestion
// provider. One suggestion is active per problem at a time; superseded
// suggestions are kept in history.
type FixSuggestion struct {
	ID           string    `json:"id"`
	ProblemID    string    `json:"problem_id"`
	OriginalCode string    `json:"original_code"`
	ProposedCode string    `json:"proposed_code"`
	Explanation  string    `json:"explanation,omitempty"`
	SideEffects  string    `json:"side_effects,omitempty"`
	Confidence   float64   `json:"confidence"` // 0.0-1.0
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks if the suggestion has valid field values.
func (f *FixSuggestion) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("id is required")
	}
	if f.ProblemID == "" {
		return fmt.Errorf("problem_id is required")
	}
	if f.Confidence < 0.0 || f.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", f.Confidence)
	}
	return nil
}

// ErrNoSuggestion is returned by a SuggestionProvider when it cannot produce
// a usable suggestion (empty or below its confidence floor). The workflow
// routes such problems to manual review rather than failing.
var ErrNoSuggestion = errors.New("no suggestion available")

// SuggestionRequest carries what the provider needs to propose a fix.
type SuggestionRequest struct {
	Problem     *Problem
	FileContent string
	// FailedSuggestions lists earlier suggestions for this problem that were
	// applied and rejected, so the provider can avoid repeating them.
	FailedSuggestions []FixSuggestion
	// CustomInstructions come from the project's .code-mender.yml.
	CustomInstructions []string
}

// SuggestionProvider produces candidate patches for problems. It is an
// external collaborator: low-confidence or empty results surface as
// ErrNoSuggestion, transport failures as ordinary errors.
type SuggestionProvider interface {
	Propose(ctx context.Context, req *SuggestionRequest) (*FixSuggestion, error)

	// AssessFix returns an optional qualitative 0.0-1.0 score for an applied
	// fix, used as the external signal when blending verification scores.
	// A nil score means no signal is available.
	AssessFix(ctx context.Context, problem *Problem, suggestion *FixSuggestion, modifiedContent string) (*float64, error)
}
