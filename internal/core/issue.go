package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Issue is a single defect reported by one tool for one location.
// Issues are immutable once created; a re-analysis produces a fresh set
// rather than mutating the old one.
type Issue struct {
	Tool     string   `json:"tool"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column,omitempty"`
	Severity Severity `json:"severity"`
	Category string   `json:"category,omitempty"` // e.g. "security", "style", "bug"
	RuleID   string   `json:"rule_id,omitempty"`
	Message  string   `json:"message"`
	Snippet  string   `json:"snippet,omitempty"`
}

// Validate checks if the issue has valid field values.
func (i *Issue) Validate() error {
	if i.Tool == "" {
		return fmt.Errorf("tool is required")
	}
	if i.File == "" {
		return fmt.Errorf("file is required")
	}
	if i.Line < 0 {
		return fmt.Errorf("line cannot be negative (got %d)", i.Line)
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", i.Severity)
	}
	if i.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

// AggregatedIssue is a deduplicated defect confirmed by one or more tools.
// Provenance sets grow as more tools report the same location/defect.
type AggregatedIssue struct {
	ID             string   `json:"id"` // content hash over file/line/column/normalized message
	File           string   `json:"file"`
	Line           int      `json:"line"`
	Column         int      `json:"column,omitempty"`
	Severity       Severity `json:"severity"` // max across contributors
	Category       string   `json:"category,omitempty"`
	RuleIDs        []string `json:"rule_ids"`   // sorted union
	ToolNames      []string `json:"tool_names"` // sorted union
	Confidence     float64  `json:"confidence"` // tool-weighted average, 0.0-1.0
	Message        string   `json:"message"`
	Snippet        string   `json:"snippet,omitempty"`
	DuplicateCount int      `json:"duplicate_count"` // number of raw issues merged in
}

// Validate checks if the aggregated issue has valid field values.
func (a *AggregatedIssue) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.Confidence < 0.0 || a.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", a.Confidence)
	}
	if a.DuplicateCount < 1 {
		return fmt.Errorf("duplicate_count must be at least 1 (got %d)", a.DuplicateCount)
	}
	if len(a.ToolNames) == 0 {
		return fmt.Errorf("at least one tool name is required")
	}
	return nil
}

// IssueID computes the stable content-hash identity of a defect. Two raw issues
// that hash to the same id describe the same logical defect.
func IssueID(file string, line, column int, normalizedMessage string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%d|%s", file, line, column, normalizedMessage))
	return hex.EncodeToString(sum[:12])
}

// SortedUnion merges two string sets into a sorted, duplicate-free slice.
func SortedUnion(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range a {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
