package core

import (
	"context"
	"time"
)

// ResultStatus describes how a single (file, tool) analysis task ended.
type ResultStatus string

const (
	ResultOK          ResultStatus = "ok"
	ResultToolFailed  ResultStatus = "tool_failed"
	ResultUnsupported ResultStatus = "unsupported"
	ResultCancelled   ResultStatus = "cancelled"
)

// AnalysisResult is the outcome of running one tool against one file.
// Tool failures are captured here rather than propagated, so one failing
// tool can never abort a batch.
type AnalysisResult struct {
	Tool     string        `json:"tool"`
	File     string        `json:"file"`
	Status   ResultStatus  `json:"status"`
	Issues   []Issue       `json:"issues,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// FileAnalysis collects the per-tool results for a single file.
type FileAnalysis struct {
	File     string           `json:"file"`
	Language string           `json:"language"`
	Results  []AnalysisResult `json:"results"`
}

// Issues flattens all issues reported by all tools for this file,
// in no particular order.
func (fa *FileAnalysis) Issues() []Issue {
	var out []Issue
	for _, r := range fa.Results {
		out = append(out, r.Issues...)
	}
	return out
}

// Succeeded reports whether at least one tool produced a usable result.
func (fa *FileAnalysis) Succeeded() bool {
	for _, r := range fa.Results {
		if r.Status == ResultOK {
			return true
		}
	}
	return false
}

// FileReport is the aggregated, deduplicated view of one file's defects.
type FileReport struct {
	File         string            `json:"file"`
	LineCount    int               `json:"line_count"`
	Issues       []AggregatedIssue `json:"issues"`
	IssueDensity float64           `json:"issue_density"` // issues per 100 lines; 0 for empty files
}

// ProjectReport is the deduplicated issue set for a whole project, plus
// per-file densities and the project-wide severity histogram. An empty
// project yields an empty but well-formed report.
type ProjectReport struct {
	ProjectPath       string                 `json:"project_path"`
	GeneratedAt       time.Time              `json:"generated_at"`
	Files             map[string]*FileReport `json:"files"`
	SeverityHistogram map[Severity]int       `json:"severity_histogram"`
	TotalIssues       int                    `json:"total_issues"`
}

// AllIssues flattens the aggregated issues of every file.
func (pr *ProjectReport) AllIssues() []AggregatedIssue {
	var out []AggregatedIssue
	for _, f := range pr.Files {
		out = append(out, f.Issues...)
	}
	return out
}

// Analyzer runs static analysis for one language against one file.
// Implementations wrap one or more external lint tools.
type Analyzer interface {
	// Language returns the language key this analyzer handles, e.g. "go".
	Language() string

	// Analyze runs every registered tool for this analyzer's language against
	// the file and returns one AnalysisResult per tool. Tool failures are
	// recorded in the results, never returned as an error; the error return is
	// reserved for invariant violations (e.g. the file does not exist).
	Analyze(ctx context.Context, file string) ([]AnalysisResult, error)
}
