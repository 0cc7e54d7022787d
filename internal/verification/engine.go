// Package verification re-checks a file after a fix was applied. The engine
// re-runs static analysis and diffs the pre-fix and post-fix issue sets by
// signature; the aggregator blends that diff with an optional external
// assessment into one scored verdict with a recommended action.
package verification

import (
	"context"
	"log/slog"
	"time"

	"github.com/sevigo/code-mender/internal/core"
)

// ReAnalyzer runs static analysis over a set of files. Satisfied by
// *coordinator.Coordinator.
type ReAnalyzer interface {
	Analyze(ctx context.Context, files []string) (map[string]*core.FileAnalysis, error)
}

// Engine computes the signature-based diff between a problem's original
// issues and a fresh analysis of the modified file.
type Engine struct {
	analyzer ReAnalyzer
	logger   *slog.Logger
}

// NewEngine creates a verification engine.
func NewEngine(analyzer ReAnalyzer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{analyzer: analyzer, logger: logger}
}

// Verify re-analyzes the modified file and classifies every original issue
// as fixed or remaining, plus any newly introduced issues. Analysis failures
// never propagate: they yield a low-confidence report so the workflow can
// route the problem to manual review instead of losing it.
func (e *Engine) Verify(ctx context.Context, problem *core.Problem, suggestionID string, originalIssues []core.Issue, modifiedFile string) *core.VerificationReport {
	report := &core.VerificationReport{
		ProblemID:    problem.ID,
		SuggestionID: suggestionID,
		CreatedAt:    time.Now().UTC(),
	}

	analyses, err := e.analyzer.Analyze(ctx, []string{modifiedFile})
	if err != nil {
		return e.lowConfidence(report, err.Error())
	}
	fa, ok := analyses[modifiedFile]
	if !ok {
		return e.lowConfidence(report, "re-analysis produced no result for the modified file")
	}
	if !fa.Succeeded() {
		return e.lowConfidence(report, firstError(fa))
	}

	current := fa.Issues()
	currentSet := core.SignatureSet(current)
	originalSet := core.SignatureSet(originalIssues)

	for _, issue := range originalIssues {
		if currentSet[core.IssueSignature(&issue)] {
			report.Remaining = append(report.Remaining, issue)
		} else {
			report.Fixed = append(report.Fixed, issue)
		}
	}
	for _, issue := range current {
		if !originalSet[core.IssueSignature(&issue)] {
			report.NewIssues = append(report.NewIssues, issue)
		}
	}

	// A clean original set trivially counts as fully fixed.
	if len(originalIssues) == 0 {
		report.SuccessRate = 1.0
	} else {
		report.SuccessRate = float64(len(report.Fixed)) / float64(len(originalIssues))
	}

	target := core.Issue{
		File:     problem.File,
		Line:     problem.Line,
		Category: problem.Category,
		Message:  problem.Description,
	}
	report.TargetFixed = !currentSet[core.IssueSignature(&target)]

	return report
}

func (e *Engine) lowConfidence(report *core.VerificationReport, reason string) *core.VerificationReport {
	e.logger.Warn("re-analysis failed, returning low-confidence report",
		"problem_id", report.ProblemID, "error", reason)
	report.LowConfidence = true
	report.AnalysisError = reason
	return report
}

func firstError(fa *core.FileAnalysis) string {
	for _, r := range fa.Results {
		if r.Error != "" {
			return r.Error
		}
	}
	return "all analysis tools failed"
}
