package verification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/code-mender/internal/core"
)

// fakeReAnalyzer returns a scripted post-fix issue set.
type fakeReAnalyzer struct {
	issues []core.Issue
	failed bool
	err    error
}

func (f *fakeReAnalyzer) Analyze(_ context.Context, files []string) (map[string]*core.FileAnalysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	file := files[0]
	result := core.AnalysisResult{Tool: "fake", File: file, Status: core.ResultOK, Issues: f.issues}
	if f.failed {
		result.Status = core.ResultToolFailed
		result.Error = "linter crashed"
	}
	return map[string]*core.FileAnalysis{
		file: {File: file, Language: "go", Results: []core.AnalysisResult{result}},
	}, nil
}

func issue(line int, category, message string) core.Issue {
	return core.Issue{
		Tool: "fake", File: "main.go", Line: line,
		Severity: core.SeverityMedium, Category: category, Message: message,
	}
}

func testProblem() *core.Problem {
	return &core.Problem{
		ID: "prob-1", File: "main.go", Line: 10,
		Severity: core.SeverityMedium, Category: "security", Description: "issue A",
	}
}

func TestEngine_Verify_DiffCorrectness(t *testing.T) {
	issueA := issue(10, "security", "issue A")
	issueB := issue(20, "style", "issue B")
	issueC := issue(30, "bug", "issue C")

	// Original {A, B}, post-fix {B, C}: A fixed, B remaining, C new.
	e := NewEngine(&fakeReAnalyzer{issues: []core.Issue{issueB, issueC}}, nil)
	report := e.Verify(context.Background(), testProblem(), "sugg-1", []core.Issue{issueA, issueB}, "main.go")

	require.False(t, report.LowConfidence)
	assert.Equal(t, []core.Issue{issueA}, report.Fixed)
	assert.Equal(t, []core.Issue{issueB}, report.Remaining)
	assert.Equal(t, []core.Issue{issueC}, report.NewIssues)
	assert.InDelta(t, 0.5, report.SuccessRate, 1e-9)
	assert.True(t, report.TargetFixed, "the problem's own defect (A) is gone")
}

func TestEngine_Verify_CleanFix(t *testing.T) {
	original := []core.Issue{issue(10, "security", "issue A")}

	e := NewEngine(&fakeReAnalyzer{issues: nil}, nil)
	report := e.Verify(context.Background(), testProblem(), "sugg-1", original, "main.go")

	assert.InDelta(t, 1.0, report.SuccessRate, 1e-9)
	assert.Len(t, report.Fixed, 1)
	assert.Empty(t, report.Remaining)
	assert.Empty(t, report.NewIssues)
	assert.True(t, report.TargetFixed)
}

func TestEngine_Verify_ZeroOriginalIssues(t *testing.T) {
	e := NewEngine(&fakeReAnalyzer{issues: []core.Issue{issue(12, "style", "new problem")}}, nil)
	report := e.Verify(context.Background(), testProblem(), "sugg-1", nil, "main.go")

	assert.InDelta(t, 1.0, report.SuccessRate, 1e-9, "zero originals trivially count as fully fixed")
	assert.Len(t, report.NewIssues, 1)
}

func TestEngine_Verify_AnalysisFailure(t *testing.T) {
	tests := []struct {
		name     string
		analyzer ReAnalyzer
	}{
		{"Analyzer returns an error", &fakeReAnalyzer{err: errors.New("boom")}},
		{"Every tool fails", &fakeReAnalyzer{failed: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(tt.analyzer, nil)
			report := e.Verify(context.Background(), testProblem(), "sugg-1", []core.Issue{issue(10, "security", "issue A")}, "main.go")

			assert.True(t, report.LowConfidence, "analysis failure must degrade, not propagate")
			assert.NotEmpty(t, report.AnalysisError)
			assert.Equal(t, "prob-1", report.ProblemID)
		})
	}
}
