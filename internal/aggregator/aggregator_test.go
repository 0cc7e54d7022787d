package aggregator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/code-mender/internal/core"
)

var testConfidence = map[string]float64{
	"staticcheck": 0.9,
	"gosec":       0.8,
	"pylint":      0.7,
}

func newTestAggregator(lines map[string]int) *Aggregator {
	a := New(testConfidence, nil)
	a.countLines = func(file string) (int, error) {
		n, ok := lines[file]
		if !ok {
			return 0, errors.New("no such file")
		}
		return n, nil
	}
	return a
}

func analysesFor(file string, issues ...core.Issue) map[string]*core.FileAnalysis {
	return map[string]*core.FileAnalysis{
		file: {
			File:     file,
			Language: "go",
			Results:  []core.AnalysisResult{{Tool: "mixed", File: file, Status: core.ResultOK, Issues: issues}},
		},
	}
}

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{
			name: "Quoted strings are placeholders",
			a:    `variable "userCount" is unused`,
			b:    `variable 'totalItems' is unused`,
			same: true,
		},
		{
			name: "Numbers are placeholders",
			a:    "line exceeds 120 characters",
			b:    "line exceeds 140 characters",
			same: true,
		},
		{
			name: "Identifiers are placeholders",
			a:    "function parseConfig is too complex",
			b:    "function loadSettings is too complex",
			same: true,
		},
		{
			name: "Different defects stay distinct",
			a:    "unused variable",
			b:    "possible nil dereference",
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.same {
				assert.Equal(t, NormalizeMessage(tt.a), NormalizeMessage(tt.b))
			} else {
				assert.NotEqual(t, NormalizeMessage(tt.a), NormalizeMessage(tt.b))
			}
		})
	}
}

func TestAggregate_DedupSameLocation(t *testing.T) {
	a := newTestAggregator(map[string]int{"main.go": 200})

	input := analysesFor("main.go",
		core.Issue{Tool: "staticcheck", File: "main.go", Line: 10, Column: 5, Severity: core.SeverityMedium, RuleID: "SA4006", Message: "value is never used"},
		core.Issue{Tool: "gosec", File: "main.go", Line: 10, Column: 5, Severity: core.SeverityHigh, RuleID: "G104", Message: "value assigned here is never used"},
	)

	report := a.Aggregate("/proj", input)
	require.Len(t, report.Files["main.go"].Issues, 1)

	got := report.Files["main.go"].Issues[0]
	assert.Equal(t, 2, got.DuplicateCount)
	assert.Equal(t, []string{"gosec", "staticcheck"}, got.ToolNames)
	assert.Equal(t, []string{"G104", "SA4006"}, got.RuleIDs)
	assert.Equal(t, core.SeverityHigh, got.Severity, "merged severity is the max of contributors")
	assert.True(t, strings.HasPrefix(got.Message, "value assigned here is never used"), "merged message keeps the longest wording")
	assert.NoError(t, got.Validate())
}

func TestAggregate_DedupNormalizedMessage(t *testing.T) {
	a := newTestAggregator(map[string]int{"app.py": 100})

	// Same line, different columns and wording around a quoted name.
	input := analysesFor("app.py",
		core.Issue{Tool: "pylint", File: "app.py", Line: 42, Column: 0, Severity: core.SeverityLow, Message: `unused variable "request_id"`},
		core.Issue{Tool: "staticcheck", File: "app.py", Line: 42, Column: 8, Severity: core.SeverityLow, Message: `unused variable 'sessionKey'`},
	)

	report := a.Aggregate("/proj", input)
	require.Len(t, report.Files["app.py"].Issues, 1)

	got := report.Files["app.py"].Issues[0]
	assert.Equal(t, 2, got.DuplicateCount)
	assert.Equal(t, []string{"pylint", "staticcheck"}, got.ToolNames)
}

func TestAggregate_Idempotence(t *testing.T) {
	a := newTestAggregator(map[string]int{"main.go": 200})

	input := analysesFor("main.go",
		core.Issue{Tool: "staticcheck", File: "main.go", Line: 3, Severity: core.SeverityLow, Message: "shadowed variable"},
		core.Issue{Tool: "gosec", File: "main.go", Line: 3, Severity: core.SeverityLow, Message: "shadowed variable"},
		core.Issue{Tool: "staticcheck", File: "main.go", Line: 9, Severity: core.SeverityHigh, Message: "nil map write"},
	)

	first := a.Aggregate("/proj", input)
	second := a.Aggregate("/proj", input)

	assert.Equal(t, first.Files["main.go"].Issues, second.Files["main.go"].Issues)
	assert.Equal(t, first.TotalIssues, second.TotalIssues)
}

func TestAggregate_DensityAndHistogram(t *testing.T) {
	a := newTestAggregator(map[string]int{"main.go": 50, "empty.go": 0})

	input := map[string]*core.FileAnalysis{
		"main.go": {File: "main.go", Language: "go", Results: []core.AnalysisResult{{
			Tool: "staticcheck", File: "main.go", Status: core.ResultOK,
			Issues: []core.Issue{
				{Tool: "staticcheck", File: "main.go", Line: 1, Severity: core.SeverityHigh, Message: "a defect"},
				{Tool: "staticcheck", File: "main.go", Line: 2, Severity: core.SeverityLow, Message: "another defect"},
			},
		}}},
		"empty.go": {File: "empty.go", Language: "go", Results: []core.AnalysisResult{{
			Tool: "staticcheck", File: "empty.go", Status: core.ResultOK,
		}}},
	}

	report := a.Aggregate("/proj", input)
	assert.InDelta(t, 4.0, report.Files["main.go"].IssueDensity, 1e-9) // 2 issues per 50 lines
	assert.Zero(t, report.Files["empty.go"].IssueDensity, "zero-line file must not divide by zero")
	assert.Equal(t, 2, report.TotalIssues)
	assert.Equal(t, 1, report.SeverityHistogram[core.SeverityHigh])
	assert.Equal(t, 1, report.SeverityHistogram[core.SeverityLow])
}

func TestAggregate_EmptyProject(t *testing.T) {
	a := newTestAggregator(nil)

	report := a.Aggregate("/proj", nil)
	require.NotNil(t, report)
	assert.Empty(t, report.Files)
	assert.Zero(t, report.TotalIssues)
	assert.NotNil(t, report.SeverityHistogram)
}

func TestWeightedConfidence(t *testing.T) {
	a := newTestAggregator(nil)

	t.Run("Stricter tool pulls the average up", func(t *testing.T) {
		got := a.weightedConfidence([]string{"staticcheck", "pylint"})
		plain := (0.9 + 0.7) / 2
		assert.Greater(t, got, plain)
	})

	t.Run("Unknown tool gets the default", func(t *testing.T) {
		assert.InDelta(t, defaultToolConfidence, a.weightedConfidence([]string{"mystery"}), 1e-9)
	})
}
