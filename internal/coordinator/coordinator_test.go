package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/code-mender/internal/core"
)

// fakeAnalyzer scripts one tool's behavior per file.
type fakeAnalyzer struct {
	language string
	tool     string
	fail     map[string]bool // files whose analysis fails
	slow     time.Duration
	panics   bool
}

func (f *fakeAnalyzer) Language() string { return f.language }

func (f *fakeAnalyzer) Analyze(ctx context.Context, file string) ([]core.AnalysisResult, error) {
	if f.panics {
		panic("scripted panic")
	}
	if f.slow > 0 {
		select {
		case <-time.After(f.slow):
		case <-ctx.Done():
			return []core.AnalysisResult{{Tool: f.tool, File: file, Status: core.ResultCancelled, Error: ctx.Err().Error()}}, nil
		}
	}
	if f.fail[file] {
		return nil, errors.New("tool exploded")
	}
	return []core.AnalysisResult{{
		Tool:   f.tool,
		File:   file,
		Status: core.ResultOK,
		Issues: []core.Issue{{
			Tool: f.tool, File: file, Line: 1,
			Severity: core.SeverityLow, Message: "finding from " + f.tool,
		}},
	}}, nil
}

type fakeSource struct {
	byLang map[string][]core.Analyzer
}

func (s *fakeSource) AnalyzersFor(lang string) ([]core.Analyzer, bool) {
	a, ok := s.byLang[lang]
	return a, ok
}

func detectByExt(file string) (string, bool) {
	if strings.HasSuffix(file, ".go") {
		return "go", true
	}
	return "", false
}

func TestCoordinator_Completeness(t *testing.T) {
	source := &fakeSource{byLang: map[string][]core.Analyzer{
		"go": {
			&fakeAnalyzer{language: "go", tool: "good"},
			&fakeAnalyzer{language: "go", tool: "flaky", fail: map[string]bool{"b.go": true}},
		},
	}}

	files := []string{"a.go", "b.go", "c.go", "README.md"}
	c := New(source, detectByExt, 2, time.Minute, nil)

	out, err := c.Analyze(context.Background(), files)
	require.NoError(t, err)

	// Exactly one entry per input file, no matter how many tools failed.
	require.Len(t, out, len(files))
	for _, f := range files {
		require.Contains(t, out, f)
	}

	assert.Len(t, out["a.go"].Results, 2)
	assert.True(t, out["a.go"].Succeeded())

	// b.go keeps the good tool's result alongside the captured failure.
	var statuses []core.ResultStatus
	for _, r := range out["b.go"].Results {
		statuses = append(statuses, r.Status)
	}
	assert.ElementsMatch(t, []core.ResultStatus{core.ResultOK, core.ResultToolFailed}, statuses)

	// Unsupported files are recorded, not skipped.
	require.Len(t, out["README.md"].Results, 1)
	assert.Equal(t, core.ResultUnsupported, out["README.md"].Results[0].Status)
}

func TestCoordinator_PanicIsolation(t *testing.T) {
	source := &fakeSource{byLang: map[string][]core.Analyzer{
		"go": {
			&fakeAnalyzer{language: "go", tool: "boomer", panics: true},
			&fakeAnalyzer{language: "go", tool: "good"},
		},
	}}

	c := New(source, detectByExt, 2, time.Minute, nil)
	out, err := c.Analyze(context.Background(), []string{"a.go"})
	require.NoError(t, err)

	require.Len(t, out["a.go"].Results, 2)
	assert.True(t, out["a.go"].Succeeded())

	var failed *core.AnalysisResult
	for i := range out["a.go"].Results {
		if out["a.go"].Results[i].Status == core.ResultToolFailed {
			failed = &out["a.go"].Results[i]
		}
	}
	require.NotNil(t, failed)
	assert.Contains(t, failed.Error, "panicked")
}

func TestCoordinator_BatchDeadline(t *testing.T) {
	source := &fakeSource{byLang: map[string][]core.Analyzer{
		"go": {&fakeAnalyzer{language: "go", tool: "slow", slow: 5 * time.Second}},
	}}

	files := []string{"a.go", "b.go", "c.go", "d.go"}
	c := New(source, detectByExt, 1, 150*time.Millisecond, nil)

	start := time.Now()
	out, err := c.Analyze(context.Background(), files)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)

	// Every file still has an entry; tasks that never ran are marked cancelled.
	require.Len(t, out, len(files))
	cancelled := 0
	for _, fa := range out {
		require.NotEmpty(t, fa.Results)
		for _, r := range fa.Results {
			if r.Status == core.ResultCancelled {
				cancelled++
			}
		}
	}
	assert.NotZero(t, cancelled)
}

// Exercises the bounded fan-out with enough (file, tool) tasks that workers
// overlap the dispatch of later files. Run with -race.
func TestCoordinator_LargeFanOut(t *testing.T) {
	source := &fakeSource{byLang: map[string][]core.Analyzer{
		"go": {
			&fakeAnalyzer{language: "go", tool: "alpha"},
			&fakeAnalyzer{language: "go", tool: "beta"},
		},
	}}

	files := make([]string, 0, 250)
	for i := 0; i < 200; i++ {
		files = append(files, fmt.Sprintf("pkg/file_%03d.go", i))
	}
	for i := 0; i < 50; i++ {
		files = append(files, fmt.Sprintf("docs/page_%02d.md", i))
	}

	c := New(source, detectByExt, 8, time.Minute, nil)
	out, err := c.Analyze(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, out, len(files))

	for _, f := range files {
		fa, ok := out[f]
		require.True(t, ok, "missing entry for %s", f)
		if strings.HasSuffix(f, ".go") {
			require.Len(t, fa.Results, 2, "file %s", f)
			assert.True(t, fa.Succeeded(), "file %s", f)
		} else {
			require.Len(t, fa.Results, 1, "file %s", f)
			assert.Equal(t, core.ResultUnsupported, fa.Results[0].Status)
		}
	}
}

func TestCoordinator_EmptyInput(t *testing.T) {
	c := New(&fakeSource{}, detectByExt, 4, time.Minute, nil)
	out, err := c.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
