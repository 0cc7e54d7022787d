package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/code-mender/internal/analyzer"
	"github.com/sevigo/code-mender/internal/config"
	"github.com/sevigo/code-mender/internal/core"
	"github.com/sevigo/code-mender/internal/fixer"
	"github.com/sevigo/code-mender/internal/gitutil"
	"github.com/sevigo/code-mender/internal/storage"
	"github.com/sevigo/code-mender/internal/verification"
	"github.com/sevigo/code-mender/internal/workflow"
)

// memStore is an in-memory storage.Store for session tests.
type memStore struct {
	sessions    map[string]*core.WorkflowSession
	problems    map[string]*core.Problem
	suggestions []core.FixSuggestion
	reports     []core.ComprehensiveReport
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*core.WorkflowSession),
		problems: make(map[string]*core.Problem),
	}
}

func (s *memStore) SaveSession(_ context.Context, session *core.WorkflowSession) error {
	s.sessions[session.ID] = session
	return nil
}

func (s *memStore) UpdateSession(_ context.Context, session *core.WorkflowSession) error {
	if _, ok := s.sessions[session.ID]; !ok {
		return storage.ErrNotFound
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *memStore) GetSession(_ context.Context, id string) (*core.WorkflowSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return session, nil
}

func (s *memStore) SaveProblem(_ context.Context, p *core.Problem) error {
	s.problems[p.ID] = p
	return nil
}

func (s *memStore) UpdateProblem(_ context.Context, p *core.Problem) error {
	if _, ok := s.problems[p.ID]; !ok {
		return storage.ErrNotFound
	}
	s.problems[p.ID] = p
	return nil
}

func (s *memStore) SaveSuggestion(_ context.Context, sg *core.FixSuggestion) error {
	s.suggestions = append(s.suggestions, *sg)
	return nil
}

func (s *memStore) ListSuggestions(_ context.Context, problemID string) ([]core.FixSuggestion, error) {
	var out []core.FixSuggestion
	for _, sg := range s.suggestions {
		if sg.ProblemID == problemID {
			out = append(out, sg)
		}
	}
	return out, nil
}

func (s *memStore) SaveReport(_ context.Context, r *core.ComprehensiveReport) error {
	s.reports = append(s.reports, *r)
	return nil
}

func (s *memStore) ListReports(_ context.Context, sessionID string) ([]core.ComprehensiveReport, error) {
	var out []core.ComprehensiveReport
	for _, r := range s.reports {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) GetLatestReport(_ context.Context, _, _ string) (*core.ComprehensiveReport, error) {
	return nil, storage.ErrNotFound
}

// fakeSuggester scripts the provider responses per call.
type fakeSuggester struct {
	suggestion *core.FixSuggestion
	proposeErr error
	assessment *float64
	calls      int
}

func (f *fakeSuggester) Propose(_ context.Context, req *core.SuggestionRequest) (*core.FixSuggestion, error) {
	f.calls++
	if f.proposeErr != nil {
		return nil, f.proposeErr
	}
	sg := *f.suggestion
	sg.ProblemID = req.Problem.ID
	return &sg, nil
}

func (f *fakeSuggester) AssessFix(_ context.Context, _ *core.Problem, _ *core.FixSuggestion, _ string) (*float64, error) {
	return f.assessment, nil
}

// fixedReAnalyzer always reports the same issue set for any file.
type fixedReAnalyzer struct {
	issues []core.Issue
}

func (f *fixedReAnalyzer) Analyze(_ context.Context, files []string) (map[string]*core.FileAnalysis, error) {
	out := make(map[string]*core.FileAnalysis, len(files))
	for _, file := range files {
		out[file] = &core.FileAnalysis{
			File:     file,
			Language: "go",
			Results: []core.AnalysisResult{
				{Tool: "staticcheck", File: file, Status: core.ResultOK, Issues: f.issues},
			},
		}
	}
	return out, nil
}

func testSessionConfig() *config.Config {
	return &config.Config{
		Analysis: config.AnalysisConfig{
			MaxWorkers:   2,
			ToolTimeout:  5 * time.Second,
			BatchTimeout: 30 * time.Second,
		},
		Scorer: config.ScorerConfig{
			WeightComplexity:      0.25,
			WeightIssueDensity:    0.30,
			WeightDependency:      0.20,
			WeightChangeFrequency: 0.15,
			WeightBusinessLogic:   0.10,
		},
		Verify: config.VerifyConfig{
			StaticWeight:       0.6,
			ExternalWeight:     0.4,
			SuccessThreshold:   0.8,
			PartialThreshold:   0.6,
			UncertainThreshold: 0.4,
			FailedThreshold:    0.2,
			MaxNewIssues:       2,
		},
		Workflow: config.WorkflowConfig{MaxRetries: 2},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeProjectFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestListTargetFiles(t *testing.T) {
	dir := t.TempDir()
	want := writeProjectFile(t, dir, "main.go", "package main\n")
	writeProjectFile(t, dir, "README.md", "# doc\n")
	writeProjectFile(t, dir, ".git/hooks.go", "package hooks\n")
	writeProjectFile(t, dir, "vendor/dep.go", "package dep\n")
	writeProjectFile(t, dir, "script.py", "print()\n")

	repoCfg := core.DefaultRepoConfig()
	repoCfg.ExcludeDirs = []string{"vendor"}
	repoCfg.ExcludeExts = []string{"py"}

	files, err := ListTargetFiles(dir, repoCfg)
	require.NoError(t, err)
	assert.Equal(t, []string{want}, files)
}

func TestTrackProblems_OrderFollowsFileRank(t *testing.T) {
	job := &FixSessionJob{store: newMemStore(), logger: discardLogger()}
	session := &core.WorkflowSession{ID: "sess-1", State: core.SessionRunning, StartedAt: time.Now()}
	machine := workflow.NewMachine(session, 3, nil, discardLogger())

	report := &core.ProjectReport{
		Files: map[string]*core.FileReport{
			"a.go": {File: "a.go", Issues: []core.AggregatedIssue{
				{ID: "i-low", File: "a.go", Line: 5, Severity: core.SeverityLow, Message: "low", ToolNames: []string{"t"}, Confidence: 0.5, DuplicateCount: 1},
				{ID: "i-high", File: "a.go", Line: 3, Severity: core.SeverityHigh, Message: "high", ToolNames: []string{"t"}, Confidence: 0.5, DuplicateCount: 1},
			}},
			"b.go": {File: "b.go", Issues: []core.AggregatedIssue{
				{ID: "i-crit", File: "b.go", Line: 1, Severity: core.SeverityCritical, Message: "crit", ToolNames: []string{"t"}, Confidence: 0.5, DuplicateCount: 1},
			}},
		},
	}
	scores := []core.FileScore{
		{File: "a.go", Rank: 1},
		{File: "b.go", Rank: 2},
	}

	req := &core.SessionRequest{SessionID: "sess-1", ProjectPath: "/tmp/p"}
	problems, err := job.trackProblems(context.Background(), machine, req, report, scores)
	require.NoError(t, err)
	require.Len(t, problems, 3)

	// The top-ranked file's issues come first, severity descending within it.
	assert.Equal(t, "i-high", problems[0].IssueID)
	assert.Equal(t, "i-low", problems[1].IssueID)
	assert.Equal(t, "i-crit", problems[2].IssueID)
}

func TestTrackProblems_CapAndDuplicates(t *testing.T) {
	store := newMemStore()
	job := &FixSessionJob{store: store, logger: discardLogger()}
	session := &core.WorkflowSession{ID: "sess-1", State: core.SessionRunning, StartedAt: time.Now()}
	machine := workflow.NewMachine(session, 3, nil, discardLogger())

	report := &core.ProjectReport{
		Files: map[string]*core.FileReport{
			"a.go": {File: "a.go", Issues: []core.AggregatedIssue{
				{ID: "dup", File: "a.go", Line: 1, Severity: core.SeverityHigh, Message: "x", ToolNames: []string{"t"}, Confidence: 0.5, DuplicateCount: 1},
				{ID: "dup", File: "a.go", Line: 1, Severity: core.SeverityHigh, Message: "x", ToolNames: []string{"t"}, Confidence: 0.5, DuplicateCount: 1},
				{ID: "other", File: "a.go", Line: 9, Severity: core.SeverityLow, Message: "y", ToolNames: []string{"t"}, Confidence: 0.5, DuplicateCount: 1},
			}},
		},
	}
	scores := []core.FileScore{{File: "a.go", Rank: 1}}

	req := &core.SessionRequest{SessionID: "sess-1", ProjectPath: "/tmp/p", MaxProblems: 5}
	problems, err := job.trackProblems(context.Background(), machine, req, report, scores)
	require.NoError(t, err)
	require.Len(t, problems, 2)
	assert.Len(t, store.problems, 2)
}

func TestProcessProblem_AcceptedFix(t *testing.T) {
	dir := t.TempDir()
	file := writeProjectFile(t, dir, "main.go", "package main\n\nfunc main() {\n\tprintln(unused)\n}\n")
	logger := discardLogger()

	problem := &core.Problem{
		ID: "prob-1", SessionID: "sess-1", IssueID: "issue-1",
		File: file, Line: 4, Severity: core.SeverityMedium, Category: "bug",
		Description: "unused variable", Status: core.ProblemPending,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	baseline := map[string][]core.Issue{
		file: {{Tool: "staticcheck", File: file, Line: 4, Severity: core.SeverityMedium,
			Category: "bug", Message: "unused variable"}},
	}

	assessment := 0.9
	provider := &fakeSuggester{
		suggestion: &core.FixSuggestion{
			ID:           "sugg-1",
			OriginalCode: "println(unused)",
			ProposedCode: `println("ok")`,
			Confidence:   0.9,
			CreatedAt:    time.Now(),
		},
		assessment: &assessment,
	}
	store := newMemStore()
	cfg := testSessionConfig()
	job := &FixSessionJob{
		cfg: cfg, store: store, provider: provider,
		fixer:  fixer.New(filepath.Join(dir, "backups"), logger),
		logger: logger,
	}

	session := &core.WorkflowSession{ID: "sess-1", State: core.SessionRunning, StartedAt: time.Now()}
	machine := workflow.NewMachine(session, cfg.Workflow.MaxRetries, nil, logger)
	require.NoError(t, machine.AddProblem(problem))

	// The re-analysis finds nothing, so the fix counts as clean.
	engine := verification.NewEngine(&fixedReAnalyzer{}, logger)
	verifier := verification.NewAggregator(cfg.Verify, logger)

	job.processProblem(context.Background(), logger, machine, engine, verifier,
		core.DefaultRepoConfig(), problem, baseline)

	assert.Equal(t, core.ProblemResolved, problem.Status)
	assert.Equal(t, "sugg-1", problem.ResolvedBy)
	assert.Empty(t, baseline[file])

	content, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(content), `println("ok")`)

	require.Len(t, store.reports, 1)
	assert.Equal(t, core.ActionAccept, store.reports[0].Action)
	require.Len(t, store.suggestions, 1)
}

func TestProcessProblem_NoSuggestionParksForManualReview(t *testing.T) {
	dir := t.TempDir()
	file := writeProjectFile(t, dir, "main.go", "package main\n")
	logger := discardLogger()

	problem := &core.Problem{
		ID: "prob-1", SessionID: "sess-1", IssueID: "issue-1",
		File: file, Line: 1, Severity: core.SeverityLow,
		Description: "style nit", Status: core.ProblemPending,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}

	provider := &fakeSuggester{proposeErr: core.ErrNoSuggestion}
	store := newMemStore()
	cfg := testSessionConfig()
	job := &FixSessionJob{
		cfg: cfg, store: store, provider: provider,
		fixer:  fixer.New(filepath.Join(dir, "backups"), logger),
		logger: logger,
	}

	session := &core.WorkflowSession{ID: "sess-1", State: core.SessionRunning, StartedAt: time.Now()}
	machine := workflow.NewMachine(session, cfg.Workflow.MaxRetries, nil, logger)
	require.NoError(t, machine.AddProblem(problem))

	engine := verification.NewEngine(&fixedReAnalyzer{}, logger)
	verifier := verification.NewAggregator(cfg.Verify, logger)

	job.processProblem(context.Background(), logger, machine, engine, verifier,
		core.DefaultRepoConfig(), problem, map[string][]core.Issue{})

	assert.Equal(t, core.ProblemInProgress, problem.Status)
	assert.Equal(t, 1, provider.calls)
	assert.Empty(t, store.suggestions)
	assert.Empty(t, store.reports)
}

func TestProcessProblem_RetryExhaustionRollsBack(t *testing.T) {
	dir := t.TempDir()
	original := "package main\n\nfunc main() {\n\tprintln(unused)\n}\n"
	file := writeProjectFile(t, dir, "main.go", original)
	logger := discardLogger()

	issue := core.Issue{Tool: "staticcheck", File: file, Line: 4,
		Severity: core.SeverityMedium, Category: "bug", Message: "unused variable"}
	problem := &core.Problem{
		ID: "prob-1", SessionID: "sess-1", IssueID: "issue-1",
		File: file, Line: 4, Severity: core.SeverityMedium, Category: "bug",
		Description: "unused variable", Status: core.ProblemPending,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	baseline := map[string][]core.Issue{file: {issue}}

	provider := &fakeSuggester{
		suggestion: &core.FixSuggestion{
			ID:           "sugg-1",
			OriginalCode: "println(unused)",
			ProposedCode: `println("still broken")`,
			Confidence:   0.9,
			CreatedAt:    time.Now(),
		},
	}
	store := newMemStore()
	cfg := testSessionConfig()
	job := &FixSessionJob{
		cfg: cfg, store: store, provider: provider,
		fixer:  fixer.New(filepath.Join(dir, "backups"), logger),
		logger: logger,
	}

	session := &core.WorkflowSession{ID: "sess-1", State: core.SessionRunning, StartedAt: time.Now()}
	machine := workflow.NewMachine(session, cfg.Workflow.MaxRetries, nil, logger)
	require.NoError(t, machine.AddProblem(problem))

	// The issue survives every re-analysis, so every attempt is rejected.
	engine := verification.NewEngine(&fixedReAnalyzer{issues: []core.Issue{issue}}, logger)
	verifier := verification.NewAggregator(cfg.Verify, logger)

	job.processProblem(context.Background(), logger, machine, engine, verifier,
		core.DefaultRepoConfig(), problem, baseline)

	assert.Equal(t, core.ProblemSkipped, problem.Status)
	assert.Equal(t, core.SkipRetryExhausted, problem.SkipReason)
	assert.Equal(t, cfg.Workflow.MaxRetries, problem.RetryCount)

	// The last rejected fix must not stay on disk.
	content, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, original, string(content))
}

func TestRun_CleanProjectCompletes(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "main.go", "package main\n\nfunc main() {}\n")
	// Restricting to an unregistered tool leaves every file unanalyzed, so the
	// session tracks no problems and closes immediately.
	writeProjectFile(t, dir, ".code-mender.yml", "tools:\n  - no-such-tool\n")
	logger := discardLogger()

	cfg := testSessionConfig()
	registry, err := analyzer.NewRegistry(cfg.Analysis, logger)
	require.NoError(t, err)

	store := newMemStore()
	job := NewFixSessionJob(cfg, store, gitutil.NewClient(logger), registry,
		&fakeSuggester{proposeErr: errors.New("must not be called")},
		fixer.New(filepath.Join(dir, "backups"), logger), logger)

	req := &core.SessionRequest{SessionID: "sess-1", ProjectPath: dir}
	require.NoError(t, job.Run(context.Background(), req))

	session, ok := store.sessions["sess-1"]
	require.True(t, ok)
	assert.Equal(t, core.SessionCompleted, session.State)
	assert.NotNil(t, session.ClosedAt)
	assert.Empty(t, session.Problems)
	assert.Empty(t, store.problems)
}
