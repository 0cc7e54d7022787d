package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sevigo/code-mender/internal/aggregator"
	"github.com/sevigo/code-mender/internal/analyzer"
	"github.com/sevigo/code-mender/internal/config"
	"github.com/sevigo/code-mender/internal/coordinator"
	"github.com/sevigo/code-mender/internal/core"
	"github.com/sevigo/code-mender/internal/fixer"
	"github.com/sevigo/code-mender/internal/gitutil"
	"github.com/sevigo/code-mender/internal/scoring"
	"github.com/sevigo/code-mender/internal/storage"
	"github.com/sevigo/code-mender/internal/verification"
	"github.com/sevigo/code-mender/internal/workflow"
)

const cloneTimeout = 2 * time.Minute

// FixSessionJob drives one project through the full pipeline: analyze,
// aggregate, score, then fix problems one at a time until every tracked
// problem is resolved, skipped, or parked for manual review.
type FixSessionJob struct {
	cfg      *config.Config
	store    storage.Store
	git      *gitutil.Client
	registry *analyzer.Registry
	provider core.SuggestionProvider
	fixer    *fixer.Fixer
	logger   *slog.Logger
}

// NewFixSessionJob creates the session job with its collaborators.
func NewFixSessionJob(
	cfg *config.Config,
	store storage.Store,
	git *gitutil.Client,
	registry *analyzer.Registry,
	provider core.SuggestionProvider,
	fx *fixer.Fixer,
	logger *slog.Logger,
) core.Job {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if store == nil {
		panic("store cannot be nil")
	}
	if provider == nil {
		panic("suggestion provider cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FixSessionJob{
		cfg:      cfg,
		store:    store,
		git:      git,
		registry: registry,
		provider: provider,
		fixer:    fx,
		logger:   logger,
	}
}

// Run executes one fix session.
func (j *FixSessionJob) Run(ctx context.Context, req *core.SessionRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid session request: %w", err)
	}
	logger := j.logger.With("session_id", req.SessionID)
	logger.Info("starting fix session")

	projectPath, cleanup, err := j.resolveProject(ctx, req)
	if err != nil {
		return err
	}
	defer cleanup()

	repoCfg, err := config.LoadRepoConfig(projectPath)
	if err != nil {
		if !errors.Is(err, config.ErrConfigNotFound) {
			return fmt.Errorf("loading repo config: %w", err)
		}
		logger.Debug("no .code-mender.yml found, using defaults")
	}

	registry := j.registry.Restrict(repoCfg.Tools)
	coord := coordinator.New(registry, analyzer.DetectLanguage,
		j.cfg.Analysis.MaxWorkers, j.cfg.Analysis.BatchTimeout, logger)

	files, err := ListTargetFiles(projectPath, repoCfg)
	if err != nil {
		return fmt.Errorf("listing project files: %w", err)
	}
	logger.Info("analyzing project", "path", projectPath, "files", len(files))

	analyses, err := coord.Analyze(ctx, files)
	if err != nil {
		return fmt.Errorf("analysis batch failed: %w", err)
	}

	agg := aggregator.New(registry.Confidences(), logger)
	report := agg.Aggregate(projectPath, analyses)

	scorer := scoring.New(j.cfg.Scorer, j.git, logger)
	scores := scorer.ScoreProject(projectPath, report)
	logger.Info("project analyzed",
		"total_issues", report.TotalIssues,
		"files_scored", len(scores),
	)

	session := &core.WorkflowSession{
		ID:          req.SessionID,
		ProjectPath: projectPath,
		State:       core.SessionRunning,
		StartedAt:   time.Now().UTC(),
	}
	if err := j.store.SaveSession(ctx, session); err != nil {
		return err
	}

	machine := workflow.NewMachine(session, j.cfg.Workflow.MaxRetries, nil, logger)
	problems, err := j.trackProblems(ctx, machine, req, report, scores)
	if err != nil {
		return err
	}

	engine := verification.NewEngine(coord, logger)
	verifier := verification.NewAggregator(j.cfg.Verify, logger)

	// Pre-fix baselines per file; updated as accepted fixes land.
	baselines := make(map[string][]core.Issue, len(analyses))
	for file, fa := range analyses {
		baselines[file] = fa.Issues()
	}

	for _, problem := range problems {
		if err := ctx.Err(); err != nil {
			logger.Warn("session cancelled before completion")
			break
		}
		j.processProblem(ctx, logger, machine, engine, verifier, repoCfg, problem, baselines)
		if err := j.store.UpdateProblem(ctx, problem); err != nil {
			logger.Error("cannot persist problem state", "problem_id", problem.ID, "error", err)
		}
	}

	// The machine closes the session when the last problem terminates; a run
	// that tracked no problems closes here.
	if session.State == core.SessionRunning && session.Complete() {
		session.State = core.SessionCompleted
		now := time.Now().UTC()
		session.ClosedAt = &now
	}
	if err := j.store.UpdateSession(ctx, session); err != nil {
		return err
	}
	logger.Info("fix session finished", "stats", machine.Stats().String())
	return nil
}

// resolveProject returns a local checkout, cloning when the request names a
// remote target.
func (j *FixSessionJob) resolveProject(ctx context.Context, req *core.SessionRequest) (string, func(), error) {
	if req.ProjectPath != "" {
		return req.ProjectPath, func() {}, nil
	}
	cloneCtx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()
	path, cleanup, err := j.git.CloneTemp(cloneCtx, req.CloneURL, "")
	if err != nil {
		return "", nil, fmt.Errorf("cloning %s: %w", req.CloneURL, err)
	}
	return path, cleanup, nil
}

// trackProblems promotes the highest-ranked aggregated issues to tracked
// problems, honoring the request's cap.
func (j *FixSessionJob) trackProblems(
	ctx context.Context,
	machine *workflow.Machine,
	req *core.SessionRequest,
	report *core.ProjectReport,
	scores []core.FileScore,
) ([]*core.Problem, error) {
	rank := make(map[string]int, len(scores))
	for _, s := range scores {
		rank[s.File] = s.Rank
	}

	issues := report.AllIssues()
	sort.Slice(issues, func(a, b int) bool {
		if rank[issues[a].File] != rank[issues[b].File] {
			return rank[issues[a].File] < rank[issues[b].File]
		}
		if issues[a].Severity != issues[b].Severity {
			return issues[a].Severity.Rank() > issues[b].Severity.Rank()
		}
		return issues[a].Line < issues[b].Line
	})

	var problems []*core.Problem
	for _, issue := range issues {
		if req.MaxProblems > 0 && len(problems) >= req.MaxProblems {
			break
		}
		now := time.Now().UTC()
		problem := &core.Problem{
			ID:          uuid.NewString(),
			SessionID:   req.SessionID,
			IssueID:     issue.ID,
			File:        issue.File,
			Line:        issue.Line,
			Severity:    issue.Severity,
			Category:    issue.Category,
			Description: issue.Message,
			Snippet:     issue.Snippet,
			Status:      core.ProblemPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := machine.AddProblem(problem); err != nil {
			if errors.Is(err, workflow.ErrDuplicateProblem) {
				continue
			}
			return nil, err
		}
		if err := j.store.SaveProblem(ctx, problem); err != nil {
			return nil, err
		}
		problems = append(problems, problem)
	}
	return problems, nil
}

// processProblem drives one problem through suggest, apply, verify, decide,
// retrying within the workflow's budget. Failures park the problem or skip
// it; they never abort the session.
func (j *FixSessionJob) processProblem(
	ctx context.Context,
	logger *slog.Logger,
	machine *workflow.Machine,
	engine *verification.Engine,
	verifier *verification.Aggregator,
	repoCfg *core.RepoConfig,
	problem *core.Problem,
	baselines map[string][]core.Issue,
) {
	// The workflow enforces the retry cap; the +1 here only bounds this loop
	// against apply failures, which do not consume retry budget.
	maxAttempts := j.cfg.Workflow.MaxRetries*2 + 1

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}

		if err := machine.Begin(problem.ID); err != nil {
			logger.Error("cannot begin problem", "problem_id", problem.ID, "error", err)
			return
		}

		suggestion, ok := j.obtainSuggestion(ctx, logger, machine, repoCfg, problem)
		if !ok {
			return // parked for manual review
		}

		backup, err := j.fixer.Apply(problem.File, suggestion.OriginalCode, suggestion.ProposedCode)
		if err != nil {
			if err := machine.MarkApplyFailed(problem.ID, err.Error()); err != nil {
				logger.Error("cannot record apply failure", "problem_id", problem.ID, "error", err)
				return
			}
			continue
		}
		if err := machine.MarkApplied(problem.ID, suggestion); err != nil {
			logger.Error("cannot record applied fix", "problem_id", problem.ID, "error", err)
			return
		}
		if err := machine.StartVerifying(problem.ID); err != nil {
			logger.Error("cannot start verification", "problem_id", problem.ID, "error", err)
			return
		}

		static := engine.Verify(ctx, problem, suggestion.ID, baselines[problem.File], problem.File)
		external := j.assessFix(ctx, logger, problem, suggestion, static)

		comprehensive := verifier.Aggregate(problem.SessionID, static, external)
		if err := j.store.SaveReport(ctx, comprehensive); err != nil {
			logger.Error("cannot persist verification report", "problem_id", problem.ID, "error", err)
		}

		outcome, err := machine.Decide(problem.ID, comprehensive)
		if err != nil {
			logger.Error("decision failed", "problem_id", problem.ID, "error", err)
			return
		}

		switch outcome {
		case workflow.OutcomeResolved:
			// The accepted fix becomes the file's new baseline.
			baselines[problem.File] = append(static.Remaining, static.NewIssues...)
			return
		case workflow.OutcomeAwaitingManual:
			logger.Info("problem parked for manual review", "problem_id", problem.ID)
			return
		case workflow.OutcomeSkipped:
			j.rollback(logger, backup, problem.File)
			return
		case workflow.OutcomeRetry:
			j.rollback(logger, backup, problem.File)
		}
	}

	logger.Warn("attempt budget exhausted without a terminal state", "problem_id", problem.ID)
	if err := machine.Skip(problem.ID, core.SkipRetryExhausted); err != nil {
		logger.Error("cannot skip exhausted problem", "problem_id", problem.ID, "error", err)
	}
}

// obtainSuggestion asks the provider for a fix and persists it. A missing or
// low-confidence suggestion parks the problem for manual review.
func (j *FixSessionJob) obtainSuggestion(
	ctx context.Context,
	logger *slog.Logger,
	machine *workflow.Machine,
	repoCfg *core.RepoConfig,
	problem *core.Problem,
) (*core.FixSuggestion, bool) {
	content, err := os.ReadFile(problem.File)
	if err != nil {
		logger.Error("cannot read problem file", "file", problem.File, "error", err)
		j.park(logger, machine, problem, fmt.Sprintf("cannot read file: %v", err))
		return nil, false
	}

	suggestion, err := j.provider.Propose(ctx, &core.SuggestionRequest{
		Problem:            problem,
		FileContent:        string(content),
		FailedSuggestions:  machine.FailedSuggestions(problem.ID),
		CustomInstructions: repoCfg.CustomInstructions,
	})
	if err != nil {
		if errors.Is(err, core.ErrNoSuggestion) {
			logger.Info("no usable suggestion", "problem_id", problem.ID, "reason", err)
		} else {
			logger.Error("suggestion provider failed", "problem_id", problem.ID, "error", err)
		}
		j.park(logger, machine, problem, err.Error())
		return nil, false
	}

	if err := j.store.SaveSuggestion(ctx, suggestion); err != nil {
		logger.Error("cannot persist suggestion", "suggestion_id", suggestion.ID, "error", err)
	}
	return suggestion, true
}

// assessFix asks the provider for the qualitative signal. Any failure just
// drops the signal; verification proceeds on the static score alone.
func (j *FixSessionJob) assessFix(
	ctx context.Context,
	logger *slog.Logger,
	problem *core.Problem,
	suggestion *core.FixSuggestion,
	static *core.VerificationReport,
) *float64 {
	if static.LowConfidence {
		return nil
	}
	content, err := os.ReadFile(problem.File)
	if err != nil {
		return nil
	}
	score, err := j.provider.AssessFix(ctx, problem, suggestion, string(content))
	if err != nil {
		logger.Warn("fix assessment failed, using static score only",
			"problem_id", problem.ID, "error", err)
		return nil
	}
	return score
}

func (j *FixSessionJob) park(logger *slog.Logger, machine *workflow.Machine, problem *core.Problem, reason string) {
	if err := machine.RequireManual(problem.ID, reason); err != nil {
		logger.Error("cannot park problem for manual review", "problem_id", problem.ID, "error", err)
	}
}

func (j *FixSessionJob) rollback(logger *slog.Logger, backup, file string) {
	if backup == "" {
		return
	}
	if err := j.fixer.Restore(backup, file); err != nil {
		logger.Error("rollback failed", "file", file, "backup", backup, "error", err)
	}
}
