// Package workflow drives each tracked problem through the fix lifecycle:
// detect, suggest, apply, verify, decide. It is the single point of truth
// for problem status; no other component may flip a status directly. All
// transitions on one problem are serialized, retries are bounded, and a
// completion check runs after every transition.
package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/code-mender/internal/core"
)

// State is a problem's position in the fix lifecycle.
type State string

const (
	StateDetected            State = "detected"
	StateSuggestionRequested State = "suggestion_requested"
	StateFixApplied          State = "fix_applied"
	StateVerifying           State = "verifying"
	StateDeciding            State = "deciding"
	StateResolved            State = "resolved"
	StateRetrying            State = "retrying"
	StateSkipped             State = "skipped"
)

// transitions is the allowed-edge table. Anything not listed is an
// invariant violation, not a recoverable condition.
var transitions = map[State][]State{
	StateDetected:            {StateSuggestionRequested, StateSkipped},
	StateSuggestionRequested: {StateFixApplied, StateDetected, StateDeciding, StateSkipped},
	StateFixApplied:          {StateVerifying},
	StateVerifying:           {StateDeciding},
	StateDeciding:            {StateResolved, StateRetrying, StateSkipped},
	StateRetrying:            {StateDetected},
	StateResolved:            {},
	StateSkipped:             {},
}

// InvariantError marks a transition the table forbids. It means the state
// machine itself is being driven inconsistently, so callers should treat it
// as a bug, not retry it.
type InvariantError struct {
	ProblemID string
	From, To  State
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s for problem %s", e.From, e.To, e.ProblemID)
}

// ErrUnknownProblem is returned for problem ids the session does not track.
var ErrUnknownProblem = errors.New("unknown problem id")

// ErrDuplicateProblem is returned when a second open problem would track the
// same aggregated issue.
var ErrDuplicateProblem = errors.New("issue already tracked by an open problem")

// Outcome tells the session driver what to do after a decision.
type Outcome string

const (
	OutcomeResolved       Outcome = "resolved"
	OutcomeRetry          Outcome = "retry"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeAwaitingManual Outcome = "awaiting_manual"
)

// ManualDecision is the explicit operator verdict for a problem parked in
// manual review. There is no silent default.
type ManualDecision struct {
	Accept     bool
	SkipReason core.SkipReason // set when not accepting and not retrying
	Retry      bool
}

// problemState is the machine's per-problem bookkeeping.
type problemState struct {
	mu                sync.Mutex
	state             State
	failed            []core.FixSuggestion
	pendingSuggestion *core.FixSuggestion
}

// Machine owns one session's problems and their transitions.
type Machine struct {
	mu         sync.Mutex
	session    *core.WorkflowSession
	problems   map[string]*problemState
	issueIndex map[string]string // aggregated issue id -> problem id
	maxRetries int
	scores     []float64
	onClose    func(core.SessionStats)
	logger     *slog.Logger
}

// NewMachine creates the state machine for a session. onClose fires once,
// when the last problem reaches a terminal state; it may be nil.
func NewMachine(session *core.WorkflowSession, maxRetries int, onClose func(core.SessionStats), logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{
		session:    session,
		problems:   make(map[string]*problemState),
		issueIndex: make(map[string]string),
		maxRetries: maxRetries,
		onClose:    onClose,
		logger:     logger,
	}
	for _, p := range session.Problems {
		m.problems[p.ID] = &problemState{state: stateFor(p)}
		if !p.Status.Terminal() {
			m.issueIndex[p.IssueID] = p.ID
		}
	}
	return m
}

func stateFor(p *core.Problem) State {
	switch p.Status {
	case core.ProblemResolved:
		return StateResolved
	case core.ProblemSkipped:
		return StateSkipped
	default:
		return StateDetected
	}
}

// AddProblem registers a new problem in its detected state. A second open
// problem for the same aggregated issue is rejected.
func (m *Machine) AddProblem(p *core.Problem) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid problem: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.issueIndex[p.IssueID]; ok {
		return fmt.Errorf("%w: issue %s is problem %s", ErrDuplicateProblem, p.IssueID, existing)
	}
	m.session.Problems = append(m.session.Problems, p)
	m.problems[p.ID] = &problemState{state: StateDetected}
	m.issueIndex[p.IssueID] = p.ID
	return nil
}

// Begin moves a detected problem into suggestion-requested and marks it
// in progress.
func (m *Machine) Begin(problemID string) error {
	return m.withProblem(problemID, func(p *core.Problem, ps *problemState) (Outcome, error) {
		if err := m.move(p, ps, StateSuggestionRequested); err != nil {
			return "", err
		}
		m.setStatus(p, core.ProblemInProgress)
		return "", nil
	})
}

// MarkApplied records that a suggestion was written to the file.
func (m *Machine) MarkApplied(problemID string, suggestion *core.FixSuggestion) error {
	return m.withProblem(problemID, func(p *core.Problem, ps *problemState) (Outcome, error) {
		if err := m.move(p, ps, StateFixApplied); err != nil {
			return "", err
		}
		ps.pendingSuggestion = suggestion
		return "", nil
	})
}

// MarkApplyFailed returns the problem to detected with an error annotation.
// An apply failure is operational, never fatal to the session.
func (m *Machine) MarkApplyFailed(problemID, reason string) error {
	return m.withProblem(problemID, func(p *core.Problem, ps *problemState) (Outcome, error) {
		if err := m.move(p, ps, StateDetected); err != nil {
			return "", err
		}
		p.LastError = reason
		m.setStatus(p, core.ProblemPending)
		m.logger.Warn("fix apply failed, problem returned to detected",
			"problem_id", problemID, "reason", reason)
		return "", nil
	})
}

// StartVerifying marks the verification phase.
func (m *Machine) StartVerifying(problemID string) error {
	return m.withProblem(problemID, func(p *core.Problem, ps *problemState) (Outcome, error) {
		return "", m.move(p, ps, StateVerifying)
	})
}

// RequireManual parks a problem awaiting an explicit operator decision,
// used when no usable suggestion is available.
func (m *Machine) RequireManual(problemID, reason string) error {
	return m.withProblem(problemID, func(p *core.Problem, ps *problemState) (Outcome, error) {
		if err := m.move(p, ps, StateDeciding); err != nil {
			return "", err
		}
		p.LastError = reason
		return "", nil
	})
}

// Decide applies the verification verdict. Accept resolves; reject or
// improve consumes retry budget, skipping on exhaustion; manual review
// parks the problem until ResolveManual supplies an explicit verdict.
func (m *Machine) Decide(problemID string, report *core.ComprehensiveReport) (Outcome, error) {
	var outcome Outcome
	err := m.withProblem(problemID, func(p *core.Problem, ps *problemState) (Outcome, error) {
		if err := m.move(p, ps, StateDeciding); err != nil {
			return "", err
		}
		m.recordScore(report.CombinedScore)

		switch report.Action {
		case core.ActionAccept:
			if err := m.move(p, ps, StateResolved); err != nil {
				return "", err
			}
			p.ResolvedBy = report.SuggestionID
			m.setStatus(p, core.ProblemResolved)
			outcome = OutcomeResolved

		case core.ActionManualReview:
			// Stay in deciding; the external layer must call ResolveManual.
			outcome = OutcomeAwaitingManual

		default: // reject, improve
			var err error
			outcome, err = m.consumeRetry(p, ps, report)
			if err != nil {
				return "", err
			}
		}
		return outcome, nil
	})
	return outcome, err
}

// ResolveManual applies an explicit operator verdict to a parked problem.
func (m *Machine) ResolveManual(problemID string, decision ManualDecision) (Outcome, error) {
	var outcome Outcome
	err := m.withProblem(problemID, func(p *core.Problem, ps *problemState) (Outcome, error) {
		if ps.state != StateDeciding {
			return "", &InvariantError{ProblemID: problemID, From: ps.state, To: StateResolved}
		}
		switch {
		case decision.Accept:
			if err := m.move(p, ps, StateResolved); err != nil {
				return "", err
			}
			if ps.pendingSuggestion != nil {
				p.ResolvedBy = ps.pendingSuggestion.ID
			} else {
				p.ResolvedBy = "manual"
			}
			m.setStatus(p, core.ProblemResolved)
			outcome = OutcomeResolved

		case decision.Retry:
			var err error
			outcome, err = m.consumeRetry(p, ps, nil)
			if err != nil {
				return "", err
			}

		default:
			reason := decision.SkipReason
			if !reason.IsValid() {
				return "", fmt.Errorf("manual skip requires a valid reason (got %q)", reason)
			}
			if err := m.skip(p, ps, reason); err != nil {
				return "", err
			}
			outcome = OutcomeSkipped
		}
		return outcome, nil
	})
	return outcome, err
}

// Skip abandons a problem with an explicit reason.
func (m *Machine) Skip(problemID string, reason core.SkipReason) error {
	return m.withProblem(problemID, func(p *core.Problem, ps *problemState) (Outcome, error) {
		if !reason.IsValid() {
			return "", fmt.Errorf("skip requires a valid reason (got %q)", reason)
		}
		return OutcomeSkipped, m.skip(p, ps, reason)
	})
}

// FailedSuggestions lists the rejected suggestions recorded for a problem,
// so the provider can avoid proposing them again.
func (m *Machine) FailedSuggestions(problemID string) []core.FixSuggestion {
	m.mu.Lock()
	ps, ok := m.problems[problemID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make([]core.FixSuggestion, len(ps.failed))
	copy(out, ps.failed)
	return out
}

// Snapshot returns the plain-data view of the session.
func (m *Machine) Snapshot() core.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return core.SessionSnapshot{Session: m.session, Stats: m.statsLocked()}
}

// Stats computes the current session statistics.
func (m *Machine) Stats() core.SessionStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsLocked()
}

// consumeRetry spends one unit of retry budget, skipping the problem when
// the cap is reached. A problem that is always rejected is skipped after
// exactly maxRetries attempts.
func (m *Machine) consumeRetry(p *core.Problem, ps *problemState, report *core.ComprehensiveReport) (Outcome, error) {
	if ps.pendingSuggestion != nil {
		ps.failed = append(ps.failed, *ps.pendingSuggestion)
		ps.pendingSuggestion = nil
	}
	if report != nil {
		p.LastError = fmt.Sprintf("verification %s (score %.2f)", report.Status, report.CombinedScore)
	}

	p.RetryCount++
	if p.RetryCount >= m.maxRetries {
		if err := m.skip(p, ps, core.SkipRetryExhausted); err != nil {
			return "", err
		}
		return OutcomeSkipped, nil
	}

	if err := m.move(p, ps, StateRetrying); err != nil {
		return "", err
	}
	if err := m.move(p, ps, StateDetected); err != nil {
		return "", err
	}
	m.setStatus(p, core.ProblemPending)
	return OutcomeRetry, nil
}

func (m *Machine) skip(p *core.Problem, ps *problemState, reason core.SkipReason) error {
	if err := m.move(p, ps, StateSkipped); err != nil {
		return err
	}
	p.SkipReason = reason
	m.setStatus(p, core.ProblemSkipped)
	return nil
}

// move performs one table-checked transition.
func (m *Machine) move(p *core.Problem, ps *problemState, to State) error {
	for _, allowed := range transitions[ps.state] {
		if allowed == to {
			m.logger.Debug("problem transition", "problem_id", p.ID, "from", ps.state, "to", to)
			ps.state = to
			return nil
		}
	}
	return &InvariantError{ProblemID: p.ID, From: ps.state, To: to}
}

// setStatus flips a problem's status. Callers hold m.mu via withProblem.
func (m *Machine) setStatus(p *core.Problem, status core.ProblemStatus) {
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	if status.Terminal() {
		delete(m.issueIndex, p.IssueID)
	}
}

// withProblem serializes one problem's transitions: the per-problem mutex
// orders concurrent transitions on the same id, the machine mutex keeps
// session snapshots consistent with in-flight mutations. The completion
// check runs after both locks are released.
func (m *Machine) withProblem(problemID string, fn func(*core.Problem, *problemState) (Outcome, error)) error {
	m.mu.Lock()
	ps, ok := m.problems[problemID]
	var problem *core.Problem
	if ok {
		for _, p := range m.session.Problems {
			if p.ID == problemID {
				problem = p
				break
			}
		}
	}
	m.mu.Unlock()
	if !ok || problem == nil {
		return fmt.Errorf("%w: %s", ErrUnknownProblem, problemID)
	}

	ps.mu.Lock()
	m.mu.Lock()
	_, err := fn(problem, ps)
	terminal := problem.Status.Terminal()
	m.mu.Unlock()
	ps.mu.Unlock()

	if terminal {
		m.checkCompletion()
	}
	return err
}

// recordScore assumes m.mu is held via withProblem.
func (m *Machine) recordScore(score float64) {
	m.scores = append(m.scores, score)
}

// checkCompletion closes the session once no problem remains open.
func (m *Machine) checkCompletion() {
	m.mu.Lock()
	if m.session.State != core.SessionRunning || !m.session.Complete() {
		m.mu.Unlock()
		return
	}
	m.session.State = core.SessionCompleted
	now := time.Now().UTC()
	m.session.ClosedAt = &now
	stats := m.statsLocked()
	onClose := m.onClose
	m.mu.Unlock()

	m.logger.Info("session complete", "session_id", m.session.ID, "stats", stats.String())
	if onClose != nil {
		onClose(stats)
	}
}

func (m *Machine) statsLocked() core.SessionStats {
	stats := core.SessionStats{SessionID: m.session.ID, Total: len(m.session.Problems)}
	for _, p := range m.session.Problems {
		switch p.Status {
		case core.ProblemResolved:
			stats.Resolved++
		case core.ProblemSkipped:
			stats.Skipped++
		default:
			stats.Pending++
		}
		stats.TotalRetries += p.RetryCount
	}
	if len(m.scores) > 0 {
		var sum float64
		for _, s := range m.scores {
			sum += s
		}
		stats.MeanVerificationScore = sum / float64(len(m.scores))
	}
	return stats
}
