// Package storage persists workflow sessions, problems, suggestions, and
// verification reports to Postgres.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	// import db drivers
	_ "github.com/lib/pq"

	"github.com/sevigo/code-mender/internal/core"
)

// ErrNotFound marks a lookup that matched no row.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for all database operations.
type Store interface {
	SaveSession(ctx context.Context, session *core.WorkflowSession) error
	UpdateSession(ctx context.Context, session *core.WorkflowSession) error
	// GetSession loads a session with its problems.
	GetSession(ctx context.Context, id string) (*core.WorkflowSession, error)

	SaveProblem(ctx context.Context, problem *core.Problem) error
	UpdateProblem(ctx context.Context, problem *core.Problem) error

	SaveSuggestion(ctx context.Context, suggestion *core.FixSuggestion) error
	ListSuggestions(ctx context.Context, problemID string) ([]core.FixSuggestion, error)

	SaveReport(ctx context.Context, report *core.ComprehensiveReport) error
	ListReports(ctx context.Context, sessionID string) ([]core.ComprehensiveReport, error)
	GetLatestReport(ctx context.Context, sessionID, problemID string) (*core.ComprehensiveReport, error)
}

type postgresStore struct {
	db *sqlx.DB
}

// NewStore creates a new Store.
func NewStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) SaveSession(ctx context.Context, session *core.WorkflowSession) error {
	query := `INSERT INTO sessions (id, project_path, state, started_at, closed_at)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.ProjectPath, session.State, session.StartedAt, session.ClosedAt)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", session.ID, err)
	}
	return nil
}

func (s *postgresStore) UpdateSession(ctx context.Context, session *core.WorkflowSession) error {
	query := `UPDATE sessions SET state = $2, closed_at = $3 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, session.ID, session.State, session.ClosedAt)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", session.ID, err)
	}
	return requireRow(res, session.ID)
}

func (s *postgresStore) GetSession(ctx context.Context, id string) (*core.WorkflowSession, error) {
	query := `SELECT id, project_path, state, started_at, closed_at FROM sessions WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, id)

	session := &core.WorkflowSession{}
	err := row.Scan(&session.ID, &session.ProjectPath, &session.State,
		&session.StartedAt, &session.ClosedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}

	problems, err := s.listProblems(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Problems = problems
	return session, nil
}

func (s *postgresStore) SaveProblem(ctx context.Context, p *core.Problem) error {
	query := `INSERT INTO problems
	          (id, session_id, issue_id, file, line, severity, category, description,
	           snippet, status, retry_count, skip_reason, resolved_by, last_error,
	           created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.SessionID, p.IssueID, p.File, p.Line, p.Severity, p.Category,
		p.Description, p.Snippet, p.Status, p.RetryCount, p.SkipReason,
		p.ResolvedBy, p.LastError, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving problem %s: %w", p.ID, err)
	}
	return nil
}

func (s *postgresStore) UpdateProblem(ctx context.Context, p *core.Problem) error {
	query := `UPDATE problems SET
	          status = $2, retry_count = $3, skip_reason = $4, resolved_by = $5,
	          last_error = $6, updated_at = $7
	          WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query,
		p.ID, p.Status, p.RetryCount, p.SkipReason, p.ResolvedBy, p.LastError, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating problem %s: %w", p.ID, err)
	}
	return requireRow(res, p.ID)
}

func (s *postgresStore) listProblems(ctx context.Context, sessionID string) ([]*core.Problem, error) {
	query := `SELECT id, session_id, issue_id, file, line, severity, category,
	          description, snippet, status, retry_count, skip_reason, resolved_by,
	          last_error, created_at, updated_at
	          FROM problems WHERE session_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing problems for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var problems []*core.Problem
	for rows.Next() {
		p := &core.Problem{}
		if err := rows.Scan(&p.ID, &p.SessionID, &p.IssueID, &p.File, &p.Line,
			&p.Severity, &p.Category, &p.Description, &p.Snippet, &p.Status,
			&p.RetryCount, &p.SkipReason, &p.ResolvedBy, &p.LastError,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning problem: %w", err)
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

func (s *postgresStore) SaveSuggestion(ctx context.Context, sg *core.FixSuggestion) error {
	query := `INSERT INTO suggestions
	          (id, problem_id, original_code, proposed_code, explanation, side_effects,
	           confidence, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, query,
		sg.ID, sg.ProblemID, sg.OriginalCode, sg.ProposedCode,
		sg.Explanation, sg.SideEffects, sg.Confidence, sg.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving suggestion %s: %w", sg.ID, err)
	}
	return nil
}

func (s *postgresStore) ListSuggestions(ctx context.Context, problemID string) ([]core.FixSuggestion, error) {
	query := `SELECT id, problem_id, original_code, proposed_code, explanation,
	          side_effects, confidence, created_at
	          FROM suggestions WHERE problem_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, problemID)
	if err != nil {
		return nil, fmt.Errorf("listing suggestions for problem %s: %w", problemID, err)
	}
	defer rows.Close()

	var out []core.FixSuggestion
	for rows.Next() {
		var sg core.FixSuggestion
		if err := rows.Scan(&sg.ID, &sg.ProblemID, &sg.OriginalCode, &sg.ProposedCode,
			&sg.Explanation, &sg.SideEffects, &sg.Confidence, &sg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning suggestion: %w", err)
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

func (s *postgresStore) SaveReport(ctx context.Context, r *core.ComprehensiveReport) error {
	staticJSON, err := json.Marshal(r.Static)
	if err != nil {
		return fmt.Errorf("encoding static report: %w", err)
	}
	query := `INSERT INTO verification_reports
	          (id, session_id, problem_id, suggestion_id, static_report, static_score,
	           external_score, combined_score, status, action, new_issue_count, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.SessionID, r.ProblemID, r.SuggestionID, staticJSON, r.StaticScore,
		r.ExternalScore, r.CombinedScore, r.Status, r.Action, r.NewIssueCount, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving verification report %s: %w", r.ID, err)
	}
	return nil
}

func (s *postgresStore) ListReports(ctx context.Context, sessionID string) ([]core.ComprehensiveReport, error) {
	query := reportSelect + ` WHERE session_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing reports for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []core.ComprehensiveReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *postgresStore) GetLatestReport(ctx context.Context, sessionID, problemID string) (*core.ComprehensiveReport, error) {
	query := reportSelect + `
	          WHERE session_id = $1 AND problem_id = $2
	          ORDER BY created_at DESC LIMIT 1`
	rows, err := s.db.QueryContext(ctx, query, sessionID, problemID)
	if err != nil {
		return nil, fmt.Errorf("loading latest report for problem %s: %w", problemID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("report for (%s, %s): %w", sessionID, problemID, ErrNotFound)
	}
	return scanReport(rows)
}

const reportSelect = `SELECT id, session_id, problem_id, suggestion_id, static_report,
	          static_score, external_score, combined_score, status, action,
	          new_issue_count, created_at
	          FROM verification_reports`

func scanReport(rows *sql.Rows) (*core.ComprehensiveReport, error) {
	r := &core.ComprehensiveReport{}
	var staticJSON []byte
	if err := rows.Scan(&r.ID, &r.SessionID, &r.ProblemID, &r.SuggestionID,
		&staticJSON, &r.StaticScore, &r.ExternalScore, &r.CombinedScore,
		&r.Status, &r.Action, &r.NewIssueCount, &r.CreatedAt); err != nil {
		return nil, fmt.Errorf("scanning verification report: %w", err)
	}
	if err := json.Unmarshal(staticJSON, &r.Static); err != nil {
		return nil, fmt.Errorf("decoding static report for %s: %w", r.ID, err)
	}
	return r, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}
