package core

import (
	"fmt"
	"time"
)

// SessionState is the lifecycle state of a workflow session.
type SessionState string

const (
	SessionRunning   SessionState = "running"
	SessionCompleted SessionState = "completed"
	SessionFailed    SessionState = "failed"
)

// WorkflowSession is the container for one project run: every tracked problem
// and its state. The problem list is the only mutable shared state in the
// system and all mutation goes through the workflow state machine.
type WorkflowSession struct {
	ID          string       `json:"id"`
	ProjectPath string       `json:"project_path"`
	State       SessionState `json:"state"`
	Problems    []*Problem   `json:"problems"`
	StartedAt   time.Time    `json:"started_at"`
	ClosedAt    *time.Time   `json:"closed_at,omitempty"`
}

// Complete reports whether every problem reached a terminal state.
func (s *WorkflowSession) Complete() bool {
	for _, p := range s.Problems {
		if !p.Status.Terminal() {
			return false
		}
	}
	return true
}

// SessionStats are the final statistics emitted when a session closes.
type SessionStats struct {
	SessionID             string  `json:"session_id"`
	Total                 int     `json:"total"`
	Resolved              int     `json:"resolved"`
	Skipped               int     `json:"skipped"`
	Pending               int     `json:"pending"`
	TotalRetries          int     `json:"total_retries"`
	MeanVerificationScore float64 `json:"mean_verification_score"`
}

// String renders the stats in a single log-friendly line.
func (st SessionStats) String() string {
	return fmt.Sprintf("total=%d resolved=%d skipped=%d pending=%d retries=%d mean_score=%.2f",
		st.Total, st.Resolved, st.Skipped, st.Pending, st.TotalRetries, st.MeanVerificationScore)
}

// SessionSnapshot is the plain-data view of a session handed to the
// presentation boundary; it carries no formatting logic.
type SessionSnapshot struct {
	Session *WorkflowSession `json:"session"`
	Stats   SessionStats     `json:"stats"`
}
