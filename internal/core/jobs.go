package core

import (
	"context"
	"fmt"
)

// SessionRequest describes one project run to be processed as a background job.
// Either ProjectPath (a local checkout) or CloneURL (fetched to a temp dir)
// must be set.
type SessionRequest struct {
	SessionID   string
	ProjectPath string
	CloneURL    string
	// MaxProblems caps how many aggregated issues are promoted to tracked
	// problems for this run; 0 means no cap.
	MaxProblems int
}

// Validate checks that the request identifies a target project.
func (r *SessionRequest) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if r.ProjectPath == "" && r.CloneURL == "" {
		return fmt.Errorf("either a project path or a clone URL is required")
	}
	return nil
}

// JobDispatcher defines the contract for a system that can accept and queue
// background jobs for asynchronous processing. This interface decouples the
// request source (CLI command or HTTP handler) from the job execution
// mechanism.
type JobDispatcher interface {
	// Dispatch accepts a SessionRequest and queues it for processing.
	// It returns an error if the job cannot be queued, for example, if the
	// queue is full, providing a mechanism for backpressure.
	Dispatch(ctx context.Context, req *SessionRequest) error

	// Stop gracefully shuts down the dispatcher, waiting for in-flight
	// sessions to finish.
	Stop()
}

// Job represents a single, executable unit of work that can be processed by
// the application's job dispatcher. Each job drives one fix session from
// analysis through the workflow's completion check.
type Job interface {
	// Run executes the job's logic. It receives a context for managing its
	// lifecycle and the request describing the target project. It returns an
	// error if the session fails to complete.
	Run(ctx context.Context, req *SessionRequest) error
}
