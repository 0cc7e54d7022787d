// Package jobs runs fix sessions as background tasks: a dispatcher feeds a
// bounded worker pool, and each worker drives one session from analysis
// through the workflow's completion check.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sevigo/code-mender/internal/core"
)

const queueCapacity = 100

// dispatcher implements core.JobDispatcher and manages a pool of worker
// goroutines processing session requests.
type dispatcher struct {
	sessionJob core.Job                  // Job implementation executed by each worker.
	jobQueue   chan *core.SessionRequest // Queue of incoming session requests.
	maxWorkers int                       // Number of concurrent workers.
	wg         sync.WaitGroup            // Tracks active workers for graceful shutdown.
	logger     *slog.Logger              // Logger instance for the dispatcher.
}

// NewDispatcher initializes a dispatcher with a worker pool.
// If maxWorkers is 0 or negative, it defaults to 1.
func NewDispatcher(sessionJob core.Job, maxWorkers int, logger *slog.Logger) core.JobDispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	d := &dispatcher{
		sessionJob: sessionJob,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan *core.SessionRequest, queueCapacity),
		logger:     logger,
	}
	d.startWorkers()
	return d
}

func (d *dispatcher) startWorkers() {
	for i := range d.maxWorkers {
		d.wg.Add(1)
		go d.startWorker(i)
	}
}

// startWorker processes requests from the queue until it's closed.
func (d *dispatcher) startWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Info("starting session worker", "id", workerID)

	for req := range d.jobQueue {
		d.processRequest(workerID, req)
	}

	d.logger.Info("shutting down session worker", "id", workerID)
}

func (d *dispatcher) processRequest(workerID int, req *core.SessionRequest) {
	d.logger.Info("worker processing session",
		"worker_id", workerID,
		"session_id", req.SessionID,
	)

	if err := d.sessionJob.Run(context.Background(), req); err != nil {
		d.logger.Error("fix session failed",
			"session_id", req.SessionID,
			"error", err,
		)
	}
}

// Dispatch queues a session request for processing by a worker.
func (d *dispatcher) Dispatch(_ context.Context, req *core.SessionRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid session request: %w", err)
	}
	d.logger.Info("queuing fix session", "session_id", req.SessionID)

	select {
	case d.jobQueue <- req:
		return nil
	default:
		return fmt.Errorf("job queue is full, cannot accept new session")
	}
}

// Stop gracefully shuts down the dispatcher, waiting for all workers to finish.
func (d *dispatcher) Stop() {
	d.logger.Info("stopping dispatcher and waiting for sessions to finish")
	close(d.jobQueue)
	d.wg.Wait()
	d.logger.Info("all sessions have finished")
}
