// Package app initializes and orchestrates the main components of the
// code-mender application: the HTTP server and the background session
// dispatcher.
package app

import (
	"context"
	"log/slog"

	"github.com/sevigo/code-mender/internal/config"
	"github.com/sevigo/code-mender/internal/core"
	"github.com/sevigo/code-mender/internal/server"
	"github.com/sevigo/code-mender/internal/storage"
)

// App holds the main application components. Dispatcher and Store are
// exported for the CLI commands.
type App struct {
	Dispatcher core.JobDispatcher
	Store      storage.Store

	ctx    context.Context
	cfg    *config.Config
	server *server.Server
	logger *slog.Logger
}

// NewApp assembles the application from its composed components. Dependency
// construction lives in the wire package.
func NewApp(ctx context.Context, cfg *config.Config, srv *server.Server, dispatcher core.JobDispatcher, store storage.Store, logger *slog.Logger) *App {
	return &App{
		Dispatcher: dispatcher,
		Store:      store,
		ctx:        ctx,
		cfg:        cfg,
		server:     srv,
		logger:     logger,
	}
}

// Start runs the HTTP server.
func (a *App) Start() error {
	a.logger.Info("starting code-mender",
		"server_port", a.cfg.Server.Port,
		"max_workers", a.cfg.Analysis.MaxWorkers)

	err := a.server.Start()
	if err != nil {
		a.logger.Error("failed to start HTTP server", "error", err)
		return err
	}

	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.logger.Info("shutting down code-mender services")

	// Stop the HTTP server first to prevent new incoming requests.
	serverErr := a.server.Stop()
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
		// Continue to stop other components even if the server failed.
	}

	// Stop the job dispatcher, allowing in-flight sessions to finish.
	a.Dispatcher.Stop()

	if serverErr != nil {
		a.logger.Error("code-mender stopped with errors", "error", serverErr)
		return serverErr
	}

	a.logger.Info("code-mender stopped successfully")
	return nil
}
