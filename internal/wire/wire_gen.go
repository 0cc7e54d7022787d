// Code generated manually. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"
	"fmt"

	"github.com/sevigo/code-mender/internal/app"
	"github.com/sevigo/code-mender/internal/config"
	"github.com/sevigo/code-mender/internal/db"
	"github.com/sevigo/code-mender/internal/gitutil"
	"github.com/sevigo/code-mender/internal/jobs"
	"github.com/sevigo/code-mender/internal/llm"
	"github.com/sevigo/code-mender/internal/server"
	"github.com/sevigo/code-mender/internal/storage"
)

// InitializeApp creates and wires all application dependencies.
func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	slogLogger := provideSlogLogger(provideLoggerConfig(cfg), provideLogWriter(cfg))

	// Database (runs migrations on startup)
	dbConn, dbCleanup, err := db.NewDatabase(provideDBConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Storage
	store := storage.NewStore(provideSQLX(dbConn))

	// Analyzer registry
	registry, err := provideRegistry(cfg, slogLogger)
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to build analyzer registry: %w", err)
	}

	// Git client
	gitClient := gitutil.NewClient(slogLogger)

	// Suggestion LLM
	model, err := provideGeneratorLLM(ctx, cfg, slogLogger)
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to create suggestion LLM: %w", err)
	}

	// Prompt manager
	promptMgr, err := llm.NewPromptManager()
	if err != nil {
		dbCleanup()
		return nil, nil, fmt.Errorf("failed to create prompt manager: %w", err)
	}

	// Suggestion provider
	provider := provideSuggestionProvider(model, promptMgr, cfg, slogLogger)

	// Fixer
	fx := provideFixer(cfg, slogLogger)

	// Session job
	sessionJob := jobs.NewFixSessionJob(cfg, store, gitClient, registry, provider, fx, slogLogger)

	// Dispatcher
	dispatcher := provideDispatcher(sessionJob, cfg, slogLogger)

	// Server
	srv := server.NewServer(ctx, cfg, dispatcher, store, slogLogger)

	// App
	application := app.NewApp(ctx, cfg, srv, dispatcher, store, slogLogger)

	cleanup := func() {
		dbCleanup()
	}

	return application, cleanup, nil
}
