package wire

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/jmoiron/sqlx"
	"github.com/sevigo/goframe/llms"
	"github.com/sevigo/goframe/llms/gemini"
	"github.com/sevigo/goframe/llms/ollama"

	"github.com/sevigo/code-mender/internal/analyzer"
	"github.com/sevigo/code-mender/internal/app"
	"github.com/sevigo/code-mender/internal/config"
	"github.com/sevigo/code-mender/internal/core"
	"github.com/sevigo/code-mender/internal/db"
	"github.com/sevigo/code-mender/internal/fixer"
	"github.com/sevigo/code-mender/internal/gitutil"
	"github.com/sevigo/code-mender/internal/jobs"
	"github.com/sevigo/code-mender/internal/llm"
	"github.com/sevigo/code-mender/internal/logger"
	"github.com/sevigo/code-mender/internal/server"
	"github.com/sevigo/code-mender/internal/storage"
)

var AppSet = wire.NewSet(
	app.NewApp,
	server.NewServer,
	config.LoadConfig,
	db.NewDatabase,
	storage.NewStore,
	gitutil.NewClient,
	llm.NewPromptManager,
	jobs.NewFixSessionJob,
	provideSQLX,
	provideRegistry,
	provideGeneratorLLM,
	provideSuggestionProvider,
	provideFixer,
	provideDispatcher,
	provideLoggerConfig,
	provideLogWriter,
	provideDBConfig,
	provideSlogLogger,
)

func provideSQLX(conn *db.DB) *sqlx.DB {
	return conn.DB
}

func provideRegistry(cfg *config.Config, logger *slog.Logger) (*analyzer.Registry, error) {
	return analyzer.NewRegistry(cfg.Analysis, logger)
}

func provideGeneratorLLM(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llms.Model, error) {
	switch cfg.LLMProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set in environment for gemini provider")
		}
		return gemini.New(ctx,
			gemini.WithModel(cfg.GeneratorModelName),
			gemini.WithAPIKey(cfg.GeminiAPIKey),
		)
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(cfg.OllamaHost),
			ollama.WithHTTPClient(newOllamaHTTPClient()),
			ollama.WithModel(cfg.GeneratorModelName),
			ollama.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}

func provideSuggestionProvider(model llms.Model, prompts *llm.PromptManager, cfg *config.Config, logger *slog.Logger) core.SuggestionProvider {
	return llm.NewProvider(model, prompts, cfg.LLMProvider,
		cfg.Workflow.MinSuggestionConfidence, logger)
}

func provideFixer(cfg *config.Config, logger *slog.Logger) *fixer.Fixer {
	return fixer.New(cfg.BackupDir, logger)
}

func provideDispatcher(sessionJob core.Job, cfg *config.Config, logger *slog.Logger) core.JobDispatcher {
	return jobs.NewDispatcher(sessionJob, cfg.Analysis.MaxWorkers, logger)
}

// newOllamaHTTPClient creates an HTTP client with longer timeouts for Ollama
// requests. Ollama can take a while to process requests, so we need more
// generous timeouts.
func newOllamaHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableKeepAlives:   false,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   5 * time.Minute,
	}
}

func provideLoggerConfig(cfg *config.Config) logger.Config {
	return cfg.LoggerConfig
}

func provideLogWriter(cfg *config.Config) io.Writer {
	switch cfg.LoggerConfig.Output {
	case "stderr":
		return os.Stderr
	case "file":
		f, _ := os.OpenFile("code-mender.log", os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		return f
	default:
		return os.Stdout
	}
}

func provideDBConfig(cfg *config.Config) *config.DBConfig {
	return cfg.Database
}

func provideSlogLogger(loggerConfig logger.Config, writer io.Writer) *slog.Logger {
	return logger.NewLogger(loggerConfig, writer)
}
