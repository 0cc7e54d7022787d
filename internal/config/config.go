package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/code-mender/internal/logger"
)

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port string
}

// AnalysisConfig bounds the static-analysis fan-out.
type AnalysisConfig struct {
	// MaxWorkers is the size of the (file, tool) worker pool.
	MaxWorkers int
	// ToolTimeout bounds a single tool invocation.
	ToolTimeout time.Duration
	// BatchTimeout bounds the total wall-clock time of one analysis batch.
	BatchTimeout time.Duration
	// ToolConfidence overrides the built-in per-tool base confidences used
	// when averaging merged issue confidence.
	ToolConfidence map[string]float64
}

// ScorerConfig holds the file-importance weights. The weights should sum to
// ~1.0; a drift is logged and renormalized, never fatal.
type ScorerConfig struct {
	WeightComplexity      float64
	WeightIssueDensity    float64
	WeightDependency      float64
	WeightChangeFrequency float64
	WeightBusinessLogic   float64
}

// VerifyConfig holds the verification blend and the fixed score bands.
type VerifyConfig struct {
	// StaticWeight and ExternalWeight blend the signature-diff score with the
	// optional qualitative assessment. When no external signal is available
	// the static score counts for everything.
	StaticWeight   float64
	ExternalWeight float64

	// Score bands, checked highest first: >= Success -> success,
	// >= Partial -> partial_success, >= Uncertain -> uncertain,
	// >= Failed -> failed, else regressed.
	SuccessThreshold   float64
	PartialThreshold   float64
	UncertainThreshold float64
	FailedThreshold    float64

	// MaxNewIssues is the regression tolerance: more new issues than this
	// forces a reject regardless of score.
	MaxNewIssues int
}

// WorkflowConfig holds the fix-workflow knobs.
type WorkflowConfig struct {
	// MaxRetries caps how often a problem loops back to pending before it is
	// forcibly skipped.
	MaxRetries int
	// MinSuggestionConfidence is the floor below which a provider suggestion
	// is treated as "no suggestion available".
	MinSuggestionConfidence float64
}

// Config holds the application's configuration values.
type Config struct {
	Server       ServerConfig
	LoggerConfig logger.Config
	Database     *DBConfig
	Analysis     AnalysisConfig
	Scorer       ScorerConfig
	Verify       VerifyConfig
	Workflow     WorkflowConfig

	// BackupDir receives the timestamped backups taken before a fix is applied.
	BackupDir string

	LLMProvider        string
	GeminiAPIKey       string
	OllamaHost         string
	GeneratorModelName string
}

// LoadConfig reads configuration from environment variables and a .env file,
// sets sensible defaults, and validates required fields. It uses the Viper
// library to handle configuration loading and precedence.
func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("LOG_OUTPUT", "stdout")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "mender")
	viper.SetDefault("DB_PASSWORD", "")
	viper.SetDefault("DB_NAME", "code_mender")
	viper.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	viper.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")

	viper.SetDefault("MAX_WORKERS", 6)
	viper.SetDefault("TOOL_TIMEOUT", "45s")
	viper.SetDefault("BATCH_TIMEOUT", "10m")

	viper.SetDefault("WEIGHT_COMPLEXITY", 0.25)
	viper.SetDefault("WEIGHT_ISSUE_DENSITY", 0.30)
	viper.SetDefault("WEIGHT_DEPENDENCY", 0.20)
	viper.SetDefault("WEIGHT_CHANGE_FREQUENCY", 0.15)
	viper.SetDefault("WEIGHT_BUSINESS_LOGIC", 0.10)

	viper.SetDefault("VERIFY_STATIC_WEIGHT", 0.6)
	viper.SetDefault("VERIFY_EXTERNAL_WEIGHT", 0.4)
	viper.SetDefault("VERIFY_SUCCESS_THRESHOLD", 0.8)
	viper.SetDefault("VERIFY_PARTIAL_THRESHOLD", 0.6)
	viper.SetDefault("VERIFY_UNCERTAIN_THRESHOLD", 0.4)
	viper.SetDefault("VERIFY_FAILED_THRESHOLD", 0.2)
	viper.SetDefault("VERIFY_MAX_NEW_ISSUES", 2)

	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("MIN_SUGGESTION_CONFIDENCE", 0.3)

	viper.SetDefault("BACKUP_DIR", ".code-mender/backups")

	viper.SetDefault("LLM_PROVIDER", "ollama")
	viper.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	viper.SetDefault("GENERATOR_MODEL_NAME", "gemma3:latest")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", "error", err)
		}
	}

	// Special handling for Gemini generator model name.
	generatorModel := viper.GetString("GENERATOR_MODEL_NAME")
	if viper.GetString("LLM_PROVIDER") == "gemini" {
		geminiModel := viper.GetString("GEMINI_GENERATOR_MODEL_NAME")
		if geminiModel != "" {
			generatorModel = geminiModel
		} else {
			generatorModel = "gemini-2.5-flash"
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("SERVER_PORT"),
		},
		LoggerConfig: logger.Config{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
			Output: viper.GetString("LOG_OUTPUT"),
		},
		Database: &DBConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			Username:        viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			Database:        viper.GetString("DB_NAME"),
			ConnMaxLifetime: viper.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: viper.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		Analysis: AnalysisConfig{
			MaxWorkers:     viper.GetInt("MAX_WORKERS"),
			ToolTimeout:    viper.GetDuration("TOOL_TIMEOUT"),
			BatchTimeout:   viper.GetDuration("BATCH_TIMEOUT"),
			ToolConfidence: toolConfidenceOverrides(),
		},
		Scorer: ScorerConfig{
			WeightComplexity:      viper.GetFloat64("WEIGHT_COMPLEXITY"),
			WeightIssueDensity:    viper.GetFloat64("WEIGHT_ISSUE_DENSITY"),
			WeightDependency:      viper.GetFloat64("WEIGHT_DEPENDENCY"),
			WeightChangeFrequency: viper.GetFloat64("WEIGHT_CHANGE_FREQUENCY"),
			WeightBusinessLogic:   viper.GetFloat64("WEIGHT_BUSINESS_LOGIC"),
		},
		Verify: VerifyConfig{
			StaticWeight:       viper.GetFloat64("VERIFY_STATIC_WEIGHT"),
			ExternalWeight:     viper.GetFloat64("VERIFY_EXTERNAL_WEIGHT"),
			SuccessThreshold:   viper.GetFloat64("VERIFY_SUCCESS_THRESHOLD"),
			PartialThreshold:   viper.GetFloat64("VERIFY_PARTIAL_THRESHOLD"),
			UncertainThreshold: viper.GetFloat64("VERIFY_UNCERTAIN_THRESHOLD"),
			FailedThreshold:    viper.GetFloat64("VERIFY_FAILED_THRESHOLD"),
			MaxNewIssues:       viper.GetInt("VERIFY_MAX_NEW_ISSUES"),
		},
		Workflow: WorkflowConfig{
			MaxRetries:              viper.GetInt("MAX_RETRIES"),
			MinSuggestionConfidence: viper.GetFloat64("MIN_SUGGESTION_CONFIDENCE"),
		},
		BackupDir:          viper.GetString("BACKUP_DIR"),
		LLMProvider:        viper.GetString("LLM_PROVIDER"),
		GeminiAPIKey:       viper.GetString("GEMINI_API_KEY"),
		OllamaHost:         viper.GetString("OLLAMA_HOST"),
		GeneratorModelName: generatorModel,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// toolConfidenceOverrides reads the optional TOOL_CONFIDENCE map. Values that
// do not parse as numbers are skipped with a warning.
func toolConfidenceOverrides() map[string]float64 {
	raw := viper.GetStringMap("TOOL_CONFIDENCE")
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for tool, v := range raw {
		switch val := v.(type) {
		case float64:
			out[tool] = val
		case int:
			out[tool] = float64(val)
		default:
			slog.Warn("ignoring non-numeric tool confidence override", "tool", tool, "value", v)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Analysis.MaxWorkers <= 0 {
		return fmt.Errorf("MAX_WORKERS must be positive (got %d)", c.Analysis.MaxWorkers)
	}
	if c.Workflow.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES cannot be negative (got %d)", c.Workflow.MaxRetries)
	}
	if c.Verify.StaticWeight < 0 || c.Verify.ExternalWeight < 0 {
		return fmt.Errorf("verification blend weights cannot be negative")
	}
	t := c.Verify
	if !(t.SuccessThreshold >= t.PartialThreshold &&
		t.PartialThreshold >= t.UncertainThreshold &&
		t.UncertainThreshold >= t.FailedThreshold) {
		return fmt.Errorf("verification thresholds must be non-increasing: %.2f/%.2f/%.2f/%.2f",
			t.SuccessThreshold, t.PartialThreshold, t.UncertainThreshold, t.FailedThreshold)
	}
	return nil
}
