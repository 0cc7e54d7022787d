package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{MaxWorkers: 4},
		Verify: VerifyConfig{
			StaticWeight:       0.6,
			ExternalWeight:     0.4,
			SuccessThreshold:   0.8,
			PartialThreshold:   0.6,
			UncertainThreshold: 0.4,
			FailedThreshold:    0.2,
		},
		Workflow: WorkflowConfig{MaxRetries: 3},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "Valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "Zero workers",
			mutate:  func(c *Config) { c.Analysis.MaxWorkers = 0 },
			wantErr: true,
		},
		{
			name:    "Negative retries",
			mutate:  func(c *Config) { c.Workflow.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "Negative blend weight",
			mutate:  func(c *Config) { c.Verify.ExternalWeight = -0.1 },
			wantErr: true,
		},
		{
			name:    "Out-of-order thresholds",
			mutate:  func(c *Config) { c.Verify.PartialThreshold = 0.9 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.validate(); (err != nil) != tt.wantErr {
				t.Errorf("Config.validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRepoConfig(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "repo-config-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	t.Run("Missing file returns defaults and sentinel", func(t *testing.T) {
		cfg, err := LoadRepoConfig(tempDir)
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got %v", err)
		}
		if cfg == nil || len(cfg.ExcludeDirs) != 0 {
			t.Errorf("expected default config, got %+v", cfg)
		}
	})

	t.Run("Valid file parses", func(t *testing.T) {
		content := "exclude_dirs:\n  - vendor\ntools:\n  - govet\ncustom_instructions:\n  - prefer table tests\n"
		if err := os.WriteFile(filepath.Join(tempDir, ".code-mender.yml"), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadRepoConfig(tempDir)
		if err != nil {
			t.Fatalf("LoadRepoConfig() error = %v", err)
		}
		if len(cfg.ExcludeDirs) != 1 || cfg.ExcludeDirs[0] != "vendor" {
			t.Errorf("unexpected exclude_dirs: %v", cfg.ExcludeDirs)
		}
		if len(cfg.Tools) != 1 || cfg.Tools[0] != "govet" {
			t.Errorf("unexpected tools: %v", cfg.Tools)
		}
	})

	t.Run("Malformed file returns parse error", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(tempDir, ".code-mender.yml"), []byte("exclude_dirs: {oops"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadRepoConfig(tempDir); !errors.Is(err, ErrConfigParsing) {
			t.Fatalf("expected ErrConfigParsing, got %v", err)
		}
	})
}
