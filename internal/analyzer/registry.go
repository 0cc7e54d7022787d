package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sevigo/code-mender/internal/config"
	"github.com/sevigo/code-mender/internal/core"
)

// extToLanguage maps file extensions onto language keys. Extensions not
// listed here are reported as unsupported, never silently skipped.
var extToLanguage = map[string]string{
	".go":  "go",
	".py":  "python",
	".js":  "javascript",
	".jsx": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
}

// DetectLanguage returns the language key for a file path.
func DetectLanguage(file string) (string, bool) {
	lang, ok := extToLanguage[strings.ToLower(filepath.Ext(file))]
	return lang, ok
}

// defaultTools is the built-in tool table. Base confidences reflect how
// strict each tool is; config may override them per tool.
func defaultTools() []Tool {
	return []Tool{
		{
			Name:           "staticcheck",
			Command:        "staticcheck",
			Args:           []string{"-f", "json", "{file}"},
			Format:         FormatJSON,
			Languages:      []string{"go"},
			Category:       "bug",
			BaseConfidence: 0.9,
		},
		{
			Name:           "govet",
			Command:        "go",
			Args:           []string{"vet", "{file}"},
			Format:         FormatText,
			Languages:      []string{"go"},
			Category:       "correctness",
			BaseConfidence: 0.85,
			// go vet prints bare findings with no level prefix.
			SeverityMap: map[string]core.Severity{"": core.SeverityMedium},
		},
		{
			Name:           "gosec",
			Command:        "gosec",
			Args:           []string{"-fmt", "sarif", "-quiet", "{file}"},
			Format:         FormatSARIF,
			Languages:      []string{"go"},
			Category:       "security",
			BaseConfidence: 0.8,
		},
		{
			Name:           "ruff",
			Command:        "ruff",
			Args:           []string{"check", "--output-format", "json", "{file}"},
			Format:         FormatJSON,
			Languages:      []string{"python"},
			Category:       "style",
			BaseConfidence: 0.75,
		},
		{
			Name:           "bandit",
			Command:        "bandit",
			Args:           []string{"-f", "json", "{file}"},
			Format:         FormatJSON,
			Languages:      []string{"python"},
			Category:       "security",
			BaseConfidence: 0.8,
		},
		{
			Name:           "pylint",
			Command:        "pylint",
			Args:           []string{"--output-format=json", "{file}"},
			Format:         FormatJSON,
			Languages:      []string{"python"},
			Category:       "style",
			BaseConfidence: 0.7,
		},
		{
			Name:           "eslint",
			Command:        "eslint",
			Args:           []string{"--format", "json", "{file}"},
			Format:         FormatJSON,
			Languages:      []string{"javascript", "typescript"},
			Category:       "style",
			BaseConfidence: 0.7,
		},
		{
			Name:           "semgrep",
			Command:        "semgrep",
			Args:           []string{"scan", "--sarif", "--quiet", "{file}"},
			Format:         FormatSARIF,
			Languages:      []string{"go", "python", "javascript", "typescript"},
			Category:       "security",
			BaseConfidence: 0.85,
		},
	}
}

// Registry maps languages onto the analyzers that can handle them.
// Construction is config-driven; there is no runtime registration.
type Registry struct {
	byLanguage map[string][]Tool
	confidence map[string]float64
	runner     *Runner
	logger     *slog.Logger
}

// NewRegistry builds the registry from the built-in tool table, applying
// per-tool confidence overrides from config.
func NewRegistry(cfg config.AnalysisConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		byLanguage: make(map[string][]Tool),
		confidence: make(map[string]float64),
		runner:     NewRunner(cfg.ToolTimeout, logger),
		logger:     logger,
	}

	for _, tool := range defaultTools() {
		if override, ok := cfg.ToolConfidence[tool.Name]; ok {
			tool.BaseConfidence = override
		}
		if err := tool.Validate(); err != nil {
			return nil, fmt.Errorf("invalid tool definition: %w", err)
		}
		r.confidence[tool.Name] = tool.BaseConfidence
		for _, lang := range tool.Languages {
			r.byLanguage[lang] = append(r.byLanguage[lang], tool)
		}
	}
	return r, nil
}

// AnalyzersFor returns one analyzer per registered tool for a language, or
// false for languages with no registered tools. Keeping one analyzer per tool
// lets the coordinator schedule one task per (file, tool) pair.
func (r *Registry) AnalyzersFor(language string) ([]core.Analyzer, bool) {
	tools, ok := r.byLanguage[language]
	if !ok || len(tools) == 0 {
		return nil, false
	}
	analyzers := make([]core.Analyzer, len(tools))
	for i := range tools {
		analyzers[i] = &toolAnalyzer{language: language, tool: tools[i], runner: r.runner}
	}
	return analyzers, true
}

// Restrict returns a copy of the registry limited to the named tools, used
// when a project's .code-mender.yml narrows the tool set. Unknown names are
// logged and ignored.
func (r *Registry) Restrict(toolNames []string) *Registry {
	if len(toolNames) == 0 {
		return r
	}
	allowed := make(map[string]bool, len(toolNames))
	for _, n := range toolNames {
		allowed[n] = true
	}

	restricted := &Registry{
		byLanguage: make(map[string][]Tool),
		confidence: r.confidence,
		runner:     r.runner,
		logger:     r.logger,
	}
	found := make(map[string]bool)
	for lang, tools := range r.byLanguage {
		for _, t := range tools {
			if allowed[t.Name] {
				restricted.byLanguage[lang] = append(restricted.byLanguage[lang], t)
				found[t.Name] = true
			}
		}
	}
	for n := range allowed {
		if !found[n] {
			r.logger.Warn("project config names an unknown tool, ignoring", "tool", n)
		}
	}
	return restricted
}

// Confidences exposes the per-tool base confidence table for the aggregator.
func (r *Registry) Confidences() map[string]float64 {
	return r.confidence
}

// Languages lists the registered language keys in sorted order.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// toolAnalyzer wraps one tool as a core.Analyzer.
type toolAnalyzer struct {
	language string
	tool     Tool
	runner   *Runner
}

func (a *toolAnalyzer) Language() string {
	return a.language
}

func (a *toolAnalyzer) Analyze(ctx context.Context, file string) ([]core.AnalysisResult, error) {
	res, err := a.runner.Run(ctx, &a.tool, file)
	if err != nil {
		return nil, err
	}
	return []core.AnalysisResult{res}, nil
}
