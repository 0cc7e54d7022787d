package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sevigo/code-mender/internal/aggregator"
	"github.com/sevigo/code-mender/internal/analyzer"
	"github.com/sevigo/code-mender/internal/config"
	"github.com/sevigo/code-mender/internal/coordinator"
	"github.com/sevigo/code-mender/internal/core"
	"github.com/sevigo/code-mender/internal/gitutil"
	"github.com/sevigo/code-mender/internal/jobs"
	"github.com/sevigo/code-mender/internal/logger"
	"github.com/sevigo/code-mender/internal/scoring"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a local project and print its ranked findings.",
	Long:  `Runs every configured static-analysis tool against the project, deduplicates the findings, and ranks the files by importance. No fixes are applied.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		projectPath, report, scores, err := analyzeProject(context.Background(), args[0])
		if err != nil {
			return err
		}

		if analyzeJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(struct {
				Report *core.ProjectReport `json:"report"`
				Scores []core.FileScore    `json:"scores"`
			}{report, scores})
		}
		return printAnalysis(projectPath, report, scores)
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output the full report as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

// analyzeProject runs the read-only half of the pipeline: tool fan-out,
// aggregation, and scoring. No database, no fixes.
func analyzeProject(ctx context.Context, path string) (string, *core.ProjectReport, []core.FileScore, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.NewLogger(cfg.LoggerConfig, nil)

	var projectPath string
	if isRemoteTarget(path) {
		cloned, cleanup, cloneErr := gitutil.NewClient(log).CloneTemp(ctx, path, "")
		if cloneErr != nil {
			return "", nil, nil, fmt.Errorf("failed to clone %s: %w", path, cloneErr)
		}
		defer cleanup()
		projectPath = cloned
	} else {
		projectPath, err = filepath.Abs(path)
		if err != nil {
			return "", nil, nil, err
		}
	}

	repoCfg, err := config.LoadRepoConfig(projectPath)
	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return "", nil, nil, fmt.Errorf("failed to load repo config: %w", err)
	}

	registry, err := analyzer.NewRegistry(cfg.Analysis, log)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to build analyzer registry: %w", err)
	}
	registry = registry.Restrict(repoCfg.Tools)

	files, err := jobs.ListTargetFiles(projectPath, repoCfg)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to list project files: %w", err)
	}

	coord := coordinator.New(registry, analyzer.DetectLanguage,
		cfg.Analysis.MaxWorkers, cfg.Analysis.BatchTimeout, log)
	analyses, err := coord.Analyze(ctx, files)
	if err != nil {
		return "", nil, nil, fmt.Errorf("analysis failed: %w", err)
	}

	report := aggregator.New(registry.Confidences(), log).Aggregate(projectPath, analyses)
	scores := scoring.New(cfg.Scorer, gitutil.NewClient(log), log).ScoreProject(projectPath, report)
	return projectPath, report, scores, nil
}

func printAnalysis(projectPath string, report *core.ProjectReport, scores []core.FileScore) error {
	bold := color.New(color.Bold)
	bold.Printf("Analyzed %s: %d issues in %d files\n\n", projectPath, report.TotalIssues, len(report.Files))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RANK\tFILE\tSCORE\tCOMPLEXITY\tISSUES\tDENSITY")
	for _, s := range scores {
		rel := relPath(projectPath, s.File)
		issueCount := 0
		density := 0.0
		if fr, ok := report.Files[s.File]; ok {
			issueCount = len(fr.Issues)
			density = fr.IssueDensity
		}
		fmt.Fprintf(w, "%d\t%s\t%.1f\t%s\t%d\t%.1f\n",
			s.Rank, rel, s.Overall, s.ComplexityBucket, issueCount, density)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	for _, s := range scores {
		fr, ok := report.Files[s.File]
		if !ok || len(fr.Issues) == 0 {
			continue
		}
		for _, issue := range fr.Issues {
			fmt.Printf("%s %s:%d %s (%s)\n",
				severitySprint(issue.Severity),
				relPath(projectPath, issue.File), issue.Line,
				issue.Message, issue.ToolNames[0])
		}
	}
	return nil
}

func relPath(root, file string) string {
	if rel, err := filepath.Rel(root, file); err == nil {
		return rel
	}
	return file
}

// severitySprint renders a severity tag with a terminal color.
func severitySprint(s core.Severity) string {
	switch s {
	case core.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprintf("[%s]", s)
	case core.SeverityHigh:
		return color.New(color.FgRed).Sprintf("[%s]", s)
	case core.SeverityMedium:
		return color.New(color.FgYellow).Sprintf("[%s]", s)
	default:
		return color.New(color.FgHiBlack).Sprintf("[%s]", s)
	}
}
