// Package scoring ranks files by how much they deserve remediation
// attention. Four normalized signals (structural complexity, issue density,
// dependency fan-in, change recency) plus a business-logic heuristic are
// blended into one weighted score. Scores order processing only; a
// low-ranked file is never skipped because of its score.
package scoring

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sevigo/code-mender/internal/analyzer"
	"github.com/sevigo/code-mender/internal/config"
	"github.com/sevigo/code-mender/internal/core"
)

// businessKeywords flag files that likely carry domain rules rather than
// plumbing. A crude signal, weighted accordingly.
var businessKeywords = []string{
	"auth", "payment", "billing", "order", "invoice", "account",
	"checkout", "transaction", "handler", "service", "controller",
}

type weights struct {
	complexity, density, dependency, changeFreq, business float64
}

// fileContext is everything the per-file scoring pass needs, gathered once.
type fileContext struct {
	content   []byte
	language  string
	lineCount int
	density   float64
}

// Scorer computes FileScores for an analyzed project.
type Scorer struct {
	weights weights
	history HistoryProvider
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a scorer. Weights that do not sum to ~1.0 are renormalized
// with a warning; an all-zero weight set falls back to equal weights.
func New(cfg config.ScorerConfig, history HistoryProvider, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	w := weights{
		complexity: cfg.WeightComplexity,
		density:    cfg.WeightIssueDensity,
		dependency: cfg.WeightDependency,
		changeFreq: cfg.WeightChangeFrequency,
		business:   cfg.WeightBusinessLogic,
	}
	sum := w.complexity + w.density + w.dependency + w.changeFreq + w.business
	switch {
	case sum == 0:
		logger.Warn("all importance weights are zero, using equal weights")
		w = weights{0.2, 0.2, 0.2, 0.2, 0.2}
	case math.Abs(sum-1.0) > 0.01:
		logger.Warn("importance weights do not sum to 1.0, renormalizing", "sum", sum)
		w.complexity /= sum
		w.density /= sum
		w.dependency /= sum
		w.changeFreq /= sum
		w.business /= sum
	}
	return &Scorer{weights: w, history: history, now: time.Now, logger: logger}
}

// ScoreProject ranks every file in the report. The result is sorted by
// overall score descending, with Rank assigned 1..n relative to this batch.
func (s *Scorer) ScoreProject(projectPath string, report *core.ProjectReport) []core.FileScore {
	contexts := make(map[string]fileContext, len(report.Files))
	for path, fr := range report.Files {
		contexts[path] = s.loadContext(path, fr)
	}
	graph := buildDependencyGraph(contexts)

	scores := make([]core.FileScore, 0, len(contexts))
	for path, fc := range contexts {
		scores = append(scores, s.scoreFile(projectPath, path, fc, graph))
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Overall != scores[j].Overall {
			return scores[i].Overall > scores[j].Overall
		}
		return scores[i].File < scores[j].File
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}
	return scores
}

func (s *Scorer) scoreFile(projectPath, path string, fc fileContext, graph *dependencyGraph) core.FileScore {
	complexity, bucket := scoreComplexity(fc.content, fc.language, fc.lineCount)

	relFile := path
	if rel, err := filepath.Rel(projectPath, path); err == nil && !strings.HasPrefix(rel, "..") {
		relFile = filepath.ToSlash(rel)
	}
	hist, histErr := s.history.FileHistory(projectPath, relFile)

	fs := core.FileScore{
		File:             path,
		Complexity:       complexity,
		ComplexityBucket: bucket,
		IssueDensity:     scoreIssueDensity(fc.density),
		Dependency:       graph.score(path),
		ChangeFrequency:  scoreChangeFrequency(hist, histErr, path, s.now()),
		BusinessLogic:    scoreBusinessLogic(path),
	}
	fs.Overall = s.weights.complexity*fs.Complexity +
		s.weights.density*fs.IssueDensity +
		s.weights.dependency*fs.Dependency +
		s.weights.changeFreq*fs.ChangeFrequency +
		s.weights.business*fs.BusinessLogic
	return fs
}

func (s *Scorer) loadContext(path string, fr *core.FileReport) fileContext {
	content, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("cannot read file for scoring", "file", path, "error", err)
	}
	lang, _ := analyzer.DetectLanguage(path)
	return fileContext{
		content:   content,
		language:  lang,
		lineCount: fr.LineCount,
		density:   fr.IssueDensity,
	}
}

func scoreBusinessLogic(path string) float64 {
	lower := strings.ToLower(filepath.ToSlash(path))
	var score float64
	for _, kw := range businessKeywords {
		if strings.Contains(lower, kw) {
			score += 25
		}
	}
	if score > 100 {
		return 100
	}
	return score
}
