// Package coordinator fans static-analysis work out across a bounded worker
// pool, one task per (file, tool) pair, and collects the results into a
// per-file map. A single failing task never cancels its siblings; the batch
// as a whole is bounded by a deadline.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sevigo/code-mender/internal/core"
)

// AnalyzerSource resolves the analyzers responsible for a language. It is
// satisfied by *analyzer.Registry.
type AnalyzerSource interface {
	AnalyzersFor(language string) ([]core.Analyzer, bool)
}

// LanguageDetector maps a file path onto a language key.
type LanguageDetector func(file string) (string, bool)

// Coordinator groups files by language and runs every responsible tool
// against every file on a bounded pool.
type Coordinator struct {
	source       AnalyzerSource
	detect       LanguageDetector
	maxWorkers   int
	batchTimeout time.Duration
	logger       *slog.Logger
}

// New creates a coordinator. If maxWorkers is 0 or negative, it defaults to 4.
func New(source AnalyzerSource, detect LanguageDetector, maxWorkers int, batchTimeout time.Duration, logger *slog.Logger) *Coordinator {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		source:       source,
		detect:       detect,
		maxWorkers:   maxWorkers,
		batchTimeout: batchTimeout,
		logger:       logger,
	}
}

// Analyze runs every registered tool against every input file. The returned
// map has exactly one entry per input file regardless of how many tools
// fail; unsupported languages and deadline-abandoned files are recorded
// explicitly rather than silently dropped. Result ordering inside a file's
// entry is not significant.
func (c *Coordinator) Analyze(ctx context.Context, files []string) (map[string]*core.FileAnalysis, error) {
	out := make(map[string]*core.FileAnalysis, len(files))
	if len(files) == 0 {
		return out, nil
	}

	batchCtx, cancel := context.WithTimeout(ctx, c.batchTimeout)
	defer cancel()

	// Populate the map completely before any task starts. Workers only ever
	// touch their entry's Results slice, under mu; the map itself is
	// read-only once the pool is running.
	type task struct {
		analyzer core.Analyzer
		target   *core.FileAnalysis
	}
	var pending []task
	for _, file := range files {
		lang, supported := c.detect(file)
		if !supported {
			out[file] = unsupportedResult(file)
			continue
		}

		analyzers, ok := c.source.AnalyzersFor(lang)
		if !ok {
			out[file] = unsupportedResult(file)
			continue
		}

		fa := &core.FileAnalysis{File: file, Language: lang}
		out[file] = fa
		for _, a := range analyzers {
			pending = append(pending, task{analyzer: a, target: fa})
		}
	}

	var mu sync.Mutex
	g, taskCtx := errgroup.WithContext(batchCtx)
	g.SetLimit(c.maxWorkers)

	started := time.Now()
	for _, t := range pending {
		g.Go(func() error {
			result := c.runTask(taskCtx, t.analyzer, t.target.File)
			mu.Lock()
			t.target.Results = append(t.target.Results, result)
			mu.Unlock()
			// Task failures are data, not errors; returning nil keeps
			// sibling tasks running.
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Unreachable with nil-returning tasks, but keep the contract honest.
		c.logger.Error("analysis pool reported an error", "error", err)
	}

	c.markAbandoned(out)

	c.logger.Info("analysis batch finished",
		"files", len(files),
		"tasks", len(pending),
		"duration", time.Since(started),
	)
	return out, nil
}

// runTask executes one (file, tool) task, converting panics and analyzer
// errors into a failed result for that file.
func (c *Coordinator) runTask(ctx context.Context, a core.Analyzer, file string) (result core.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("analysis task panicked", "file", file, "panic", r)
			result = core.AnalysisResult{
				File:   file,
				Status: core.ResultToolFailed,
				Error:  fmt.Sprintf("analysis task panicked: %v", r),
			}
		}
	}()

	results, err := a.Analyze(ctx, file)
	if err != nil {
		return core.AnalysisResult{
			File:   file,
			Status: core.ResultToolFailed,
			Error:  err.Error(),
		}
	}
	if len(results) != 1 {
		return core.AnalysisResult{
			File:   file,
			Status: core.ResultToolFailed,
			Error:  fmt.Sprintf("analyzer returned %d results for one invocation", len(results)),
		}
	}
	return results[0]
}

// markAbandoned gives files whose tasks never ran (batch deadline hit first)
// an explicit cancelled marker, so partial results remain a complete map.
func (c *Coordinator) markAbandoned(out map[string]*core.FileAnalysis) {
	for file, fa := range out {
		if fa.Language != "" && len(fa.Results) == 0 {
			fa.Results = append(fa.Results, core.AnalysisResult{
				File:   file,
				Status: core.ResultCancelled,
				Error:  "batch deadline exceeded before analysis started",
			})
		}
	}
}

func unsupportedResult(file string) *core.FileAnalysis {
	return &core.FileAnalysis{
		File: file,
		Results: []core.AnalysisResult{{
			File:   file,
			Status: core.ResultUnsupported,
			Error:  "no analyzer registered for this file type",
		}},
	}
}
