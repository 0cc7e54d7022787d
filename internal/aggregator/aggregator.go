// Package aggregator merges the raw, per-tool issue streams into a
// deduplicated project report. Merging happens in two passes: an exact
// (line, column) pass inside each file, then a project-wide pass keyed on
// the normalized message, which catches the same defect reported with
// different wording by different tools.
package aggregator

import (
	"bytes"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/sevigo/code-mender/internal/core"
)

// defaultToolConfidence is assumed for tools absent from the confidence
// table, e.g. findings imported from an unregistered source.
const defaultToolConfidence = 0.5

// Aggregator deduplicates raw issues and computes per-file densities and
// the project-wide severity histogram. It is stateless across calls, so
// the same input always yields the same report.
type Aggregator struct {
	confidence map[string]float64
	countLines func(file string) (int, error)
	logger     *slog.Logger
}

// New creates an aggregator. The confidence table maps tool names onto
// their base confidence and usually comes from the analyzer registry.
func New(confidence map[string]float64, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		confidence: confidence,
		countLines: fileLineCount,
		logger:     logger,
	}
}

// Aggregate builds the project report from the coordinator's output. An
// empty input yields an empty but well-formed report.
func (a *Aggregator) Aggregate(projectPath string, analyses map[string]*core.FileAnalysis) *core.ProjectReport {
	report := &core.ProjectReport{
		ProjectPath:       projectPath,
		GeneratedAt:       time.Now().UTC(),
		Files:             make(map[string]*core.FileReport, len(analyses)),
		SeverityHistogram: make(map[core.Severity]int),
	}

	for file, fa := range analyses {
		merged := a.mergeFile(file, fa.Issues())
		merged = a.dedupByMessage(merged)

		lines, err := a.countLines(file)
		if err != nil {
			a.logger.Warn("cannot count lines, density will be zero", "file", file, "error", err)
			lines = 0
		}

		fr := &core.FileReport{
			File:         file,
			LineCount:    lines,
			Issues:       merged,
			IssueDensity: density(len(merged), lines),
		}
		report.Files[file] = fr

		for _, issue := range merged {
			report.SeverityHistogram[issue.Severity]++
		}
		report.TotalIssues += len(merged)
	}

	return report
}

// mergeFile is the first pass: raw issues at the same exact (line, column)
// collapse into one AggregatedIssue.
func (a *Aggregator) mergeFile(file string, raw []core.Issue) []core.AggregatedIssue {
	type locKey struct {
		line, column int
	}
	groups := make(map[locKey][]core.Issue)
	var order []locKey
	for _, issue := range raw {
		k := locKey{issue.Line, issue.Column}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], issue)
	}

	out := make([]core.AggregatedIssue, 0, len(order))
	for _, k := range order {
		out = append(out, a.merge(file, groups[k]))
	}
	sortIssues(out)
	return out
}

// dedupByMessage is the second pass: issues on the same line whose
// normalized messages match are the same logical defect, even when their
// columns or wording differ.
func (a *Aggregator) dedupByMessage(issues []core.AggregatedIssue) []core.AggregatedIssue {
	type msgKey struct {
		line    int
		message string
	}
	byKey := make(map[msgKey]int, len(issues))
	var out []core.AggregatedIssue

	for _, issue := range issues {
		k := msgKey{issue.Line, NormalizeMessage(issue.Message)}
		if idx, seen := byKey[k]; seen {
			out[idx] = a.combine(out[idx], issue)
			continue
		}
		byKey[k] = len(out)
		out = append(out, issue)
	}
	sortIssues(out)
	return out
}

// merge folds one exact-location group into a single AggregatedIssue.
func (a *Aggregator) merge(file string, group []core.Issue) core.AggregatedIssue {
	first := group[0]
	agg := core.AggregatedIssue{
		File:           file,
		Line:           first.Line,
		Column:         first.Column,
		Severity:       first.Severity,
		Category:       first.Category,
		RuleIDs:        core.SortedUnion([]string{first.RuleID}, nil),
		ToolNames:      core.SortedUnion([]string{first.Tool}, nil),
		Message:        first.Message,
		Snippet:        first.Snippet,
		DuplicateCount: 1,
	}

	wording := map[string]bool{NormalizeMessage(first.Message): true}
	for _, issue := range group[1:] {
		if issue.Severity.Rank() > agg.Severity.Rank() {
			agg.Severity = issue.Severity
			agg.Category = issue.Category
		}
		agg.RuleIDs = core.SortedUnion(agg.RuleIDs, []string{issue.RuleID})
		agg.ToolNames = core.SortedUnion(agg.ToolNames, []string{issue.Tool})
		if len(issue.Message) > len(agg.Message) {
			agg.Message = issue.Message
		}
		if agg.Snippet == "" {
			agg.Snippet = issue.Snippet
		}
		wording[NormalizeMessage(issue.Message)] = true
		agg.DuplicateCount++
	}
	if len(wording) > 1 {
		agg.Message += " [tools disagree on wording]"
	}

	agg.Confidence = a.weightedConfidence(agg.ToolNames)
	agg.ID = core.IssueID(file, agg.Line, agg.Column, NormalizeMessage(agg.Message))
	return agg
}

// combine folds a later aggregate into an earlier one during the second
// pass. The earlier issue keeps its identity; provenance and count grow.
func (a *Aggregator) combine(dst, src core.AggregatedIssue) core.AggregatedIssue {
	dst.Severity = core.MaxSeverity(dst.Severity, src.Severity)
	dst.RuleIDs = core.SortedUnion(dst.RuleIDs, src.RuleIDs)
	dst.ToolNames = core.SortedUnion(dst.ToolNames, src.ToolNames)
	if len(src.Message) > len(dst.Message) {
		dst.Message = src.Message
	}
	if dst.Snippet == "" {
		dst.Snippet = src.Snippet
	}
	dst.DuplicateCount += src.DuplicateCount
	dst.Confidence = a.weightedConfidence(dst.ToolNames)
	return dst
}

// weightedConfidence averages the contributing tools' base confidences,
// weighting each tool by its own confidence so stricter tools pull the
// result toward their value.
func (a *Aggregator) weightedConfidence(tools []string) float64 {
	var num, den float64
	for _, tool := range tools {
		c, ok := a.confidence[tool]
		if !ok {
			c = defaultToolConfidence
		}
		num += c * c
		den += c
	}
	if den == 0 {
		return defaultToolConfidence
	}
	return num / den
}

// density is issues per 100 lines. Zero-line files score 0, never NaN.
func density(issues, lines int) float64 {
	if lines <= 0 {
		return 0
	}
	return float64(issues) * 100 / float64(lines)
}

func sortIssues(issues []core.AggregatedIssue) {
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Line != issues[j].Line {
			return issues[i].Line < issues[j].Line
		}
		if issues[i].Column != issues[j].Column {
			return issues[i].Column < issues[j].Column
		}
		return issues[i].ID < issues[j].ID
	})
}

func fileLineCount(file string) (int, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n, nil
}
