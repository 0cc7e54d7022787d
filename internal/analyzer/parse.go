package analyzer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/sevigo/code-mender/internal/core"
)

// parseOutput converts a tool's raw stdout/stderr into normalized issues.
// Empty output means a clean file, not an error. Text tools that report on
// stderr are accommodated by falling back to it when stdout is empty.
func parseOutput(tool *Tool, file string, stdout, stderr []byte) ([]core.Issue, error) {
	out := bytes.TrimSpace(stdout)
	if len(out) == 0 && tool.Format == FormatText {
		out = bytes.TrimSpace(stderr)
	}
	if len(out) == 0 {
		return nil, nil
	}

	switch tool.Format {
	case FormatJSON:
		return parseJSONOutput(tool, file, out)
	case FormatSARIF:
		return parseSARIFOutput(tool, file, out)
	case FormatText:
		return parseTextOutput(tool, file, out), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", tool.Format)
	}
}

// jsonFinding is the lowest common denominator of the JSON shapes the
// supported tools emit. Alternative key spellings land in their own fields
// and are coalesced afterwards.
type jsonFinding struct {
	File        string `json:"file"`
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	Line        int    `json:"line"`
	Row         int    `json:"row"`
	Column      int    `json:"column"`
	Col         int    `json:"col"`
	Severity    string `json:"severity"`
	Level       string `json:"level"`
	Rule        string `json:"rule"`
	RuleID      string `json:"rule_id"`
	Code        string `json:"code"`
	CheckID     string `json:"check_id"`
	Category    string `json:"category"`
	Message     string `json:"message"`
	Text        string `json:"text"`
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
}

// jsonEnvelope covers tools that wrap their findings array in an object.
type jsonEnvelope struct {
	Issues   []jsonFinding `json:"issues"`
	Results  []jsonFinding `json:"results"`
	Findings []jsonFinding `json:"findings"`
}

func parseJSONOutput(tool *Tool, file string, out []byte) ([]core.Issue, error) {
	var findings []jsonFinding
	if err := json.Unmarshal(out, &findings); err != nil {
		var env jsonEnvelope
		if err := json.Unmarshal(out, &env); err != nil {
			return nil, fmt.Errorf("unparsable JSON output: %w", err)
		}
		findings = env.Issues
		findings = append(findings, env.Results...)
		findings = append(findings, env.Findings...)
	}

	issues := make([]core.Issue, 0, len(findings))
	for _, f := range findings {
		issues = append(issues, core.Issue{
			Tool:     tool.Name,
			File:     coalesce(f.File, f.Path, f.Filename, file),
			Line:     firstPositive(f.Line, f.Row),
			Column:   firstPositive(f.Column, f.Col),
			Severity: normalizeSeverity(tool, coalesce(f.Severity, f.Level)),
			Category: coalesce(f.Category, tool.Category),
			RuleID:   coalesce(f.RuleID, f.Rule, f.Code, f.CheckID),
			Message:  coalesce(f.Message, f.Text, f.Description),
			Snippet:  f.Snippet,
		})
	}
	return issues, nil
}

func parseSARIFOutput(tool *Tool, file string, out []byte) ([]core.Issue, error) {
	var report sarif.Report
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, fmt.Errorf("unparsable SARIF output: %w", err)
	}

	var issues []core.Issue
	for _, run := range report.Runs {
		for _, result := range run.Results {
			issue := core.Issue{
				Tool:     tool.Name,
				File:     file,
				Severity: normalizeSeverity(tool, strDeref(result.Level)),
				Category: tool.Category,
				RuleID:   strDeref(result.RuleID),
				Message:  strDeref(result.Message.Text),
			}
			if len(result.Locations) > 0 {
				if phys := result.Locations[0].PhysicalLocation; phys != nil {
					if phys.ArtifactLocation != nil && phys.ArtifactLocation.URI != nil {
						issue.File = *phys.ArtifactLocation.URI
					}
					if region := phys.Region; region != nil {
						issue.Line = intDeref(region.StartLine)
						issue.Column = intDeref(region.StartColumn)
						if region.Snippet != nil && region.Snippet.Text != nil {
							issue.Snippet = *region.Snippet.Text
						}
					}
				}
			}
			if issue.Message == "" {
				continue
			}
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

// textLineRegex matches the `path:line[:col]: [level:] message` family most
// plain-text linters print, one finding per line.
var textLineRegex = regexp.MustCompile(`^(.+?):(\d+)(?::(\d+))?:\s*(?:([A-Za-z]+):\s*)?(.+)$`)

func parseTextOutput(tool *Tool, file string, out []byte) []core.Issue {
	var issues []core.Issue
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := textLineRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col := 0
		if m[3] != "" {
			col, _ = strconv.Atoi(m[3])
		}
		issues = append(issues, core.Issue{
			Tool:     tool.Name,
			File:     coalesce(m[1], file),
			Line:     lineNo,
			Column:   col,
			Severity: normalizeSeverity(tool, m[4]),
			Category: tool.Category,
			Message:  strings.TrimSpace(m[5]),
		})
	}
	return issues
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intDeref(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
