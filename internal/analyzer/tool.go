// Package analyzer invokes external lint tools against single files and
// normalizes their tool-specific output into core.Issue records.
package analyzer

import (
	"fmt"
	"strings"

	"github.com/sevigo/code-mender/internal/core"
)

// OutputFormat identifies how a tool reports its findings.
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatSARIF OutputFormat = "sarif"
	FormatText  OutputFormat = "text"
)

// Tool describes one external lint tool: how to invoke it for a single file
// and how to read what it prints.
type Tool struct {
	// Name identifies the tool in issue provenance, e.g. "staticcheck".
	Name string
	// Command is the executable to spawn.
	Command string
	// Args are the argv template; the placeholder {file} is replaced with the
	// target path.
	Args []string
	// Format selects the output parser.
	Format OutputFormat
	// Languages lists the language keys this tool supports.
	Languages []string
	// Category is the default defect category stamped on findings that carry
	// none of their own, e.g. "security" for gosec.
	Category string
	// BaseConfidence weights this tool's reports when merged issues average
	// their confidence; stricter tools carry more weight.
	BaseConfidence float64
	// SeverityMap translates tool-native levels before the global mapping is
	// consulted.
	SeverityMap map[string]core.Severity
}

// Argv renders the command line for one file.
func (t *Tool) Argv(file string) []string {
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = strings.ReplaceAll(a, "{file}", file)
	}
	return args
}

// Validate checks the tool definition.
func (t *Tool) Validate() error {
	if t.Name == "" || t.Command == "" {
		return fmt.Errorf("tool name and command are required")
	}
	if len(t.Languages) == 0 {
		return fmt.Errorf("tool %s supports no languages", t.Name)
	}
	switch t.Format {
	case FormatJSON, FormatSARIF, FormatText:
	default:
		return fmt.Errorf("tool %s has unknown output format %q", t.Name, t.Format)
	}
	if t.BaseConfidence < 0 || t.BaseConfidence > 1 {
		return fmt.Errorf("tool %s base confidence out of range: %.2f", t.Name, t.BaseConfidence)
	}
	return nil
}
