package analyzer

import (
	"strings"

	"github.com/sevigo/code-mender/internal/core"
)

// globalSeverityMap is the fixed table translating the levels the common
// tools emit onto the four-level scale. Tool-specific maps take precedence;
// anything unknown defaults to low so a renamed level can never inflate a
// report.
var globalSeverityMap = map[string]core.Severity{
	"critical": core.SeverityCritical,
	"blocker":  core.SeverityCritical,
	"fatal":    core.SeverityCritical,

	"high":  core.SeverityHigh,
	"error": core.SeverityHigh,
	"major": core.SeverityHigh,

	"medium":  core.SeverityMedium,
	"warning": core.SeverityMedium,
	"warn":    core.SeverityMedium,

	"low":        core.SeverityLow,
	"minor":      core.SeverityLow,
	"info":       core.SeverityLow,
	"note":       core.SeverityLow,
	"style":      core.SeverityLow,
	"convention": core.SeverityLow,
	"refactor":   core.SeverityLow,
}

// normalizeSeverity maps a tool-native level onto the four-level scale.
func normalizeSeverity(tool *Tool, native string) core.Severity {
	key := strings.ToLower(strings.TrimSpace(native))
	if tool != nil {
		if sev, ok := tool.SeverityMap[key]; ok {
			return sev
		}
	}
	if sev, ok := globalSeverityMap[key]; ok {
		return sev
	}
	return core.SeverityLow
}
