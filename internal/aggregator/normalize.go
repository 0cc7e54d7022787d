package aggregator

import (
	"regexp"
	"strings"
)

// Message normalization strips the volatile parts of a lint message so two
// tools describing the same defect with slightly different wording compare
// equal. Quoted fragments, numbers, and code-shaped identifiers are replaced
// with fixed placeholders; whitespace is collapsed.
var (
	doubleQuoted = regexp.MustCompile(`"[^"]*"`)
	singleQuoted = regexp.MustCompile(`'[^']*'`)
	backQuoted   = regexp.MustCompile("`[^`]*`")
	numberToken  = regexp.MustCompile(`\b\d+(\.\d+)?\b`)

	// Identifier shapes: dotted paths (pkg.Func), snake_case, and camelCase.
	// Plain lowercase words stay untouched so the message keeps its meaning.
	dottedIdent = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)+\b`)
	snakeIdent  = regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9]*(_[A-Za-z0-9]+)+\b`)
	camelIdent  = regexp.MustCompile(`\b[a-z]+[A-Z][A-Za-z0-9]*\b`)

	spaces = regexp.MustCompile(`\s+`)
)

// NormalizeMessage reduces a tool message to its stable skeleton.
func NormalizeMessage(msg string) string {
	s := doubleQuoted.ReplaceAllString(msg, "<str>")
	s = singleQuoted.ReplaceAllString(s, "<str>")
	s = backQuoted.ReplaceAllString(s, "<str>")
	s = dottedIdent.ReplaceAllString(s, "<ident>")
	s = snakeIdent.ReplaceAllString(s, "<ident>")
	s = camelIdent.ReplaceAllString(s, "<ident>")
	s = numberToken.ReplaceAllString(s, "<num>")
	s = spaces.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}
