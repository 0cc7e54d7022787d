package scoring

import (
	"regexp"

	"github.com/sevigo/code-mender/internal/core"
)

// Decision-point keywords per language. Branches, loops, and exception
// handlers all count; plain statements do not.
var decisionKeywords = map[string]*regexp.Regexp{
	"go":         regexp.MustCompile(`\b(if|for|switch|case|select|recover)\b`),
	"python":     regexp.MustCompile(`\b(if|elif|for|while|try|except|with|case)\b`),
	"javascript": regexp.MustCompile(`\b(if|for|while|switch|case|try|catch|do)\b`),
	"typescript": regexp.MustCompile(`\b(if|for|while|switch|case|try|catch|do)\b`),
}

// complexityBucket maps decision points per 100 lines onto the four buckets.
func complexityBucket(perHundred float64) core.ComplexityBucket {
	switch {
	case perHundred >= 35:
		return core.ComplexityVeryComplex
	case perHundred >= 20:
		return core.ComplexityComplex
	case perHundred >= 10:
		return core.ComplexityMedium
	default:
		return core.ComplexitySimple
	}
}

// bucketScore maps a bucket onto its 0-100 sub-score.
func bucketScore(b core.ComplexityBucket) float64 {
	switch b {
	case core.ComplexityVeryComplex:
		return 100
	case core.ComplexityComplex:
		return 75
	case core.ComplexityMedium:
		return 50
	default:
		return 25
	}
}

// scoreComplexity walks the file content for decision points and normalizes
// the count by lines of code. Empty files are simple with score 0.
func scoreComplexity(content []byte, language string, lineCount int) (float64, core.ComplexityBucket) {
	if lineCount == 0 || len(content) == 0 {
		return 0, core.ComplexitySimple
	}
	re, ok := decisionKeywords[language]
	if !ok {
		return 0, core.ComplexitySimple
	}
	decisions := len(re.FindAll(content, -1))
	perHundred := float64(decisions) * 100 / float64(lineCount)
	bucket := complexityBucket(perHundred)
	return bucketScore(bucket), bucket
}

// scoreIssueDensity buckets issues-per-100-lines onto 0-100.
func scoreIssueDensity(density float64) float64 {
	switch {
	case density <= 0:
		return 0
	case density < 1:
		return 20
	case density < 5:
		return 40
	case density < 10:
		return 60
	case density < 20:
		return 80
	default:
		return 100
	}
}
