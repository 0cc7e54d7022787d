package core

// ComplexityBucket classifies a file's structural complexity.
type ComplexityBucket string

const (
	ComplexitySimple      ComplexityBucket = "simple"
	ComplexityMedium      ComplexityBucket = "medium"
	ComplexityComplex     ComplexityBucket = "complex"
	ComplexityVeryComplex ComplexityBucket = "very_complex"
)

// FileScore is the per-file importance ranking used to order remediation
// work. Each sub-score is normalized to 0-100; Overall is their configurable
// weighted sum. Rank is relative to the current batch only. Scores order
// processing, they never gate it.
type FileScore struct {
	File             string           `json:"file"`
	Complexity       float64          `json:"complexity"`
	ComplexityBucket ComplexityBucket `json:"complexity_bucket"`
	IssueDensity     float64          `json:"issue_density"`
	Dependency       float64          `json:"dependency"`
	ChangeFrequency  float64          `json:"change_frequency"`
	BusinessLogic    float64          `json:"business_logic"`
	Overall          float64          `json:"overall"`
	Rank             int              `json:"rank"`
}
