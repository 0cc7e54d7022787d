package verification

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sevigo/code-mender/internal/config"
	"github.com/sevigo/code-mender/internal/core"
)

// newIssuePenalty is subtracted from the static score per newly introduced
// issue, so a fix that trades old defects for new ones scores lower than a
// clean one even before the regression override kicks in.
const newIssuePenalty = 0.25

// lowConfidenceScore sits in the middle of the uncertain band.
const lowConfidenceScore = 0.5

// Aggregator merges the static diff with the optional external assessment
// into a ComprehensiveReport carrying a single recommended action.
type Aggregator struct {
	cfg    config.VerifyConfig
	logger *slog.Logger
}

// NewAggregator creates a verification aggregator.
func NewAggregator(cfg config.VerifyConfig, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{cfg: cfg, logger: logger}
}

// Aggregate scores one verification attempt. When external is nil the static
// score counts for everything.
func (a *Aggregator) Aggregate(sessionID string, static *core.VerificationReport, external *float64) *core.ComprehensiveReport {
	report := &core.ComprehensiveReport{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		ProblemID:     static.ProblemID,
		SuggestionID:  static.SuggestionID,
		Static:        *static,
		ExternalScore: external,
		NewIssueCount: len(static.NewIssues),
		CreatedAt:     time.Now().UTC(),
	}

	report.StaticScore = a.staticScore(static)
	report.CombinedScore = a.blend(report.StaticScore, external)
	report.Status = a.classify(static, report.CombinedScore)
	report.Action = a.decide(report)

	a.logger.Info("verification aggregated",
		"problem_id", static.ProblemID,
		"static_score", report.StaticScore,
		"combined_score", report.CombinedScore,
		"status", report.Status,
		"action", report.Action,
	)
	return report
}

func (a *Aggregator) staticScore(static *core.VerificationReport) float64 {
	if static.LowConfidence {
		return lowConfidenceScore
	}
	score := static.SuccessRate - newIssuePenalty*float64(len(static.NewIssues))
	if score < 0 {
		return 0
	}
	return score
}

func (a *Aggregator) blend(staticScore float64, external *float64) float64 {
	if external == nil {
		return staticScore
	}
	den := a.cfg.StaticWeight + a.cfg.ExternalWeight
	if den == 0 {
		return staticScore
	}
	return (a.cfg.StaticWeight*staticScore + a.cfg.ExternalWeight**external) / den
}

// classify maps the attempt onto one of the five terminal statuses. A fix
// that introduces more issues than it removes is regressed regardless of
// score; an unreliable re-analysis is uncertain regardless of score.
func (a *Aggregator) classify(static *core.VerificationReport, score float64) core.FixStatus {
	if static.LowConfidence {
		return core.FixUncertain
	}
	if len(static.NewIssues) > len(static.Fixed) {
		return core.FixRegressed
	}
	switch {
	case score >= a.cfg.SuccessThreshold:
		return core.FixSuccess
	case score >= a.cfg.PartialThreshold:
		return core.FixPartialSuccess
	case score >= a.cfg.UncertainThreshold:
		return core.FixUncertain
	case score >= a.cfg.FailedThreshold:
		return core.FixFailed
	default:
		return core.FixRegressed
	}
}

// decide is the fixed decision table. Regressions and excessive new issues
// reject regardless of score; otherwise the status maps directly onto an
// action.
func (a *Aggregator) decide(report *core.ComprehensiveReport) core.RecommendedAction {
	if report.Status == core.FixRegressed {
		return core.ActionReject
	}
	if report.NewIssueCount > a.cfg.MaxNewIssues {
		return core.ActionReject
	}
	switch report.Status {
	case core.FixSuccess:
		return core.ActionAccept
	case core.FixPartialSuccess:
		return core.ActionImprove
	case core.FixUncertain:
		return core.ActionManualReview
	default:
		return core.ActionReject
	}
}
