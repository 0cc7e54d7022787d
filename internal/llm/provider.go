// Package llm implements the suggestion provider on top of a goframe
// language model. It renders embedded prompt templates, calls the model with
// a hard timeout, and parses the JSON payloads out of the raw output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sevigo/goframe/llms"

	"github.com/sevigo/code-mender/internal/core"
)

const defaultGenerateTimeout = 5 * time.Minute

// Provider produces fix suggestions and qualitative fix assessments from a
// language model. It implements core.SuggestionProvider.
type Provider struct {
	model         llms.Model
	prompts       *PromptManager
	provider      ModelProvider
	minConfidence float64
	timeout       time.Duration
	logger        *slog.Logger
}

// NewProvider creates a provider. Suggestions below minConfidence surface as
// core.ErrNoSuggestion so the workflow can route the problem to manual review.
func NewProvider(model llms.Model, prompts *PromptManager, providerName string, minConfidence float64, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		model:         model,
		prompts:       prompts,
		provider:      ModelProvider(providerName),
		minConfidence: minConfidence,
		timeout:       defaultGenerateTimeout,
		logger:        logger,
	}
}

type suggestionPromptData struct {
	File               string
	Line               int
	Severity           core.Severity
	Category           string
	Description        string
	Snippet            string
	FileContent        string
	FailedSuggestions  []core.FixSuggestion
	CustomInstructions []string
}

// Propose asks the model for a minimal fix. Empty or low-confidence results
// return core.ErrNoSuggestion; transport failures return ordinary errors.
func (p *Provider) Propose(ctx context.Context, req *core.SuggestionRequest) (*core.FixSuggestion, error) {
	prompt, err := p.prompts.Render(FixSuggestionPrompt, p.provider, suggestionPromptData{
		File:               req.Problem.File,
		Line:               req.Problem.Line,
		Severity:           req.Problem.Severity,
		Category:           req.Problem.Category,
		Description:        req.Problem.Description,
		Snippet:            req.Problem.Snippet,
		FileContent:        req.FileContent,
		FailedSuggestions:  req.FailedSuggestions,
		CustomInstructions: req.CustomInstructions,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering suggestion prompt: %w", err)
	}

	response, err := p.generateWithTimeout(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("suggestion generation failed: %w", err)
	}

	payload, err := parseSuggestionResponse(response)
	if err != nil {
		p.logger.Warn("unparsable suggestion response", "problem_id", req.Problem.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", core.ErrNoSuggestion, err)
	}
	if payload.ProposedCode == "" || payload.OriginalCode == "" {
		return nil, fmt.Errorf("%w: model returned an empty patch", core.ErrNoSuggestion)
	}
	if payload.Confidence < p.minConfidence {
		p.logger.Info("suggestion below confidence floor",
			"problem_id", req.Problem.ID,
			"confidence", payload.Confidence,
			"floor", p.minConfidence,
		)
		return nil, fmt.Errorf("%w: confidence %.2f below floor %.2f",
			core.ErrNoSuggestion, payload.Confidence, p.minConfidence)
	}

	return &core.FixSuggestion{
		ID:           uuid.NewString(),
		ProblemID:    req.Problem.ID,
		OriginalCode: payload.OriginalCode,
		ProposedCode: payload.ProposedCode,
		Explanation:  payload.Explanation,
		SideEffects:  payload.SideEffects,
		Confidence:   payload.Confidence,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

type assessmentPromptData struct {
	File            string
	Line            int
	Severity        core.Severity
	Description     string
	OriginalCode    string
	ProposedCode    string
	ModifiedContent string
}

// AssessFix returns the model's 0.0-1.0 judgement of an applied fix, or nil
// when no usable signal came back. Only transport failures are errors; an
// unparsable response degrades to "no signal".
func (p *Provider) AssessFix(ctx context.Context, problem *core.Problem, suggestion *core.FixSuggestion, modifiedContent string) (*float64, error) {
	prompt, err := p.prompts.Render(FixAssessmentPrompt, p.provider, assessmentPromptData{
		File:            problem.File,
		Line:            problem.Line,
		Severity:        problem.Severity,
		Description:     problem.Description,
		OriginalCode:    suggestion.OriginalCode,
		ProposedCode:    suggestion.ProposedCode,
		ModifiedContent: modifiedContent,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering assessment prompt: %w", err)
	}

	response, err := p.generateWithTimeout(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("assessment generation failed: %w", err)
	}

	payload, err := parseAssessmentResponse(response)
	if err != nil {
		p.logger.Warn("unparsable assessment response, dropping external signal",
			"problem_id", problem.ID, "error", err)
		return nil, nil
	}
	return &payload.Score, nil
}

// generateWithTimeout wraps model generation with a hard timeout so a hung
// client can never stall the workflow.
func (p *Provider) generateWithTimeout(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		resp string
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		resp, err := p.model.Call(ctx, prompt)
		select {
		case resultCh <- result{resp, err}:
		case <-ctx.Done():
			// Do not block the goroutine if parent timed out/cancelled
		}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return "", fmt.Errorf("model call timed out after %s", p.timeout)
		}
		return res.resp, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
