package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// suggestionPayload is the JSON shape the model is asked to return for a
// fix proposal.
type suggestionPayload struct {
	OriginalCode string  `json:"original_code"`
	ProposedCode string  `json:"proposed_code"`
	Explanation  string  `json:"explanation"`
	SideEffects  string  `json:"side_effects"`
	Confidence   float64 `json:"confidence"`
}

// assessmentPayload is the JSON shape for a qualitative fix assessment.
type assessmentPayload struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// parseSuggestionResponse extracts a suggestion payload from raw model
// output, tolerating code fences and surrounding prose.
func parseSuggestionResponse(raw string) (*suggestionPayload, error) {
	jsonText, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var payload suggestionPayload
	if err := json.Unmarshal([]byte(jsonText), &payload); err != nil {
		return nil, fmt.Errorf("malformed suggestion JSON: %w", err)
	}
	payload.Confidence = clamp01(payload.Confidence)
	return &payload, nil
}

// parseAssessmentResponse extracts an assessment payload from raw model output.
func parseAssessmentResponse(raw string) (*assessmentPayload, error) {
	jsonText, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var payload assessmentPayload
	if err := json.Unmarshal([]byte(jsonText), &payload); err != nil {
		return nil, fmt.Errorf("malformed assessment JSON: %w", err)
	}
	payload.Score = clamp01(payload.Score)
	return &payload, nil
}

// extractJSON returns the outermost JSON object in the text. Models wrap
// their output in ```json fences or lead with prose often enough that a
// plain Unmarshal of the whole response is not reliable.
func extractJSON(raw string) (string, error) {
	s := stripCodeFence(strings.TrimSpace(raw))
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object found in model output")
	}
	return s[start : end+1], nil
}

// stripCodeFence removes a wrapping ``` fence (with optional language tag)
// that some models add around their output.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	idx := strings.Index(s, "\n")
	if idx < 0 {
		return s
	}
	inner := s[idx+1:]
	if lastFence := strings.LastIndex(inner, "```"); lastFence >= 0 {
		inner = inner[:lastFence]
	}
	return strings.TrimSpace(inner)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
