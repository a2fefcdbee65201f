package ai

import (
	"context"
	"encoding/json"
	"strings"

	"estatedesk/server/internal/models"
)

// Result is what a provider extracted from the model output. A nil
// CalculatedValuation means no usable number was produced.
type Result struct {
	CalculatedValuation *float64
	Justification       string
}

// Provider turns a valuation brief into an estimate and a narrative.
// Implementations must tolerate malformed model output and report it as an
// empty Result rather than an error.
type Provider interface {
	ComputeValuation(ctx context.Context, prompt string) (Result, error)
}

// ParseOutput reads a model answer: a JSON object with calculatedValuation and
// justification, possibly wrapped in a code fence. Anything else is kept as a
// raw justification.
func ParseOutput(text string) Result {
	trimmed := stripFence(strings.TrimSpace(text))
	if trimmed == "" {
		return Result{}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}")
		if start < 0 || end <= start || json.Unmarshal([]byte(trimmed[start:end+1]), &payload) != nil {
			return Result{Justification: strings.TrimSpace(text)}
		}
	}
	return resultFromPayload(payload)
}

var valuationKeys = []string{"calculatedValuation", "calculated_valuation", "valuation", "estimate"}

func resultFromPayload(payload map[string]interface{}) Result {
	var result Result
	for _, key := range valuationKeys {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		if n, ok := models.ToAmount(v); ok {
			result.CalculatedValuation = &n
			break
		}
	}
	if s, ok := payload["justification"].(string); ok {
		result.Justification = strings.TrimSpace(s)
	}
	return result
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
