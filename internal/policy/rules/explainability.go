package rules

import (
	"github.com/castellan-ai/castellan/internal/plan"
	"github.com/castellan-ai/castellan/internal/policy"
)

// Explainability denies medium-and-above tool calls that carry no
// operator-readable reason. Every externally visible effect must be able to
// cite why it was requested; a step that cannot is unauditable and is
// rejected rather than routed.
type Explainability struct{}

func (Explainability) Name() string { return "explainability" }

func (Explainability) Evaluate(step plan.Step, _ policy.RiskMeta, risk plan.RiskLevel, _ policy.State) *policy.Finding {
	if step.Kind != plan.KindToolCall || risk == plan.RiskLow {
		return nil
	}

	if reasonOf(step) != "" {
		return nil
	}

	return &policy.Finding{
		Verdict:   policy.VerdictDeny,
		Rationale: "step carries no reason field; effects must be explainable",
		Flags:     []string{"missing_reason"},
	}
}

func reasonOf(step plan.Step) string {
	if step.ToolCall != nil {
		if r, ok := step.ToolCall.Arguments["reason"].(string); ok && r != "" {
			return r
		}
	}
	if r, ok := step.Payload["reason"].(string); ok && r != "" {
		return r
	}
	return ""
}
