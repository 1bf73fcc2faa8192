package rules

import (
	"fmt"

	"github.com/castellan-ai/castellan/internal/plan"
	"github.com/castellan-ai/castellan/internal/policy"
)

// Custom runs the operator-authored CEL rules carried in the policy state,
// in declaration order. A rule that errors at eval time fails closed: the
// step is denied rather than the rule being skipped.
type Custom struct{}

func (Custom) Name() string { return "custom_rules" }

func (Custom) Evaluate(step plan.Step, meta policy.RiskMeta, risk plan.RiskLevel, state policy.State) *policy.Finding {
	if len(state.CustomRules) == 0 {
		return nil
	}

	tool := ""
	args := map[string]any{}
	if step.ToolCall != nil {
		tool = step.ToolCall.ToolName
		if step.ToolCall.Arguments != nil {
			args = step.ToolCall.Arguments
		}
	}
	input := map[string]any{
		"kind":         string(step.Kind),
		"tool":         tool,
		"risk":         string(risk),
		"amount":       meta.Amount,
		"irreversible": meta.Irreversible,
		"args":         args,
	}

	for _, cr := range state.CustomRules {
		matched, err := cr.Match(input)
		if err != nil {
			return &policy.Finding{
				Verdict:   policy.VerdictDeny,
				Rationale: fmt.Sprintf("custom rule %q failed to evaluate: %v", cr.Name, err),
				Flags:     []string{"custom:" + cr.Name},
			}
		}
		if matched {
			return &policy.Finding{
				Verdict:   cr.Verdict,
				Rationale: cr.Rationale,
				Flags:     []string{"custom:" + cr.Name},
			}
		}
	}
	return nil
}
