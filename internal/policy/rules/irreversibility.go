package rules

import (
	"github.com/castellan-ai/castellan/internal/plan"
	"github.com/castellan-ai/castellan/internal/policy"
)

// Irreversibility demands explicit confirmation for any high-risk step
// whose effect cannot be undone. High risk plus irreversible never yields a
// bare allow: the outcome is confirm_required, or deny when confirmations
// are disabled (the guardian handles that degradation).
//
// Tools absent from the allow-set are left to the Privilege rule, which
// denies them outright; an unknown tool must not earn a confirmation path.
type Irreversibility struct{}

func (Irreversibility) Name() string { return "irreversibility" }

func (Irreversibility) Evaluate(step plan.Step, meta policy.RiskMeta, risk plan.RiskLevel, state policy.State) *policy.Finding {
	if risk != plan.RiskHigh {
		return nil
	}

	irreversible := meta.Irreversible
	requiresConfirm := false
	if step.Kind == plan.KindToolCall && step.ToolCall != nil {
		g, ok := state.Grant(step.ToolCall.ToolName)
		if !ok {
			return nil // privilege rule denies unknown tools
		}
		if g.Irreversible || g.Tier == policy.TierDestructive {
			irreversible = true
		}
		requiresConfirm = g.RequiresConfirm
	}

	if !irreversible && !requiresConfirm {
		return nil
	}
	if meta.UserConfirmed {
		return nil
	}

	return &policy.Finding{
		Verdict:   policy.VerdictConfirmRequired,
		Rationale: "irreversible high-risk action requires explicit confirmation",
		Flags:     []string{"irreversible"},
	}
}
