package policy

import "github.com/castellan-ai/castellan/internal/plan"

// RiskFor computes a step's risk tier from its kind, payload magnitude, and
// the allow-set grant. Report and draft steps start low, tool calls start
// medium; monetary amounts and irreversibility escalate.
func RiskFor(step plan.Step, meta RiskMeta, state State) plan.RiskLevel {
	risk := plan.RiskLow
	if step.Kind == plan.KindToolCall {
		risk = plan.RiskMedium
	}

	if meta.Amount > 0 && state.MediumAmount > 0 && meta.Amount >= state.MediumAmount {
		risk = maxRisk(risk, plan.RiskMedium)
	}
	if meta.Amount > 0 && state.HighAmount > 0 && meta.Amount >= state.HighAmount {
		risk = plan.RiskHigh
	}

	if meta.Irreversible {
		risk = plan.RiskHigh
	}
	if step.Kind == plan.KindToolCall && step.ToolCall != nil {
		if g, ok := state.Grant(step.ToolCall.ToolName); ok {
			if g.Irreversible || g.Tier == TierDestructive {
				risk = plan.RiskHigh
			}
		}
	}
	return risk
}

// Permission tiers for allow-set grants.
const (
	TierRead        = "read"
	TierWrite       = "write"
	TierDestructive = "destructive"
)

var riskRank = map[plan.RiskLevel]int{
	plan.RiskLow:    0,
	plan.RiskMedium: 1,
	plan.RiskHigh:   2,
}

func maxRisk(a, b plan.RiskLevel) plan.RiskLevel {
	if riskRank[b] > riskRank[a] {
		return b
	}
	return a
}
