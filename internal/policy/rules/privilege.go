package rules

import (
	"fmt"

	"github.com/castellan-ai/castellan/internal/plan"
	"github.com/castellan-ai/castellan/internal/policy"
)

// Privilege enforces least privilege over the tool allow-set. Absence from
// the allow-set is deny, never allow. For granted tools it checks the
// permission tier against the step's risk. The max-position-size cap applies
// to any step carrying a monetary magnitude, drafts included, so an oversize
// trade ticket is held for confirmation before any artifact is produced.
type Privilege struct{}

func (Privilege) Name() string { return "least_privilege" }

func (Privilege) Evaluate(step plan.Step, meta policy.RiskMeta, risk plan.RiskLevel, state policy.State) *policy.Finding {
	if step.Kind == plan.KindToolCall && step.ToolCall != nil {
		name := step.ToolCall.ToolName
		grant, ok := state.Grant(name)
		if !ok {
			return &policy.Finding{
				Verdict:   policy.VerdictDeny,
				Rationale: fmt.Sprintf("tool %q is not in the policy allow-set", name),
				Flags:     []string{"unknown_tool"},
			}
		}

		// A read-tier grant cannot carry a high-risk effect.
		if grant.Tier == policy.TierRead && risk == plan.RiskHigh {
			return &policy.Finding{
				Verdict:   policy.VerdictDeny,
				Rationale: fmt.Sprintf("tool %q holds a read-tier grant but the step is high risk", name),
				Flags:     []string{"tier_mismatch"},
			}
		}
	}

	if state.MaxPositionSize > 0 && meta.Amount > state.MaxPositionSize && !meta.UserConfirmed {
		return &policy.Finding{
			Verdict: policy.VerdictConfirmRequired,
			Rationale: fmt.Sprintf("amount %.2f exceeds the max-position-size limit %.2f",
				meta.Amount, state.MaxPositionSize),
			Flags: []string{"position_limit"},
		}
	}

	return nil
}
