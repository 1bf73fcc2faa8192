package policy

import (
	"fmt"

	"github.com/castellan-ai/castellan/internal/plan"
)

// Guardian walks a fixed-order rule chain and returns the first negative
// finding as the step's decision. Rule order is total and deterministic;
// wiring the chain happens at construction (see rules.Default).
type Guardian struct {
	rules []Rule
}

// NewGuardian creates a guardian with the given ordered rule chain.
func NewGuardian(rules []Rule) *Guardian {
	return &Guardian{rules: rules}
}

// Evaluate produces the decision for one step. Pure: identical
// (step, meta, state) triples always yield identical decisions.
//
// Malformed steps are denied before any rule runs: fail-closed, never
// fail-open. When confirmations are disabled in the state, a
// confirm_required finding degrades to deny.
func (g *Guardian) Evaluate(step plan.Step, meta RiskMeta, state State) Decision {
	risk := RiskFor(step, meta, state)

	if err := step.Validate(); err != nil {
		return Decision{
			StepID:      step.StepID,
			Verdict:     VerdictDeny,
			RiskLevel:   risk,
			Rationale:   fmt.Sprintf("step failed validation: %v", err),
			PolicyFlags: []string{"validation"},
		}
	}

	for _, r := range g.rules {
		f := r.Evaluate(step, meta, risk, state)
		if f == nil {
			continue
		}

		verdict := f.Verdict
		rationale := f.Rationale
		if verdict == VerdictConfirmRequired && !state.ConfirmationsEnabled {
			verdict = VerdictDeny
			rationale += " (confirmations disabled; degraded to deny)"
		}

		flags := append([]string{r.Name()}, f.Flags...)
		return Decision{
			StepID:      step.StepID,
			Verdict:     verdict,
			RiskLevel:   risk,
			Rationale:   rationale,
			PolicyFlags: flags,
		}
	}

	return Decision{
		StepID:    step.StepID,
		Verdict:   VerdictAllow,
		RiskLevel: risk,
		Rationale: "all policy rules passed",
	}
}
