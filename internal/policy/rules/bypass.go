package rules

import (
	"fmt"
	"strings"

	"github.com/castellan-ai/castellan/internal/plan"
	"github.com/castellan-ai/castellan/internal/policy"
)

// Markers of a step trying to reach the enforcement machinery itself.
var bypassMarkers = []string{
	"policy_state",
	"allow_set",
	"allowed_tools",
	"audit_log",
	"audit_events",
	"disable policy",
	"skip audit",
	"override guardian",
	"bypass policy",
}

// Bypass denies steps whose structured fields reference the policy or audit
// internals, a self-referential attempt to talk the guardian into loosening
// its own gate.
type Bypass struct{}

func (Bypass) Name() string { return "bypass_attempt" }

func (Bypass) Evaluate(step plan.Step, _ policy.RiskMeta, _ plan.RiskLevel, _ policy.State) *policy.Finding {
	for _, field := range flatten(step) {
		lowered := strings.ToLower(field)
		for _, marker := range bypassMarkers {
			if strings.Contains(lowered, marker) {
				return &policy.Finding{
					Verdict:   policy.VerdictDeny,
					Rationale: fmt.Sprintf("step references enforcement internals (%q)", marker),
					Flags:     []string{"self_referential"},
				}
			}
		}
	}
	return nil
}
