package kernel

import (
	"github.com/castellan-ai/castellan/internal/plan"
	"github.com/castellan-ai/castellan/internal/policy"
)

// StepOutput is one artifact produced by an allowed step.
type StepOutput struct {
	StepID  string         `json:"step_id"`
	Kind    plan.Kind      `json:"kind"`
	Summary string         `json:"summary"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// Confirmation asks the caller to approve one held step. The caller
// re-submits the request echoing Token in confirmed_steps; the token
// approves only this step, never the rest of the plan.
type Confirmation struct {
	StepID string `json:"step_id"`
	Token  string `json:"token"`
	Prompt string `json:"prompt"`
}

// Response is the outcome of one orchestration cycle. Decisions cover
// every planned step, including steps skipped because a dependency was
// blocked.
type Response struct {
	RequestID     string            `json:"request_id"`
	CorrelationID string            `json:"correlation_id"`
	PlanID        string            `json:"plan_id"`
	PlanSummary   string            `json:"plan_summary"`
	Decisions     []policy.Decision `json:"decisions"`
	Outputs       []StepOutput      `json:"outputs,omitempty"`
	Confirmations []Confirmation    `json:"confirmations,omitempty"`
	AuditEventIDs []string          `json:"audit_event_ids"`
}
