// Package plan defines the data model flowing through one orchestration
// cycle: the ingressed Request, the immutable Plan of ordered Steps, and the
// ToolCall shape handed to connectors after a policy allow.
package plan

import (
	"errors"
	"fmt"
	"time"
)

// Intent is the classification assigned upstream of the kernel. The kernel
// treats it as an opaque enumerated input and never re-derives it from text.
type Intent string

const (
	IntentFinanceReport  Intent = "finance_report_request"
	IntentInvestingTrade Intent = "investing_trade_request"
	IntentMoneyMove      Intent = "money_move"
	IntentGeneric        Intent = "generic_request"
)

// Kind is the step category. Draft and report steps may only produce
// proposal artifacts; tool_call steps request an external effect.
type Kind string

const (
	KindToolCall Kind = "tool_call"
	KindReport   Kind = "report"
	KindDraft    Kind = "draft"
)

// RiskLevel drives confirmation and denial thresholds.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var (
	ErrEmptyRequest = errors.New("request text is empty")
	ErrMissingTool  = errors.New("tool_call step has no tool call")
	ErrUnknownKind  = errors.New("unknown step kind")
)

// Request is created at ingress and owned by the kernel for the duration of
// one orchestration cycle. Immutable.
type Request struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	RawText       string    `json:"raw_text"`
	Intent        Intent    `json:"classified_intent"`
	SubmittedAt   time.Time `json:"submitted_at"`

	// ConfirmedSteps holds the confirmation tokens echoed back from a
	// prior cycle's held steps. A token approves only the step whose
	// fingerprint it names, never the rest of the plan.
	ConfirmedSteps []string `json:"confirmed_steps,omitempty"`
}

// StepConfirmed reports whether the caller approved the step with the
// given fingerprint.
func (r Request) StepConfirmed(fingerprint string) bool {
	if fingerprint == "" {
		return false
	}
	for _, fp := range r.ConfirmedSteps {
		if fp == fingerprint {
			return true
		}
	}
	return false
}

// Validate checks the request shape. An empty intent degrades to generic at
// planning time, so only the text is mandatory here.
func (r Request) Validate() error {
	if r.RawText == "" {
		return ErrEmptyRequest
	}
	return nil
}

// ToolCall represents a requested external effect. Unknown tool names are
// rejected by policy, never silently routed.
type ToolCall struct {
	ToolName        string         `json:"tool_name"`
	Arguments       map[string]any `json:"arguments"`
	TargetConnector string         `json:"target_connector"`
}

// Step is the unit gated by the policy guardian. DependsOn lists step IDs
// whose output this step requires; a denial upstream blocks evaluation.
type Step struct {
	StepID    string         `json:"step_id"`
	Kind      Kind           `json:"kind"`
	RiskLevel RiskLevel      `json:"risk_level"`
	ToolCall  *ToolCall      `json:"tool_call,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty"`
}

// Validate checks structural soundness of a step. Policy treats a failure
// here as grounds for a fail-closed deny.
func (s Step) Validate() error {
	switch s.Kind {
	case KindToolCall:
		if s.ToolCall == nil || s.ToolCall.ToolName == "" {
			return ErrMissingTool
		}
	case KindReport, KindDraft:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	return nil
}

// Describe returns a short human-readable step label for audit summaries.
func (s Step) Describe() string {
	if s.Kind == KindToolCall && s.ToolCall != nil {
		return fmt.Sprintf("%s %s via %s", s.Kind, s.ToolCall.ToolName, s.ToolCall.TargetConnector)
	}
	return string(s.Kind)
}

// Plan is built once per request and is immutable after creation;
// re-planning creates a new Plan.
type Plan struct {
	PlanID        string    `json:"plan_id"`
	CorrelationID string    `json:"correlation_id"`
	Summary       string    `json:"plan_summary"`
	Steps         []Step    `json:"steps"`
	CreatedAt     time.Time `json:"created_at"`
}
