// Package policy implements the decision engine gating every step of an
// orchestration cycle. Evaluation is a pure function of the step, its risk
// metadata, and an explicit versioned State value: no I/O, no hidden
// process-wide configuration, so identical inputs always yield identical
// decisions.
package policy

import "github.com/castellan-ai/castellan/internal/plan"

// Verdict is the enforcement decision for a single step.
type Verdict string

const (
	VerdictAllow           Verdict = "allow"
	VerdictDeny            Verdict = "deny"
	VerdictConfirmRequired Verdict = "confirm_required"
)

// Decision is the verdict for one step, produced synchronously before the
// step may be routed. DecisionID is assigned by the kernel's ID provider so
// that Evaluate stays a pure function.
type Decision struct {
	DecisionID  string         `json:"decision_id"`
	StepID      string         `json:"step_id"`
	Verdict     Verdict        `json:"verdict"`
	RiskLevel   plan.RiskLevel `json:"risk_level"`
	Rationale   string         `json:"rationale"`
	PolicyFlags []string       `json:"policy_flags,omitempty"`
}

// RiskMeta carries per-step risk context supplied by the planner.
type RiskMeta struct {
	// Irreversible marks steps whose external effect cannot be undone.
	Irreversible bool
	// Amount is the monetary magnitude of the step, zero if none.
	Amount float64
	// UserConfirmed is set when the caller has already confirmed this
	// exact step in a prior cycle.
	UserConfirmed bool
}

// ToolGrant describes the permission tier of a tool in the allow-set.
type ToolGrant struct {
	// Tier is "read", "write", or "destructive".
	Tier string `json:"tier"`
	// Irreversible marks tools whose effects cannot be undone.
	Irreversible bool `json:"irreversible"`
	// RequiresConfirm forces confirm_required even below risk thresholds.
	RequiresConfirm bool `json:"requires_confirm"`
}

// State is the versioned rule configuration passed into every evaluation.
// It is a value, not a singleton: hot reload swaps the whole State, and
// tests construct exactly the configuration they need.
type State struct {
	Version string `json:"version"`

	// AllowedTools is the explicit allow-set. Absence means deny.
	AllowedTools map[string]ToolGrant `json:"allowed_tools"`

	// ConfirmationsEnabled controls whether confirm_required is an active
	// verdict. When false it degrades to deny (the fail-safe choice).
	ConfirmationsEnabled bool `json:"confirmations_enabled"`

	// Risk escalation thresholds on monetary amount.
	MediumAmount float64 `json:"medium_amount"`
	HighAmount   float64 `json:"high_amount"`

	// MaxPositionSize caps a single trade's notional before a
	// confirmation is demanded. Zero disables the cap.
	MaxPositionSize float64 `json:"max_position_size"`

	// ArgumentSchemas maps tool names to JSON Schemas validated against
	// tool-call arguments.
	ArgumentSchemas map[string]any `json:"argument_schemas,omitempty"`

	// CustomRules are operator-authored CEL rules evaluated after the
	// built-in chain.
	CustomRules []CustomRule `json:"-"`
}

// Grant looks up the allow-set entry for a tool.
func (s State) Grant(tool string) (ToolGrant, bool) {
	g, ok := s.AllowedTools[tool]
	return g, ok
}

// Finding is a negative result from a single rule. A nil Finding means the
// rule passed.
type Finding struct {
	Verdict   Verdict
	Rationale string
	Flags     []string
}

// Rule is one link in the guardian's fixed-order evaluation chain.
// Implementations must be pure: no I/O, no retained state between calls.
type Rule interface {
	// Name returns the rule's stable identifier, recorded in policy flags.
	Name() string

	// Evaluate inspects the step and returns a Finding if the rule fires
	// a negative verdict, or nil if the step passes this rule.
	Evaluate(step plan.Step, meta RiskMeta, risk plan.RiskLevel, state State) *Finding
}
