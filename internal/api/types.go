package api

import (
	"time"

	"github.com/castellan-ai/castellan/internal/audit"
	"github.com/castellan-ai/castellan/internal/policy"
)

// SubmitRequest is the JSON body for POST /v1/requests.
type SubmitRequest struct {
	Text string `json:"text"`
	// Intent overrides classification when the caller already knows it.
	Intent string `json:"intent,omitempty"`
	// CorrelationID ties a confirmation re-submission to the original
	// cycle. Empty means a fresh correlation.
	CorrelationID string `json:"correlation_id,omitempty"`
	// ConfirmedSteps echoes the confirmation tokens from a prior
	// response; each token approves exactly one held step.
	ConfirmedSteps []string `json:"confirmed_steps,omitempty"`
}

// AuditTrailResponse is the body for GET /v1/audit/{correlation_id}.
type AuditTrailResponse struct {
	CorrelationID string        `json:"correlation_id"`
	Events        []audit.Event `json:"events"`
	ChainVerified bool          `json:"chain_verified"`
	ChainError    string        `json:"chain_error,omitempty"`
}

// ExpireRequest is the JSON body for POST /v1/admin/retention/expire.
type ExpireRequest struct {
	Cutoff time.Time `json:"cutoff"`
}

// ExpireResponse reports how many events a retention pass removed.
type ExpireResponse struct {
	Removed int `json:"removed"`
}

// PolicyRuleDef is one operator-authored CEL rule in a reload request.
type PolicyRuleDef struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
	// Verdict the rule fires: "deny" (default) or "confirm_required".
	Verdict   string `json:"verdict,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

// PolicyReloadRequest is the JSON body for POST /v1/admin/policy/reload.
// It describes a complete replacement policy state; there is no partial
// update.
type PolicyReloadRequest struct {
	Version              string                      `json:"version"`
	AllowedTools         map[string]policy.ToolGrant `json:"allowed_tools"`
	ConfirmationsEnabled bool                        `json:"confirmations_enabled"`
	MediumAmount         float64                     `json:"medium_amount"`
	HighAmount           float64                     `json:"high_amount"`
	MaxPositionSize      float64                     `json:"max_position_size"`
	ArgumentSchemas      map[string]any              `json:"argument_schemas,omitempty"`
	CustomRules          []PolicyRuleDef             `json:"custom_rules,omitempty"`
}

// PolicyReloadResponse reports the state that is now active.
type PolicyReloadResponse struct {
	Version     string `json:"version"`
	CustomRules int    `json:"custom_rules"`
}

// ErrorResp is the uniform error body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
