// Package audit implements the append-only log of record for orchestration
// decisions. Events are redacted before storage, sequenced per correlation
// ID, and linked into a tamper-evident hash chain. The Log interface
// exposes only append and ordered read; retention expiry lives on a
// separate, explicitly privileged interface never reachable from request
// handling.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/castellan-ai/castellan/internal/redact"
)

// ActionType classifies what an event records.
const (
	ActionPlanCreated     = "plan_created"
	ActionToolCall        = "tool_call"
	ActionPolicyDecision  = "policy_decision"
	ActionReportGenerated = "report_generated"
	ActionDraftCreated    = "draft_created"
	ActionError           = "error"
)

var (
	// ErrAppend marks a failed audit write. Fatal for the current
	// request: an action without a record must not be considered done.
	ErrAppend = errors.New("audit append failed")

	// ErrDuplicateEvent is returned when an event ID is reused.
	ErrDuplicateEvent = errors.New("duplicate audit event id")

	// ErrInvalidEvent is returned for events missing mandatory IDs.
	ErrInvalidEvent = errors.New("audit event missing mandatory fields")
)

// Event is one persisted audit record. InputsSummary and OutputsSummary are
// redacted by the log before storage, by construction; the log never holds
// raw secret-shaped text.
type Event struct {
	EventID        string    `json:"event_id"`
	CorrelationID  string    `json:"correlation_id"`
	Component      string    `json:"component"`
	ActionType     string    `json:"action_type"`
	RiskLevel      string    `json:"risk_level"`
	InputsSummary  string    `json:"inputs_summary"`
	OutputsSummary string    `json:"outputs_summary"`
	PolicyDecision string    `json:"policy_decision"`
	Rationale      string    `json:"rationale"`
	Timestamp      time.Time `json:"timestamp"`

	// Seq is the per-correlation sequence number assigned on append.
	Seq uint64 `json:"seq"`
	// PrevHash/Hash link the per-correlation tamper-evidence chain.
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// Validate checks the mandatory identifier fields.
func (e Event) Validate() error {
	if e.EventID == "" || e.CorrelationID == "" {
		return ErrInvalidEvent
	}
	return nil
}

// Log is the append-only store of record. Implementations must keep
// per-correlation append order stable under concurrent appends from
// distinct correlation IDs, and must apply each append atomically.
type Log interface {
	// Append redacts, sequences, chains, and stores the event, returning
	// its event ID. Reusing an event ID fails with ErrDuplicateEvent.
	Append(ctx context.Context, e Event) (string, error)

	// Read returns the events for one correlation ID in append order.
	// This is the authoritative replay trail for one request.
	Read(ctx context.Context, correlationID string) ([]Event, error)
}

// Retention is the sole sanctioned mutation path besides Append. It is an
// administrative operation wired only into privileged surfaces.
type Retention interface {
	// ExpireBefore removes events older than cutoff, returning the count.
	ExpireBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// redacted returns a copy of the event with summaries scrubbed.
func redacted(e Event) Event {
	e.InputsSummary = redact.Redact(e.InputsSummary)
	e.OutputsSummary = redact.Redact(e.OutputsSummary)
	return e
}
