// Package kernel implements the orchestration core: every request flows
// request -> plan -> per-step policy decision -> route, with an audit event
// appended for each transition. No step reaches a connector or program
// without a recorded allow, and a failed audit append aborts the request.
package kernel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/castellan-ai/castellan/internal/audit"
	"github.com/castellan-ai/castellan/internal/connector"
	"github.com/castellan-ai/castellan/internal/ids"
	"github.com/castellan-ai/castellan/internal/memory"
	"github.com/castellan-ai/castellan/internal/plan"
	"github.com/castellan-ai/castellan/internal/policy"
	"github.com/castellan-ai/castellan/internal/programs"
)

const defaultContextLimit = 20

// Config wires the kernel's collaborators. Guardian, Log, Librarian, and
// IDs are mandatory; the rest default to inert implementations.
type Config struct {
	Guardian   *policy.Guardian
	State      policy.State
	Librarian  memory.Librarian
	Log        audit.Log
	Connectors *connector.Registry
	Programs   *programs.Registry
	IDs        *ids.Provider
	Logger     *zap.Logger

	// ContextLimit caps the memory items retrieved per request.
	ContextLimit int
}

// Kernel owns the orchestration cycle. One instance serves concurrent
// requests; the mutable policy state is swapped atomically under the lock.
type Kernel struct {
	guardian   *policy.Guardian
	librarian  memory.Librarian
	log        audit.Log
	connectors *connector.Registry
	programs   *programs.Registry
	ids        *ids.Provider
	logger     *zap.Logger
	limit      int

	mu    sync.RWMutex
	state policy.State
}

// New builds a kernel from cfg.
func New(cfg Config) *Kernel {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Connectors == nil {
		cfg.Connectors = connector.NewRegistry()
	}
	if cfg.Programs == nil {
		cfg.Programs = programs.NewRegistry()
	}
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = defaultContextLimit
	}
	return &Kernel{
		guardian:   cfg.Guardian,
		librarian:  cfg.Librarian,
		log:        cfg.Log,
		connectors: cfg.Connectors,
		programs:   cfg.Programs,
		ids:        cfg.IDs,
		logger:     cfg.Logger,
		limit:      cfg.ContextLimit,
		state:      cfg.State,
	}
}

// SetPolicyState swaps the policy configuration. In-flight requests keep
// the snapshot they started with.
func (k *Kernel) SetPolicyState(state policy.State) {
	k.mu.Lock()
	k.state = state
	k.mu.Unlock()
}

// PolicyState returns the current policy configuration snapshot.
func (k *Kernel) PolicyState() policy.State {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state
}

// HandleRequest runs one full orchestration cycle. The returned error is
// non-nil only for request-fatal conditions: invalid input, a failed audit
// append, context cancellation, or an internal panic. Policy denials and
// connector failures are reported inside the Response, not as errors.
func (k *Kernel) HandleRequest(ctx context.Context, req plan.Request) (resp Response, err error) {
	if req.ID == "" {
		req.ID = k.ids.NewID()
	}
	if req.CorrelationID == "" {
		req.CorrelationID = k.ids.NewID()
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = k.ids.Now()
	}
	if verr := req.Validate(); verr != nil {
		return Response{}, verr
	}

	resp = Response{RequestID: req.ID, CorrelationID: req.CorrelationID}
	logger := k.logger.With(zap.String("correlation_id", req.CorrelationID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("kernel panic recovered", zap.Any("panic", r))
			if _, aerr := k.append(ctx, &resp, audit.Event{
				CorrelationID: req.CorrelationID,
				Component:     "kernel",
				ActionType:    audit.ActionError,
				RiskLevel:     string(plan.RiskHigh),
				Rationale:     fmt.Sprintf("internal panic: %v", r),
			}); aerr != nil {
				err = aerr
				return
			}
			err = fmt.Errorf("internal error handling request %s", req.ID)
		}
	}()

	state := k.PolicyState()

	bundle, rerr := k.retrieveContext(ctx, req.RawText)
	if rerr != nil {
		// Retrieval is best effort; the cycle continues with an empty
		// bundle and the outage is recorded.
		logger.Warn("memory retrieval failed, continuing with empty context", zap.Error(rerr))
		if _, aerr := k.append(ctx, &resp, audit.Event{
			CorrelationID: req.CorrelationID,
			Component:     "memory_librarian",
			ActionType:    audit.ActionError,
			RiskLevel:     string(plan.RiskLow),
			Rationale:     fmt.Sprintf("context retrieval failed: %v", rerr),
		}); aerr != nil {
			return Response{}, aerr
		}
		bundle = nil
	}

	pl, riskMeta, perr := buildPlan(k.ids, req)
	if perr != nil {
		return Response{}, perr
	}
	resp.PlanID = pl.PlanID
	resp.PlanSummary = pl.Summary

	if _, aerr := k.append(ctx, &resp, audit.Event{
		CorrelationID:  req.CorrelationID,
		Component:      "kernel",
		ActionType:     audit.ActionPlanCreated,
		RiskLevel:      string(planRisk(pl)),
		InputsSummary:  req.RawText,
		OutputsSummary: pl.Summary,
	}); aerr != nil {
		return Response{}, aerr
	}

	blocked := make(map[string]bool)
	for _, step := range pl.Steps {
		if dep, hit := blockedDep(step, blocked); hit {
			decision := policy.Decision{
				DecisionID:  k.ids.NewID(),
				StepID:      step.StepID,
				Verdict:     policy.VerdictDeny,
				RiskLevel:   step.RiskLevel,
				Rationale:   fmt.Sprintf("dependency step %s was not allowed", dep),
				PolicyFlags: []string{"dependency_blocked"},
			}
			resp.Decisions = append(resp.Decisions, decision)
			blocked[step.StepID] = true
			if aerr := k.recordDecision(ctx, &resp, req.CorrelationID, step, decision); aerr != nil {
				return Response{}, aerr
			}
			continue
		}

		decision := k.guardian.Evaluate(step, riskMeta[step.StepID], state)
		decision.DecisionID = k.ids.NewID()
		resp.Decisions = append(resp.Decisions, decision)

		// The decision is durably recorded before any routing happens.
		if aerr := k.recordDecision(ctx, &resp, req.CorrelationID, step, decision); aerr != nil {
			return Response{}, aerr
		}

		switch decision.Verdict {
		case policy.VerdictConfirmRequired:
			resp.Confirmations = append(resp.Confirmations, Confirmation{
				StepID: step.StepID,
				Token:  step.Fingerprint(),
				Prompt: decision.Rationale,
			})
			blocked[step.StepID] = true
			continue
		case policy.VerdictDeny:
			blocked[step.StepID] = true
			continue
		}

		if cerr := ctx.Err(); cerr != nil {
			if _, aerr := k.append(ctx, &resp, audit.Event{
				CorrelationID: req.CorrelationID,
				Component:     "kernel",
				ActionType:    audit.ActionError,
				RiskLevel:     string(decision.RiskLevel),
				InputsSummary: step.Describe(),
				Rationale:     fmt.Sprintf("request aborted before routing: %v", cerr),
			}); aerr != nil {
				return Response{}, aerr
			}
			return resp, cerr
		}

		if aerr := k.routeStep(ctx, &resp, req.CorrelationID, step, decision, bundle, blocked); aerr != nil {
			return Response{}, aerr
		}
	}

	logger.Info("request handled",
		zap.String("plan_id", pl.PlanID),
		zap.Int("steps", len(pl.Steps)),
		zap.Int("confirmations", len(resp.Confirmations)),
	)
	return resp, nil
}

// retrieveContext probes the librarian with the request's significant
// words and merges the hits into one bundle, ordered by (CreatedAt,
// ItemID) and capped at the context limit. A request with no usable
// words falls back to an unfiltered capped read.
func (k *Kernel) retrieveContext(ctx context.Context, text string) ([]memory.Item, error) {
	probes := contextProbes(text)
	if len(probes) == 0 {
		return k.librarian.Retrieve(ctx, memory.Query{Limit: k.limit})
	}

	seen := make(map[string]bool)
	var merged []memory.Item
	for _, probe := range probes {
		items, err := k.librarian.Retrieve(ctx, memory.Query{Text: probe, Limit: k.limit})
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if seen[item.ItemID] {
				continue
			}
			seen[item.ItemID] = true
			merged = append(merged, item)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.Before(merged[j].CreatedAt)
		}
		return merged[i].ItemID < merged[j].ItemID
	})
	if len(merged) > k.limit {
		merged = merged[:k.limit]
	}
	return merged, nil
}

const maxContextProbes = 5

// contextProbes extracts the distinct lowercased words of four or more
// letters, in order of appearance.
func contextProbes(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := make(map[string]bool)
	var probes []string
	for _, w := range words {
		if len(w) < 4 || seen[w] {
			continue
		}
		seen[w] = true
		probes = append(probes, w)
		if len(probes) == maxContextProbes {
			break
		}
	}
	return probes
}

// routeStep executes one allowed step and records the outcome. Connector
// and program failures block dependents but do not fail the request; only
// audit append errors propagate.
func (k *Kernel) routeStep(ctx context.Context, resp *Response, correlationID string, step plan.Step, decision policy.Decision, bundle []memory.Item, blocked map[string]bool) error {
	switch step.Kind {
	case plan.KindToolCall:
		result, err := k.connectors.Invoke(ctx, *step.ToolCall)
		if err != nil {
			blocked[step.StepID] = true
			k.logger.Warn("connector invocation failed",
				zap.String("correlation_id", correlationID),
				zap.String("tool", step.ToolCall.ToolName),
				zap.Error(err),
			)
			_, aerr := k.append(ctx, resp, audit.Event{
				CorrelationID: correlationID,
				Component:     "connector",
				ActionType:    audit.ActionError,
				RiskLevel:     string(decision.RiskLevel),
				InputsSummary: step.Describe(),
				Rationale:     fmt.Sprintf("connector invocation failed: %v", err),
			})
			return aerr
		}
		outcome := "succeeded"
		if !result.Success {
			outcome = fmt.Sprintf("failed: %s", result.Err)
			blocked[step.StepID] = true
		}
		if _, aerr := k.append(ctx, resp, audit.Event{
			CorrelationID:  correlationID,
			Component:      "connector",
			ActionType:     audit.ActionToolCall,
			RiskLevel:      string(decision.RiskLevel),
			InputsSummary:  step.Describe(),
			OutputsSummary: fmt.Sprintf("tool %s %s", step.ToolCall.ToolName, outcome),
			PolicyDecision: string(decision.Verdict),
		}); aerr != nil {
			return aerr
		}
		resp.Outputs = append(resp.Outputs, StepOutput{
			StepID:  step.StepID,
			Kind:    step.Kind,
			Summary: fmt.Sprintf("tool %s %s", step.ToolCall.ToolName, outcome),
			Detail:  result.Result,
		})
		return nil

	case plan.KindReport, plan.KindDraft:
		out, err := k.runProgram(ctx, step, bundle)
		if err != nil {
			blocked[step.StepID] = true
			_, aerr := k.append(ctx, resp, audit.Event{
				CorrelationID: correlationID,
				Component:     "programs",
				ActionType:    audit.ActionError,
				RiskLevel:     string(decision.RiskLevel),
				InputsSummary: step.Describe(),
				Rationale:     fmt.Sprintf("program failed: %v", err),
			})
			return aerr
		}
		action := audit.ActionReportGenerated
		if step.Kind == plan.KindDraft {
			action = audit.ActionDraftCreated
		}
		if _, aerr := k.append(ctx, resp, audit.Event{
			CorrelationID:  correlationID,
			Component:      "programs",
			ActionType:     action,
			RiskLevel:      string(decision.RiskLevel),
			InputsSummary:  step.Describe(),
			OutputsSummary: out.Summary,
			PolicyDecision: string(decision.Verdict),
		}); aerr != nil {
			return aerr
		}
		detail := out.Breakdown
		if len(out.ProposedActions) > 0 {
			if detail == nil {
				detail = make(map[string]any, 1)
			}
			detail["proposed_actions"] = out.ProposedActions
		}
		resp.Outputs = append(resp.Outputs, StepOutput{
			StepID:  step.StepID,
			Kind:    step.Kind,
			Summary: out.Summary,
			Detail:  detail,
		})
		return nil

	default:
		// Guardian validation denies unknown kinds before routing.
		blocked[step.StepID] = true
		return nil
	}
}

// runProgram dispatches a report or draft step to its program. Steps with
// no program field get a plain acknowledgement built from the context
// bundle size.
func (k *Kernel) runProgram(ctx context.Context, step plan.Step, bundle []memory.Item) (programs.Output, error) {
	name, _ := step.Payload["program"].(string)
	if name == "" {
		topic, _ := step.Payload["topic"].(string)
		return programs.Output{
			Summary: fmt.Sprintf("noted request %q; %d related items on file", topic, len(bundle)),
			Breakdown: map[string]any{
				"context_items": len(bundle),
			},
		}, nil
	}
	p, ok := k.programs.Lookup(name)
	if !ok {
		return programs.Output{}, fmt.Errorf("unknown program %q", name)
	}
	return p.Run(ctx, step.Payload, bundle)
}

// recordDecision appends the policy_decision event for one step.
func (k *Kernel) recordDecision(ctx context.Context, resp *Response, correlationID string, step plan.Step, d policy.Decision) error {
	_, err := k.append(ctx, resp, audit.Event{
		CorrelationID:  correlationID,
		Component:      "policy_guardian",
		ActionType:     audit.ActionPolicyDecision,
		RiskLevel:      string(d.RiskLevel),
		InputsSummary:  step.Describe(),
		PolicyDecision: string(d.Verdict),
		Rationale:      d.Rationale,
	})
	return err
}

// append assigns the event ID and timestamp, writes the event, and tracks
// its ID in the response. A failed append is fatal for the request.
func (k *Kernel) append(ctx context.Context, resp *Response, e audit.Event) (string, error) {
	e.EventID = k.ids.NewID()
	if e.Timestamp.IsZero() {
		e.Timestamp = k.ids.Now()
	}
	id, err := k.log.Append(ctx, e)
	if err != nil {
		return "", fmt.Errorf("%w: %v", audit.ErrAppend, err)
	}
	resp.AuditEventIDs = append(resp.AuditEventIDs, id)
	return id, nil
}

// blockedDep returns the first dependency of step that was denied, held
// for confirmation, or failed.
func blockedDep(step plan.Step, blocked map[string]bool) (string, bool) {
	for _, dep := range step.DependsOn {
		if blocked[dep] {
			return dep, true
		}
	}
	return "", false
}
