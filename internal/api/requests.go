package api

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/castellan-ai/castellan/internal/audit"
	"github.com/castellan-ai/castellan/internal/plan"
	"github.com/castellan-ai/castellan/internal/policy"
)

// handleSubmit runs one orchestration cycle for POST /v1/requests.
func (d *Dependencies) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequest
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "invalid JSON body"})
		return
	}

	intent := plan.Intent(body.Intent)
	if intent == "" {
		intent = plan.Classify(body.Text)
	}
	req := plan.Request{
		CorrelationID:  body.CorrelationID,
		RawText:        body.Text,
		Intent:         intent,
		ConfirmedSteps: body.ConfirmedSteps,
	}

	resp, err := d.Kernel.HandleRequest(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, plan.ErrEmptyRequest):
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
	case errors.Is(err, audit.ErrAppend):
		d.Logger.Error("request aborted, audit log unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "audit log unavailable"})
	default:
		d.Logger.Error("request handling failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "internal error"})
	}
}

// handleAuditTrail returns the ordered event trail for one correlation ID,
// with the hash chain verified on read.
func (d *Dependencies) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	correlationID := r.PathValue("correlation_id")
	events, err := d.Log.Read(r.Context(), correlationID)
	if err != nil {
		d.Logger.Error("audit read failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "audit read failed"})
		return
	}

	resp := AuditTrailResponse{
		CorrelationID: correlationID,
		Events:        events,
		ChainVerified: true,
	}
	if verr := audit.VerifyChain(events); verr != nil {
		resp.ChainVerified = false
		resp.ChainError = verr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePolicyReload swaps the kernel's policy state for POST
// /v1/admin/policy/reload. The body is a complete replacement state;
// custom CEL rules are compiled here so a broken expression rejects the
// whole reload and the previous state stays active.
func (d *Dependencies) handlePolicyReload(w http.ResponseWriter, r *http.Request) {
	var body PolicyReloadRequest
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "invalid JSON body"})
		return
	}
	if body.Version == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "version is required"})
		return
	}
	if body.MediumAmount > body.HighAmount {
		writeJSON(w, http.StatusBadRequest, ErrorResp{
			Detail: fmt.Sprintf("medium amount threshold %.2f exceeds high threshold %.2f",
				body.MediumAmount, body.HighAmount),
		})
		return
	}

	rules := make([]policy.CustomRule, 0, len(body.CustomRules))
	for _, def := range body.CustomRules {
		verdict := policy.Verdict(def.Verdict)
		switch verdict {
		case "":
			verdict = policy.VerdictDeny
		case policy.VerdictDeny, policy.VerdictConfirmRequired:
		default:
			writeJSON(w, http.StatusBadRequest, ErrorResp{
				Detail: fmt.Sprintf("rule %q: verdict must be deny or confirm_required", def.Name),
			})
			return
		}
		rule, err := policy.NewCustomRule(def.Name, def.Expr, verdict, def.Rationale)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
			return
		}
		rules = append(rules, rule)
	}

	d.Kernel.SetPolicyState(policy.State{
		Version:              body.Version,
		AllowedTools:         body.AllowedTools,
		ConfirmationsEnabled: body.ConfirmationsEnabled,
		MediumAmount:         body.MediumAmount,
		HighAmount:           body.HighAmount,
		MaxPositionSize:      body.MaxPositionSize,
		ArgumentSchemas:      body.ArgumentSchemas,
		CustomRules:          rules,
	})
	d.Logger.Info("policy state reloaded",
		zap.String("version", body.Version),
		zap.Int("allowed_tools", len(body.AllowedTools)),
		zap.Int("custom_rules", len(rules)),
	)
	writeJSON(w, http.StatusOK, PolicyReloadResponse{Version: body.Version, CustomRules: len(rules)})
}

// handleExpire runs a retention pass for POST /v1/admin/retention/expire.
func (d *Dependencies) handleExpire(w http.ResponseWriter, r *http.Request) {
	if d.Retention == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResp{Detail: "retention not supported by this store"})
		return
	}
	var body ExpireRequest
	if err := readJSON(r, &body); err != nil || body.Cutoff.IsZero() {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "cutoff timestamp required"})
		return
	}
	removed, err := d.Retention.ExpireBefore(r.Context(), body.Cutoff)
	if err != nil {
		d.Logger.Error("retention expiry failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "retention expiry failed"})
		return
	}
	d.Logger.Info("retention pass completed",
		zap.Time("cutoff", body.Cutoff),
		zap.Int("removed", removed),
	)
	writeJSON(w, http.StatusOK, ExpireResponse{Removed: removed})
}
