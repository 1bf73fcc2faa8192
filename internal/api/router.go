package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/castellan-ai/castellan/internal/audit"
	"github.com/castellan-ai/castellan/internal/auth"
	"github.com/castellan-ai/castellan/internal/kernel"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Kernel    *kernel.Kernel
	Log       audit.Log
	Retention audit.Retention // nil when the store does not support expiry
	Auth      *auth.Authenticator
	Logger    *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/requests", deps.requireAuth(deps.handleSubmit))
	mux.HandleFunc("GET /v1/audit/{correlation_id}", deps.requireAuth(deps.handleAuditTrail))

	// Admin surface: retention expiry and policy reload.
	mux.HandleFunc("POST /v1/admin/retention/expire", deps.requireAdmin(deps.handleExpire))
	mux.HandleFunc("POST /v1/admin/policy/reload", deps.requireAdmin(deps.handlePolicyReload))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return requestLogging(mux, deps.Logger)
}
