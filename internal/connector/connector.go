// Package connector routes allowed tool calls to external-effect backends.
// Connectors are invoked only after a policy allow; the kernel records the
// result in the audit log regardless of success or failure.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/castellan-ai/castellan/internal/plan"
)

// ErrUnknownConnector is returned when no connector is registered for a
// tool call's target.
var ErrUnknownConnector = errors.New("unknown tool connector")

// Result is a connector invocation outcome. Err is carried as data so the
// kernel can audit failures without unwinding.
type Result struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Err     string         `json:"error,omitempty"`
}

// Connector executes one external effect.
type Connector interface {
	// Name returns the connector's registry key.
	Name() string

	// Invoke performs the tool call. Implementations must respect ctx
	// and return a Result even on failure.
	Invoke(ctx context.Context, call plan.ToolCall) (Result, error)
}

// Registry maps target connector names to implementations.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

// Register adds or replaces a connector under its name.
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Name()] = c
}

// Invoke dispatches the call to the connector named by its target.
func (r *Registry) Invoke(ctx context.Context, call plan.ToolCall) (Result, error) {
	r.mu.RLock()
	c, ok := r.connectors[call.TargetConnector]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownConnector, call.TargetConnector)
	}
	return c.Invoke(ctx, call)
}
