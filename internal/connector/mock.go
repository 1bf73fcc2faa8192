package connector

import (
	"context"
	"sync"

	"github.com/castellan-ai/castellan/internal/plan"
)

// Mock is a scriptable connector for tests and local runs. It records every
// invocation and replies with a canned result.
type Mock struct {
	ConnectorName string
	Reply         Result
	ReplyErr      error

	mu    sync.Mutex
	calls []plan.ToolCall
}

// NewMock creates a mock connector that always succeeds.
func NewMock(name string) *Mock {
	return &Mock{
		ConnectorName: name,
		Reply:         Result{Success: true, Result: map[string]any{"status": "ok"}},
	}
}

func (m *Mock) Name() string { return m.ConnectorName }

func (m *Mock) Invoke(_ context.Context, call plan.ToolCall) (Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
	if m.ReplyErr != nil {
		return Result{}, m.ReplyErr
	}
	return m.Reply, nil
}

// Calls returns a copy of the recorded invocations.
func (m *Mock) Calls() []plan.ToolCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]plan.ToolCall, len(m.calls))
	copy(out, m.calls)
	return out
}
