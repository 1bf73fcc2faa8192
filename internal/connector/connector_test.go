package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/castellan-ai/castellan/internal/plan"
)

func TestRegistry_UnknownConnector(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), plan.ToolCall{ToolName: "transfer_funds", TargetConnector: "bank"})
	if !errors.Is(err, ErrUnknownConnector) {
		t.Errorf("got %v, want ErrUnknownConnector", err)
	}
}

func TestRegistry_DispatchesByTarget(t *testing.T) {
	r := NewRegistry()
	bank := NewMock("bank")
	brokerage := NewMock("brokerage")
	r.Register(bank)
	r.Register(brokerage)

	call := plan.ToolCall{ToolName: "transfer_funds", TargetConnector: "bank", Arguments: map[string]any{"amount": 5.0}}
	res, err := r.Invoke(context.Background(), call)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !res.Success {
		t.Errorf("result = %+v, want success", res)
	}
	if len(bank.Calls()) != 1 || len(brokerage.Calls()) != 0 {
		t.Errorf("calls routed wrong: bank %d, brokerage %d", len(bank.Calls()), len(brokerage.Calls()))
	}
}

func TestMock_ScriptedFailure(t *testing.T) {
	m := NewMock("bank")
	m.ReplyErr = errors.New("upstream timeout")
	r := NewRegistry()
	r.Register(m)

	_, err := r.Invoke(context.Background(), plan.ToolCall{ToolName: "transfer_funds", TargetConnector: "bank"})
	if err == nil {
		t.Error("expected the scripted error")
	}
}
