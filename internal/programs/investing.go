package programs

import (
	"context"
	"fmt"

	"github.com/castellan-ai/castellan/internal/memory"
	"github.com/castellan-ai/castellan/internal/plan"
)

// InvestingDraft produces a trade note draft for review. The proposed
// trade is returned as data; executing it requires a fresh request that
// goes through policy evaluation like any other tool call.
type InvestingDraft struct{}

func (InvestingDraft) Name() string { return "investing_draft" }

func (InvestingDraft) Run(_ context.Context, payload map[string]any, bundle []memory.Item) (Output, error) {
	symbol, _ := payload["symbol"].(string)
	if symbol == "" {
		return Output{}, fmt.Errorf("investing draft: missing symbol")
	}
	quantity, _ := payload["quantity"].(float64)
	if quantity <= 0 {
		quantity = 1
	}
	side, _ := payload["side"].(string)
	if side == "" {
		side = "buy"
	}

	var notes int
	for _, item := range bundle {
		if item.Metadata["type"] == "research_note" && item.Metadata["symbol"] == symbol {
			notes++
		}
	}

	summary := fmt.Sprintf("draft trade note: %s %.0f %s (%d research notes on file); awaiting review",
		side, quantity, symbol, notes)
	proposed := plan.ToolCall{
		ToolName:        "submit_trade",
		TargetConnector: "brokerage",
		Arguments: map[string]any{
			"symbol":   symbol,
			"quantity": quantity,
			"side":     side,
			"reason":   fmt.Sprintf("drafted from investing review of %s", symbol),
		},
	}
	return Output{
		Summary: summary,
		Breakdown: map[string]any{
			"symbol":         symbol,
			"quantity":       quantity,
			"side":           side,
			"research_notes": notes,
		},
		ProposedActions: []plan.ToolCall{proposed},
	}, nil
}
