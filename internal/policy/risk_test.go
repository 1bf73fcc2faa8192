package policy

import (
	"testing"

	"github.com/castellan-ai/castellan/internal/plan"
)

func testState() State {
	return State{
		Version: "test",
		AllowedTools: map[string]ToolGrant{
			"fetch_balance":  {Tier: TierRead},
			"transfer_funds": {Tier: TierWrite, Irreversible: true, RequiresConfirm: true},
			"wipe_account":   {Tier: TierDestructive},
		},
		ConfirmationsEnabled: true,
		MediumAmount:         100,
		HighAmount:           1000,
	}
}

func toolStep(tool string) plan.Step {
	return plan.Step{
		StepID: "s1",
		Kind:   plan.KindToolCall,
		ToolCall: &plan.ToolCall{
			ToolName:        tool,
			TargetConnector: "bank",
			Arguments:       map[string]any{"reason": "test"},
		},
	}
}

func TestRiskFor_ReportIsLow(t *testing.T) {
	step := plan.Step{StepID: "s1", Kind: plan.KindReport}
	if got := RiskFor(step, RiskMeta{}, testState()); got != plan.RiskLow {
		t.Errorf("report risk = %q, want low", got)
	}
}

func TestRiskFor_ToolCallStartsMedium(t *testing.T) {
	if got := RiskFor(toolStep("fetch_balance"), RiskMeta{}, testState()); got != plan.RiskMedium {
		t.Errorf("tool call risk = %q, want medium", got)
	}
}

func TestRiskFor_AmountEscalation(t *testing.T) {
	cases := []struct {
		amount float64
		want   plan.RiskLevel
	}{
		{50, plan.RiskMedium},
		{100, plan.RiskMedium},
		{999, plan.RiskMedium},
		{1000, plan.RiskHigh},
		{5000, plan.RiskHigh},
	}
	for _, tc := range cases {
		got := RiskFor(toolStep("fetch_balance"), RiskMeta{Amount: tc.amount}, testState())
		if got != tc.want {
			t.Errorf("amount %.0f: risk = %q, want %q", tc.amount, got, tc.want)
		}
	}
}

func TestRiskFor_IrreversibleIsHigh(t *testing.T) {
	if got := RiskFor(toolStep("fetch_balance"), RiskMeta{Irreversible: true}, testState()); got != plan.RiskHigh {
		t.Errorf("irreversible meta: risk = %q, want high", got)
	}
	if got := RiskFor(toolStep("transfer_funds"), RiskMeta{}, testState()); got != plan.RiskHigh {
		t.Errorf("irreversible grant: risk = %q, want high", got)
	}
	if got := RiskFor(toolStep("wipe_account"), RiskMeta{}, testState()); got != plan.RiskHigh {
		t.Errorf("destructive tier: risk = %q, want high", got)
	}
}
