package kernel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/castellan-ai/castellan/internal/ids"
	"github.com/castellan-ai/castellan/internal/plan"
	"github.com/castellan-ai/castellan/internal/policy"
)

var (
	amountPattern = regexp.MustCompile(`\$\s?(\d+(?:,\d{3})*(?:\.\d+)?)`)
	sharesPattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s+shares?\b`)
	symbolPattern = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
	sellPattern   = regexp.MustCompile(`(?i)\bsell\b`)
)

// buildPlan maps a classified request to an immutable plan plus the
// per-step risk metadata the guardian needs. The metadata travels beside
// the plan rather than inside it; the plan artifact stays a pure
// description of intent.
func buildPlan(provider *ids.Provider, req plan.Request) (plan.Plan, map[string]policy.RiskMeta, error) {
	intent := req.Intent
	if intent == "" {
		intent = plan.IntentGeneric
	}

	var steps []plan.Step
	riskMeta := make(map[string]policy.RiskMeta)
	var summary string

	switch intent {
	case plan.IntentFinanceReport:
		stepID := provider.NewID()
		step := plan.Step{
			StepID:    stepID,
			Kind:      plan.KindReport,
			RiskLevel: plan.RiskLow,
			Payload:   map[string]any{"program": "finance_report"},
		}
		steps = append(steps, step)
		riskMeta[stepID] = policy.RiskMeta{UserConfirmed: req.StepConfirmed(step.Fingerprint())}
		summary = "generate a spending report from stored transactions"

	case plan.IntentInvestingTrade:
		stepID := provider.NewID()
		side := "buy"
		if sellPattern.MatchString(req.RawText) {
			side = "sell"
		}
		quantity := 1.0
		if m := sharesPattern.FindStringSubmatch(req.RawText); m != nil {
			if q, err := strconv.ParseFloat(m[1], 64); err == nil {
				quantity = q
			}
		}
		symbol := ""
		if m := symbolPattern.FindString(req.RawText); m != "" {
			symbol = m
		}
		// Notional from an explicit dollar figure in the ticket, so the
		// position-size cap can gate the draft before it is produced.
		notional := parseAmount(req.RawText)
		step := plan.Step{
			StepID:    stepID,
			Kind:      plan.KindDraft,
			RiskLevel: plan.RiskLow,
			Payload: map[string]any{
				"program":  "investing_draft",
				"symbol":   symbol,
				"quantity": quantity,
				"side":     side,
			},
		}
		steps = append(steps, step)
		riskMeta[stepID] = policy.RiskMeta{Amount: notional, UserConfirmed: req.StepConfirmed(step.Fingerprint())}
		summary = fmt.Sprintf("draft a trade note (%s %s) for review", side, symbol)

	case plan.IntentMoneyMove:
		stepID := provider.NewID()
		amount := parseAmount(req.RawText)
		step := plan.Step{
			StepID:    stepID,
			Kind:      plan.KindToolCall,
			RiskLevel: plan.RiskHigh,
			ToolCall: &plan.ToolCall{
				ToolName:        "transfer_funds",
				TargetConnector: "bank",
				Arguments: map[string]any{
					"amount": amount,
					"reason": "user-requested funds transfer",
				},
			},
		}
		steps = append(steps, step)
		riskMeta[stepID] = policy.RiskMeta{
			Irreversible:  true,
			Amount:        amount,
			UserConfirmed: req.StepConfirmed(step.Fingerprint()),
		}
		summary = fmt.Sprintf("move %.2f between accounts", amount)

	case plan.IntentGeneric:
		stepID := provider.NewID()
		step := plan.Step{
			StepID:    stepID,
			Kind:      plan.KindReport,
			RiskLevel: plan.RiskLow,
			Payload:   map[string]any{"topic": req.RawText},
		}
		steps = append(steps, step)
		riskMeta[stepID] = policy.RiskMeta{UserConfirmed: req.StepConfirmed(step.Fingerprint())}
		summary = "answer from stored context"

	default:
		return plan.Plan{}, nil, fmt.Errorf("unknown intent %q", intent)
	}

	return plan.Plan{
		PlanID:        provider.NewID(),
		CorrelationID: req.CorrelationID,
		Summary:       summary,
		Steps:         steps,
		CreatedAt:     provider.Now(),
	}, riskMeta, nil
}

func parseAmount(text string) float64 {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	raw := strings.ReplaceAll(m[1], ",", "")
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return amount
}

func planRisk(p plan.Plan) plan.RiskLevel {
	risk := plan.RiskLow
	rank := map[plan.RiskLevel]int{plan.RiskLow: 0, plan.RiskMedium: 1, plan.RiskHigh: 2}
	for _, s := range p.Steps {
		if rank[s.RiskLevel] > rank[risk] {
			risk = s.RiskLevel
		}
	}
	return risk
}
