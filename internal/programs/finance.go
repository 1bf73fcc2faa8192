package programs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/castellan-ai/castellan/internal/memory"
)

// FinanceReport summarizes spending from transaction items in the context
// bundle. It is read-only and never proposes actions.
type FinanceReport struct{}

func (FinanceReport) Name() string { return "finance_report" }

// Run totals transactions by category. Items are expected to carry
// metadata {"type": "transaction", "category": ..., "amount": ...}; items
// without an amount are skipped rather than failing the report.
func (FinanceReport) Run(_ context.Context, _ map[string]any, bundle []memory.Item) (Output, error) {
	totals := make(map[string]float64)
	var total float64
	var counted int
	for _, item := range bundle {
		if item.Metadata["type"] != "transaction" {
			continue
		}
		amount, err := strconv.ParseFloat(item.Metadata["amount"], 64)
		if err != nil {
			continue
		}
		category := item.Metadata["category"]
		if category == "" {
			category = "uncategorized"
		}
		totals[category] += amount
		total += amount
		counted++
	}

	breakdown := make(map[string]any, len(totals)+2)
	for k, v := range totals {
		breakdown[k] = v
	}
	breakdown["total"] = total
	breakdown["transaction_count"] = counted

	categories := make([]string, 0, len(totals))
	for k := range totals {
		categories = append(categories, k)
	}
	sort.Strings(categories)

	var b strings.Builder
	fmt.Fprintf(&b, "spending summary: %d transactions totaling %.2f", counted, total)
	for _, c := range categories {
		fmt.Fprintf(&b, "; %s %.2f", c, totals[c])
	}
	return Output{Summary: b.String(), Breakdown: breakdown}, nil
}
