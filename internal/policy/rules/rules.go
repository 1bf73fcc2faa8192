// Package rules holds the guardian's built-in rule chain. Each rule is a
// small pure evaluator; Default returns them in the canonical order:
// irreversibility, PII, bypass attempt, least privilege, explainability,
// argument schema, then operator custom rules. The first negative finding
// short-circuits evaluation and supplies the decision rationale.
package rules

import (
	"fmt"
	"sort"

	"github.com/castellan-ai/castellan/internal/plan"
	"github.com/castellan-ai/castellan/internal/policy"
)

// Default returns the built-in rule chain in evaluation order.
func Default() []policy.Rule {
	return []policy.Rule{
		Irreversibility{},
		PII{},
		Bypass{},
		Privilege{},
		Explainability{},
		Schema{},
		Custom{},
	}
}

// flatten renders every scalar in the step's payload and tool arguments as
// "key=value" strings in sorted key order, so scanning rules operate on
// structured fields deterministically rather than on free text.
func flatten(step plan.Step) []string {
	var out []string
	collect := func(prefix string, m map[string]any) {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, fmt.Sprintf("%s%s=%v", prefix, k, m[k]))
		}
	}
	collect("payload.", step.Payload)
	if step.ToolCall != nil {
		collect("args.", step.ToolCall.Arguments)
	}
	return out
}
