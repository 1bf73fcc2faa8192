// Package programs holds the domain-program collaborators that produce
// draft and report artifacts for allowed steps. Programs receive the step
// payload and a read-only context bundle; they never call tool connectors
// directly, so every proposed action goes back through the kernel for
// policy gating.
package programs

import (
	"context"

	"github.com/castellan-ai/castellan/internal/memory"
	"github.com/castellan-ai/castellan/internal/plan"
)

// Output is the structured result of one program run.
type Output struct {
	Summary         string          `json:"summary"`
	Breakdown       map[string]any  `json:"breakdown,omitempty"`
	ProposedActions []plan.ToolCall `json:"proposed_actions,omitempty"`
}

// Program generates a report or draft artifact for one step.
type Program interface {
	// Name returns the registry key matched against the step payload's
	// "program" field.
	Name() string

	// Run produces the artifact. The context bundle is read-only.
	Run(ctx context.Context, payload map[string]any, bundle []memory.Item) (Output, error)
}
