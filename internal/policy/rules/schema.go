package rules

import (
	"encoding/json"
	"fmt"

	"github.com/castellan-ai/castellan/internal/plan"
	"github.com/castellan-ai/castellan/internal/policy"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema validates tool-call arguments against the per-tool JSON Schema in
// the policy state. Schema-invalid or malformed input is denied with the
// validation failure as rationale. Fail-closed, never fail-open.
type Schema struct{}

func (Schema) Name() string { return "argument_schema" }

func (Schema) Evaluate(step plan.Step, _ policy.RiskMeta, _ plan.RiskLevel, state policy.State) *policy.Finding {
	if step.Kind != plan.KindToolCall || step.ToolCall == nil {
		return nil
	}
	raw, ok := state.ArgumentSchemas[step.ToolCall.ToolName]
	if !ok || raw == nil {
		return nil
	}

	if issue := validateArgs(step.ToolCall.Arguments, raw); issue != "" {
		return &policy.Finding{
			Verdict:   policy.VerdictDeny,
			Rationale: issue,
			Flags:     []string{"schema_invalid"},
		}
	}
	return nil
}

func validateArgs(args map[string]any, schema any) string {
	// Round-trip through JSON so the schema sees plain decoded values.
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return fmt.Sprintf("invalid argument schema: %v", err)
	}
	var schemaObj any
	if err := json.Unmarshal(schemaBytes, &schemaObj); err != nil {
		return fmt.Sprintf("schema unmarshal error: %v", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaObj); err != nil {
		return fmt.Sprintf("schema compile error: %v", err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Sprintf("schema compile error: %v", err)
	}

	argBytes, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("arguments are not valid JSON: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(argBytes, &decoded); err != nil {
		return fmt.Sprintf("arguments are not valid JSON: %v", err)
	}

	if err := sch.Validate(decoded); err != nil {
		return fmt.Sprintf("schema validation failed: %v", err)
	}
	return ""
}
