package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// CustomRule is an operator-authored policy rule expressed as a CEL
// expression over structured step attributes. Expressions see only typed
// fields, never free text, which keeps instruction-injection out of the
// evaluation path.
//
// Available variables: kind (string), tool (string), risk (string),
// amount (double), irreversible (bool), args (map).
type CustomRule struct {
	Name      string
	Verdict   Verdict
	Rationale string

	prg cel.Program
}

var celEnv = mustCELEnv()

func mustCELEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("tool", cel.StringType),
		cel.Variable("risk", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("irreversible", cel.BoolType),
		cel.Variable("args", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		panic("policy: cel environment: " + err.Error())
	}
	return env
}

// NewCustomRule compiles the CEL expression and returns a rule that fires
// the given verdict when the expression evaluates to true.
func NewCustomRule(name, expr string, verdict Verdict, rationale string) (CustomRule, error) {
	ast, issues := celEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return CustomRule{}, fmt.Errorf("compile custom rule %q: %w", name, issues.Err())
	}
	prg, err := celEnv.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return CustomRule{}, fmt.Errorf("program custom rule %q: %w", name, err)
	}
	return CustomRule{Name: name, Verdict: verdict, Rationale: rationale, prg: prg}, nil
}

// Match evaluates the rule against the input attributes. A compile-clean
// rule that errors at eval time is treated as a match with a deny verdict:
// a broken rule must fail closed, not drop out of the chain.
func (cr CustomRule) Match(input map[string]any) (bool, error) {
	out, _, err := cr.prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval custom rule %q: %w", cr.Name, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("custom rule %q did not return bool", cr.Name)
	}
	return matched, nil
}
