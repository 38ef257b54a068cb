package intake

import (
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
)

// Rule derives one behavioral flag from the amount-window variables.
type Rule struct {
	Flag       string
	Expression string
}

// DefaultRules are the amount-window flags.
var DefaultRules = []Rule{
	// Amount above the usual maximum.
	{Flag: "V41", Expression: "amount > usual_max"},
	// Within business hours.
	{Flag: "V65", Expression: "hour >= 8.0 && hour <= 18.0"},
	// Amount inside the usual range.
	{Flag: "V241", Expression: "usual_min <= amount && amount <= usual_max"},
}

// Window holds the variables visible to rule expressions.
type Window struct {
	Amount   float64
	UsualMin float64
	UsualMax float64
	Hour     float64
}

// Deriver evaluates compiled CEL rules. Programs are compiled once and
// are safe for concurrent evaluation.
type Deriver struct {
	programs map[string]cel.Program
}

// NewDeriver compiles rules. Every expression must yield a bool.
func NewDeriver(rules []Rule) (*Deriver, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("usual_min", cel.DoubleType),
		cel.Variable("usual_max", cel.DoubleType),
		cel.Variable("hour", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	programs := make(map[string]cel.Program, len(rules))
	for _, r := range rules {
		if _, dup := programs[r.Flag]; dup {
			return nil, fmt.Errorf("duplicate rule for flag %s", r.Flag)
		}

		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile %s: %w", r.Flag, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %s must return bool, got %s", r.Flag, ast.OutputType())
		}

		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program %s: %w", r.Flag, err)
		}
		programs[r.Flag] = prg
	}

	return &Deriver{programs: programs}, nil
}

// Flags returns the derived flag names in sorted order.
func (d *Deriver) Flags() []string {
	flags := make([]string, 0, len(d.programs))
	for f := range d.programs {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	return flags
}

// Derive evaluates every rule against w; true is 1 and false is 0.
func (d *Deriver) Derive(w Window) (map[string]float64, error) {
	activation := map[string]any{
		"amount":    w.Amount,
		"usual_min": w.UsualMin,
		"usual_max": w.UsualMax,
		"hour":      w.Hour,
	}

	out := make(map[string]float64, len(d.programs))
	for flag, prg := range d.programs {
		val, _, err := prg.Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", flag, err)
		}
		b, ok := val.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("rule %s returned %T", flag, val.Value())
		}
		if b {
			out[flag] = 1
		} else {
			out[flag] = 0
		}
	}
	return out, nil
}
