package rules

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/zclconf/go-cty/cty"

	"github.com/planwarden/planwarden/pkg/environment"
	"github.com/planwarden/planwarden/pkg/plan"
	"github.com/planwarden/planwarden/pkg/policy"
)

// CustomEvaluator runs user-defined CEL conditions against each planned
// resource. A condition that evaluates to true is a violation. Conditions see
// address, kind, action, environment, name, tags, and attrs; unresolved
// attribute values are withheld from attrs, and an evaluation error (such as
// referencing a withheld key) skips the resource rather than flagging it.
type CustomEvaluator struct {
	Logger *slog.Logger

	mu       sync.Mutex
	programs map[string]map[string]cel.Program // policy name -> rule id -> program
}

// NewCustomEvaluator builds the evaluator with an empty program cache.
func NewCustomEvaluator(logger *slog.Logger) *CustomEvaluator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CustomEvaluator{
		Logger:   logger,
		programs: make(map[string]map[string]cel.Program),
	}
}

func (*CustomEvaluator) Family() policy.Family { return policy.FamilyCustom }

func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("address", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("action", cel.StringType),
		cel.Variable("environment", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("tags", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("attrs", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// Prepare compiles every rule in the policy. A compile failure is a fatal
// configuration error surfaced before evaluation starts.
func (e *CustomEvaluator) Prepare(pol policy.Policy) error {
	params, ok := pol.Params.(*policy.CustomParams)
	if !ok {
		return fmt.Errorf("custom policy carries %T parameters", pol.Params)
	}

	env, err := newCELEnv()
	if err != nil {
		return fmt.Errorf("creating CEL environment: %w", err)
	}

	compiled := make(map[string]cel.Program, len(params.Rules))
	for _, rule := range params.Rules {
		ast, issues := env.Compile(rule.Condition)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("rule %s: %w", rule.ID, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		compiled[rule.ID] = prg
	}

	e.mu.Lock()
	e.programs[pol.Name] = compiled
	e.mu.Unlock()
	return nil
}

func (e *CustomEvaluator) Evaluate(ctx context.Context, snap *plan.Snapshot, pol policy.Policy, env environment.Context) []policy.Violation {
	params, ok := pol.Params.(*policy.CustomParams)
	if !ok {
		return nil
	}
	e.mu.Lock()
	programs := e.programs[pol.Name]
	e.mu.Unlock()
	if programs == nil {
		return nil
	}

	var violations []policy.Violation
	for _, rc := range snap.Changes() {
		if !rc.Planned() {
			continue
		}
		// Wholly unresolved tags make any tag-referencing condition
		// unanswerable; skip the resource for this family.
		if rc.Tags != cty.NilVal && !rc.Tags.IsKnown() {
			continue
		}

		vars := resourceVars(rc, env)
		for _, rule := range params.Rules {
			prg, ok := programs[rule.ID]
			if !ok {
				continue
			}
			out, _, err := prg.Eval(vars)
			if err != nil {
				e.Logger.Debug("custom rule skipped",
					"rule", rule.ID, "resource", rc.Address, "error", err)
				continue
			}
			if matched, ok := out.Value().(bool); ok && matched {
				msg := rule.Message
				if msg == "" {
					msg = fmt.Sprintf("custom rule %s matched", rule.ID)
				}
				violations = append(violations, pol.NewViolation(rc.Address, "%s", msg))
			}
		}
	}
	return violations
}

func resourceVars(rc *plan.ResourceChange, env environment.Context) map[string]any {
	tags := map[string]string{}
	for k, v := range rc.TagMap() {
		if v.IsKnown() && !v.IsNull() && v.Type() == cty.String {
			tags[k] = v.AsString()
		}
	}

	attrs := make(map[string]any, len(rc.Attributes))
	for k, v := range rc.Attributes {
		if iv, ok := ctyToGo(v); ok {
			attrs[k] = iv
		}
	}

	name, _ := rc.AttrString("name")

	return map[string]any{
		"address":     rc.Address,
		"kind":        rc.Type,
		"action":      string(rc.Action),
		"environment": string(env.Environment),
		"name":        name,
		"tags":        tags,
		"attrs":       attrs,
	}
}

// ctyToGo converts a resolved cty value to a plain Go value for CEL. Unknown
// values (and aggregates containing them) report ok=false and are withheld.
func ctyToGo(v cty.Value) (any, bool) {
	if v == cty.NilVal || !v.IsKnown() {
		return nil, false
	}
	if v.IsNull() {
		return nil, true
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), true
	case t == cty.Bool:
		return v.True(), true
	case t == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, true
	case t.IsObjectType() || t.IsMapType():
		out := map[string]any{}
		if v.LengthInt() > 0 {
			for k, el := range v.AsValueMap() {
				ev, ok := ctyToGo(el)
				if !ok {
					return nil, false
				}
				out[k] = ev
			}
		}
		return out, true
	case t.IsTupleType() || t.IsListType() || t.IsSetType():
		out := []any{}
		if v.LengthInt() > 0 {
			for _, el := range v.AsValueSlice() {
				ev, ok := ctyToGo(el)
				if !ok {
					return nil, false
				}
				out = append(out, ev)
			}
		}
		return out, true
	}
	return nil, false
}
