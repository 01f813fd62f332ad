// Package rules implements one evaluator per policy family. Every evaluator
// follows the same contract: read-only over the snapshot, one violation per
// distinct failure, and an unresolved (unknown) value always skips its check
// instead of failing it.
package rules

import (
	"context"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/planwarden/planwarden/pkg/environment"
	"github.com/planwarden/planwarden/pkg/plan"
	"github.com/planwarden/planwarden/pkg/policy"
)

// TagEvaluator enforces mandatory tag presence and tag value constraints.
type TagEvaluator struct{}

func (TagEvaluator) Family() policy.Family { return policy.FamilyTags }

func (TagEvaluator) Evaluate(ctx context.Context, snap *plan.Snapshot, pol policy.Policy, env environment.Context) []policy.Violation {
	params, ok := pol.Params.(*policy.TagParams)
	if !ok {
		return nil
	}

	required := make([]string, 0, len(params.MandatoryTags))
	required = append(required, params.MandatoryTags...)
	required = append(required, params.EnvironmentTags[env.Environment]...)

	var violations []policy.Violation
	for _, rc := range snap.Changes() {
		if !rc.Planned() {
			continue
		}
		// An unresolved tag map means nothing can be said about this
		// resource's tags yet.
		if rc.Tags != cty.NilVal && !rc.Tags.IsKnown() {
			continue
		}
		tags := rc.TagMap()

		for _, key := range required {
			val, present := tags[key]
			if !present {
				violations = append(violations, pol.NewViolation(rc.Address,
					"missing mandatory tag %q", key))
				continue
			}
			if !val.IsKnown() {
				// The tag exists but its value is computed downstream: skip,
				// never flag.
				continue
			}
			if val.IsNull() {
				violations = append(violations, pol.NewViolation(rc.Address,
					"mandatory tag %q has no value", key))
				continue
			}
			violations = append(violations, checkTagValue(pol, params, rc.Address, key, val)...)
		}
	}
	return violations
}

func checkTagValue(pol policy.Policy, params *policy.TagParams, address, key string, val cty.Value) []policy.Violation {
	sv, err := convert.Convert(val, cty.String)
	if err != nil || sv.IsNull() {
		return []policy.Violation{pol.NewViolation(address,
			"tag %q has a non-string value", key)}
	}
	s := sv.AsString()

	var violations []policy.Violation
	if params.TagValueMinLength > 0 && len(s) < params.TagValueMinLength {
		violations = append(violations, pol.NewViolation(address,
			"tag %q value %q is shorter than %d characters", key, s, params.TagValueMinLength))
	}
	if params.TagValueMaxLength > 0 && len(s) > params.TagValueMaxLength {
		violations = append(violations, pol.NewViolation(address,
			"tag %q value %q is longer than %d characters", key, s, params.TagValueMaxLength))
	}
	if re, ok := params.Patterns[key]; ok && !re.MatchString(s) {
		violations = append(violations, pol.NewViolation(address,
			"tag %q value %q does not match pattern %q", key, s, re.String()))
	}
	return violations
}
