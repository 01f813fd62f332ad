package rules

import (
	"context"
	"regexp"
	"strings"

	"github.com/planwarden/planwarden/pkg/environment"
	"github.com/planwarden/planwarden/pkg/plan"
	"github.com/planwarden/planwarden/pkg/policy"
)

var trailingSequence = regexp.MustCompile(`[0-9]+$`)

// NamingEvaluator enforces the organization naming convention: prefix, type
// abbreviation, environment abbreviation, optional trailing sequence number,
// prohibited words, and per-type length caps.
type NamingEvaluator struct{}

func (NamingEvaluator) Family() policy.Family { return policy.FamilyNaming }

func (NamingEvaluator) Evaluate(ctx context.Context, snap *plan.Snapshot, pol policy.Policy, env environment.Context) []policy.Violation {
	params, ok := pol.Params.(*policy.NamingParams)
	if !ok {
		return nil
	}

	var violations []policy.Violation
	for _, rc := range snap.Changes() {
		if !rc.Planned() {
			continue
		}
		name, ok := rc.AttrString("name")
		if !ok {
			// Absent, unknown, or non-string names have nothing to validate
			// yet; a name that resolves later is not a violation.
			continue
		}
		lower := strings.ToLower(name)

		// Prohibited words apply to every named resource, mapped type or not.
		for _, word := range params.ProhibitedWords {
			if word != "" && strings.Contains(lower, strings.ToLower(word)) {
				violations = append(violations, pol.NewViolation(rc.Address,
					"name %q contains prohibited word %q", name, word))
			}
		}

		if max := params.MaxLengthFor(rc.Type); max > 0 && len(name) > max {
			violations = append(violations, pol.NewViolation(rc.Address,
				"name %q is %d characters, exceeding the %d character limit for %s",
				name, len(name), max, rc.Type))
		}

		abbr, mapped := params.ResourceTypeAbbreviations[rc.Type]
		if !mapped {
			continue
		}

		if !strings.Contains(name, params.OrganizationPrefix) {
			violations = append(violations, pol.NewViolation(rc.Address,
				"name %q is missing organization prefix %q", name, params.OrganizationPrefix))
		}
		if !strings.Contains(name, abbr) {
			violations = append(violations, pol.NewViolation(rc.Address,
				"name %q is missing type abbreviation %q for %s", name, abbr, rc.Type))
		}
		if envAbbr, ok := params.EnvironmentAbbreviations[env.Environment]; ok {
			if !strings.Contains(name, envAbbr) {
				violations = append(violations, pol.NewViolation(rc.Address,
					"name %q is missing environment abbreviation %q for %s", name, envAbbr, env.Environment))
			}
		}
		if params.RequireSequenceNumber && !trailingSequence.MatchString(name) {
			violations = append(violations, pol.NewViolation(rc.Address,
				"name %q is missing a trailing sequence number", name))
		}
	}
	return violations
}
