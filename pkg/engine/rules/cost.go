package rules

import (
	"context"
	"sort"

	"github.com/planwarden/planwarden/pkg/environment"
	"github.com/planwarden/planwarden/pkg/plan"
	"github.com/planwarden/planwarden/pkg/policy"
	"github.com/planwarden/planwarden/pkg/pricing"
)

// CostEvaluator checks aggregate estimated monthly spend against the
// environment's ceiling, the growth against the prior-state baseline,
// expensive types outside production, and per-type resource count limits.
type CostEvaluator struct {
	Estimates *pricing.Estimates
}

func (CostEvaluator) Family() policy.Family { return policy.FamilyCost }

func (e CostEvaluator) Evaluate(ctx context.Context, snap *plan.Snapshot, pol policy.Policy, env environment.Context) []policy.Violation {
	params, ok := pol.Params.(*policy.CostParams)
	if !ok {
		return nil
	}
	est := e.Estimates
	if est == nil {
		est = pricing.Defaults()
	}

	var violations []policy.Violation
	var total float64
	createCounts := map[string]int{}

	for _, rc := range snap.Changes() {
		if !rc.Planned() {
			continue
		}
		total += est.Cost(rc.Type)

		if rc.Action == plan.ActionCreate {
			createCounts[rc.Type]++
		}

		if env.Environment != environment.Production && containsString(params.ExpensiveResourceTypes, rc.Type) {
			violations = append(violations, pol.NewViolation(rc.Address,
				"expensive resource type %s is not permitted in %s", rc.Type, env.Environment))
		}
	}

	if limit, ok := params.MonthlyCostLimits[env.Environment]; ok && total > limit {
		violations = append(violations, pol.NewViolation("",
			"estimated monthly cost $%.2f exceeds the $%.2f limit for %s", total, limit, env.Environment))
	}

	if prior := snap.PriorTotal(); prior > 0 && params.CostIncreasePercentageLimit > 0 {
		increase := (total - prior) / prior * 100
		if increase > params.CostIncreasePercentageLimit {
			violations = append(violations, pol.NewViolation("",
				"estimated monthly cost $%.2f is %.1f%% above the prior $%.2f, exceeding the %.1f%% increase limit",
				total, increase, prior, params.CostIncreasePercentageLimit))
		}
	}

	if limits, ok := params.MaxResourceCounts[env.Environment]; ok {
		// Limits iterate in sorted type order so repeated runs emit identical
		// violation lists.
		types := make([]string, 0, len(limits))
		for resourceType := range limits {
			types = append(types, resourceType)
		}
		sort.Strings(types)
		for _, resourceType := range types {
			if n, max := createCounts[resourceType], limits[resourceType]; n > max {
				violations = append(violations, pol.NewViolation("",
					"plan creates %d %s resources, exceeding the limit of %d for %s",
					n, resourceType, max, env.Environment))
			}
		}
	}
	return violations
}
