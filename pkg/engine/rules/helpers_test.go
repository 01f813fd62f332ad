package rules

import (
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/planwarden/planwarden/pkg/plan"
	"github.com/planwarden/planwarden/pkg/policy"
)

// change builds a normalized resource change the way the plan normalizer
// would, including lifting tags out of the attribute map.
func change(address string, action plan.Action, attrs map[string]cty.Value) *plan.ResourceChange {
	parts := strings.SplitN(address, ".", 2)
	rc := &plan.ResourceChange{
		Address:    address,
		Type:       parts[0],
		Action:     action,
		Attributes: attrs,
		Tags:       cty.NilVal,
	}
	if len(parts) == 2 {
		rc.Name = parts[1]
	}
	if attrs != nil {
		if t, ok := attrs["tags"]; ok {
			rc.Tags = t
		}
	}
	return rc
}

func snapOf(changes ...*plan.ResourceChange) *plan.Snapshot {
	return plan.NewSnapshot(changes, nil)
}

// unresolvedChange builds a change whose whole attribute object is unknown at
// plan time, as the normalizer produces for after_unknown = true.
func unresolvedChange(address string) *plan.ResourceChange {
	rc := change(address, plan.ActionCreate, map[string]cty.Value{})
	rc.Tags = cty.UnknownVal(cty.DynamicPseudoType)
	rc.Unresolved = true
	return rc
}

func tagsVal(kv map[string]cty.Value) cty.Value {
	if len(kv) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(kv)
}

func testPolicy(name string, family policy.Family, params any) policy.Policy {
	return policy.Policy{
		Name:        name,
		Family:      family,
		Enforcement: policy.SoftMandatory,
		Params:      params,
	}
}
