// Package plan normalizes a Terraform plan export into an immutable snapshot
// that rule evaluators can read concurrently.
package plan

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Action is the planned operation for a single resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionNoop   Action = "no-op"
)

// ResourceChange is one planned resource action. Attribute values are cty
// values, which carry the unknown/null distinction natively: a value that
// depends on a resource not yet created reports IsKnown() == false, and
// evaluators must skip checks on it rather than fail them.
type ResourceChange struct {
	Address    string
	Type       string
	Name       string
	Action     Action
	Attributes map[string]cty.Value
	Tags       cty.Value

	// Unresolved marks a change whose entire attribute object is unknown at
	// plan time. Attribute lookups on such a change report unknown, not
	// absent, so absence checks cannot fire on it.
	Unresolved bool
}

// Attr returns the named attribute, or cty.NilVal when absent. On an
// unresolved change every attribute reports unknown.
func (rc *ResourceChange) Attr(name string) cty.Value {
	v, ok := rc.Attributes[name]
	if !ok {
		if rc.Unresolved {
			return cty.UnknownVal(cty.DynamicPseudoType)
		}
		return cty.NilVal
	}
	return v
}

// AttrString returns the attribute as a string. The bool is false when the
// attribute is absent, unknown, null, or not a string.
func (rc *ResourceChange) AttrString(name string) (string, bool) {
	v := rc.Attr(name)
	if v == cty.NilVal || !v.IsKnown() || v.IsNull() || v.Type() != cty.String {
		return "", false
	}
	return v.AsString(), true
}

// AttrBool returns the attribute as a bool, false-ok on absent/unknown/null.
func (rc *ResourceChange) AttrBool(name string) (bool, bool) {
	v := rc.Attr(name)
	if v == cty.NilVal || !v.IsKnown() || v.IsNull() || v.Type() != cty.Bool {
		return false, false
	}
	return v.True(), true
}

// AttrNumber returns the attribute as a float64, false-ok on absent/unknown/null.
func (rc *ResourceChange) AttrNumber(name string) (float64, bool) {
	v := rc.Attr(name)
	if v == cty.NilVal || !v.IsKnown() || v.IsNull() || v.Type() != cty.Number {
		return 0, false
	}
	f, _ := v.AsBigFloat().Float64()
	return f, true
}

// TagsKnown reports whether the tag map itself resolved. Unknown tag maps are
// skipped wholesale by evaluators.
func (rc *ResourceChange) TagsKnown() bool {
	return rc.Tags != cty.NilVal && rc.Tags.IsKnown()
}

// TagMap returns resolved tags as key -> value. Keys whose values are unknown
// are returned with cty.UnknownVal so callers can skip them individually.
func (rc *ResourceChange) TagMap() map[string]cty.Value {
	if !rc.TagsKnown() || rc.Tags.IsNull() {
		return nil
	}
	t := rc.Tags.Type()
	if !t.IsObjectType() && !t.IsMapType() {
		return nil
	}
	if rc.Tags.LengthInt() == 0 {
		return map[string]cty.Value{}
	}
	return rc.Tags.AsValueMap()
}

// Planned reports whether the change provisions or mutates a resource.
func (rc *ResourceChange) Planned() bool {
	return rc.Action == ActionCreate || rc.Action == ActionUpdate
}

// Snapshot is the immutable input to a policy run: every resource action
// exactly once, plus an optional prior-state monthly cost baseline keyed by
// resource type. Built once per run and never mutated.
type Snapshot struct {
	changes    []*ResourceChange
	priorCosts map[string]float64
}

// NewSnapshot builds a snapshot from already-normalized changes. Used by the
// normalizer and by tests that construct synthetic change-sets.
func NewSnapshot(changes []*ResourceChange, priorCosts map[string]float64) *Snapshot {
	cs := make([]*ResourceChange, len(changes))
	copy(cs, changes)
	pc := make(map[string]float64, len(priorCosts))
	for k, v := range priorCosts {
		pc[k] = v
	}
	return &Snapshot{changes: cs, priorCosts: pc}
}

// Changes returns the planned resource actions in plan order. Callers must
// treat the slice as read-only.
func (s *Snapshot) Changes() []*ResourceChange { return s.changes }

// PriorCost returns the last-known monthly cost for a resource type.
func (s *Snapshot) PriorCost(resourceType string) (float64, bool) {
	c, ok := s.priorCosts[resourceType]
	return c, ok
}

// PriorTotal sums the prior-state cost baseline.
func (s *Snapshot) PriorTotal() float64 {
	var total float64
	for _, c := range s.priorCosts {
		total += c
	}
	return total
}

// NormalizationError reports a structurally malformed change-set. It is fatal:
// the run aborts before any evaluator starts.
type NormalizationError struct {
	Address string
	Reason  string
}

func (e *NormalizationError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("malformed change-set: %s", e.Reason)
	}
	return fmt.Sprintf("malformed change-set at %s: %s", e.Address, e.Reason)
}
