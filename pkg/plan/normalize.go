package plan

import (
	"encoding/json"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// rawPlan mirrors the subset of `terraform show -json` output the engine
// consumes.
type rawPlan struct {
	FormatVersion    string              `json:"format_version"`
	TerraformVersion string              `json:"terraform_version"`
	ResourceChanges  []rawResourceChange `json:"resource_changes"`
}

type rawResourceChange struct {
	Address string    `json:"address"`
	Mode    string    `json:"mode"`
	Type    string    `json:"type"`
	Name    string    `json:"name"`
	Change  rawChange `json:"change"`
}

type rawChange struct {
	Actions      []string        `json:"actions"`
	After        json.RawMessage `json:"after"`
	AfterUnknown json.RawMessage `json:"after_unknown"`
}

// Normalize converts a serialized change-set into a Snapshot. Every managed
// resource action is represented exactly once; attribute values listed under
// after_unknown come through as cty unknowns instead of being defaulted, since
// every evaluator relies on that distinction to avoid false positives.
//
// A structurally malformed input (missing address or actions) returns a
// *NormalizationError and no snapshot.
func Normalize(data []byte, priorCosts map[string]float64) (*Snapshot, error) {
	var raw rawPlan
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &NormalizationError{Reason: err.Error()}
	}

	var changes []*ResourceChange
	for _, rc := range raw.ResourceChanges {
		if rc.Mode != "" && rc.Mode != "managed" {
			continue
		}
		if rc.Address == "" {
			return nil, &NormalizationError{Reason: "resource change without address"}
		}
		if len(rc.Change.Actions) == 0 {
			return nil, &NormalizationError{Address: rc.Address, Reason: "resource change without actions"}
		}

		attrs, unresolved, err := decodeAttributes(rc.Change.After, rc.Change.AfterUnknown)
		if err != nil {
			return nil, &NormalizationError{Address: rc.Address, Reason: err.Error()}
		}

		tags := cty.NilVal
		if t, ok := attrs["tags"]; ok {
			tags = t
		} else if unresolved {
			tags = cty.UnknownVal(cty.DynamicPseudoType)
		}

		changes = append(changes, &ResourceChange{
			Address:    rc.Address,
			Type:       rc.Type,
			Name:       rc.Name,
			Action:     normalizeAction(rc.Change.Actions),
			Attributes: attrs,
			Tags:       tags,
			Unresolved: unresolved,
		})
	}

	return NewSnapshot(changes, priorCosts), nil
}

// normalizeAction collapses the terraform action list to a single action.
// A ["delete","create"] replacement counts as a create: the replacement
// resource is what the policies must judge.
func normalizeAction(actions []string) Action {
	var hasCreate, hasDelete bool
	for _, a := range actions {
		switch a {
		case "create":
			hasCreate = true
		case "delete":
			hasDelete = true
		case "update":
			return ActionUpdate
		case "no-op":
			return ActionNoop
		case "read":
			return ActionNoop
		}
	}
	switch {
	case hasCreate:
		return ActionCreate
	case hasDelete:
		return ActionDelete
	}
	return ActionNoop
}

// decodeAttributes merges the resolved `after` object with the `after_unknown`
// marker tree into a single attribute map. A wholly unknown object (the
// provider could resolve nothing at plan time) reports unresolved rather than
// decaying to an empty map, which would read as every attribute being absent.
func decodeAttributes(after, afterUnknown json.RawMessage) (map[string]cty.Value, bool, error) {
	known, err := decodeJSONValue(after)
	if err != nil {
		return nil, false, fmt.Errorf("decoding after: %w", err)
	}
	unknown, err := decodeJSONValue(afterUnknown)
	if err != nil {
		return nil, false, fmt.Errorf("decoding after_unknown: %w", err)
	}

	merged := overlayUnknown(known, unknown)
	if merged != cty.NilVal && !merged.IsKnown() {
		return map[string]cty.Value{}, true, nil
	}
	if merged == cty.NilVal || merged.IsNull() {
		return map[string]cty.Value{}, false, nil
	}
	t := merged.Type()
	if !t.IsObjectType() && !t.IsMapType() {
		return nil, false, fmt.Errorf("resource attributes are not an object")
	}
	if merged.LengthInt() == 0 {
		return map[string]cty.Value{}, false, nil
	}
	return merged.AsValueMap(), false, nil
}

func decodeJSONValue(raw json.RawMessage) (cty.Value, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return cty.NilVal, nil
	}
	t, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(raw, t)
}

// overlayUnknown rebuilds a value with cty unknowns wherever the marker tree
// says the provider could not resolve a value at plan time. Markers are either
// `true` (the whole subtree is unknown) or nested objects marking individual
// attributes.
func overlayUnknown(known, unknown cty.Value) cty.Value {
	if unknown == cty.NilVal || unknown.IsNull() || !unknown.IsKnown() {
		return known
	}
	if unknown.Type() == cty.Bool {
		if unknown.True() {
			return cty.UnknownVal(cty.DynamicPseudoType)
		}
		return known
	}

	ut := unknown.Type()
	if ut.IsObjectType() || ut.IsMapType() {
		knownVals := map[string]cty.Value{}
		if known != cty.NilVal && known.IsKnown() && !known.IsNull() {
			kt := known.Type()
			if (kt.IsObjectType() || kt.IsMapType()) && known.LengthInt() > 0 {
				knownVals = known.AsValueMap()
			}
		}
		out := make(map[string]cty.Value, len(knownVals))
		for k, v := range knownVals {
			out[k] = v
		}
		if unknown.LengthInt() > 0 {
			for k, u := range unknown.AsValueMap() {
				merged := overlayUnknown(out[k], u)
				if merged == cty.NilVal {
					merged = cty.NullVal(cty.DynamicPseudoType)
				}
				out[k] = merged
			}
		}
		if len(out) == 0 {
			return cty.EmptyObjectVal
		}
		return cty.ObjectVal(out)
	}

	if ut.IsTupleType() || ut.IsListType() {
		var knownEls []cty.Value
		if known != cty.NilVal && known.IsKnown() && !known.IsNull() {
			kt := known.Type()
			if (kt.IsTupleType() || kt.IsListType()) && known.LengthInt() > 0 {
				knownEls = known.AsValueSlice()
			}
		}
		unknownEls := []cty.Value{}
		if unknown.LengthInt() > 0 {
			unknownEls = unknown.AsValueSlice()
		}
		n := len(knownEls)
		if len(unknownEls) > n {
			n = len(unknownEls)
		}
		if n == 0 {
			return known
		}
		out := make([]cty.Value, 0, n)
		for i := 0; i < n; i++ {
			var k, u cty.Value
			k = cty.NilVal
			u = cty.NilVal
			if i < len(knownEls) {
				k = knownEls[i]
			}
			if i < len(unknownEls) {
				u = unknownEls[i]
			}
			merged := overlayUnknown(k, u)
			if merged == cty.NilVal {
				merged = cty.NullVal(cty.DynamicPseudoType)
			}
			out = append(out, merged)
		}
		return cty.TupleVal(out)
	}

	return known
}
