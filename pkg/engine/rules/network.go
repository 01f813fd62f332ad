package rules

import (
	"context"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/planwarden/planwarden/pkg/environment"
	"github.com/planwarden/planwarden/pkg/plan"
	"github.com/planwarden/planwarden/pkg/policy"
)

// NetworkEvaluator flags inbound rules open to any source on disallowed
// ports, missing production DDoS/WAF protections, and suspiciously loose rule
// priorities.
type NetworkEvaluator struct{}

func (NetworkEvaluator) Family() policy.Family { return policy.FamilyNetwork }

func (NetworkEvaluator) Evaluate(ctx context.Context, snap *plan.Snapshot, pol policy.Policy, env environment.Context) []policy.Violation {
	params, ok := pol.Params.(*policy.NetworkParams)
	if !ok {
		return nil
	}

	var violations []policy.Violation
	for _, rc := range snap.Changes() {
		if !rc.Planned() {
			continue
		}

		for _, rule := range securityRules(rc) {
			violations = append(violations, checkRule(pol, params, rc.Address, rule)...)
		}

		if env.Environment == environment.Production {
			violations = append(violations, checkProductionHardening(pol, params, rc)...)
		}
	}
	return violations
}

// securityRule is a normalized view over one inbound/outbound rule, whether it
// came from a standalone rule resource or an inline rule block.
type securityRule struct {
	direction string
	access    string
	source    cty.Value
	ports     cty.Value
	priority  cty.Value
}

// securityRules extracts rules from a resource: standalone rule resources
// carry the attributes at top level, security groups carry a security_rule
// collection.
func securityRules(rc *plan.ResourceChange) []securityRule {
	if _, ok := rc.Attributes["direction"]; ok {
		return []securityRule{ruleFromAttrs(rc.Attributes)}
	}

	inline := rc.Attr("security_rule")
	if inline == cty.NilVal || !inline.IsKnown() || inline.IsNull() {
		return nil
	}
	t := inline.Type()
	if !t.IsTupleType() && !t.IsListType() && !t.IsSetType() {
		return nil
	}
	if inline.LengthInt() == 0 {
		return nil
	}

	var rules []securityRule
	for _, el := range inline.AsValueSlice() {
		if !el.IsKnown() || el.IsNull() {
			continue
		}
		et := el.Type()
		if !et.IsObjectType() && !et.IsMapType() {
			continue
		}
		if el.LengthInt() == 0 {
			continue
		}
		rules = append(rules, ruleFromAttrs(el.AsValueMap()))
	}
	return rules
}

func ruleFromAttrs(attrs map[string]cty.Value) securityRule {
	get := func(names ...string) cty.Value {
		for _, n := range names {
			if v, ok := attrs[n]; ok {
				return v
			}
		}
		return cty.NilVal
	}
	return securityRule{
		direction: knownString(get("direction")),
		access:    knownString(get("access")),
		source:    get("source_address_prefix", "source_address_prefixes", "source"),
		ports:     get("destination_port_range", "destination_port_ranges"),
		priority:  get("priority"),
	}
}

func knownString(v cty.Value) string {
	if v == cty.NilVal || !v.IsKnown() || v.IsNull() || v.Type() != cty.String {
		return ""
	}
	return v.AsString()
}

func checkRule(pol policy.Policy, params *policy.NetworkParams, address string, rule securityRule) []policy.Violation {
	var violations []policy.Violation

	if rule.priority != cty.NilVal && rule.priority.IsKnown() && !rule.priority.IsNull() && rule.priority.Type() == cty.Number {
		p, _ := rule.priority.AsBigFloat().Float64()
		if params.MaxPriorityThreshold > 0 && int(p) > params.MaxPriorityThreshold {
			violations = append(violations, pol.NewViolation(address,
				"rule priority %d is above threshold %d; later rules may shadow it",
				int(p), params.MaxPriorityThreshold))
		}
	}

	if !strings.EqualFold(rule.direction, "Inbound") {
		return violations
	}
	if rule.access != "" && strings.EqualFold(rule.access, "Deny") {
		return violations
	}

	// An unresolved source or port range cannot be judged yet: skip.
	anySource, sourceKnown := sourceIsAny(rule.source)
	if !sourceKnown || !anySource {
		return violations
	}
	ports, portsKnown := portSet(rule.ports)
	if !portsKnown {
		return violations
	}

	if ports.wildcard {
		violations = append(violations, pol.NewViolation(address,
			"inbound rule allows any source to every port"))
		return violations
	}

	allowed := make(map[int]bool, len(params.AllowedPublicPorts))
	for _, p := range params.AllowedPublicPorts {
		allowed[p] = true
	}
	management := make(map[int]bool, len(params.ManagementPorts))
	for _, p := range params.ManagementPorts {
		management[p] = true
	}

	for _, port := range ports.ports {
		switch {
		case management[port]:
			// Management ports are never public, regardless of the allow list.
			violations = append(violations, pol.NewViolation(address,
				"inbound rule exposes management port %d to any source", port))
		case !allowed[port]:
			violations = append(violations, pol.NewViolation(address,
				"inbound rule exposes port %d to any source and %d is not an allowed public port", port, port))
		}
	}
	return violations
}

// sourceIsAny reports whether the rule's source prefix denotes "any source".
// The second return is false when the source is not yet resolvable.
func sourceIsAny(v cty.Value) (isAny, known bool) {
	if v == cty.NilVal {
		return false, true
	}
	if !v.IsKnown() {
		return false, false
	}
	if v.IsNull() {
		return false, true
	}

	check := func(s string) bool {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "*", "0.0.0.0/0", "any", "internet":
			return true
		}
		return false
	}

	if v.Type() == cty.String {
		return check(v.AsString()), true
	}
	t := v.Type()
	if (t.IsTupleType() || t.IsListType() || t.IsSetType()) && v.LengthInt() > 0 {
		for _, el := range v.AsValueSlice() {
			if !el.IsKnown() {
				return false, false
			}
			if !el.IsNull() && el.Type() == cty.String && check(el.AsString()) {
				return true, true
			}
		}
	}
	return false, true
}

type portRange struct {
	wildcard bool
	ports    []int
}

// portSet expands a destination port value ("443", "80-82", "80,443", "*",
// or a list of those) to the covered ports. The second return is false when
// the value is not yet resolvable.
func portSet(v cty.Value) (portRange, bool) {
	var out portRange
	if v == cty.NilVal {
		return out, true
	}
	if !v.IsKnown() {
		return out, false
	}
	if v.IsNull() {
		return out, true
	}

	var specs []string
	switch {
	case v.Type() == cty.String:
		specs = []string{v.AsString()}
	case v.Type() == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		specs = []string{strconv.Itoa(int(f))}
	default:
		t := v.Type()
		if (t.IsTupleType() || t.IsListType() || t.IsSetType()) && v.LengthInt() > 0 {
			for _, el := range v.AsValueSlice() {
				if !el.IsKnown() {
					return out, false
				}
				if el.IsNull() {
					continue
				}
				if el.Type() == cty.String {
					specs = append(specs, el.AsString())
				} else if el.Type() == cty.Number {
					f, _ := el.AsBigFloat().Float64()
					specs = append(specs, strconv.Itoa(int(f)))
				}
			}
		}
	}

	for _, spec := range specs {
		for _, part := range strings.Split(spec, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if part == "*" {
				out.wildcard = true
				continue
			}
			if lo, hi, ok := strings.Cut(part, "-"); ok {
				start, err1 := strconv.Atoi(strings.TrimSpace(lo))
				end, err2 := strconv.Atoi(strings.TrimSpace(hi))
				if err1 != nil || err2 != nil || start > end {
					continue
				}
				for p := start; p <= end; p++ {
					out.ports = append(out.ports, p)
				}
				continue
			}
			if p, err := strconv.Atoi(part); err == nil {
				out.ports = append(out.ports, p)
			}
		}
	}
	return out, true
}

// checkProductionHardening requires DDoS protection on network perimeter
// types and a WAF on load-balancing/gateway types when deploying to
// production.
func checkProductionHardening(pol policy.Policy, params *policy.NetworkParams, rc *plan.ResourceChange) []policy.Violation {
	var violations []policy.Violation

	if containsString(params.DDoSResourceTypes, rc.Type) {
		if v, known := presenceOrBool(rc, "ddos_protection_enabled", "ddos_protection_plan"); known && !v {
			violations = append(violations, pol.NewViolation(rc.Address,
				"%s has no DDoS protection configured and this is a production deployment", rc.Type))
		}
	}

	if containsString(params.GatewayResourceTypes, rc.Type) {
		if v, known := presenceOrBool(rc, "waf_enabled", "waf_configuration"); known && !v {
			violations = append(violations, pol.NewViolation(rc.Address,
				"%s has no WAF configured and this is a production deployment", rc.Type))
		}
	}
	return violations
}

// presenceOrBool checks a set of alternative attributes: a bool attribute
// must be true, any other type merely has to be present and non-null. The
// second return is false when every candidate found is unknown.
func presenceOrBool(rc *plan.ResourceChange, names ...string) (satisfied, known bool) {
	sawUnknown := false
	for _, name := range names {
		v := rc.Attr(name)
		if v == cty.NilVal {
			continue
		}
		if !v.IsKnown() {
			sawUnknown = true
			continue
		}
		if v.IsNull() {
			continue
		}
		if v.Type() == cty.Bool {
			if v.True() {
				return true, true
			}
			continue
		}
		// A present non-null block (e.g. a ddos_protection_plan object)
		// counts as configured.
		return true, true
	}
	if sawUnknown {
		return false, false
	}
	return false, true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
