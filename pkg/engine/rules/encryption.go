package rules

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/planwarden/planwarden/pkg/environment"
	"github.com/planwarden/planwarden/pkg/plan"
	"github.com/planwarden/planwarden/pkg/policy"
)

// EncryptionEvaluator verifies transport security, minimum TLS versions, and
// production customer-managed keys on storage and database resources.
type EncryptionEvaluator struct{}

func (EncryptionEvaluator) Family() policy.Family { return policy.FamilyEncryption }

func (EncryptionEvaluator) Evaluate(ctx context.Context, snap *plan.Snapshot, pol policy.Policy, env environment.Context) []policy.Violation {
	params, ok := pol.Params.(*policy.EncryptionParams)
	if !ok {
		return nil
	}

	var violations []policy.Violation
	for _, rc := range snap.Changes() {
		if !rc.Planned() || !containsString(params.StorageResourceTypes, rc.Type) {
			continue
		}

		violations = append(violations, checkTransport(pol, rc)...)
		violations = append(violations, checkTLSVersion(pol, params, rc)...)

		if env.Environment == environment.Production && params.RequireCustomerManagedKeysProd {
			violations = append(violations, checkCustomerManagedKey(pol, rc)...)
		}
	}
	return violations
}

func checkTransport(pol policy.Policy, rc *plan.ResourceChange) []policy.Violation {
	v := firstAttr(rc, "https_traffic_only", "enable_https_traffic_only", "https_traffic_only_enabled", "ssl_enforcement_enabled")
	if v != cty.NilVal && !v.IsKnown() {
		return nil
	}
	if v != cty.NilVal && !v.IsNull() && v.Type() == cty.Bool && v.True() {
		return nil
	}
	return []policy.Violation{pol.NewViolation(rc.Address,
		"%s does not enforce encrypted transport (https_traffic_only)", rc.Type)}
}

func checkTLSVersion(pol policy.Policy, params *policy.EncryptionParams, rc *plan.ResourceChange) []policy.Violation {
	v := firstAttr(rc, "min_tls_version", "minimum_tls_version")
	if v != cty.NilVal && !v.IsKnown() {
		return nil
	}
	if v == cty.NilVal || v.IsNull() || v.Type() != cty.String {
		return []policy.Violation{pol.NewViolation(rc.Address,
			"%s does not configure a minimum TLS version", rc.Type)}
	}
	version := v.AsString()
	if !containsString(params.AllowedTLSVersions, version) {
		return []policy.Violation{pol.NewViolation(rc.Address,
			"%s minimum TLS version %q is not in the allowed set %v", rc.Type, version, params.AllowedTLSVersions)}
	}
	return nil
}

func checkCustomerManagedKey(pol policy.Policy, rc *plan.ResourceChange) []policy.Violation {
	v := firstAttr(rc, "customer_managed_key", "customer_managed_key_id", "key_vault_key_id")
	if v != cty.NilVal && !v.IsKnown() {
		return nil
	}
	if v == cty.NilVal || v.IsNull() {
		return []policy.Violation{pol.NewViolation(rc.Address,
			"%s has no customer-managed key and production requires one", rc.Type)}
	}
	return nil
}

// firstAttr returns the first of the named attributes that exists, preferring
// a resolved one so a single unknown alias does not mask a configured value.
func firstAttr(rc *plan.ResourceChange, names ...string) cty.Value {
	found := cty.NilVal
	for _, name := range names {
		v := rc.Attr(name)
		if v == cty.NilVal {
			continue
		}
		if v.IsKnown() {
			return v
		}
		if found == cty.NilVal {
			found = v
		}
	}
	return found
}
