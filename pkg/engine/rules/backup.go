package rules

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/planwarden/planwarden/pkg/environment"
	"github.com/planwarden/planwarden/pkg/plan"
	"github.com/planwarden/planwarden/pkg/policy"
)

// BackupEvaluator requires backup enablement and sufficient retention on
// critical resource types. Production is always checked; other environments
// only when their requirement explicitly demands daily backups, so an
// environment entry that omits daily_backup is exempt.
type BackupEvaluator struct{}

func (BackupEvaluator) Family() policy.Family { return policy.FamilyBackup }

func (BackupEvaluator) Evaluate(ctx context.Context, snap *plan.Snapshot, pol policy.Policy, env environment.Context) []policy.Violation {
	params, ok := pol.Params.(*policy.BackupParams)
	if !ok {
		return nil
	}

	req, configured := params.Requirements[env.Environment]
	if !configured {
		return nil
	}
	if env.Environment != environment.Production && !req.DailyBackup {
		return nil
	}

	var violations []policy.Violation
	for _, rc := range snap.Changes() {
		if !rc.Planned() || !containsString(params.CriticalResourceTypes, rc.Type) {
			continue
		}

		enabled, retention, known := backupConfig(rc)
		if !known {
			continue
		}
		if !enabled {
			violations = append(violations, pol.NewViolation(rc.Address,
				"%s has no backup configured and %s requires one", rc.Type, env.Environment))
			continue
		}
		if retention >= 0 && retention < req.RetentionDays {
			violations = append(violations, pol.NewViolation(rc.Address,
				"%s backup retention of %d days is below the required %d for %s",
				rc.Type, retention, req.RetentionDays, env.Environment))
		} else if retention < 0 && req.RetentionDays > 0 {
			violations = append(violations, pol.NewViolation(rc.Address,
				"%s does not configure backup retention; %s requires %d days",
				rc.Type, env.Environment, req.RetentionDays))
		}
	}
	return violations
}

// backupConfig extracts backup enablement and retention days from the shapes
// critical resources use: a `backup` block with retention inside, or flat
// `backup_enabled`/`backup_retention_days` attributes. retention is -1 when
// not configured; known is false while any needed value is still unresolved.
func backupConfig(rc *plan.ResourceChange) (enabled bool, retention int, known bool) {
	retention = -1

	if block := rc.Attr("backup"); block != cty.NilVal {
		if !block.IsKnown() {
			return false, -1, false
		}
		if !block.IsNull() {
			bt := block.Type()
			if (bt.IsObjectType() || bt.IsMapType()) && block.LengthInt() > 0 {
				attrs := block.AsValueMap()
				enabled = true
				if e, ok := attrs["enabled"]; ok {
					if !e.IsKnown() {
						return false, -1, false
					}
					enabled = !e.IsNull() && e.Type() == cty.Bool && e.True()
				}
				if r, ok := firstOf(attrs, "retention_days", "retention_in_days", "count"); ok {
					if !r.IsKnown() {
						return enabled, -1, false
					}
					if !r.IsNull() && r.Type() == cty.Number {
						f, _ := r.AsBigFloat().Float64()
						retention = int(f)
					}
				}
				return enabled, retention, true
			}
		}
	}

	if v := rc.Attr("backup_enabled"); v != cty.NilVal {
		if !v.IsKnown() {
			return false, -1, false
		}
		enabled = !v.IsNull() && v.Type() == cty.Bool && v.True()
	} else if v := rc.Attr("geo_redundant_backup_enabled"); v != cty.NilVal {
		if !v.IsKnown() {
			return false, -1, false
		}
		enabled = !v.IsNull() && v.Type() == cty.Bool && v.True()
	}

	if v, ok := firstOf(rc.Attributes, "backup_retention_days", "retention_days"); ok {
		if !v.IsKnown() {
			return enabled, -1, false
		}
		if !v.IsNull() && v.Type() == cty.Number {
			f, _ := v.AsBigFloat().Float64()
			retention = int(f)
			if !enabled && retention > 0 {
				// Retention configured implies backups are on for types that
				// have no separate enable flag.
				enabled = true
			}
		}
	}

	return enabled, retention, true
}

func firstOf(attrs map[string]cty.Value, names ...string) (cty.Value, bool) {
	for _, n := range names {
		if v, ok := attrs[n]; ok {
			return v, true
		}
	}
	return cty.NilVal, false
}
