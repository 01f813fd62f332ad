package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planwarden/planwarden/pkg/engine"
	"github.com/planwarden/planwarden/pkg/policy"
)

func result(name string, level policy.EnforcementLevel, violations int) engine.Result {
	pol := policy.Policy{Name: name, Family: policy.FamilyTags, Enforcement: level}
	res := engine.Result{Policy: pol}
	for i := 0; i < violations; i++ {
		res.Violations = append(res.Violations, pol.NewViolation("a.b", "violation %d", i))
	}
	return res
}

func TestDecideAllPass(t *testing.T) {
	run := Decide([]engine.Result{
		result("tags", policy.HardMandatory, 0),
		result("cost", policy.Advisory, 0),
	}, nil)

	assert.Equal(t, StatusPass, run.Overall)
	assert.False(t, run.Blocked)
	assert.Equal(t, 0, run.ExitCode())
	require.Len(t, run.Policies, 2)
	for _, pr := range run.Policies {
		assert.Equal(t, StatusPass, pr.Status)
	}
}

func TestDecideAdvisoryWarnsButNeverBlocks(t *testing.T) {
	run := Decide([]engine.Result{
		result("cost", policy.Advisory, 2),
	}, nil)

	assert.Equal(t, StatusWarn, run.Overall)
	assert.False(t, run.Blocked)
	assert.Equal(t, 0, run.ExitCode())
	assert.Equal(t, StatusWarn, run.Policies[0].Status)
	assert.Len(t, run.Violations, 2)
}

func TestDecideSoftMandatoryBlocks(t *testing.T) {
	run := Decide([]engine.Result{
		result("naming", policy.SoftMandatory, 1),
	}, nil)

	assert.Equal(t, StatusFail, run.Overall)
	assert.True(t, run.Blocked)
	assert.Equal(t, 1, run.ExitCode())
}

func TestDecideSoftMandatoryOverride(t *testing.T) {
	run := Decide([]engine.Result{
		result("naming", policy.SoftMandatory, 1),
	}, []string{"naming"})

	assert.Equal(t, StatusWarn, run.Overall)
	assert.False(t, run.Blocked)
	assert.Equal(t, 0, run.ExitCode())
	assert.True(t, run.Policies[0].Overridden)
	// The violations stay on the record even when waived.
	assert.Len(t, run.Violations, 1)
}

func TestDecideHardMandatoryIgnoresOverride(t *testing.T) {
	run := Decide([]engine.Result{
		result("encryption", policy.HardMandatory, 1),
	}, []string{"encryption"})

	assert.Equal(t, StatusFail, run.Overall)
	assert.True(t, run.Blocked)
	assert.Equal(t, 2, run.ExitCode())
	assert.False(t, run.Policies[0].Overridden)
}

func TestDecideWorstStatusWins(t *testing.T) {
	run := Decide([]engine.Result{
		result("tags", policy.HardMandatory, 0),
		result("cost", policy.Advisory, 1),
		result("naming", policy.SoftMandatory, 1),
	}, nil)

	assert.Equal(t, StatusFail, run.Overall)
	assert.True(t, run.Blocked)
	assert.Equal(t, 1, run.ExitCode())

	// Per-policy statuses are kept individually.
	assert.Equal(t, StatusPass, run.Policies[0].Status)
	assert.Equal(t, StatusWarn, run.Policies[1].Status)
	assert.Equal(t, StatusFail, run.Policies[2].Status)
}

func TestDecideHardOutranksSoftForExitCode(t *testing.T) {
	run := Decide([]engine.Result{
		result("naming", policy.SoftMandatory, 1),
		result("encryption", policy.HardMandatory, 1),
	}, nil)
	assert.Equal(t, 2, run.ExitCode())
}

func TestDecideSortsViolations(t *testing.T) {
	tags := policy.Policy{Name: "tags", Enforcement: policy.Advisory}
	cost := policy.Policy{Name: "cost", Enforcement: policy.Advisory}

	run := Decide([]engine.Result{
		{Policy: tags, Violations: []policy.Violation{
			tags.NewViolation("z.z", "late"),
			tags.NewViolation("a.a", "early"),
		}},
		{Policy: cost, Violations: []policy.Violation{
			cost.NewViolation("m.m", "middle"),
		}},
	}, nil)

	require.Len(t, run.Violations, 3)
	assert.Equal(t, "cost", run.Violations[0].PolicyName)
	assert.Equal(t, "a.a", run.Violations[1].ResourceAddress)
	assert.Equal(t, "z.z", run.Violations[2].ResourceAddress)
}

func TestDecideSortsPlanWideViolationsByMessage(t *testing.T) {
	cost := policy.Policy{Name: "cost", Enforcement: policy.Advisory}

	// Plan-wide violations carry no resource address; the message is the only
	// remaining sort key.
	run := Decide([]engine.Result{
		{Policy: cost, Violations: []policy.Violation{
			cost.NewViolation("", "limit for zone-b exceeded"),
			cost.NewViolation("", "limit for zone-a exceeded"),
		}},
	}, nil)

	require.Len(t, run.Violations, 2)
	assert.Equal(t, "limit for zone-a exceeded", run.Violations[0].Message)
	assert.Equal(t, "limit for zone-b exceeded", run.Violations[1].Message)
}
