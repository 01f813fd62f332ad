package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/planwarden/planwarden/pkg/environment"
	"github.com/planwarden/planwarden/pkg/plan"
	"github.com/planwarden/planwarden/pkg/policy"
)

func namingParams() *policy.NamingParams {
	return &policy.NamingParams{
		OrganizationPrefix: "contoso",
		ResourceTypeAbbreviations: map[string]string{
			"azurerm_storage_account": "st",
			"azurerm_virtual_machine": "vm",
		},
		EnvironmentAbbreviations: map[environment.Environment]string{
			environment.Production:  "prod",
			environment.Development: "dev",
		},
		RequireSequenceNumber: true,
		ProhibitedWords:       []string{"temp", "test"},
		MaxNameLengths:        map[string]int{"azurerm_storage_account": 24, "default": 80},
	}
}

func named(address, name string) *plan.ResourceChange {
	return change(address, plan.ActionCreate, map[string]cty.Value{
		"name": cty.StringVal(name),
	})
}

func TestNamingCompliantNamePasses(t *testing.T) {
	// prefix + type abbreviation + purpose + environment + sequence number.
	snap := snapOf(named("azurerm_storage_account.logs", "contosostlogsprod01"))
	pol := testPolicy("naming-convention", policy.FamilyNaming, namingParams())
	assert.Empty(t, NamingEvaluator{}.Evaluate(context.Background(), snap, pol, prodEnv()))
}

func TestNamingViolations(t *testing.T) {
	pol := testPolicy("naming-convention", policy.FamilyNaming, namingParams())

	cases := []struct {
		name     string
		resource string
		want     int
		fragment string
	}{
		{"contosostprod01", "azurerm_storage_account.ok", 0, ""},
		{"stprod01", "azurerm_storage_account.noprefix", 1, "organization prefix"},
		{"contosoprod01", "azurerm_storage_account.noabbr", 1, "type abbreviation"},
		{"contosost01", "azurerm_storage_account.noenv", 1, "environment abbreviation"},
		{"contosostprod", "azurerm_storage_account.noseq", 1, "sequence number"},
		{"contosotempstprod01", "azurerm_storage_account.tempword", 1, "prohibited word"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := snapOf(named(tc.resource, tc.name))
			vs := NamingEvaluator{}.Evaluate(context.Background(), snap, pol, prodEnv())
			require.Len(t, vs, tc.want)
			if tc.want > 0 {
				assert.Contains(t, vs[0].Message, tc.fragment)
			}
		})
	}
}

func TestNamingLengthCap(t *testing.T) {
	pol := testPolicy("naming-convention", policy.FamilyNaming, namingParams())

	long := "contosostprod0000000000001" // 26 chars, cap for storage accounts is 24
	snap := snapOf(named("azurerm_storage_account.long", long))
	vs := NamingEvaluator{}.Evaluate(context.Background(), snap, pol, prodEnv())
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "character limit")

	// The same name is fine for a type that falls back to the default cap.
	snap = snapOf(named("azurerm_virtual_machine.long", "contosovmprod0000000000001"))
	assert.Empty(t, NamingEvaluator{}.Evaluate(context.Background(), snap, pol, prodEnv()))
}

func TestNamingProhibitedWordsApplyToUnmappedTypes(t *testing.T) {
	pol := testPolicy("naming-convention", policy.FamilyNaming, namingParams())
	snap := snapOf(named("azurerm_resource_group.rg", "temp-rg"))
	vs := NamingEvaluator{}.Evaluate(context.Background(), snap, pol, devEnv())
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "temp")
}

func TestNamingUnknownNameSkips(t *testing.T) {
	pol := testPolicy("naming-convention", policy.FamilyNaming, namingParams())
	snap := snapOf(
		change("azurerm_storage_account.computed", plan.ActionCreate, map[string]cty.Value{
			"name": cty.UnknownVal(cty.String),
		}),
		change("azurerm_storage_account.unnamed", plan.ActionCreate, nil),
	)
	assert.Empty(t, NamingEvaluator{}.Evaluate(context.Background(), snap, pol, prodEnv()))
}
