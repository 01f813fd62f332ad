package rules

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/planwarden/planwarden/pkg/environment"
	"github.com/planwarden/planwarden/pkg/plan"
	"github.com/planwarden/planwarden/pkg/policy"
)

func tagPolicy(params *policy.TagParams) policy.Policy {
	return testPolicy("mandatory-tags", policy.FamilyTags, params)
}

func devEnv() environment.Context {
	return environment.Context{Environment: environment.Development, Workspace: "dev-sandbox"}
}

func prodEnv() environment.Context {
	return environment.Context{Environment: environment.Production, Workspace: "prod-eastus"}
}

func TestTagsMissingMandatory(t *testing.T) {
	snap := snapOf(change("azurerm_storage_account.logs", plan.ActionCreate, map[string]cty.Value{
		"tags": tagsVal(map[string]cty.Value{"owner": cty.StringVal("platform")}),
	}))
	pol := tagPolicy(&policy.TagParams{MandatoryTags: []string{"owner", "cost-center"}})

	vs := TagEvaluator{}.Evaluate(context.Background(), snap, pol, devEnv())
	require.Len(t, vs, 1)
	assert.Equal(t, "azurerm_storage_account.logs", vs[0].ResourceAddress)
	assert.Contains(t, vs[0].Message, "cost-center")
}

func TestTagsUnknownValueIsNotAViolation(t *testing.T) {
	snap := snapOf(change("azurerm_storage_account.logs", plan.ActionCreate, map[string]cty.Value{
		"tags": tagsVal(map[string]cty.Value{
			"owner":       cty.StringVal("platform"),
			"cost-center": cty.UnknownVal(cty.String),
		}),
	}))
	pol := tagPolicy(&policy.TagParams{MandatoryTags: []string{"owner", "cost-center"}})

	vs := TagEvaluator{}.Evaluate(context.Background(), snap, pol, devEnv())
	assert.Empty(t, vs)
}

func TestTagsUnknownTagMapSkipsResource(t *testing.T) {
	rc := change("azurerm_storage_account.logs", plan.ActionCreate, map[string]cty.Value{
		"tags": cty.UnknownVal(cty.Map(cty.String)),
	})
	pol := tagPolicy(&policy.TagParams{MandatoryTags: []string{"owner"}})

	vs := TagEvaluator{}.Evaluate(context.Background(), snapOf(rc), pol, devEnv())
	assert.Empty(t, vs)
}

func TestTagsWhollyUnresolvedResource(t *testing.T) {
	// Nothing resolved at plan time means nothing can be said about tags:
	// a mandatory tag must not read as missing.
	snap := snapOf(unresolvedChange("azurerm_storage_account.pending"))
	pol := tagPolicy(&policy.TagParams{MandatoryTags: []string{"owner"}})
	assert.Empty(t, TagEvaluator{}.Evaluate(context.Background(), snap, pol, devEnv()))
}

func TestTagsNullValueIsAViolation(t *testing.T) {
	snap := snapOf(change("azurerm_storage_account.logs", plan.ActionCreate, map[string]cty.Value{
		"tags": tagsVal(map[string]cty.Value{"owner": cty.NullVal(cty.String)}),
	}))
	pol := tagPolicy(&policy.TagParams{MandatoryTags: []string{"owner"}})

	vs := TagEvaluator{}.Evaluate(context.Background(), snap, pol, devEnv())
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "no value")
}

func TestTagsEnvironmentSpecific(t *testing.T) {
	snap := snapOf(change("azurerm_sql_database.app", plan.ActionCreate, map[string]cty.Value{
		"tags": tagsVal(map[string]cty.Value{"owner": cty.StringVal("platform")}),
	}))
	pol := tagPolicy(&policy.TagParams{
		MandatoryTags:   []string{"owner"},
		EnvironmentTags: map[environment.Environment][]string{environment.Production: {"backup-policy"}},
	})

	assert.Empty(t, TagEvaluator{}.Evaluate(context.Background(), snap, pol, devEnv()))

	vs := TagEvaluator{}.Evaluate(context.Background(), snap, pol, prodEnv())
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "backup-policy")
}

func TestTagsValueConstraints(t *testing.T) {
	params := &policy.TagParams{
		MandatoryTags:     []string{"owner", "cost-center"},
		TagValueMinLength: 2,
		TagValueMaxLength: 10,
		Patterns: map[string]*regexp.Regexp{
			"cost-center": regexp.MustCompile(`^cc-[0-9]+$`),
		},
	}

	snap := snapOf(change("azurerm_storage_account.logs", plan.ActionCreate, map[string]cty.Value{
		"tags": tagsVal(map[string]cty.Value{
			"owner":       cty.StringVal("x"),
			"cost-center": cty.StringVal("finance"),
		}),
	}))

	vs := TagEvaluator{}.Evaluate(context.Background(), snap, tagPolicy(params), devEnv())
	require.Len(t, vs, 2)

	ok := snapOf(change("azurerm_storage_account.logs", plan.ActionCreate, map[string]cty.Value{
		"tags": tagsVal(map[string]cty.Value{
			"owner":       cty.StringVal("platform"),
			"cost-center": cty.StringVal("cc-42"),
		}),
	}))
	assert.Empty(t, TagEvaluator{}.Evaluate(context.Background(), ok, tagPolicy(params), devEnv()))
}

func TestTagsIgnoresUnplannedResources(t *testing.T) {
	snap := snapOf(
		change("azurerm_storage_account.old", plan.ActionDelete, nil),
		change("azurerm_storage_account.noop", plan.ActionNoop, nil),
	)
	pol := tagPolicy(&policy.TagParams{MandatoryTags: []string{"owner"}})
	assert.Empty(t, TagEvaluator{}.Evaluate(context.Background(), snap, pol, devEnv()))
}
