package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planwarden/planwarden/pkg/engine"
	"github.com/planwarden/planwarden/pkg/engine/decision"
	"github.com/planwarden/planwarden/pkg/environment"
	"github.com/planwarden/planwarden/pkg/policy"
)

func sampleRun() decision.RunResult {
	tags := policy.Policy{Name: "mandatory-tags", Family: policy.FamilyTags, Enforcement: policy.HardMandatory}
	cost := policy.Policy{Name: "cost-guard", Family: policy.FamilyCost, Enforcement: policy.Advisory}
	naming := policy.Policy{Name: "naming-convention", Family: policy.FamilyNaming, Enforcement: policy.SoftMandatory}

	return decision.Decide([]engine.Result{
		{Policy: tags, Violations: []policy.Violation{
			tags.NewViolation("azurerm_storage_account.logs", "missing mandatory tag %q", "owner"),
		}},
		{Policy: cost, Violations: []policy.Violation{
			cost.NewViolation("", "estimated monthly cost $%.2f exceeds the $%.2f limit for %s", 610.0, 500.0, environment.Production),
		}},
		{Policy: naming},
	}, nil)
}

func prodContext() environment.Context {
	return environment.Context{Environment: environment.Production, Workspace: "prod-eastus"}
}

func TestRenderGolden(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, sampleRun(), prodContext(), Options{NoColor: true})

	g := goldie.New(t)
	g.Assert(t, "report_blocked", buf.Bytes())
}

func TestRenderOverriddenSuffix(t *testing.T) {
	naming := policy.Policy{Name: "naming-convention", Family: policy.FamilyNaming, Enforcement: policy.SoftMandatory}
	run := decision.Decide([]engine.Result{
		{Policy: naming, Violations: []policy.Violation{
			naming.NewViolation("azurerm_storage_account.logs", "name is off convention"),
		}},
	}, []string{"naming-convention"})

	var buf bytes.Buffer
	Render(&buf, run, prodContext(), Options{NoColor: true})

	out := buf.String()
	assert.Contains(t, out, "WARN  naming-convention [soft-mandatory] (overridden)")
	assert.Contains(t, out, "Result: PASSED WITH WARNINGS")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleRun()))

	var decoded struct {
		Policies []struct {
			Policy      string `json:"policy"`
			Family      string `json:"family"`
			Enforcement string `json:"enforcement"`
			Status      string `json:"status"`
		} `json:"policies"`
		Violations []policy.Violation `json:"violations"`
		Overall    string             `json:"overall"`
		Blocked    bool               `json:"blocked"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	require.Len(t, decoded.Policies, 3)
	assert.Equal(t, "mandatory-tags", decoded.Policies[0].Policy)
	assert.Equal(t, "fail", decoded.Policies[0].Status)
	assert.Equal(t, "pass", decoded.Policies[2].Status)
	assert.Len(t, decoded.Violations, 2)
	assert.Equal(t, "fail", decoded.Overall)
	assert.True(t, decoded.Blocked)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRun()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Policy", "Resource", "Severity", "Message"}, rows[0])

	// The flat list is sorted by policy name, so cost-guard rows come first.
	assert.Equal(t, "cost-guard", rows[1][0])
	assert.Equal(t, "", rows[1][1])
	assert.Equal(t, "warning", rows[1][2])
	assert.Equal(t, "mandatory-tags", rows[2][0])
	assert.Equal(t, "azurerm_storage_account.logs", rows[2][1])
	assert.Equal(t, "critical", rows[2][2])
}
