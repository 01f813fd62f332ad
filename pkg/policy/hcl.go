package policy

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/planwarden/planwarden/pkg/environment"
)

// HCL is the second accepted policy document syntax:
//
//	policy "mandatory-tags" {
//	  family      = "tags"
//	  enforcement = "hard-mandatory"
//	  mandatory_tags = ["owner", "cost-center"]
//	}
//
// Parameter attributes sit directly in the policy block; environment-keyed
// tables use plain string keys and are validated into the environment enum
// here, at load time.

type hclDocument struct {
	Policies []hclPolicy `hcl:"policy,block"`
}

type hclPolicy struct {
	Name        string   `hcl:"name,label"`
	Family      string   `hcl:"family"`
	Enforcement string   `hcl:"enforcement"`
	Remain      hcl.Body `hcl:",remain"`
}

// LoadHCL parses and validates an HCL policy document.
func LoadHCL(filename string, data []byte) (*Registry, error) {
	file, diags := hclsyntax.ParseConfig(data, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, &ConfigurationError{Reason: diags.Error()}
	}

	var doc hclDocument
	if diags := gohcl.DecodeBody(file.Body, nil, &doc); diags.HasErrors() {
		return nil, &ConfigurationError{Reason: diags.Error()}
	}
	if len(doc.Policies) == 0 {
		return nil, &ConfigurationError{Reason: "no policies declared"}
	}

	reg := &Registry{byName: make(map[string]int, len(doc.Policies))}
	for _, hp := range doc.Policies {
		pol, err := buildHCLPolicy(hp)
		if err != nil {
			return nil, err
		}
		if err := reg.add(pol); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildHCLPolicy(hp hclPolicy) (Policy, error) {
	if hp.Name == "" {
		return Policy{}, &ConfigurationError{Reason: "policy without a name"}
	}
	family, err := ParseFamily(hp.Family)
	if err != nil {
		return Policy{}, &ConfigurationError{Policy: hp.Name, Reason: err.Error()}
	}
	level, err := ParseEnforcementLevel(hp.Enforcement)
	if err != nil {
		return Policy{}, &ConfigurationError{Policy: hp.Name, Reason: err.Error()}
	}

	params, err := decodeHCLParams(family, hp.Remain)
	if err != nil {
		return Policy{}, &ConfigurationError{Policy: hp.Name, Reason: err.Error()}
	}

	return Policy{Name: hp.Name, Family: family, Enforcement: level, Params: params}, nil
}

// Mirror structs for HCL bodies. Environment-keyed maps use string keys here
// and are converted below so that a bad environment name is caught at load.

type hclTagParams struct {
	MandatoryTags      []string            `hcl:"mandatory_tags,optional"`
	EnvironmentTags    map[string][]string `hcl:"environment_tags,optional"`
	TagValueMinLength  int                 `hcl:"tag_value_min_length,optional"`
	TagValueMaxLength  int                 `hcl:"tag_value_max_length,optional"`
	ValidationPatterns map[string]string   `hcl:"validation_patterns,optional"`
}

type hclNamingParams struct {
	OrganizationPrefix        string            `hcl:"organization_prefix,optional"`
	ResourceTypeAbbreviations map[string]string `hcl:"resource_type_abbreviations,optional"`
	EnvironmentAbbreviations  map[string]string `hcl:"environment_abbreviations,optional"`
	RequireSequenceNumber     bool              `hcl:"require_sequence_number,optional"`
	ProhibitedWords           []string          `hcl:"prohibited_words,optional"`
	MaxNameLengths            map[string]int    `hcl:"max_name_lengths,optional"`
}

type hclNetworkParams struct {
	AllowedPublicPorts   []int    `hcl:"allowed_public_ports,optional"`
	ManagementPorts      []int    `hcl:"management_ports,optional"`
	MaxPriorityThreshold int      `hcl:"max_priority_threshold,optional"`
	GatewayResourceTypes []string `hcl:"gateway_resource_types,optional"`
	DDoSResourceTypes    []string `hcl:"ddos_resource_types,optional"`
}

type hclEncryptionParams struct {
	AllowedTLSVersions             []string `hcl:"allowed_tls_versions,optional"`
	RequireCustomerManagedKeysProd bool     `hcl:"require_customer_managed_keys_prod,optional"`
	StorageResourceTypes           []string `hcl:"storage_resource_types,optional"`
}

type hclCostParams struct {
	MonthlyCostLimits           map[string]float64        `hcl:"monthly_cost_limits,optional"`
	CostIncreasePercentageLimit float64                   `hcl:"cost_increase_percentage_limit,optional"`
	ExpensiveResourceTypes      []string                  `hcl:"expensive_resource_types,optional"`
	MaxResourceCounts           map[string]map[string]int `hcl:"max_resource_counts,optional"`
}

type hclBackupRequirement struct {
	RetentionDays int  `cty:"retention_days"`
	DailyBackup   bool `cty:"daily_backup"`
}

type hclBackupParams struct {
	CriticalResourceTypes []string                        `hcl:"critical_resource_types,optional"`
	Requirements          map[string]hclBackupRequirement `hcl:"backup_policy_requirements,optional"`
}

type hclCustomRule struct {
	ID        string `hcl:"id,label"`
	Condition string `hcl:"condition"`
	Message   string `hcl:"message,optional"`
}

type hclCustomParams struct {
	Rules []hclCustomRule `hcl:"rule,block"`
}

func decodeHCLParams(family Family, body hcl.Body) (any, error) {
	switch family {
	case FamilyTags:
		var raw hclTagParams
		if diags := gohcl.DecodeBody(body, nil, &raw); diags.HasErrors() {
			return nil, fmt.Errorf("params: %s", diags.Error())
		}
		envTags, err := envKeyed(raw.EnvironmentTags)
		if err != nil {
			return nil, err
		}
		p := &TagParams{
			MandatoryTags:      raw.MandatoryTags,
			EnvironmentTags:    envTags,
			TagValueMinLength:  raw.TagValueMinLength,
			TagValueMaxLength:  raw.TagValueMaxLength,
			ValidationPatterns: raw.ValidationPatterns,
		}
		return p, p.validate()

	case FamilyNaming:
		var raw hclNamingParams
		if diags := gohcl.DecodeBody(body, nil, &raw); diags.HasErrors() {
			return nil, fmt.Errorf("params: %s", diags.Error())
		}
		envAbbr, err := envKeyed(raw.EnvironmentAbbreviations)
		if err != nil {
			return nil, err
		}
		p := &NamingParams{
			OrganizationPrefix:        raw.OrganizationPrefix,
			ResourceTypeAbbreviations: raw.ResourceTypeAbbreviations,
			EnvironmentAbbreviations:  envAbbr,
			RequireSequenceNumber:     raw.RequireSequenceNumber,
			ProhibitedWords:           raw.ProhibitedWords,
			MaxNameLengths:            raw.MaxNameLengths,
		}
		return p, p.validate()

	case FamilyNetwork:
		p := &NetworkParams{}
		var raw hclNetworkParams
		if diags := gohcl.DecodeBody(body, nil, &raw); diags.HasErrors() {
			return nil, fmt.Errorf("params: %s", diags.Error())
		}
		p.AllowedPublicPorts = raw.AllowedPublicPorts
		p.ManagementPorts = raw.ManagementPorts
		p.MaxPriorityThreshold = raw.MaxPriorityThreshold
		p.GatewayResourceTypes = raw.GatewayResourceTypes
		p.DDoSResourceTypes = raw.DDoSResourceTypes
		return p, p.validate()

	case FamilyEncryption:
		var raw hclEncryptionParams
		if diags := gohcl.DecodeBody(body, nil, &raw); diags.HasErrors() {
			return nil, fmt.Errorf("params: %s", diags.Error())
		}
		p := &EncryptionParams{
			AllowedTLSVersions:             raw.AllowedTLSVersions,
			RequireCustomerManagedKeysProd: raw.RequireCustomerManagedKeysProd,
			StorageResourceTypes:           raw.StorageResourceTypes,
		}
		return p, p.validate()

	case FamilyCost:
		var raw hclCostParams
		if diags := gohcl.DecodeBody(body, nil, &raw); diags.HasErrors() {
			return nil, fmt.Errorf("params: %s", diags.Error())
		}
		limits, err := envKeyed(raw.MonthlyCostLimits)
		if err != nil {
			return nil, err
		}
		counts, err := envKeyed(raw.MaxResourceCounts)
		if err != nil {
			return nil, err
		}
		p := &CostParams{
			MonthlyCostLimits:           limits,
			CostIncreasePercentageLimit: raw.CostIncreasePercentageLimit,
			ExpensiveResourceTypes:      raw.ExpensiveResourceTypes,
			MaxResourceCounts:           counts,
		}
		return p, p.validate()

	case FamilyBackup:
		var raw hclBackupParams
		if diags := gohcl.DecodeBody(body, nil, &raw); diags.HasErrors() {
			return nil, fmt.Errorf("params: %s", diags.Error())
		}
		reqs := make(map[environment.Environment]BackupRequirement, len(raw.Requirements))
		for name, req := range raw.Requirements {
			env, err := environment.Parse(name)
			if err != nil {
				return nil, err
			}
			reqs[env] = BackupRequirement{RetentionDays: req.RetentionDays, DailyBackup: req.DailyBackup}
		}
		p := &BackupParams{CriticalResourceTypes: raw.CriticalResourceTypes, Requirements: reqs}
		return p, p.validate()

	case FamilyCustom:
		var raw hclCustomParams
		if diags := gohcl.DecodeBody(body, nil, &raw); diags.HasErrors() {
			return nil, fmt.Errorf("params: %s", diags.Error())
		}
		p := &CustomParams{}
		for _, r := range raw.Rules {
			p.Rules = append(p.Rules, CustomRule{ID: r.ID, Condition: r.Condition, Message: r.Message})
		}
		return p, p.validate()
	}
	return nil, fmt.Errorf("unknown policy family %q", family)
}

// envKeyed converts a string-keyed table to an environment-keyed one,
// rejecting unknown environment names.
func envKeyed[V any](in map[string]V) (map[environment.Environment]V, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[environment.Environment]V, len(in))
	for name, v := range in {
		env, err := environment.Parse(name)
		if err != nil {
			return nil, err
		}
		out[env] = v
	}
	return out, nil
}
