package policy

import (
	"fmt"
	"regexp"

	"github.com/planwarden/planwarden/pkg/environment"
)

// TagParams configures the tag evaluator.
type TagParams struct {
	MandatoryTags []string `yaml:"mandatory_tags"`
	// EnvironmentTags lists extra mandatory tags per resolved environment.
	EnvironmentTags    map[environment.Environment][]string `yaml:"environment_tags"`
	TagValueMinLength  int                                  `yaml:"tag_value_min_length"`
	TagValueMaxLength  int                                  `yaml:"tag_value_max_length"`
	ValidationPatterns map[string]string                    `yaml:"validation_patterns"`

	// Compiled at load time so a bad pattern is a ConfigurationError, not a
	// per-resource evaluation failure.
	Patterns map[string]*regexp.Regexp `yaml:"-"`
}

func (p *TagParams) validate() error {
	if len(p.MandatoryTags) == 0 && len(p.EnvironmentTags) == 0 {
		return fmt.Errorf("no mandatory tags configured")
	}
	if p.TagValueMaxLength > 0 && p.TagValueMinLength > p.TagValueMaxLength {
		return fmt.Errorf("tag_value_min_length %d exceeds tag_value_max_length %d",
			p.TagValueMinLength, p.TagValueMaxLength)
	}
	p.Patterns = make(map[string]*regexp.Regexp, len(p.ValidationPatterns))
	for key, pat := range p.ValidationPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return fmt.Errorf("validation pattern for tag %q: %w", key, err)
		}
		p.Patterns[key] = re
	}
	return nil
}

// NamingParams configures the naming evaluator.
type NamingParams struct {
	OrganizationPrefix        string                                 `yaml:"organization_prefix"`
	ResourceTypeAbbreviations map[string]string                      `yaml:"resource_type_abbreviations"`
	EnvironmentAbbreviations  map[environment.Environment]string    `yaml:"environment_abbreviations"`
	RequireSequenceNumber     bool                                   `yaml:"require_sequence_number"`
	ProhibitedWords           []string                               `yaml:"prohibited_words"`
	// MaxNameLengths is keyed by resource type, with a "default" fallback.
	MaxNameLengths map[string]int `yaml:"max_name_lengths"`
}

func (p *NamingParams) validate() error {
	if p.OrganizationPrefix == "" {
		return fmt.Errorf("organization_prefix is required")
	}
	if len(p.ResourceTypeAbbreviations) == 0 {
		return fmt.Errorf("resource_type_abbreviations is empty")
	}
	for t, n := range p.MaxNameLengths {
		if n <= 0 {
			return fmt.Errorf("max_name_lengths[%s] must be positive", t)
		}
	}
	return nil
}

// MaxLengthFor returns the per-type name length cap, falling back to the
// "default" entry. Zero means unlimited.
func (p *NamingParams) MaxLengthFor(resourceType string) int {
	if n, ok := p.MaxNameLengths[resourceType]; ok {
		return n
	}
	return p.MaxNameLengths["default"]
}

// DefaultManagementPorts are always-blocked-from-any-source ports, regardless
// of the allowed public port list, which is intended for web traffic only.
var DefaultManagementPorts = []int{22, 3389, 5985, 5986}

// NetworkParams configures the network exposure evaluator.
type NetworkParams struct {
	AllowedPublicPorts   []int `yaml:"allowed_public_ports"`
	ManagementPorts      []int `yaml:"management_ports"`
	MaxPriorityThreshold int   `yaml:"max_priority_threshold"`
	// GatewayResourceTypes must carry a WAF in production.
	GatewayResourceTypes []string `yaml:"gateway_resource_types"`
	// DDoSResourceTypes must carry DDoS protection in production.
	DDoSResourceTypes []string `yaml:"ddos_resource_types"`
}

func (p *NetworkParams) validate() error {
	if len(p.ManagementPorts) == 0 {
		p.ManagementPorts = append([]int(nil), DefaultManagementPorts...)
	}
	if len(p.GatewayResourceTypes) == 0 {
		p.GatewayResourceTypes = []string{"azurerm_application_gateway", "azurerm_front_door", "azurerm_lb"}
	}
	if len(p.DDoSResourceTypes) == 0 {
		p.DDoSResourceTypes = []string{"azurerm_virtual_network", "azurerm_public_ip"}
	}
	for _, port := range append(append([]int(nil), p.AllowedPublicPorts...), p.ManagementPorts...) {
		if port < 0 || port > 65535 {
			return fmt.Errorf("port %d out of range", port)
		}
	}
	return nil
}

// EncryptionParams configures the encryption evaluator.
type EncryptionParams struct {
	AllowedTLSVersions             []string `yaml:"allowed_tls_versions"`
	RequireCustomerManagedKeysProd bool     `yaml:"require_customer_managed_keys_prod"`
	// StorageResourceTypes scopes the policy to storage/database-like types.
	StorageResourceTypes []string `yaml:"storage_resource_types"`
}

func (p *EncryptionParams) validate() error {
	if len(p.AllowedTLSVersions) == 0 {
		return fmt.Errorf("allowed_tls_versions is empty")
	}
	if len(p.StorageResourceTypes) == 0 {
		p.StorageResourceTypes = []string{
			"azurerm_storage_account",
			"azurerm_sql_server",
			"azurerm_mssql_server",
			"azurerm_postgresql_server",
			"azurerm_mysql_server",
			"azurerm_cosmosdb_account",
		}
	}
	return nil
}

// CostParams configures the cost evaluator.
type CostParams struct {
	MonthlyCostLimits           map[environment.Environment]float64        `yaml:"monthly_cost_limits"`
	CostIncreasePercentageLimit float64                                    `yaml:"cost_increase_percentage_limit"`
	ExpensiveResourceTypes      []string                                   `yaml:"expensive_resource_types"`
	MaxResourceCounts           map[environment.Environment]map[string]int `yaml:"max_resource_counts"`
}

func (p *CostParams) validate() error {
	for env, limit := range p.MonthlyCostLimits {
		if limit < 0 {
			return fmt.Errorf("monthly_cost_limits[%s] is negative", env)
		}
	}
	for env, counts := range p.MaxResourceCounts {
		for t, n := range counts {
			if n < 0 {
				return fmt.Errorf("max_resource_counts[%s][%s] is negative", env, t)
			}
		}
	}
	return nil
}

// BackupRequirement is the per-environment backup demand.
type BackupRequirement struct {
	RetentionDays int  `yaml:"retention_days"`
	DailyBackup   bool `yaml:"daily_backup"`
}

// BackupParams configures the backup evaluator.
type BackupParams struct {
	CriticalResourceTypes []string                                          `yaml:"critical_resource_types"`
	Requirements          map[environment.Environment]BackupRequirement     `yaml:"backup_policy_requirements"`
}

func (p *BackupParams) validate() error {
	if len(p.CriticalResourceTypes) == 0 {
		return fmt.Errorf("critical_resource_types is empty")
	}
	for env, req := range p.Requirements {
		if req.RetentionDays < 0 {
			return fmt.Errorf("backup_policy_requirements[%s].retention_days is negative", env)
		}
	}
	return nil
}

// CustomRule is a user-defined CEL condition; a true result is a violation.
type CustomRule struct {
	ID        string `yaml:"id"`
	Condition string `yaml:"condition"`
	Message   string `yaml:"message"`
}

// CustomParams configures the custom CEL evaluator.
type CustomParams struct {
	Rules []CustomRule `yaml:"rules"`
}

func (p *CustomParams) validate() error {
	if len(p.Rules) == 0 {
		return fmt.Errorf("no rules configured")
	}
	seen := map[string]bool{}
	for _, r := range p.Rules {
		if r.ID == "" || r.Condition == "" {
			return fmt.Errorf("custom rules need both id and condition")
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate custom rule id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}
