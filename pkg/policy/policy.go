// Package policy defines the governance policy model: families, enforcement
// levels, typed parameter bags, and the registry that loads them.
package policy

import "fmt"

// Family identifies which rule evaluator owns a policy.
type Family string

const (
	FamilyTags       Family = "tags"
	FamilyNaming     Family = "naming"
	FamilyNetwork    Family = "network"
	FamilyEncryption Family = "encryption"
	FamilyCost       Family = "cost"
	FamilyBackup     Family = "backup"
	FamilyCustom     Family = "custom"
)

// ParseFamily validates a policy family name.
func ParseFamily(s string) (Family, error) {
	switch Family(s) {
	case FamilyTags, FamilyNaming, FamilyNetwork, FamilyEncryption,
		FamilyCost, FamilyBackup, FamilyCustom:
		return Family(s), nil
	}
	return "", fmt.Errorf("unknown policy family %q", s)
}

// EnforcementLevel controls how strictly violations of a policy block a run.
type EnforcementLevel string

const (
	Advisory      EnforcementLevel = "advisory"
	SoftMandatory EnforcementLevel = "soft-mandatory"
	HardMandatory EnforcementLevel = "hard-mandatory"
)

// ParseEnforcementLevel validates an enforcement level literal.
func ParseEnforcementLevel(s string) (EnforcementLevel, error) {
	switch EnforcementLevel(s) {
	case Advisory, SoftMandatory, HardMandatory:
		return EnforcementLevel(s), nil
	}
	return "", fmt.Errorf("unknown enforcement level %q", s)
}

// Severity of a violation, derived from the owning policy's enforcement level.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Policy is one loaded governance rule: read-only after load.
type Policy struct {
	Name        string
	Family      Family
	Enforcement EnforcementLevel
	Params      any
}

// Severity maps the policy's enforcement level to the severity its violations
// carry.
func (p Policy) Severity() Severity {
	switch p.Enforcement {
	case HardMandatory:
		return SeverityCritical
	case SoftMandatory:
		return SeverityError
	default:
		return SeverityWarning
	}
}

// NewViolation builds a violation attributed to this policy.
func (p Policy) NewViolation(resourceAddress, format string, args ...any) Violation {
	return Violation{
		PolicyName:      p.Name,
		ResourceAddress: resourceAddress,
		Message:         fmt.Sprintf(format, args...),
		Severity:        p.Severity(),
	}
}

// Violation is a single rule failure tied to one resource and one policy.
// Violations are collected, never returned as errors.
type Violation struct {
	PolicyName      string   `json:"policy"`
	ResourceAddress string   `json:"resource,omitempty"`
	Message         string   `json:"message"`
	Severity        Severity `json:"severity"`
}

// ConfigurationError reports a malformed policy document. It is fatal: the run
// aborts before any evaluator starts.
type ConfigurationError struct {
	Policy string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Policy == "" {
		return fmt.Sprintf("policy configuration: %s", e.Reason)
	}
	return fmt.Sprintf("policy %q: %s", e.Policy, e.Reason)
}
