package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry is the ordered, read-only set of policies for a run.
type Registry struct {
	policies []Policy
	byName   map[string]int
}

// Policies returns the loaded policies in document order.
func (r *Registry) Policies() []Policy { return r.policies }

// Lookup finds a policy by name.
func (r *Registry) Lookup(name string) (Policy, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Policy{}, false
	}
	return r.policies[i], true
}

// Len returns the number of loaded policies.
func (r *Registry) Len() int { return len(r.policies) }

// LoadFile loads a policy document, dispatching on file extension: .yaml/.yml
// or .hcl.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(data)
	case ".hcl":
		return LoadHCL(path, data)
	}
	return nil, &ConfigurationError{Reason: fmt.Sprintf("unsupported policy document %q (want .yaml or .hcl)", path)}
}

type yamlDocument struct {
	Policies []yamlPolicy `yaml:"policies"`
}

type yamlPolicy struct {
	Name        string    `yaml:"name"`
	Family      string    `yaml:"family"`
	Enforcement string    `yaml:"enforcement"`
	Params      yaml.Node `yaml:"params"`
}

// LoadYAML parses and validates a YAML policy document. Any malformed policy
// is a fatal ConfigurationError: the registry is all-or-nothing.
func LoadYAML(data []byte) (*Registry, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	if len(doc.Policies) == 0 {
		return nil, &ConfigurationError{Reason: "no policies declared"}
	}

	reg := &Registry{byName: make(map[string]int, len(doc.Policies))}
	for _, yp := range doc.Policies {
		pol, err := buildPolicy(yp)
		if err != nil {
			return nil, err
		}
		if err := reg.add(pol); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *Registry) add(pol Policy) error {
	if _, dup := r.byName[pol.Name]; dup {
		return &ConfigurationError{Policy: pol.Name, Reason: "duplicate policy name"}
	}
	r.byName[pol.Name] = len(r.policies)
	r.policies = append(r.policies, pol)
	return nil
}

func buildPolicy(yp yamlPolicy) (Policy, error) {
	if yp.Name == "" {
		return Policy{}, &ConfigurationError{Reason: "policy without a name"}
	}
	family, err := ParseFamily(yp.Family)
	if err != nil {
		return Policy{}, &ConfigurationError{Policy: yp.Name, Reason: err.Error()}
	}
	level, err := ParseEnforcementLevel(yp.Enforcement)
	if err != nil {
		return Policy{}, &ConfigurationError{Policy: yp.Name, Reason: err.Error()}
	}

	params, err := decodeParams(family, &yp.Params)
	if err != nil {
		return Policy{}, &ConfigurationError{Policy: yp.Name, Reason: err.Error()}
	}

	return Policy{Name: yp.Name, Family: family, Enforcement: level, Params: params}, nil
}

// decodeParams unmarshals the parameter bag into the typed struct for the
// family and runs its validation.
func decodeParams(family Family, node *yaml.Node) (any, error) {
	decode := func(dst interface{ validate() error }) (any, error) {
		if node != nil && node.Kind != 0 {
			if err := node.Decode(dst); err != nil {
				return nil, fmt.Errorf("params: %w", err)
			}
		}
		if err := dst.validate(); err != nil {
			return nil, fmt.Errorf("params: %w", err)
		}
		return dst, nil
	}

	switch family {
	case FamilyTags:
		return decode(&TagParams{})
	case FamilyNaming:
		return decode(&NamingParams{})
	case FamilyNetwork:
		return decode(&NetworkParams{})
	case FamilyEncryption:
		return decode(&EncryptionParams{})
	case FamilyCost:
		return decode(&CostParams{})
	case FamilyBackup:
		return decode(&BackupParams{})
	case FamilyCustom:
		return decode(&CustomParams{})
	}
	return nil, fmt.Errorf("unknown policy family %q", family)
}
