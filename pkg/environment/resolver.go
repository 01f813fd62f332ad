// Package environment resolves the deployment environment a plan is headed for.
package environment

import (
	"fmt"
	"strings"
)

// Environment is the deployment tier a change-set targets.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
	Unknown     Environment = "unknown"
)

// Parse maps a string to a known Environment.
func Parse(s string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case Development:
		return Development, nil
	case Staging:
		return Staging, nil
	case Production:
		return Production, nil
	case Unknown:
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown environment %q", s)
}

// UnmarshalYAML validates environment names used as configuration keys, so a
// typo in an environment-keyed table fails at load time rather than silently
// never matching at evaluation time.
func (e *Environment) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	env, err := Parse(raw)
	if err != nil {
		return err
	}
	*e = env
	return nil
}

func (e Environment) String() string { return string(e) }

// Context is the resolved environment plus the workspace it came from.
type Context struct {
	Environment Environment
	Workspace   string
	Overridden  bool
}

// Resolve infers the environment from a workspace name, unless an explicit
// override is supplied, in which case the override wins verbatim.
//
// Inference is an ordered substring match on the lower-cased workspace name.
// Production is tested first, so "staging-prod-mirror" resolves to production;
// callers that need different precedence must pass an override. Resolve never
// fails: anything unmatched is Unknown.
func Resolve(workspace, override string) Context {
	if override != "" {
		env, err := Parse(override)
		if err != nil {
			env = Unknown
		}
		return Context{Environment: env, Workspace: workspace, Overridden: true}
	}

	name := strings.ToLower(workspace)
	var env Environment
	switch {
	case strings.Contains(name, "prod"):
		env = Production
	case strings.Contains(name, "staging"), strings.Contains(name, "stage"):
		env = Staging
	case strings.Contains(name, "dev"):
		env = Development
	default:
		env = Unknown
	}
	return Context{Environment: env, Workspace: workspace}
}
