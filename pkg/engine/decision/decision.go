// Package decision combines per-policy violations with enforcement levels
// into the final run verdict.
package decision

import (
	"sort"

	"github.com/planwarden/planwarden/pkg/engine"
	"github.com/planwarden/planwarden/pkg/policy"
)

// Status is a per-policy (and overall) outcome.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

func (s Status) rank() int {
	switch s {
	case StatusFail:
		return 2
	case StatusWarn:
		return 1
	}
	return 0
}

// PolicyResult is the decision for one policy.
type PolicyResult struct {
	Policy     policy.Policy      `json:"-"`
	Name       string             `json:"policy"`
	Family     policy.Family      `json:"family"`
	Level      policy.EnforcementLevel `json:"enforcement"`
	Status     Status             `json:"status"`
	Overridden bool               `json:"overridden,omitempty"`
	Violations []policy.Violation `json:"violations,omitempty"`
}

// RunResult is the terminal artifact of a run: every policy's status, every
// violation, and the overall verdict.
type RunResult struct {
	Policies   []PolicyResult     `json:"policies"`
	Violations []policy.Violation `json:"violations,omitempty"`
	Overall    Status             `json:"overall"`
	Blocked    bool               `json:"blocked"`
	hardFailed bool
}

// ExitCode maps the verdict to a process exit code: 0 pass, 1 blocked by a
// soft-mandatory policy (overridable out of band), 2 blocked hard.
func (r RunResult) ExitCode() int {
	switch {
	case r.hardFailed:
		return 2
	case r.Blocked:
		return 1
	}
	return 0
}

// Decide partitions each policy's violations against its enforcement level.
// Overrides name soft-mandatory policies whose failures are waived for this
// run; they are passed explicitly so the decision is deterministic and
// testable. Hard-mandatory failures have no override path.
func Decide(results []engine.Result, overrides []string) RunResult {
	overridden := make(map[string]bool, len(overrides))
	for _, name := range overrides {
		overridden[name] = true
	}

	run := RunResult{Overall: StatusPass}
	for _, res := range results {
		pr := PolicyResult{
			Policy:     res.Policy,
			Name:       res.Policy.Name,
			Family:     res.Policy.Family,
			Level:      res.Policy.Enforcement,
			Status:     StatusPass,
			Violations: res.Violations,
		}

		if len(res.Violations) > 0 {
			switch res.Policy.Enforcement {
			case policy.Advisory:
				// Advisory violations are recorded as warnings and never
				// block.
				pr.Status = StatusWarn
			case policy.SoftMandatory:
				if overridden[res.Policy.Name] {
					pr.Status = StatusWarn
					pr.Overridden = true
				} else {
					pr.Status = StatusFail
				}
			case policy.HardMandatory:
				pr.Status = StatusFail
				run.hardFailed = true
			}
		}

		if pr.Status.rank() > run.Overall.rank() {
			run.Overall = pr.Status
		}
		run.Policies = append(run.Policies, pr)
		run.Violations = append(run.Violations, res.Violations...)
	}

	run.Blocked = run.Overall == StatusFail
	sortViolations(run.Violations)
	return run
}

// sortViolations orders the flat list for stable reporting: by policy, then
// resource address, then message. The message tie-break matters for plan-wide
// violations, which share an empty address.
func sortViolations(vs []policy.Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].PolicyName != vs[j].PolicyName {
			return vs[i].PolicyName < vs[j].PolicyName
		}
		if vs[i].ResourceAddress != vs[j].ResourceAddress {
			return vs[i].ResourceAddress < vs[j].ResourceAddress
		}
		return vs[i].Message < vs[j].Message
	})
}
