// Package report renders a RunResult for humans and for machines.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/planwarden/planwarden/pkg/engine/decision"
	"github.com/planwarden/planwarden/pkg/environment"
	"github.com/planwarden/planwarden/pkg/policy"
)

// Options controls rendering.
type Options struct {
	// NoColor emits plain text with no styling, for CI logs and golden tests.
	NoColor bool
}

var (
	passStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF99"))
	warnStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFCC00"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5555"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
)

func statusLabel(s decision.Status, opts Options) string {
	label := strings.ToUpper(string(s))
	if opts.NoColor {
		return label
	}
	switch s {
	case decision.StatusPass:
		return passStyle.Render(label)
	case decision.StatusWarn:
		return warnStyle.Render(label)
	default:
		return failStyle.Render(label)
	}
}

// Render writes the human-readable report: one status line per policy, each
// violation beneath its policy, and the overall verdict. The report is always
// complete; a hard failure does not truncate it.
func Render(w io.Writer, res decision.RunResult, env environment.Context, opts Options) {
	fmt.Fprintf(w, "Policy evaluation for workspace %q (environment: %s)\n\n", env.Workspace, env.Environment)

	for _, pr := range res.Policies {
		suffix := ""
		if pr.Overridden {
			suffix = " (overridden)"
		}
		fmt.Fprintf(w, "%s  %s [%s]%s\n", statusLabel(pr.Status, opts), pr.Name, pr.Level, suffix)

		for _, v := range pr.Violations {
			line := formatViolation(v)
			if !opts.NoColor {
				line = dimStyle.Render(line)
			}
			fmt.Fprintf(w, "    %s\n", line)
		}
	}

	fmt.Fprintf(w, "\n%d policies evaluated, %d violations\n", len(res.Policies), len(res.Violations))
	verdict := "PASSED"
	if res.Blocked {
		verdict = "BLOCKED"
	} else if res.Overall == decision.StatusWarn {
		verdict = "PASSED WITH WARNINGS"
	}
	fmt.Fprintf(w, "Result: %s\n", verdict)
}

func formatViolation(v policy.Violation) string {
	if v.ResourceAddress == "" {
		return fmt.Sprintf("- [%s] %s", v.Severity, v.Message)
	}
	return fmt.Sprintf("- [%s] %s: %s", v.Severity, v.ResourceAddress, v.Message)
}

// WriteJSON exports the full run result.
func WriteJSON(w io.Writer, res decision.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// WriteCSV exports the flat violation list, one row per violation.
func WriteCSV(w io.Writer, res decision.RunResult) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"Policy", "Resource", "Severity", "Message"}); err != nil {
		return err
	}
	for _, v := range res.Violations {
		if err := cw.Write([]string{v.PolicyName, v.ResourceAddress, string(v.Severity), v.Message}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
