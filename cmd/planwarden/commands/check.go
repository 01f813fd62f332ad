package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/planwarden/planwarden/pkg/engine"
	"github.com/planwarden/planwarden/pkg/engine/decision"
	"github.com/planwarden/planwarden/pkg/environment"
	"github.com/planwarden/planwarden/pkg/plan"
	"github.com/planwarden/planwarden/pkg/policy"
	"github.com/planwarden/planwarden/pkg/pricing"
	"github.com/planwarden/planwarden/pkg/report"
	"github.com/planwarden/planwarden/pkg/telemetry"
	"github.com/planwarden/planwarden/pkg/version"
)

var checkCmd = &cobra.Command{
	Use:   "check <plan.json>",
	Short: "Evaluate a plan against the configured policies",
	Long: `check loads a plan in JSON format, evaluates every configured policy
against it, prints a report, and exits with a code reflecting the verdict:
0 when the deployment may proceed, 1 when blocked by soft-mandatory failures,
2 when blocked by hard-mandatory failures.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		res, env, err := evaluate(ctx, args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(3)
		}

		report.Render(os.Stdout, res, env, report.Options{NoColor: config.NoColor})
		os.Exit(res.ExitCode())
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// evaluate runs the full pipeline shared by check and export. Configuration
// and normalization failures are returned as errors and abort before any
// policy is evaluated.
func evaluate(ctx context.Context, planPath string) (decision.RunResult, environment.Context, error) {
	logger := newLogger()

	shutdown, err := telemetry.Init(ctx, version.AppName, version.Current, config.OTelHost)
	if err != nil {
		logger.Warn("telemetry init failed, continuing without traces", "error", err)
	} else {
		defer shutdown(ctx)
	}

	reg, err := policy.LoadFile(config.PolicyFile)
	if err != nil {
		return decision.RunResult{}, environment.Context{}, fmt.Errorf("loading policies: %w", err)
	}

	estimates := pricing.NewClient(logger, config.CostFeedURL, config.CacheDir).Fetch(ctx)

	data, err := os.ReadFile(planPath)
	if err != nil {
		return decision.RunResult{}, environment.Context{}, fmt.Errorf("reading plan: %w", err)
	}
	snap, err := plan.Normalize(data, estimates.PriorCosts)
	if err != nil {
		return decision.RunResult{}, environment.Context{}, fmt.Errorf("normalizing plan: %w", err)
	}

	env := environment.Resolve(config.Workspace, config.Environment)
	logger.Debug("environment resolved",
		"workspace", env.Workspace, "environment", env.Environment, "overridden", env.Overridden)

	eng := engine.NewDefault(logger, estimates)
	if err := eng.Validate(reg); err != nil {
		return decision.RunResult{}, environment.Context{}, err
	}

	results, err := eng.Run(ctx, snap, env, reg)
	if err != nil {
		return decision.RunResult{}, environment.Context{}, err
	}

	return decision.Decide(results, config.Overrides), env, nil
}
