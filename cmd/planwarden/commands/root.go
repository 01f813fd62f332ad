// Package commands is the planwarden CLI: it loads the change-set and policy
// configuration, invokes the engine, prints the report, and maps the verdict
// to a process exit code.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/planwarden/planwarden/pkg/version"
)

// runConfig carries the flag/config values shared by the subcommands.
type runConfig struct {
	PolicyFile  string
	Workspace   string
	Environment string
	Overrides   []string
	CostFeedURL string
	CacheDir    string
	NoColor     bool
	Verbose     bool
	OTelHost    string
}

var (
	cfgFile string
	config  runConfig
)

var rootCmd = &cobra.Command{
	Use:   "planwarden",
	Short: "Pre-deployment policy evaluation for infrastructure change-sets",
	Long: `planwarden evaluates a planned infrastructure change-set against a
body of governance policies (tagging, naming, network exposure, encryption,
cost, backup) and decides whether the deployment may proceed.`,
	Version: version.Current,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Accept underscore spellings for flag names, matching the config keys.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.planwarden.yaml)")
	rootCmd.PersistentFlags().StringVarP(&config.PolicyFile, "policies", "p", "policies.yaml", "Policy document (.yaml or .hcl)")
	rootCmd.PersistentFlags().StringVarP(&config.Workspace, "workspace", "w", "", "Workspace name for environment inference")
	rootCmd.PersistentFlags().StringVarP(&config.Environment, "environment", "e", "", "Explicit environment override (bypasses inference)")
	rootCmd.PersistentFlags().StringSliceVar(&config.Overrides, "override", nil, "Soft-mandatory policy name to override (repeatable)")
	rootCmd.PersistentFlags().StringVar(&config.CostFeedURL, "cost-feed", "", "Cost estimation feed URL")
	rootCmd.PersistentFlags().StringVar(&config.CacheDir, "cache-dir", "", "Cache directory for the cost feed")
	rootCmd.PersistentFlags().BoolVar(&config.NoColor, "no-color", false, "Plain output without styling")
	rootCmd.PersistentFlags().BoolVarP(&config.Verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().StringVar(&config.OTelHost, "otel-endpoint", "", "OTLP trace endpoint")

	viper.BindPFlag("policies", rootCmd.PersistentFlags().Lookup("policies"))
	viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	viper.BindPFlag("cost_feed", rootCmd.PersistentFlags().Lookup("cost-feed"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.SetConfigFile(filepath.Join(home, ".planwarden.yaml"))
			viper.SetConfigType("yaml")
		}
	}
	viper.SetEnvPrefix("PLANWARDEN")
	viper.AutomaticEnv()
	viper.ReadInConfig()

	if config.Workspace == "" {
		config.Workspace = viper.GetString("workspace")
	}
	if config.CostFeedURL == "" {
		config.CostFeedURL = viper.GetString("cost_feed")
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if config.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
