package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/planwarden/planwarden/pkg/report"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <plan.json>",
	Short: "Evaluate a plan and write the results as JSON or CSV",
	Long: `export runs the same evaluation as check but writes machine-readable
results instead of a styled report. The exit code still reflects the verdict
so export can gate a pipeline on its own.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		res, _, err := evaluate(ctx, args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(3)
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(3)
			}
			defer f.Close()
			out = f
		}

		switch exportFormat {
		case "json":
			err = report.WriteJSON(out, res)
		case "csv":
			err = report.WriteCSV(out, res)
		default:
			err = fmt.Errorf("unsupported format %q (want json or csv)", exportFormat)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(3)
		}

		os.Exit(res.ExitCode())
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Output format: json or csv")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
