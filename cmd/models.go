package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/cpusage/internal/cli"
	"github.com/theirongolddev/cpusage/internal/pipeline"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Per-model totals across the range",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, _ []string) error {
	opts, err := commandOptions(cmd)
	if err != nil {
		return err
	}
	report, err := loadReport(cmd.Context(), opts, os.Stderr)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	models := pipeline.AggregateModels(report)
	if len(models) == 0 {
		fmt.Fprintln(out, "\n  No model data in the selected range.")
		return nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, cli.RenderTitle("MODEL USAGE  "+rangeLabel(opts.rng)))
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(models))
	for _, ms := range models {
		t := ms.Totals
		rows = append(rows, []string{
			ms.Model,
			cli.FormatNumber(int64(ms.Days)),
			cli.FormatNumber(t.Requests),
			cli.FormatTokens(t.PromptTokens),
			cli.FormatTokens(t.CompletionTokens),
			cli.FormatTokens(t.TotalTokens),
			cli.FormatEstimatedCost(t.TotalCost, t.Estimated),
			cli.FormatPercent(ms.Share),
		})
	}

	fmt.Fprint(out, cli.RenderTable(cli.Table{
		Headers: []string{"Model", "Days", "Requests", "Input", "Output", "Tokens", "Cost", "Share"},
		Rows:    rows,
	}))
	fmt.Fprint(out, cli.EstimateNote(report))
	fmt.Fprint(os.Stderr, cli.RenderDiagnostics(report.Diagnostics))
	return nil
}
