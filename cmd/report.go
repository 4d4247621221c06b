package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/cpusage/internal/cli"
	"github.com/theirongolddev/cpusage/internal/model"
)

var (
	flagDetails bool
	flagTotal   bool
	flagJSON    bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Daily usage and cost summary (default command)",
	RunE:  runReport,
}

func init() {
	addReportFlags(reportCmd)
	rootCmd.AddCommand(reportCmd)
}

func addReportFlags(c *cobra.Command) {
	c.Flags().BoolVar(&flagDetails, "details", false, "Show per-model tables for each day")
	c.Flags().BoolVar(&flagTotal, "total", false, "Show the summary and grand totals only, without model details")
	c.Flags().BoolVar(&flagJSON, "json", false, "Print the report as JSON")
}

func runReport(cmd *cobra.Command, _ []string) error {
	opts, err := commandOptions(cmd)
	if err != nil {
		return err
	}
	report, err := loadReport(cmd.Context(), opts, os.Stderr)
	if err != nil {
		return err
	}

	if flagJSON {
		return writeJSON(cmd.OutOrStdout(), report)
	}

	writeReport(cmd.OutOrStdout(), report, opts.rng, flagDetails && !flagTotal, flagTotal)
	fmt.Fprint(os.Stderr, cli.RenderDiagnostics(report.Diagnostics))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeReport(w io.Writer, report *model.Report, rng model.DateRange, details, totals bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, cli.RenderTitle("CLIPROXY USAGE  "+rangeLabel(rng)))
	fmt.Fprintln(w)

	if len(report.Days) == 0 {
		fmt.Fprintln(w, "  No usage found in the selected range.")
		fmt.Fprint(w, cli.RenderSources(report.Diagnostics))
		return
	}

	fmt.Fprint(w, cli.RenderSummary(report))

	if details {
		for _, d := range report.Days {
			fmt.Fprintln(w)
			fmt.Fprint(w, cli.RenderDayDetails(d))
		}
	}
	if totals {
		fmt.Fprintln(w)
		fmt.Fprint(w, cli.RenderTotals(report))
	}

	fmt.Fprintln(w)
	fmt.Fprint(w, cli.EstimateNote(report))
	fmt.Fprint(w, cli.RenderSources(report.Diagnostics))
}
