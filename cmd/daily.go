package cmd

import (
	"fmt"
	"os"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/cpusage/internal/cli"
	"github.com/theirongolddev/cpusage/internal/model"
)

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "One line per day with weekday, requests, tokens and cost",
	RunE:  runDaily,
}

func init() {
	rootCmd.AddCommand(dailyCmd)
}

func runDaily(cmd *cobra.Command, _ []string) error {
	opts, err := commandOptions(cmd)
	if err != nil {
		return err
	}
	report, err := loadReport(cmd.Context(), opts, os.Stderr)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(report.Days) == 0 {
		fmt.Fprintln(out, "\n  No data for the selected period.")
		return nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, cli.RenderTitle("DAILY USAGE  "+rangeLabel(opts.rng)))
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(report.Days))
	for _, d := range report.Days {
		rows = append(rows, dailyRow(d.Date, dayOfWeek(d.Date), len(d.Models), d.Totals))
	}

	fmt.Fprint(out, cli.RenderTable(cli.Table{
		Headers:  []string{"Date", "Day", "Models", "Requests", "Failed", "Tokens", "Cost"},
		Rows:     rows,
		Total:    dailyRow("Total", "", len(modelNames(report)), report.Total),
		TextCols: 2,
	}))
	fmt.Fprint(out, cli.EstimateNote(report))
	fmt.Fprint(os.Stderr, cli.RenderDiagnostics(report.Diagnostics))
	return nil
}

func dailyRow(label, weekday string, models int, t model.Totals) []string {
	return []string{
		label,
		weekday,
		cli.FormatNumber(int64(models)),
		cli.FormatNumber(t.Requests),
		cli.FormatNumber(t.Failures),
		cli.FormatTokens(t.TotalTokens),
		cli.FormatEstimatedCost(t.TotalCost, t.Estimated),
	}
}

func dayOfWeek(date string) string {
	t, err := model.ParseDate(date)
	if err != nil {
		return ""
	}
	return cli.FormatDayOfWeek(int(t.Weekday()))
}

// modelNames lists the distinct models in a report.
func modelNames(r *model.Report) []string {
	return lo.Uniq(lo.Map(r.Cells(), func(c model.Cell, _ int) string { return c.Model }))
}
