package cli

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/cpusage/internal/model"
)

// RenderSummary renders one row per day plus a grand total row.
func RenderSummary(r *model.Report) string {
	rows := make([][]string, 0, len(r.Days))
	for _, d := range r.Days {
		rows = append(rows, totalsRow(d.Date, d.Totals))
	}

	return RenderTable(Table{
		Title:   "Daily Summary",
		Headers: []string{"Date", "Requests", "Input", "Output", "Total Tokens", "Input Cost", "Output Cost", "Total Cost"},
		Rows:    rows,
		Total:   totalsRow("Total", r.Total),
	})
}

func totalsRow(label string, t model.Totals) []string {
	return []string{
		label,
		FormatNumber(t.Requests),
		FormatNumber(t.PromptTokens),
		FormatNumber(t.CompletionTokens),
		FormatNumber(t.TotalTokens),
		FormatCost(t.InputCost),
		FormatEstimatedCost(t.OutputCost, t.Estimated),
		FormatEstimatedCost(t.TotalCost, t.Estimated),
	}
}

// RenderDayDetails renders the per-model cells of one day.
func RenderDayDetails(d model.DayReport) string {
	rows := make([][]string, 0, len(d.Models))
	for _, c := range d.Models {
		rows = append(rows, []string{
			c.Model,
			FormatNumber(c.Requests),
			FormatNumber(c.Successes),
			FormatNumber(c.Failures),
			FormatNumber(c.PromptTokens),
			FormatNumber(c.CompletionTokens),
			FormatNumber(c.TotalTokens),
			FormatCost(c.InputCost),
			FormatEstimatedCost(c.OutputCost, c.TotalOnly),
			FormatEstimatedCost(c.TotalCost, c.TotalOnly),
			string(c.Source),
		})
	}
	t := d.Totals
	total := []string{
		"Total",
		FormatNumber(t.Requests),
		FormatNumber(t.Successes),
		FormatNumber(t.Failures),
		FormatNumber(t.PromptTokens),
		FormatNumber(t.CompletionTokens),
		FormatNumber(t.TotalTokens),
		FormatCost(t.InputCost),
		FormatEstimatedCost(t.OutputCost, t.Estimated),
		FormatEstimatedCost(t.TotalCost, t.Estimated),
		"",
	}

	return RenderTable(Table{
		Title:   d.Date + "  " + dayOfWeek(d.Date),
		Headers: []string{"Model", "Requests", "OK", "Failed", "Input", "Output", "Total", "Input Cost", "Output Cost", "Total Cost", "Source"},
		Rows:    rows,
		Total:   total,
	})
}

// RenderTotals renders the grand total as a two-column metric table.
func RenderTotals(r *model.Report) string {
	t := r.Total
	period := "no data"
	if len(r.Days) > 0 {
		period = r.Days[0].Date + " .. " + r.Days[len(r.Days)-1].Date
	}

	return RenderTable(Table{
		Headers: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Period", period},
			{"Days", FormatNumber(int64(len(r.Days)))},
			{"Requests", FormatNumber(t.Requests)},
			{"Succeeded", FormatNumber(t.Successes)},
			{"Failed", FormatNumber(t.Failures)},
			{"Input Tokens", FormatNumber(t.PromptTokens)},
			{"Output Tokens", FormatNumber(t.CompletionTokens)},
			{"Total Tokens", FormatNumber(t.TotalTokens)},
			{"Input Cost", FormatCost(t.InputCost)},
			{"Output Cost", FormatEstimatedCost(t.OutputCost, t.Estimated)},
			{"Total Cost", FormatEstimatedCost(t.TotalCost, t.Estimated)},
		},
	})
}

// RenderDiagnostics renders one warning line per non-fatal problem.
// It returns "" when there is nothing to report.
func RenderDiagnostics(d model.Diagnostics) string {
	var lines []string
	if d.LogFileErrors > 0 {
		lines = append(lines, fmt.Sprintf("%d log file(s) could not be read", d.LogFileErrors))
	}
	if d.LogParseErrors > 0 {
		lines = append(lines, fmt.Sprintf("%d malformed log line(s) skipped", d.LogParseErrors))
	}
	if d.APISkipped > 0 {
		lines = append(lines, fmt.Sprintf("%d API usage entr(ies) could not be normalized", d.APISkipped))
	}
	lines = append(lines, d.Warnings...)

	if len(lines) == 0 {
		return ""
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString("  ")
		b.WriteString(warnStyle().Render("! " + l))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderSources renders a one-line note on where the numbers came from.
func RenderSources(d model.Diagnostics) string {
	s := fmt.Sprintf("  api: %d record(s)  logs: %d record(s) from %d file(s)",
		d.APIRecords, d.LogRecords, d.LogFiles)
	if d.Overlaps > 0 {
		s += fmt.Sprintf("  (%d log key(s) superseded by API)", d.Overlaps)
	}
	if d.CacheHits > 0 {
		s += fmt.Sprintf("  [%d cached]", d.CacheHits)
	}
	return mutedStyle().Render(s) + "\n"
}

// EstimateNote explains the "~" marker. Empty when no cost was estimated.
func EstimateNote(r *model.Report) string {
	if !r.Total.Estimated {
		return ""
	}
	return mutedStyle().Render("  ~ cost estimated: total-only usage priced as output tokens") + "\n"
}

func dayOfWeek(date string) string {
	t, err := model.ParseDate(date)
	if err != nil {
		return ""
	}
	return FormatDayOfWeek(int(t.Weekday()))
}
