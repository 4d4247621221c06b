package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/cpusage/internal/cli"
	"github.com/theirongolddev/cpusage/internal/model"
	"github.com/theirongolddev/cpusage/internal/tui/theme"
)

func dayColumns() []table.Column {
	return []table.Column{
		{Title: "Date", Width: 10},
		{Title: "Day", Width: 3},
		{Title: "Models", Width: 6},
		{Title: "Requests", Width: 9},
		{Title: "Input", Width: 8},
		{Title: "Output", Width: 8},
		{Title: "Total", Width: 8},
		{Title: "Cost", Width: 11},
	}
}

func modelColumns() []table.Column {
	return []table.Column{
		{Title: "Model", Width: 28},
		{Title: "Src", Width: 3},
		{Title: "Requests", Width: 9},
		{Title: "Input", Width: 8},
		{Title: "Output", Width: 8},
		{Title: "Total", Width: 8},
		{Title: "Cost", Width: 11},
	}
}

func dayRows(r *model.Report) []table.Row {
	rows := make([]table.Row, 0, len(r.Days))
	for _, d := range r.Days {
		t := d.Totals
		rows = append(rows, table.Row{
			d.Date,
			weekday(d.Date),
			cli.FormatNumber(int64(len(d.Models))),
			cli.FormatNumber(t.Requests),
			cli.FormatTokens(t.PromptTokens),
			cli.FormatTokens(t.CompletionTokens),
			cli.FormatTokens(t.TotalTokens),
			cli.FormatEstimatedCost(t.TotalCost, t.Estimated),
		})
	}
	return rows
}

func modelRows(d model.DayReport) []table.Row {
	rows := make([]table.Row, 0, len(d.Models))
	for _, c := range d.Models {
		rows = append(rows, table.Row{
			c.Model,
			string(c.Source),
			cli.FormatNumber(c.Requests),
			cli.FormatTokens(c.PromptTokens),
			cli.FormatTokens(c.CompletionTokens),
			cli.FormatTokens(c.TotalTokens),
			cli.FormatEstimatedCost(c.TotalCost, c.TotalOnly),
		})
	}
	return rows
}

func weekday(date string) string {
	t, err := model.ParseDate(date)
	if err != nil {
		return ""
	}
	return cli.FormatDayOfWeek(int(t.Weekday()))
}

func tableStyles() table.Styles {
	t := theme.Active
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(t.Border).
		BorderBottom(true).
		Foreground(t.Accent).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(t.TextPrimary).
		Background(t.SurfaceHover).
		Bold(true)
	return s
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return fmt.Sprintf("\n  Terminal too narrow (%d cols)\n\n  cpusage needs at least %d columns.\n",
			a.width, minTerminalWidth)
	}
	if !a.loaded {
		return a.viewLoading()
	}
	if a.err != nil {
		return a.viewError()
	}
	return a.viewMain()
}

func (a App) viewLoading() string {
	t := theme.Active
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Padding(1, 3).
		Render(a.spinner.View() + lipgloss.NewStyle().Foreground(t.TextMuted).Render(" Loading usage..."))
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, card)
}

func (a App) viewError() string {
	t := theme.Active
	var b strings.Builder
	b.WriteString("\n  ")
	b.WriteString(lipgloss.NewStyle().Foreground(t.Red).Bold(true).Render("Could not load usage"))
	b.WriteString("\n\n  ")
	b.WriteString(lipgloss.NewStyle().Foreground(t.TextPrimary).Render(a.err.Error()))
	b.WriteString("\n\n  ")
	b.WriteString(a.help.View(a.keys))
	b.WriteString("\n")
	return b.String()
}

func (a App) viewMain() string {
	t := theme.Active
	titleStyle := lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	warnStyle := lipgloss.NewStyle().Foreground(t.Orange)

	var b strings.Builder
	b.WriteString(" ")
	switch a.screen {
	case screenDay:
		b.WriteString(titleStyle.Render(a.selected + "  " + weekday(a.selected)))
	default:
		b.WriteString(titleStyle.Render("cpusage  " + a.title))
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(" " + a.summaryLine()))
	b.WriteString("\n\n")

	if len(a.report.Days) == 0 {
		b.WriteString(mutedStyle.Render("  No usage in the selected range."))
		b.WriteString("\n")
	} else if a.screen == screenDay {
		b.WriteString(a.models.View())
		b.WriteString("\n")
	} else {
		b.WriteString(a.days.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if w := a.warningLine(); w != "" {
		b.WriteString(warnStyle.Render(" ! " + w))
		b.WriteString("\n")
	}
	b.WriteString(" ")
	b.WriteString(a.help.View(a.keys))
	return b.String()
}

// summaryLine totals either the whole report or the open day.
func (a App) summaryLine() string {
	totals := a.report.Total
	scope := fmt.Sprintf("%d day(s)", len(a.report.Days))
	if a.screen == screenDay {
		if d, ok := a.report.Day(a.selected); ok {
			totals = d.Totals
			scope = fmt.Sprintf("%d model(s)", len(d.Models))
		}
	}
	line := fmt.Sprintf("%s  %s requests  %s tokens  %s",
		scope,
		cli.FormatNumber(totals.Requests),
		cli.FormatTokens(totals.TotalTokens),
		cli.FormatEstimatedCost(totals.TotalCost, totals.Estimated),
	)
	if a.loadTime > 0 {
		line += fmt.Sprintf("  (loaded in %s)", a.loadTime.Round(time.Millisecond))
	}
	return line
}

func (a App) warningLine() string {
	d := a.report.Diagnostics
	if !d.HasProblems() {
		return ""
	}
	var parts []string
	if n := d.LogFileErrors; n > 0 {
		parts = append(parts, fmt.Sprintf("%d unreadable log file(s)", n))
	}
	if n := d.LogParseErrors; n > 0 {
		parts = append(parts, fmt.Sprintf("%d malformed line(s)", n))
	}
	if n := d.APISkipped; n > 0 {
		parts = append(parts, fmt.Sprintf("%d API entr(ies) skipped", n))
	}
	parts = append(parts, d.Warnings...)
	return strings.Join(parts, "; ")
}
