package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/theirongolddev/cpusage/internal/tui/theme"
)

// Styles are built per render so they follow the active theme.
func headerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(theme.Active.Accent)
}

func mutedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(theme.Active.TextMuted)
}

func warnStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(theme.Active.Orange)
}

// Table is a bordered report table. The first TextCols columns are
// left-aligned labels; the rest are right-aligned figures.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	// Total is an optional closing row, drawn bold below the others.
	Total []string
	// TextCols defaults to 1.
	TextCols int
}

// RenderTitle renders a report heading in a rounded box.
func RenderTitle(title string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Active.Border).
		Foreground(theme.Active.TextPrimary).
		Bold(true).
		Width(55).
		Align(lipgloss.Center).
		Padding(0, 1).
		Render(title)
}

// RenderTable renders t with cell widths measured in terminal columns, so
// wide runes and styled text line up.
func RenderTable(t Table) string {
	if len(t.Rows) == 0 && len(t.Headers) == 0 && t.Total == nil {
		return ""
	}

	textCols := t.TextCols
	if textCols == 0 {
		textCols = 1
	}
	rows := t.Rows
	if t.Total != nil {
		rows = append(rows[:len(rows):len(rows)], t.Total)
	}
	isTotal := func(row int) bool { return t.Total != nil && row == len(rows)-1 }

	th := theme.Active
	cell := lipgloss.NewStyle().Padding(0, 1)
	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(th.TextDim)).
		Headers(t.Headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := cell.Foreground(th.TextPrimary)
			switch {
			case row == table.HeaderRow:
				s = s.Bold(true).Foreground(th.Accent)
			case isTotal(row):
				s = s.Bold(true).Foreground(th.Green)
			}
			if col >= textCols {
				s = s.Align(lipgloss.Right)
			}
			return s
		})

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(headerStyle().Render(t.Title))
		b.WriteString("\n")
	}
	b.WriteString(tbl.Render())
	b.WriteString("\n")
	return b.String()
}
