// Package tui implements the interactive report browser.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/cpusage/internal/model"
	"github.com/theirongolddev/cpusage/internal/tui/theme"
)

const (
	minTerminalWidth = 60
	chromeHeight     = 8 // title, sources, status and help lines around a table
	minTableHeight   = 3
)

type screen int

const (
	screenDays screen = iota
	screenDay
)

// LoadFunc builds a report. It runs off the UI goroutine.
type LoadFunc func() (*model.Report, error)

// ReportLoadedMsg carries the result of a LoadFunc.
type ReportLoadedMsg struct {
	Report   *model.Report
	Err      error
	LoadTime time.Duration
}

// App is the root Bubble Tea model.
type App struct {
	load  LoadFunc
	title string

	report   *model.Report
	err      error
	loaded   bool
	loading  bool
	loadTime time.Duration

	screen   screen
	selected string // date shown on screenDay
	days     table.Model
	models   table.Model

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	width  int
	height int
}

// NewApp creates the browser. title labels the period being shown.
func NewApp(title string, load LoadFunc) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	return App{
		load:    load,
		title:   title,
		loading: true,
		days:    newTable(dayColumns()),
		models:  newTable(modelColumns()),
		keys:    defaultKeys(),
		help:    help.New(),
		spinner: sp,
	}
}

func newTable(cols []table.Column) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(minTableHeight),
	)
	t.SetStyles(tableStyles())
	return t
}

func loadCmd(load LoadFunc) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		r, err := load()
		return ReportLoadedMsg{Report: r, Err: err, LoadTime: time.Since(start)}
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(loadCmd(a.load), a.spinner.Tick)
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.resize()
		return a, nil

	case ReportLoadedMsg:
		a.loading = false
		a.loaded = true
		a.loadTime = msg.LoadTime
		a.err = msg.Err
		if msg.Err == nil {
			r := msg.Report
			if r == nil {
				r = &model.Report{}
			}
			a.setReport(r)
		}
		return a, nil

	case spinner.TickMsg:
		if a.loading {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit
	case key.Matches(msg, a.keys.Help):
		a.help.ShowAll = !a.help.ShowAll
		return a, nil
	}

	if !a.loaded {
		return a, nil
	}

	switch {
	case key.Matches(msg, a.keys.Refresh):
		if a.loading {
			return a, nil
		}
		a.loading = true
		return a, tea.Batch(loadCmd(a.load), a.spinner.Tick)

	case key.Matches(msg, a.keys.Open):
		if a.screen == screenDays && a.report != nil {
			if row := a.days.SelectedRow(); len(row) > 0 {
				a.openDay(row[0])
			}
		}
		return a, nil

	case key.Matches(msg, a.keys.Back):
		a.screen = screenDays
		a.days.Focus()
		return a, nil
	}

	var cmd tea.Cmd
	if a.screen == screenDay {
		a.models, cmd = a.models.Update(msg)
	} else {
		a.days, cmd = a.days.Update(msg)
	}
	return a, cmd
}

// setReport swaps in a fresh report, keeping the open day if it still exists.
func (a *App) setReport(r *model.Report) {
	a.report = r
	a.days.SetRows(dayRows(r))

	if a.screen == screenDay {
		if _, ok := r.Day(a.selected); ok {
			a.openDay(a.selected)
			return
		}
		a.screen = screenDays
	}
	a.days.Focus()
}

func (a *App) openDay(date string) {
	d, ok := a.report.Day(date)
	if !ok {
		return
	}
	a.selected = date
	a.screen = screenDay
	a.models.SetRows(modelRows(d))
	a.models.SetCursor(0)
	a.models.Focus()
	a.days.Blur()
}

func (a *App) resize() {
	h := a.height - chromeHeight
	if h < minTableHeight {
		h = minTableHeight
	}
	a.days.SetHeight(h)
	a.models.SetHeight(h)
}
