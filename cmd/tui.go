package cmd

import (
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/cpusage/internal/config"
	"github.com/theirongolddev/cpusage/internal/logger"
	"github.com/theirongolddev/cpusage/internal/model"
	"github.com/theirongolddev/cpusage/internal/tui"
	"github.com/theirongolddev/cpusage/internal/tui/theme"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse the report interactively",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	theme.SetActive(cfg.Appearance.Theme)

	opts, err := resolveOptions(flags, cmd.Flags().Changed, cfg, time.Now())
	if err != nil {
		return err
	}
	// Progress and log lines would tear the alt screen; diagnostics show in the status line.
	opts.quiet = true
	logger.Setup(io.Discard, "error")

	// Force TrueColor so table selection and borders render.
	lipgloss.SetColorProfile(termenv.TrueColor)

	ctx := cmd.Context()
	load := func() (*model.Report, error) {
		return loadReport(ctx, opts, io.Discard)
	}

	p := tea.NewProgram(tui.NewApp(rangeLabel(opts.rng), load), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
