package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/cpusage/internal/config"
	"github.com/theirongolddev/cpusage/internal/tui/theme"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive configuration wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		// A broken file is replaced by whatever the wizard collects.
		fmt.Fprintf(cmd.ErrOrStderr(), "  Ignoring unreadable config: %s\n", err)
		cfg = config.DefaultConfig()
	}

	var newKey string
	keyHint := "Leave blank to skip"
	if cfg.Proxy.ManagementKey != "" {
		keyHint = "Current: " + maskKey(cfg.Proxy.ManagementKey) + " (blank keeps it)"
	}

	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, t := range theme.All {
		themeOpts = append(themeOpts, huh.NewOption(t.Name, t.Name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("CLIProxyAPI URL").
				Value(&cfg.Proxy.URL).
				Validate(requireNonEmpty("URL")),
			huh.NewInput().
				Title("Management key").
				Description(keyHint).
				EchoMode(huh.EchoModePassword).
				Value(&newKey),
			huh.NewConfirm().
				Title("Read usage from the management API?").
				Value(&cfg.Sources.API),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Read token_usage_<date>.log files?").
				Value(&cfg.Sources.Logs),
			huh.NewInput().
				Title("Log directory").
				Value(&cfg.Logs.Dir),
			huh.NewInput().
				Title("Pricing file").
				Description("JSON with pricing.default and per-model overrides").
				Value(&cfg.Pricing.File).
				Validate(requireNonEmpty("pricing file")),
		),
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Default time range").
				Options(
					huh.NewOption("All dates", 0),
					huh.NewOption("7 days", 7),
					huh.NewOption("30 days", 30),
					huh.NewOption("90 days", 90),
				).
				Value(&cfg.General.DefaultDays),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&cfg.Appearance.Theme),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(cmd.OutOrStdout(), "  Setup cancelled, nothing saved.")
			return nil
		}
		return fmt.Errorf("setup form: %w", err)
	}

	if k := strings.TrimSpace(newKey); k != "" {
		cfg.Proxy.ManagementKey = k
	}
	if !cfg.Sources.API && !cfg.Sources.Logs {
		return errors.New("at least one usage source must be enabled")
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Saved to %s\n", config.Path())
	fmt.Fprintln(out, "  Run `cpusage setup` anytime to reconfigure.")
	fmt.Fprintln(out)
	return nil
}

func requireNonEmpty(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}
