// Package cmd implements the cpusage CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/cpusage/internal/cli"
	"github.com/theirongolddev/cpusage/internal/config"
	"github.com/theirongolddev/cpusage/internal/logger"
	"github.com/theirongolddev/cpusage/internal/model"
	"github.com/theirongolddev/cpusage/internal/pipeline"
	"github.com/theirongolddev/cpusage/internal/proxyapi"
	"github.com/theirongolddev/cpusage/internal/store"
	"github.com/theirongolddev/cpusage/internal/tui/theme"
)

// flagValues holds every persistent flag.
type flagValues struct {
	url     string
	key     string
	pricing string
	logDir  string
	since   string
	until   string
	days    int
	model   string
	noAPI   bool
	noLogs  bool
	noCache bool
	quiet   bool
	debug   bool
}

var flags flagValues

var rootCmd = &cobra.Command{
	Use:   "cpusage",
	Short: "CLIProxyAPI usage and cost report",
	Long: "Report daily token usage and cost per model from the CLIProxyAPI management\n" +
		"endpoint and local token_usage_<date>.log files.",
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
	RunE:              runReport,
}

// Execute is the main entry point called from main.go.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.url, "url", "", "CLIProxyAPI base URL (default from config, http://localhost:8317)")
	pf.StringVar(&flags.key, "key", "", "Management API key (default $"+config.EnvManagementKey+")")
	pf.StringVar(&flags.pricing, "pricing", "", "Token pricing JSON file")
	pf.StringVar(&flags.logDir, "log-dir", "", "Directory holding token_usage_<date>.log files")
	pf.StringVar(&flags.since, "since", "", "First date to include (YYYY-MM-DD)")
	pf.StringVar(&flags.until, "until", "", "Last date to include (YYYY-MM-DD)")
	pf.IntVarP(&flags.days, "days", "n", 0, "Only the last N days including today (0 = all)")
	pf.StringVarP(&flags.model, "model", "m", "", "Filter to model (substring match)")
	pf.BoolVar(&flags.noAPI, "no-api", false, "Skip the management API")
	pf.BoolVar(&flags.noLogs, "no-logs", false, "Skip local log files")
	pf.BoolVar(&flags.noCache, "no-cache", false, "Reparse every log file instead of using the SQLite parse cache (it holds per-file log totals keyed by mtime and size, never API data)")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress progress output")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	addReportFlags(rootCmd)
}

func setupLogging(_ *cobra.Command, _ []string) error {
	level := "warn"
	if flags.debug {
		level = "debug"
	}
	logger.Setup(os.Stderr, level)
	return nil
}

// runOptions is the resolved input to one report run.
type runOptions struct {
	url         string
	key         string
	timeout     time.Duration
	pricingFile string
	logDir      string
	rng         model.DateRange
	model       string
	useAPI      bool
	useLogs     bool
	useCache    bool
	quiet       bool
}

// resolveOptions layers flags over cfg, which already carries env over file
// over defaults. changed reports whether a flag was set on the command line.
func resolveOptions(f flagValues, changed func(string) bool, cfg config.Config, now time.Time) (runOptions, error) {
	opts := runOptions{
		url:         cfg.Proxy.URL,
		key:         cfg.Proxy.ManagementKey,
		timeout:     time.Duration(cfg.Proxy.TimeoutSecs) * time.Second,
		pricingFile: cfg.Pricing.File,
		logDir:      cfg.Logs.Dir,
		model:       f.model,
		useAPI:      cfg.Sources.API && !f.noAPI,
		useLogs:     cfg.Sources.Logs && !f.noLogs,
		useCache:    !f.noCache,
		quiet:       f.quiet,
	}
	if changed("url") {
		opts.url = f.url
	}
	if changed("key") {
		opts.key = f.key
	}
	if changed("pricing") {
		opts.pricingFile = f.pricing
	}
	if changed("log-dir") {
		opts.logDir = f.logDir
		// Naming a log directory turns the log source on unless --no-logs.
		opts.useLogs = !f.noLogs
	}

	rng, err := resolveRange(f, changed, cfg.General.DefaultDays, now)
	if err != nil {
		return opts, err
	}
	opts.rng = rng

	if !opts.useAPI && !opts.useLogs {
		return opts, errors.New("no usage source enabled (both the API and log files are off)")
	}
	return opts, nil
}

func resolveRange(f flagValues, changed func(string) bool, defaultDays int, now time.Time) (model.DateRange, error) {
	explicit := changed("since") || changed("until")
	if explicit && changed("days") {
		return model.DateRange{}, errors.New("--days cannot be combined with --since/--until")
	}

	var rng model.DateRange
	switch {
	case explicit:
		rng = model.DateRange{Since: f.since, Until: f.until}
	case changed("days"):
		if f.days < 0 {
			return rng, fmt.Errorf("--days must be >= 0, got %d", f.days)
		}
		rng = model.LastDays(f.days, now)
	case defaultDays > 0:
		rng = model.LastDays(defaultDays, now)
	}

	if err := rng.Validate(); err != nil {
		return rng, fmt.Errorf("date range: %w", err)
	}
	return rng, nil
}

// commandOptions loads the config and resolves the run options for cmd.
func commandOptions(cmd *cobra.Command) (runOptions, error) {
	cfg, err := config.Load()
	if err != nil {
		return runOptions{}, err
	}
	theme.SetActive(cfg.Appearance.Theme)
	return resolveOptions(flags, cmd.Flags().Changed, cfg, time.Now())
}

// loadReport loads pricing, fetches API usage, ingests logs and builds the
// report. Progress goes to progress unless opts.quiet.
func loadReport(ctx context.Context, opts runOptions, progress io.Writer) (*model.Report, error) {
	pricing, err := config.LoadPricing(opts.pricingFile)
	if err != nil {
		return nil, err
	}

	var apiRecords []model.UsageRecord
	var apiSkipped int
	if opts.useAPI {
		fetched, err := fetchAPI(ctx, opts)
		if err != nil {
			return nil, err
		}
		apiRecords = fetched.Records
		apiSkipped = fetched.Skipped
	}

	var logs *pipeline.LogResult
	if opts.useLogs {
		logs, err = loadLogs(ctx, opts, progress)
		if err != nil {
			return nil, err
		}
	} else {
		logs = &pipeline.LogResult{}
	}

	report := pipeline.Assemble(apiRecords, logs.Records, pricing, pipeline.ReportOptions{
		Range: opts.rng,
		Model: opts.model,
	})

	d := &report.Diagnostics
	d.APISkipped = apiSkipped
	d.LogFiles = logs.TotalFiles
	d.LogFileErrors = logs.FileErrors
	d.LogParseErrors = logs.ParseErrors
	d.CacheHits = logs.CacheHits
	d.Warnings = append(d.Warnings, logs.Warnings...)
	return report, nil
}

func fetchAPI(ctx context.Context, opts runOptions) (*proxyapi.FetchResult, error) {
	client := proxyapi.NewClient(opts.url, opts.key, proxyapi.WithTimeout(opts.timeout))
	if !client.HasKey() {
		logger.Warn("no management key provided, attempting access without key", "url", client.URL())
	}

	fetched, err := client.FetchUsage(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching usage from %s: %w", client.URL(), err)
	}
	logger.Debug("fetched API usage", "records", len(fetched.Records), "skipped", fetched.Skipped)
	return fetched, nil
}

// loadLogs ingests log files, through the SQLite cache when it is usable.
func loadLogs(ctx context.Context, opts runOptions, progress io.Writer) (*pipeline.LogResult, error) {
	if opts.quiet {
		progress = io.Discard
	}

	// Progress is called from the parser workers.
	var mu sync.Mutex
	logOpts := pipeline.LogOptions{
		Dir:   opts.logDir,
		Range: opts.rng,
		Progress: func(current, total int) {
			if current%50 == 0 || current == total {
				mu.Lock()
				fmt.Fprintf(progress, "\r  Parsing logs [%d/%d]", current, total)
				mu.Unlock()
			}
		},
	}

	if opts.useCache {
		result, err := loadLogsCached(ctx, logOpts, progress)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		logger.Debug("log cache unusable, doing full parse", "error", err)
	}

	result, err := pipeline.LoadLogs(ctx, logOpts)
	if err != nil {
		return nil, err
	}
	if result.ParsedFiles > 0 {
		fmt.Fprintf(progress, "\r  Parsed %s log files    \n", cli.FormatNumber(int64(result.ParsedFiles)))
	}
	return result, nil
}

func loadLogsCached(ctx context.Context, logOpts pipeline.LogOptions, progress io.Writer) (*pipeline.LogResult, error) {
	cache, err := store.Open(pipeline.CachePath())
	if err != nil {
		return nil, err
	}
	defer func() { _ = cache.Close() }()

	result, err := pipeline.LoadLogsWithCache(ctx, logOpts, cache)
	if err != nil {
		return nil, err
	}
	if result.TotalFiles > 0 {
		if result.Reparsed == 0 {
			fmt.Fprintf(progress, "\r  Loaded %s log files from cache    \n", cli.FormatNumber(int64(result.TotalFiles)))
		} else {
			fmt.Fprintf(progress, "\r  %s cached + %d reparsed log files    \n",
				cli.FormatNumber(int64(result.CacheHits)), result.Reparsed)
		}
	}
	return result, nil
}

// rangeLabel describes a date range for titles.
func rangeLabel(rng model.DateRange) string {
	switch {
	case rng.IsOpen():
		return "all dates"
	case rng.Since == "":
		return "through " + rng.Until
	case rng.Until == "":
		return "since " + rng.Since
	case rng.Since == rng.Until:
		return rng.Since
	default:
		return rng.Since + " .. " + rng.Until
	}
}
