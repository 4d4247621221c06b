package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/cpusage/internal/cli"
	"github.com/theirongolddev/cpusage/internal/config"
	"github.com/theirongolddev/cpusage/internal/pipeline"
	"github.com/theirongolddev/cpusage/internal/store"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show resolved configuration and pricing",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	opts, err := resolveOptions(flags, cmd.Flags().Changed, cfg, time.Now())
	if err != nil {
		fmt.Fprintf(out, "  Warning: %s\n\n", err)
	}

	fmt.Fprintf(out, "  Config file: %s\n", config.Path())
	if config.Exists() {
		fmt.Fprintln(out, "  Status: loaded")
	} else {
		fmt.Fprintln(out, "  Status: using defaults (no config file)")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "  [Proxy]")
	fmt.Fprintf(out, "    URL:            %s\n", opts.url)
	if opts.key != "" {
		fmt.Fprintf(out, "    Management key: %s\n", maskKey(opts.key))
	} else {
		fmt.Fprintln(out, "    Management key: not configured")
	}
	fmt.Fprintf(out, "    Timeout:        %s\n", opts.timeout)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "  [Sources]")
	fmt.Fprintf(out, "    API:  %v\n", opts.useAPI)
	fmt.Fprintf(out, "    Logs: %v (%s)\n", opts.useLogs, opts.logDir)
	fmt.Fprintf(out, "    Range: %s\n", rangeLabel(opts.rng))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "  [Pricing]")
	fmt.Fprintf(out, "    File: %s\n", opts.pricingFile)
	pricing, err := config.LoadPricing(opts.pricingFile)
	if err != nil {
		fmt.Fprintf(out, "    Error: %s\n", err)
	} else {
		def := pricing.Default()
		fmt.Fprintf(out, "    %-24s in %s  out %s\n", "default", def.InputPerMTok, def.OutputPerMTok)
		for _, name := range pricing.Models() {
			r := pricing.Resolve(name)
			fmt.Fprintf(out, "    %-24s in %s  out %s\n", name, r.InputPerMTok, r.OutputPerMTok)
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "  [Cache]")
	fmt.Fprintf(out, "    Path: %s\n", pipeline.CachePath())
	if cache, err := store.Open(pipeline.CachePath()); err == nil {
		if n, err := cache.FileCount(); err == nil {
			fmt.Fprintf(out, "    Log files cached: %s\n", cli.FormatNumber(int64(n)))
		}
		_ = cache.Close()
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "  Run `cpusage setup` to reconfigure.")
	return nil
}

func maskKey(key string) string {
	if len(key) > 16 {
		return key[:8] + "..." + key[len(key)-4:]
	}
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return "****"
}
