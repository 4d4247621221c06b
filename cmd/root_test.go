package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/theirongolddev/cpusage/internal/config"
	"github.com/theirongolddev/cpusage/internal/model"
)

const testPricing = `{
  "pricing": {"default": {"input_token_per_million": 1.0, "output_token_per_million": 7.5}},
  "models": {"glm-4.6": {"input_token_per_million": 0.5, "output_token_per_million": 2.0}}
}`

func changedSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func TestResolveOptions_Precedence(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Proxy.URL = "http://from-config:1"
	cfg.Proxy.ManagementKey = "cfg-key"

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local)

	opts, err := resolveOptions(flagValues{}, changedSet(), cfg, now)
	if err != nil {
		t.Fatalf("resolveOptions: %v", err)
	}
	if opts.url != "http://from-config:1" || opts.key != "cfg-key" {
		t.Errorf("config values not used: %+v", opts)
	}
	if !opts.useAPI || opts.useLogs || !opts.useCache {
		t.Errorf("sources = api %v logs %v cache %v", opts.useAPI, opts.useLogs, opts.useCache)
	}
	if !opts.rng.IsOpen() {
		t.Errorf("range = %+v, want open", opts.rng)
	}

	f := flagValues{url: "http://flag:2", key: "", logDir: "/tmp/logs", days: 7}
	opts, err = resolveOptions(f, changedSet("url", "key", "log-dir", "days"), cfg, now)
	if err != nil {
		t.Fatalf("resolveOptions: %v", err)
	}
	if opts.url != "http://flag:2" {
		t.Errorf("url = %q, want flag value", opts.url)
	}
	if opts.key != "" {
		t.Errorf("explicit empty --key should win, got %q", opts.key)
	}
	if !opts.useLogs || opts.logDir != "/tmp/logs" {
		t.Errorf("--log-dir should enable logs: %+v", opts)
	}
	if opts.rng.Since != "2024-03-04" || opts.rng.Until != "2024-03-10" {
		t.Errorf("range = %+v", opts.rng)
	}
}

func TestResolveOptions_DefaultDaysFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.General.DefaultDays = 3
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local)

	opts, err := resolveOptions(flagValues{}, changedSet(), cfg, now)
	if err != nil {
		t.Fatal(err)
	}
	if opts.rng.Since != "2024-03-08" {
		t.Fatalf("Since = %q, want 2024-03-08", opts.rng.Since)
	}

	// An explicit range replaces the configured default.
	opts, err = resolveOptions(flagValues{since: "2024-01-01"}, changedSet("since"), cfg, now)
	if err != nil {
		t.Fatal(err)
	}
	if opts.rng.Since != "2024-01-01" || opts.rng.Until != "" {
		t.Fatalf("range = %+v", opts.rng)
	}
}

func TestResolveOptions_Errors(t *testing.T) {
	cfg := config.DefaultConfig()
	now := time.Now()

	tests := []struct {
		name    string
		f       flagValues
		changed []string
	}{
		{"bad since", flagValues{since: "03/01/2024"}, []string{"since"}},
		{"inverted", flagValues{since: "2024-02-01", until: "2024-01-01"}, []string{"since", "until"}},
		{"days with since", flagValues{since: "2024-01-01", days: 3}, []string{"since", "days"}},
		{"negative days", flagValues{days: -1}, []string{"days"}},
		{"no source", flagValues{noAPI: true}, []string{"no-api"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := resolveOptions(tt.f, changedSet(tt.changed...), cfg, now); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// fixture writes a pricing file and one log file and serves one API entry.
type fixture struct {
	opts runOptions
	hits atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))

	pricing := filepath.Join(dir, "token_pricing.json")
	if err := os.WriteFile(pricing, []byte(testPricing), 0o600); err != nil {
		t.Fatal(err)
	}

	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		t.Fatal(err)
	}
	lines := `{"timestamp":"2024-01-02T10:00:00","model":"glm-4.6","token_usage":{"prompt_tokens":50,"completion_tokens":20,"total_tokens":70}}
{"timestamp":"2024-01-02T11:00:00","model":"glm-4.6","token_usage":{"prompt_tokens":30,"completion_tokens":15,"total_tokens":45}}
not json
{"timestamp":"2024-01-02T12:00:00","model":"gpt-x","token_usage":{"prompt_tokens":5,"completion_tokens":5,"total_tokens":10}}
`
	if err := os.WriteFile(filepath.Join(logDir, "token_usage_2024-01-02.log"), []byte(lines), 0o600); err != nil {
		t.Fatal(err)
	}

	fx := &fixture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fx.hits.Add(1)
		_, _ = io.WriteString(w, `[{"date":"2024-01-02","model":"gpt-x","prompt_tokens":1000,"completion_tokens":500,"total_tokens":1500,"request_count":4,"success_count":4,"failure_count":0}]`)
	}))
	t.Cleanup(srv.Close)

	fx.opts = runOptions{
		url:         srv.URL,
		key:         "k",
		timeout:     time.Second,
		pricingFile: pricing,
		logDir:      logDir,
		useAPI:      true,
		useLogs:     true,
		useCache:    true,
		quiet:       true,
	}
	return fx
}

func TestLoadReport_MergesBothSources(t *testing.T) {
	fx := newFixture(t)

	report, err := loadReport(context.Background(), fx.opts, io.Discard)
	if err != nil {
		t.Fatalf("loadReport: %v", err)
	}
	if fx.hits.Load() != 1 {
		t.Errorf("API hits = %d, want 1", fx.hits.Load())
	}

	day, ok := report.Day("2024-01-02")
	if !ok || len(day.Models) != 2 {
		t.Fatalf("day = %+v", day)
	}
	// glm-4.6 only in logs: 80/35/115 over 2 requests. gpt-x from the API.
	glm, gpt := day.Models[1], day.Models[0]
	if gpt.Model != "gpt-x" || gpt.PromptTokens != 1000 || gpt.Source != model.SourceAPI {
		t.Errorf("gpt-x cell = %+v", gpt)
	}
	if glm.Model != "glm-4.6" || glm.PromptTokens != 80 || glm.CompletionTokens != 35 || glm.Requests != 2 {
		t.Errorf("glm-4.6 cell = %+v", glm)
	}

	d := report.Diagnostics
	if d.Overlaps != 1 || d.LogParseErrors != 1 || d.LogFiles != 1 {
		t.Errorf("diagnostics = %+v", d)
	}

	// Second run hits the log cache.
	report, err = loadReport(context.Background(), fx.opts, io.Discard)
	if err != nil {
		t.Fatalf("loadReport (cached): %v", err)
	}
	if report.Diagnostics.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", report.Diagnostics.CacheHits)
	}
	// API usage is never served from the cache.
	if fx.hits.Load() != 2 {
		t.Errorf("API hits = %d, want 2", fx.hits.Load())
	}
}

func TestLoadReport_PricingErrorIsFatal(t *testing.T) {
	fx := newFixture(t)
	fx.opts.pricingFile = filepath.Join(t.TempDir(), "missing.json")

	if _, err := loadReport(context.Background(), fx.opts, io.Discard); err == nil {
		t.Fatal("expected pricing error")
	}
	if fx.hits.Load() != 0 {
		t.Errorf("API hit %d times before pricing validation", fx.hits.Load())
	}
}

func TestLoadReport_APIErrorIsFatal(t *testing.T) {
	fx := newFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	fx.opts.url = srv.URL

	_, err := loadReport(context.Background(), fx.opts, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestLoadReport_LogsOnlyWithoutCache(t *testing.T) {
	fx := newFixture(t)
	fx.opts.useAPI = false
	fx.opts.useCache = false

	var progress bytes.Buffer
	fx.opts.quiet = false
	report, err := loadReport(context.Background(), fx.opts, &progress)
	if err != nil {
		t.Fatal(err)
	}
	if fx.hits.Load() != 0 {
		t.Errorf("API contacted with the API source off")
	}
	if report.Total.TotalTokens != 125 {
		t.Errorf("TotalTokens = %d, want 125", report.Total.TotalTokens)
	}
	if !strings.Contains(progress.String(), "Parsed 1 log files") {
		t.Errorf("progress = %q", progress.String())
	}
}

func TestWriteReport(t *testing.T) {
	fx := newFixture(t)
	report, err := loadReport(context.Background(), fx.opts, io.Discard)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	writeReport(&buf, report, model.DateRange{Since: "2024-01-02", Until: "2024-01-02"}, true, true)
	out := buf.String()
	for _, want := range []string{"2024-01-02", "glm-4.6", "gpt-x", "Succeeded", "superseded by API"} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q", want)
		}
	}

	buf.Reset()
	if err := writeJSON(&buf, report); err != nil {
		t.Fatal(err)
	}
	var decoded model.Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("JSON output does not decode: %v", err)
	}
	if len(decoded.Days) != 1 || !decoded.Total.TotalCost.Equal(report.Total.TotalCost) {
		t.Fatalf("decoded = %+v", decoded.Total)
	}
}

func TestRangeLabel(t *testing.T) {
	tests := []struct {
		rng  model.DateRange
		want string
	}{
		{model.DateRange{}, "all dates"},
		{model.DateRange{Since: "2024-01-01"}, "since 2024-01-01"},
		{model.DateRange{Until: "2024-01-31"}, "through 2024-01-31"},
		{model.DateRange{Since: "2024-01-05", Until: "2024-01-05"}, "2024-01-05"},
		{model.DateRange{Since: "2024-01-01", Until: "2024-01-31"}, "2024-01-01 .. 2024-01-31"},
	}
	for _, tt := range tests {
		if got := rangeLabel(tt.rng); got != tt.want {
			t.Errorf("rangeLabel(%+v) = %q, want %q", tt.rng, got, tt.want)
		}
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey("abcdefghijklmnopqrst"); got != "abcdefgh...qrst" {
		t.Errorf("maskKey long = %q", got)
	}
	if got := maskKey("abc"); got != "****" {
		t.Errorf("maskKey short = %q", got)
	}
}
