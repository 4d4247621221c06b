// Package config loads cpusage settings and the token pricing table.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override the config file.
const (
	EnvManagementKey = "CLI_PROXY_MANAGEMENT_KEY"
	EnvProxyURL      = "CLI_PROXY_URL"
	EnvLogDir        = "CPUSAGE_LOG_DIR"
	EnvPricingFile   = "CPUSAGE_PRICING"
	EnvAPIEnabled    = "CLI_PROXY_ENABLED"
	EnvLogsEnabled   = "GLM_ENABLED"
)

// Config holds all cpusage configuration.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Proxy      ProxyConfig      `toml:"proxy"`
	Sources    SourcesConfig    `toml:"sources"`
	Logs       LogsConfig       `toml:"logs"`
	Pricing    PricingConfig    `toml:"pricing"`
	Appearance AppearanceConfig `toml:"appearance"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	DefaultDays int `toml:"default_days"`
}

// ProxyConfig holds the management API connection settings.
type ProxyConfig struct {
	URL           string `toml:"url"`
	ManagementKey string `toml:"management_key,omitempty"`
	TimeoutSecs   int    `toml:"timeout_secs,omitempty"`
}

// SourcesConfig switches each usage source on or off.
type SourcesConfig struct {
	API  bool `toml:"api"`
	Logs bool `toml:"logs"`
}

// LogsConfig locates the token usage log files.
type LogsConfig struct {
	Dir string `toml:"dir"`
}

// PricingConfig locates the pricing JSON file.
type PricingConfig struct {
	File string `toml:"file"`
}

// AppearanceConfig holds display preferences for the browser.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Proxy: ProxyConfig{
			URL:         "http://localhost:8317",
			TimeoutSecs: 10,
		},
		Sources: SourcesConfig{
			API:  true,
			Logs: false,
		},
		Logs: LogsConfig{
			Dir: defaultLogDir(),
		},
		Pricing: PricingConfig{
			File: filepath.Join(Dir(), "token_pricing.json"),
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "logs"
	}
	return filepath.Join(home, "logs")
}

// Dir returns the XDG-compliant config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cpusage")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cpusage")
}

// Path returns the full path to the config file.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads .env files, then the config file (defaults if it doesn't exist),
// then applies environment overrides.
func Load() (Config, error) {
	loadDotEnv()

	cfg := DefaultConfig()

	data, err := os.ReadFile(Path())
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", Path(), err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// loadDotEnv loads the first .env found. Existing env vars are not overwritten.
func loadDotEnv() {
	candidates := []string{filepath.Join(Dir(), ".env")}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append([]string{filepath.Join(cwd, ".env")}, candidates...)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func applyEnv(cfg *Config) {
	cfg.Proxy.URL = envString(EnvProxyURL, cfg.Proxy.URL)
	cfg.Proxy.ManagementKey = envString(EnvManagementKey, cfg.Proxy.ManagementKey)
	cfg.Logs.Dir = envString(EnvLogDir, cfg.Logs.Dir)
	cfg.Pricing.File = envString(EnvPricingFile, cfg.Pricing.File)
	cfg.Sources.API = envBool(EnvAPIEnabled, cfg.Sources.API)
	cfg.Sources.Logs = envBool(EnvLogsEnabled, cfg.Sources.Logs)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Save writes the config to disk.
func Save(cfg Config) error {
	if err := os.MkdirAll(Dir(), 0o750); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(Path(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return toml.NewEncoder(f).Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(Path())
	return err == nil
}
