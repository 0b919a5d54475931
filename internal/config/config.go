package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// GitHubConfig holds provider access configuration.
type GitHubConfig struct {
	Host              string  `toml:"host"`
	Token             string  `toml:"token"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	MaxRetries        int     `toml:"max_retries"`
	MaxLogBytes       int64   `toml:"max_log_bytes"`
}

// AggregationConfig bounds snapshot aggregation.
type AggregationConfig struct {
	RunLimit       int           `toml:"run_limit"`
	MaxConcurrency int           `toml:"max_concurrency"`
	Timeout        time.Duration `toml:"timeout"`
}

// CacheConfig selects the analysis cache backend.
type CacheConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// AnalyzerConfig configures the OpenAI-compatible analyzer.
type AnalyzerConfig struct {
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	MaxLogChars int     `toml:"max_log_chars"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	MetricsAddr string `toml:"metrics_addr"`
	Trace       string `toml:"trace"`
}

// Config holds all gh-actions-scan configuration.
type Config struct {
	UserID      string            `toml:"user_id"`
	GitHub      GitHubConfig      `toml:"github"`
	Aggregation AggregationConfig `toml:"aggregation"`
	Cache       CacheConfig       `toml:"cache"`
	Analyzer    AnalyzerConfig    `toml:"analyzer"`
	Log         LogConfig         `toml:"log"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	user := os.Getenv("USER")
	if user == "" {
		user = "local"
	}
	return Config{
		UserID: user,
		GitHub: GitHubConfig{
			Host:              "github.com",
			RequestsPerSecond: 20,
			MaxRetries:        2,
			MaxLogBytes:       1 << 20,
		},
		Aggregation: AggregationConfig{
			RunLimit:       10,
			MaxConcurrency: 8,
			Timeout:        2 * time.Minute,
		},
		Cache: CacheConfig{
			Backend: BackendSQLite,
			Path:    defaultCachePath(BackendSQLite),
		},
		Analyzer: AnalyzerConfig{
			Model:       "gpt-4o-mini",
			MaxLogChars: 60000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Trace: "none",
		},
	}
}

func defaultCachePath(backend string) string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	if backend == BackendBadger {
		return filepath.Join(dir, "gh-actions-scan", "analysis-badger")
	}
	return filepath.Join(dir, "gh-actions-scan", "analysis.db")
}

// LoadFrom reads configuration from the given TOML file path on top of Default.
// If the file does not exist, the defaults are used without error.
// Environment variables always take precedence over file values:
//   - GH_TOKEN, then GITHUB_TOKEN, override github.token
//   - GH_HOST overrides github.host
//   - OPENAI_API_KEY, OPENAI_BASE_URL and OPENAI_MODEL override the analyzer section
//   - GH_ACTIONS_SCAN_LOG_LEVEL overrides log.level
//   - GH_ACTIONS_SCAN_CACHE_PATH overrides cache.path
func LoadFrom(path string) (Config, error) {
	cfg := Default()
	pathFromFile := false
	if _, err := os.Stat(path); err == nil {
		var raw Config
		md, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
		}
		cfg = merge(cfg, raw, md)
		pathFromFile = md.IsDefined("cache", "path")
	}
	if !pathFromFile {
		cfg.Cache.Path = defaultCachePath(cfg.Cache.Backend)
	}
	applyEnvOverrides(&cfg)
	cfg.Cache.Path = expandHome(cfg.Cache.Path)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// merge copies every key present in the file over the defaults
func merge(cfg, raw Config, md toml.MetaData) Config {
	set := func(keys ...string) bool { return md.IsDefined(keys...) }

	if set("user_id") {
		cfg.UserID = raw.UserID
	}
	if set("github", "host") {
		cfg.GitHub.Host = raw.GitHub.Host
	}
	if set("github", "token") {
		cfg.GitHub.Token = raw.GitHub.Token
	}
	if set("github", "requests_per_second") {
		cfg.GitHub.RequestsPerSecond = raw.GitHub.RequestsPerSecond
	}
	if set("github", "max_retries") {
		cfg.GitHub.MaxRetries = raw.GitHub.MaxRetries
	}
	if set("github", "max_log_bytes") {
		cfg.GitHub.MaxLogBytes = raw.GitHub.MaxLogBytes
	}
	if set("aggregation", "run_limit") {
		cfg.Aggregation.RunLimit = raw.Aggregation.RunLimit
	}
	if set("aggregation", "max_concurrency") {
		cfg.Aggregation.MaxConcurrency = raw.Aggregation.MaxConcurrency
	}
	if set("aggregation", "timeout") {
		cfg.Aggregation.Timeout = raw.Aggregation.Timeout
	}
	if set("cache", "backend") {
		cfg.Cache.Backend = raw.Cache.Backend
	}
	if set("cache", "path") {
		cfg.Cache.Path = raw.Cache.Path
	}
	if set("analyzer", "api_key") {
		cfg.Analyzer.APIKey = raw.Analyzer.APIKey
	}
	if set("analyzer", "base_url") {
		cfg.Analyzer.BaseURL = raw.Analyzer.BaseURL
	}
	if set("analyzer", "model") {
		cfg.Analyzer.Model = raw.Analyzer.Model
	}
	if set("analyzer", "temperature") {
		cfg.Analyzer.Temperature = raw.Analyzer.Temperature
	}
	if set("analyzer", "max_log_chars") {
		cfg.Analyzer.MaxLogChars = raw.Analyzer.MaxLogChars
	}
	if set("log", "level") {
		cfg.Log.Level = raw.Log.Level
	}
	if set("log", "format") {
		cfg.Log.Format = raw.Log.Format
	}
	if set("telemetry", "metrics_addr") {
		cfg.Telemetry.MetricsAddr = raw.Telemetry.MetricsAddr
	}
	if set("telemetry", "trace") {
		cfg.Telemetry.Trace = raw.Telemetry.Trace
	}
	return cfg
}

// Validate rejects values the components cannot work with.
func (c Config) Validate() error {
	switch c.Cache.Backend {
	case BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("cache.backend must be %q or %q, got %q", BackendSQLite, BackendBadger, c.Cache.Backend)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	switch c.Telemetry.Trace {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("telemetry.trace must be none or stdout, got %q", c.Telemetry.Trace)
	}
	if c.Aggregation.MaxConcurrency < 0 || c.Aggregation.RunLimit < 0 {
		return fmt.Errorf("aggregation limits must not be negative")
	}
	return nil
}

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gh-actions-scan", "config.toml")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GH_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GH_HOST"); v != "" {
		cfg.GitHub.Host = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Analyzer.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Analyzer.BaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.Analyzer.Model = v
	}
	if v := os.Getenv("GH_ACTIONS_SCAN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("GH_ACTIONS_SCAN_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
