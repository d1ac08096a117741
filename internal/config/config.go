// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Backend names shared by the answer bank and the history log.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// DefaultExclusions is the keyword list applied before any form interaction.
// Entries starting with \b are used as regular expressions verbatim.
var DefaultExclusions = []string{
	"mandarin", "chinese", "japanese", "german", "religous", "agama",
	"kristen", "christian", "principal", "kepala sekolah", "seni", `\bart\b`,
}

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Network    NetworkConfig    `mapstructure:"network" yaml:"network"`
	AnswerBank AnswerBankConfig `mapstructure:"answer_bank" yaml:"answer_bank"`
	Resolver   ResolverConfig   `mapstructure:"resolver" yaml:"resolver"`
	Filler     FillerConfig     `mapstructure:"filler" yaml:"filler"`
	Navigator  NavigatorConfig  `mapstructure:"navigator" yaml:"navigator"`
	History    HistoryConfig    `mapstructure:"history" yaml:"history"`
	Campaign   CampaignConfig   `mapstructure:"campaign" yaml:"campaign"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	// Color is "auto" (colour only on a terminal), "always" or "never".
	Color       string      `mapstructure:"color" yaml:"color"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// Log colour modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// RedisConfig points the redis answer bank backend at a server.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"-"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// BrowserConfig holds settings for the controlled Chrome instance.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	UserDataDir    string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args           []string      `mapstructure:"args" yaml:"args"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// NetworkConfig tunes page loading behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// AnswerBankConfig selects where learned answers live.
type AnswerBankConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
	// Format is "markdown" or "yaml". Empty means infer from the file extension.
	Format string `mapstructure:"format" yaml:"format"`
}

// ResolverConfig tunes answer matching.
type ResolverConfig struct {
	FuzzyThreshold       float64 `mapstructure:"fuzzy_threshold" yaml:"fuzzy_threshold"`
	HeuristicEnabled     bool    `mapstructure:"heuristic_enabled" yaml:"heuristic_enabled"`
	HeuristicProbability float64 `mapstructure:"heuristic_probability" yaml:"heuristic_probability"`
}

// FillerConfig bounds the retry loop around control mutations.
type FillerConfig struct {
	Attempts   int           `mapstructure:"attempts" yaml:"attempts"`
	RetryPause time.Duration `mapstructure:"retry_pause" yaml:"retry_pause"`
}

// NavigatorConfig configures the wizard state machine.
type NavigatorConfig struct {
	MaxSteps             int           `mapstructure:"max_steps" yaml:"max_steps"`
	StallLimit           int           `mapstructure:"stall_limit" yaml:"stall_limit"`
	SettleDelay          time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	AuthPollInterval     time.Duration `mapstructure:"auth_poll_interval" yaml:"auth_poll_interval"`
	AuthPatterns         []string      `mapstructure:"auth_patterns" yaml:"auth_patterns"`
	AuthenticatedPattern string        `mapstructure:"authenticated_pattern" yaml:"authenticated_pattern"`
	ReviewPatterns       []string      `mapstructure:"review_patterns" yaml:"review_patterns"`
	SubmitLabels         []string      `mapstructure:"submit_labels" yaml:"submit_labels"`
	NextLabels           []string      `mapstructure:"next_labels" yaml:"next_labels"`
	PlaceholderMarkers   []string      `mapstructure:"placeholder_markers" yaml:"placeholder_markers"`
	DiagnosticsDir       string        `mapstructure:"diagnostics_dir" yaml:"diagnostics_dir"`
}

// HistoryConfig selects where the application history and run reports are written.
type HistoryConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	Path      string `mapstructure:"path" yaml:"path"`
	ReportDir string `mapstructure:"report_dir" yaml:"report_dir"`
}

// CampaignConfig drives the job-board runner. Most fields are overridden by CLI flags.
type CampaignConfig struct {
	BaseURL         string   `mapstructure:"base_url" yaml:"base_url"`
	Keyword         string   `mapstructure:"keyword" yaml:"keyword"`
	Location        string   `mapstructure:"location" yaml:"location"`
	MaxApplications int      `mapstructure:"max_applications" yaml:"max_applications"`
	DryRun          bool     `mapstructure:"dry_run" yaml:"dry_run"`
	Unattended      bool     `mapstructure:"unattended" yaml:"unattended"`
	Exclude         []string `mapstructure:"exclude" yaml:"exclude"`
	// ExcludeExtra extends Exclude; the --exclude flag lands here.
	ExcludeExtra    []string `mapstructure:"exclude_extra" yaml:"exclude_extra"`
	RatePerMinute   float64  `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
}

// Exclusions returns Exclude followed by the lowercased ExcludeExtra entries, without
// blanks or repeats.
func (c CampaignConfig) Exclusions() []string {
	out := make([]string, 0, len(c.Exclude)+len(c.ExcludeExtra))
	seen := make(map[string]bool, cap(out))
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	for _, p := range c.Exclude {
		add(strings.TrimSpace(p))
	}
	for _, p := range c.ExcludeExtra {
		add(strings.ToLower(strings.TrimSpace(p)))
	}
	return out
}

// MetricsConfig controls the optional prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "applypilot")
	v.SetDefault("logger.log_file", "applypilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.color", ColorAuto)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Redis --
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "applypilot:")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", "~/.applypilot/profile")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.action_timeout", "30s")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "45s")
	v.SetDefault("network.post_load_wait", "1500ms")

	// -- Answer Bank --
	v.SetDefault("answer_bank.backend", BackendFile)
	v.SetDefault("answer_bank.path", "answers.md")
	v.SetDefault("answer_bank.format", "")

	// -- Resolver --
	v.SetDefault("resolver.fuzzy_threshold", 0.70)
	v.SetDefault("resolver.heuristic_enabled", true)
	v.SetDefault("resolver.heuristic_probability", 0.6)

	// -- Filler --
	v.SetDefault("filler.attempts", 3)
	v.SetDefault("filler.retry_pause", "1s")

	// -- Navigator --
	v.SetDefault("navigator.max_steps", 15)
	v.SetDefault("navigator.stall_limit", 3)
	v.SetDefault("navigator.settle_delay", "1500ms")
	v.SetDefault("navigator.auth_poll_interval", "2s")
	v.SetDefault("navigator.auth_patterns", []string{"*login*", "*masuk*", "*accounts.google*", "*seek.com/login*"})
	v.SetDefault("navigator.authenticated_pattern", "*jobstreet.com*")
	v.SetDefault("navigator.review_patterns", []string{"*/review*", "*/confirm*"})
	v.SetDefault("navigator.submit_labels", []string{"Kirim lamaran", "Kirim", "Submit application"})
	v.SetDefault("navigator.next_labels", []string{"Lanjut", "Lanjutkan", "Next"})
	v.SetDefault("navigator.placeholder_markers", []string{"pilih", "choose", "select"})
	v.SetDefault("navigator.diagnostics_dir", "diagnostics")

	// -- History --
	v.SetDefault("history.backend", BackendFile)
	v.SetDefault("history.path", "applied_jobs.md")
	v.SetDefault("history.report_dir", "reports")

	// -- Campaign --
	v.SetDefault("campaign.base_url", "https://id.jobstreet.com")
	v.SetDefault("campaign.keyword", "Guru")
	v.SetDefault("campaign.location", "Jakarta")
	v.SetDefault("campaign.max_applications", 5)
	v.SetDefault("campaign.dry_run", true)
	v.SetDefault("campaign.unattended", false)
	v.SetDefault("campaign.exclude", DefaultExclusions)
	v.SetDefault("campaign.exclude_extra", []string{})
	v.SetDefault("campaign.rate_per_minute", 6.0)

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", "127.0.0.1:9464")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets are only ever read from the environment.
	_ = v.BindEnv("database.url", "APPLYPILOT_DATABASE_URL")
	_ = v.BindEnv("redis.password", "APPLYPILOT_REDIS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	paths := []*string{
		&c.Browser.UserDataDir,
		&c.AnswerBank.Path,
		&c.History.Path,
		&c.History.ReportDir,
		&c.Navigator.DiagnosticsDir,
		&c.Logger.LogFile,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Logger.Color {
	case "", ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("logger.color %q is not one of auto, always, never", c.Logger.Color)
	}
	if err := c.AnswerBank.Validate(c); err != nil {
		return fmt.Errorf("answer_bank configuration invalid: %w", err)
	}
	if err := c.Resolver.Validate(); err != nil {
		return fmt.Errorf("resolver configuration invalid: %w", err)
	}
	if c.Filler.Attempts <= 0 {
		return fmt.Errorf("filler.attempts must be a positive integer")
	}
	if c.Filler.RetryPause < 0 {
		return fmt.Errorf("filler.retry_pause must not be negative")
	}
	if err := c.Navigator.Validate(); err != nil {
		return fmt.Errorf("navigator configuration invalid: %w", err)
	}
	switch c.History.Backend {
	case BackendFile:
		if c.History.Path == "" {
			return fmt.Errorf("history.path is required for the file backend")
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres history backend")
		}
	default:
		return fmt.Errorf("history.backend %q is not supported", c.History.Backend)
	}
	if c.Campaign.MaxApplications <= 0 {
		return fmt.Errorf("campaign.max_applications must be a positive integer")
	}
	if c.Campaign.RatePerMinute <= 0 {
		return fmt.Errorf("campaign.rate_per_minute must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}
	return nil
}

// Validate checks the answer bank backend selection against the rest of the config.
func (a *AnswerBankConfig) Validate(c *Config) error {
	switch a.Backend {
	case BackendFile:
		if a.Path == "" {
			return fmt.Errorf("path is required for the file backend")
		}
		if _, err := a.ResolvedFormat(); err != nil {
			return err
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("backend %q is not supported", a.Backend)
	}
	return nil
}

// ResolvedFormat returns the codec name for the file backend.
func (a *AnswerBankConfig) ResolvedFormat() (string, error) {
	format := strings.ToLower(a.Format)
	if format == "" {
		switch strings.ToLower(filepath.Ext(a.Path)) {
		case ".yaml", ".yml":
			format = "yaml"
		default:
			format = "markdown"
		}
	}
	if format != "markdown" && format != "yaml" {
		return "", fmt.Errorf("format %q is not supported", a.Format)
	}
	return format, nil
}

// Validate checks the resolver thresholds.
func (r *ResolverConfig) Validate() error {
	if r.FuzzyThreshold <= 0 || r.FuzzyThreshold >= 1 {
		return fmt.Errorf("fuzzy_threshold must be between 0 and 1 (exclusive)")
	}
	if r.HeuristicProbability < 0 || r.HeuristicProbability > 1 {
		return fmt.Errorf("heuristic_probability must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks the navigator settings.
func (n *NavigatorConfig) Validate() error {
	if n.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be a positive integer")
	}
	if n.StallLimit < 2 {
		return fmt.Errorf("stall_limit must be at least 2")
	}
	if n.AuthPollInterval <= 0 {
		return fmt.Errorf("auth_poll_interval must be a positive duration")
	}
	if len(n.SubmitLabels) == 0 || len(n.NextLabels) == 0 {
		return fmt.Errorf("submit_labels and next_labels must not be empty")
	}
	return nil
}
