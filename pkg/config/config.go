package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the tool reads
const EnvPrefix = "TWEETHARVEST_"

// Config holds all configuration options for the harvester
type Config struct {
	// API access
	API APIConfig `yaml:"api" json:"api"`

	// Minimum spacing between requests per endpoint class
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Per-request retry policy
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Page artifacts
	Output OutputConfig `yaml:"output" json:"output"`

	// Completed-key snapshots
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	FailureLog FailureLogConfig `yaml:"failure_log" json:"failure_log"`

	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// APIConfig holds API access configuration
type APIConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	// TokenFile holds the bearer token on its first line. When set, the file must exist.
	TokenFile string        `yaml:"token_file" json:"token_file"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	// Params override the endpoint's default request parameters
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// RateLimitConfig holds the minimum interval between requests of each class
type RateLimitConfig struct {
	SearchInterval   time.Duration `yaml:"search_interval" json:"search_interval"`
	TimelineInterval time.Duration `yaml:"timeline_interval" json:"timeline_interval"`
	LookupInterval   time.Duration `yaml:"lookup_interval" json:"lookup_interval"`
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
	Strategy   string        `yaml:"strategy" json:"strategy"`
	BaseDelay  time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay" json:"max_delay"`
	Jitter     float64       `yaml:"jitter" json:"jitter"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
	Format        string `yaml:"format" json:"format"`
}

// CheckpointConfig holds checkpoint configuration
type CheckpointConfig struct {
	// Directory holds one sub-directory of snapshots per endpoint; empty uses the per-user data directory
	Directory  string `yaml:"directory" json:"directory"`
	FlushEvery int    `yaml:"flush_every" json:"flush_every"`
	// Keep prunes all but the newest snapshots after a batch; zero keeps everything
	Keep int `yaml:"keep" json:"keep"`
}

// FailureLogConfig holds failure log configuration
type FailureLogConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint; empty disables it
	Addr string `yaml:"addr" json:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File receives JSON log lines in addition to the console
	File string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://api.twitter.com/2",
			Timeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			SearchInterval:   3 * time.Second,
			TimelineInterval: time.Second,
			LookupInterval:   2500 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxRetries: 5,
			Strategy:   "exponential",
			BaseDelay:  2 * time.Second,
			MaxDelay:   5 * time.Minute,
			Jitter:     0.1,
		},
		Output: OutputConfig{
			BaseDirectory: "./json",
			Format:        "json",
		},
		Checkpoint: CheckpointConfig{
			FlushEvery: 15,
		},
		FailureLog: FailureLogConfig{
			Backend: "jsonl",
			Path:    "failures.jsonl",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = n
	}
	setDuration := func(name string, dst *time.Duration) {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = d
	}

	setString("BASE_URL", &c.API.BaseURL)
	setString("TOKEN_FILE", &c.API.TokenFile)
	setDuration("TIMEOUT", &c.API.Timeout)

	setDuration("SEARCH_INTERVAL", &c.RateLimit.SearchInterval)
	setDuration("TIMELINE_INTERVAL", &c.RateLimit.TimelineInterval)
	setDuration("LOOKUP_INTERVAL", &c.RateLimit.LookupInterval)

	setInt("MAX_RETRIES", &c.Retry.MaxRetries)
	setString("RETRY_STRATEGY", &c.Retry.Strategy)

	setString("OUTPUT_DIR", &c.Output.BaseDirectory)
	setString("OUTPUT_FORMAT", &c.Output.Format)

	setString("CHECKPOINT_DIR", &c.Checkpoint.Directory)
	setInt("FLUSH_EVERY", &c.Checkpoint.FlushEvery)

	setString("FAILURE_LOG", &c.FailureLog.Path)
	setString("FAILURE_BACKEND", &c.FailureLog.Backend)

	setString("METRICS_ADDR", &c.Metrics.Addr)

	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".tweetharvest.yaml",
		".tweetharvest.yml",
		filepath.Join(home, ".config", "tweetharvest", "config.yaml"),
		filepath.Join(home, ".config", "tweetharvest", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// DefaultPath is where `config init` writes a new file
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "tweetharvest", "config.yaml")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid API base URL %q", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("API timeout must be positive"))
	}

	if c.RateLimit.SearchInterval <= 0 || c.RateLimit.TimelineInterval <= 0 || c.RateLimit.LookupInterval <= 0 {
		errs = append(errs, errors.New("rate limit intervals must be positive"))
	}

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	validStrategies := map[string]bool{"exponential": true, "linear": true, "constant": true}
	if !validStrategies[strings.ToLower(c.Retry.Strategy)] {
		errs = append(errs, fmt.Errorf("invalid retry strategy %q", c.Retry.Strategy))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("retry delays cannot be negative"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, errors.New("retry jitter must be between 0 and 1"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	switch strings.ToLower(c.Output.Format) {
	case "json", "csv":
	default:
		errs = append(errs, fmt.Errorf("invalid output format %q", c.Output.Format))
	}

	if c.Checkpoint.FlushEvery <= 0 {
		errs = append(errs, errors.New("checkpoint flush interval must be positive"))
	}
	if c.Checkpoint.Keep < 0 {
		errs = append(errs, errors.New("checkpoint keep count cannot be negative"))
	}

	switch strings.ToLower(c.FailureLog.Backend) {
	case "jsonl", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("invalid failure log backend %q", c.FailureLog.Backend))
	}
	if c.FailureLog.Path == "" {
		errs = append(errs, errors.New("failure log path is required"))
	}

	// Validate logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user set should be present in flags.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["base-url"].(string); ok && v != "" {
		c.API.BaseURL = v
	}
	if v, ok := flags["token-file"].(string); ok && v != "" {
		c.API.TokenFile = v
	}
	if v, ok := flags["timeout"].(time.Duration); ok && v > 0 {
		c.API.Timeout = v
	}
	if v, ok := flags["params"].(map[string]string); ok && len(v) > 0 {
		if c.API.Params == nil {
			c.API.Params = make(map[string]string, len(v))
		}
		for name, value := range v {
			c.API.Params[name] = value
		}
	}
	if v, ok := flags["max-retries"].(int); ok && v >= 0 {
		c.Retry.MaxRetries = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["format"].(string); ok && v != "" {
		c.Output.Format = v
	}
	if v, ok := flags["checkpoint-dir"].(string); ok && v != "" {
		c.Checkpoint.Directory = v
	}
	if v, ok := flags["flush-every"].(int); ok && v > 0 {
		c.Checkpoint.FlushEvery = v
	}
	if v, ok := flags["keep-checkpoints"].(int); ok && v >= 0 {
		c.Checkpoint.Keep = v
	}
	if v, ok := flags["failure-log"].(string); ok && v != "" {
		c.FailureLog.Path = v
	}
	if v, ok := flags["failure-backend"].(string); ok && v != "" {
		c.FailureLog.Backend = v
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.Addr = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".tweetharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
