package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the toxfilter service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Escalation EscalationConfig `yaml:"escalation"`
	Composer   ComposerConfig   `yaml:"composer"`
	Lexicon    LexiconConfig    `yaml:"lexicon"`
	EventLog   EventLogConfig   `yaml:"eventlog"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// Classifier providers.
const (
	ProviderDetoxify = "detoxify"
	ProviderOpenAI   = "openai"
	ProviderNone     = "none"
)

// ClassifierConfig holds remote classifier settings.
type ClassifierConfig struct {
	Provider          string  `yaml:"provider"` // detoxify (default), openai, none
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	Model             string  `yaml:"model"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	RateLimit         float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst             int     `yaml:"burst"`
	HealthIntervalSec int     `yaml:"health_interval_sec"`
	HealthTimeoutSec  int     `yaml:"health_timeout_sec"`
	CacheTTLSec       int     `yaml:"cache_ttl_sec"` // verdict cache in the event log store, 0 = disabled
}

// EscalationConfig holds batch queue settings.
type EscalationConfig struct {
	BatchSize     int `yaml:"batch_size"`
	DebounceMs    int `yaml:"debounce_ms"`
	MinTextLength int `yaml:"min_text_length"`
	TimeoutSec    int `yaml:"timeout_sec"`
}

// ComposerConfig holds composer guard settings.
type ComposerConfig struct {
	DelayMs       int `yaml:"delay_ms"`
	MinLength     int `yaml:"min_length"`
	MaxTextLength int `yaml:"max_text_length"`
	TimeoutSec    int `yaml:"timeout_sec"`
}

// LexiconConfig holds word list settings.
type LexiconConfig struct {
	Files          []string `yaml:"files"`           // extra YAML word lists
	DisableDefault bool     `yaml:"disable_default"` // skip the embedded lists
}

// Event log drivers.
const (
	DriverRedis  = "redis"
	DriverValkey = "valkey"
	DriverBadger = "badger"
	DriverNone   = "none"
)

// EventLogConfig holds event log sink settings.
type EventLogConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey, badger, none (default)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	Path             string   `yaml:"path"`
	Key              string   `yaml:"key"`
	MaxEntries       int      `yaml:"max_entries"`
	Buffer           int      `yaml:"buffer"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SessionsConfig holds session limits.
type SessionsConfig struct {
	MaxSessions int `yaml:"max_sessions"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file, when present, is loaded first.
func Load(env string) (Config, error) {
	_ = godotenv.Load()

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env variables, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Classifier.Provider == "" {
		c.Classifier.Provider = ProviderDetoxify
	}
	if c.Classifier.TimeoutSec <= 0 {
		c.Classifier.TimeoutSec = 15
	}
	if c.Classifier.HealthIntervalSec <= 0 {
		c.Classifier.HealthIntervalSec = 30
	}
	if c.Classifier.HealthTimeoutSec <= 0 {
		c.Classifier.HealthTimeoutSec = 5
	}

	if c.Escalation.BatchSize <= 0 {
		c.Escalation.BatchSize = 12
	}
	if c.Escalation.DebounceMs <= 0 {
		c.Escalation.DebounceMs = 900
	}
	if c.Escalation.MinTextLength <= 0 {
		c.Escalation.MinTextLength = 20
	}
	if c.Escalation.TimeoutSec <= 0 {
		c.Escalation.TimeoutSec = 15
	}

	if c.Composer.DelayMs <= 0 {
		c.Composer.DelayMs = 1000
	}
	if c.Composer.MinLength <= 0 {
		c.Composer.MinLength = 20
	}
	if c.Composer.MaxTextLength <= 0 {
		c.Composer.MaxTextLength = 500
	}
	if c.Composer.TimeoutSec <= 0 {
		c.Composer.TimeoutSec = 8
	}

	if c.EventLog.Driver == "" {
		c.EventLog.Driver = DriverNone
	}
	if c.EventLog.Key == "" {
		c.EventLog.Key = "toxfilter:events"
	}
	if c.EventLog.MaxEntries <= 0 {
		c.EventLog.MaxEntries = 2000
	}
	if c.EventLog.Buffer <= 0 {
		c.EventLog.Buffer = 256
	}
	if c.EventLog.ReadinessTimeout <= 0 {
		c.EventLog.ReadinessTimeout = 10
	}

	if c.Sessions.MaxSessions <= 0 {
		c.Sessions.MaxSessions = 1000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Classifier.Provider {
	case ProviderDetoxify, ProviderOpenAI:
		if c.Classifier.BaseURL == "" && c.Classifier.Provider == ProviderDetoxify {
			return fmt.Errorf("classifier.base_url is required for provider %q", c.Classifier.Provider)
		}
	case ProviderNone:
	default:
		return fmt.Errorf("classifier.provider must be %q, %q or %q, got %q",
			ProviderDetoxify, ProviderOpenAI, ProviderNone, c.Classifier.Provider)
	}
	if c.Classifier.RateLimit < 0 {
		return fmt.Errorf("classifier.rate_limit must not be negative")
	}
	if c.Classifier.CacheTTLSec < 0 {
		return fmt.Errorf("classifier.cache_ttl_sec must not be negative")
	}
	switch c.EventLog.Driver {
	case DriverRedis, DriverValkey:
		if len(c.EventLog.Addrs) == 0 {
			return fmt.Errorf("eventlog.addrs is required for driver %q", c.EventLog.Driver)
		}
	case DriverBadger:
		if c.EventLog.Path == "" {
			return fmt.Errorf("eventlog.path is required for driver %q", c.EventLog.Driver)
		}
	case DriverNone:
	default:
		return fmt.Errorf("eventlog.driver must be one of redis, valkey, badger, none, got %q", c.EventLog.Driver)
	}
	return nil
}

// Duration helpers.

// Timeout returns the classifier request timeout.
func (c ClassifierConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

// HealthInterval returns the probe interval.
func (c ClassifierConfig) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalSec) * time.Second
}

// HealthTimeout returns the probe timeout.
func (c ClassifierConfig) HealthTimeout() time.Duration {
	return time.Duration(c.HealthTimeoutSec) * time.Second
}

// CacheTTL returns how long cached verdicts live.
func (c ClassifierConfig) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSec) * time.Second }

// Debounce returns the batch debounce delay.
func (c EscalationConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Timeout returns the batch request timeout.
func (c EscalationConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

// Delay returns the composer debounce delay.
func (c ComposerConfig) Delay() time.Duration { return time.Duration(c.DelayMs) * time.Millisecond }

// Timeout returns the composer request timeout.
func (c ComposerConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
