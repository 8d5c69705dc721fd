// ABOUTME: Configuration loading and parsing for propdesk-gateway
// ABOUTME: YAML files with ${VAR} expansion, defaults, duration parsing and validation

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/propdesk/internal/kv"
)

// Config represents the complete propdesk-gateway configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Generation GenerationConfig `yaml:"generation"`
	Chat       ChatConfig       `yaml:"chat"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// StoreConfig selects the key-value backend for conversations
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, bolt, sqlite, redis
	Path    string `yaml:"path"`    // bolt and sqlite
	URL     string `yaml:"url"`     // redis
}

// GeminiConfig holds the LLM endpoint configuration
type GeminiConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// GenerationConfig holds parameters sent with every generation request
type GenerationConfig struct {
	Temperature     *float64 `yaml:"temperature"`
	MaxOutputTokens int      `yaml:"max_output_tokens"`
	// CondenseChars shortens replies longer than this many bytes; 0 disables.
	CondenseChars int `yaml:"condense_chars"`
}

// ChatConfig holds chat endpoint behaviour
type ChatConfig struct {
	DedupeTTL  time.Duration `yaml:"-"`
	DedupeSize int           `yaml:"dedupe_size"`

	DedupeTTLRaw string `yaml:"dedupe_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, also writes JSON logs to a rotating file.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConfig controls OpenTelemetry export
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Dir receives traces.jsonl and metrics.jsonl; empty means stdout.
	Dir         string `yaml:"dir"`
	ServiceName string `yaml:"service_name"`
}

// Defaults applied by Load for fields left empty.
const (
	DefaultHTTPAddr        = "localhost:8080"
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 2048
	DefaultDedupeTTL       = 10 * time.Minute
	DefaultDedupeSize      = 10000
	DefaultServiceName     = "propdesk-gateway"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the config path to use when none is given:
// $PROPDESK_CONFIG, then ./config.yaml, then $XDG_CONFIG_HOME/propdesk/gateway.yaml.
func DefaultPath() string {
	if p := os.Getenv("PROPDESK_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "propdesk", "gateway.yaml")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ExpandEnv is expandEnvVars for other config formats.
func ExpandEnv(s string) string {
	return expandEnvVars(s)
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Store.Backend == "" {
		c.Store.Backend = kv.BackendMemory
	}
	if c.Generation.Temperature == nil {
		t := DefaultTemperature
		c.Generation.Temperature = &t
	}
	if c.Generation.MaxOutputTokens == 0 {
		c.Generation.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if c.Chat.DedupeTTL == 0 {
		c.Chat.DedupeTTL = DefaultDedupeTTL
	}
	if c.Chat.DedupeSize == 0 {
		c.Chat.DedupeSize = DefaultDedupeSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return errors.New("gemini.api_key is required")
	}

	switch c.Store.Backend {
	case kv.BackendMemory:
	case kv.BackendBolt, kv.BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
		}
	case kv.BackendRedis:
		if c.Store.URL == "" {
			return errors.New("store.url is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of memory, bolt, sqlite, redis", c.Store.Backend)
	}

	if t := *c.Generation.Temperature; t < 0 || t > 2 {
		return fmt.Errorf("generation.temperature %v must be between 0 and 2", t)
	}
	if c.Generation.MaxOutputTokens < 0 {
		return errors.New("generation.max_output_tokens must not be negative")
	}
	if c.Generation.CondenseChars < 0 {
		return errors.New("generation.condense_chars must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	return nil
}

// KV returns the store section as a kv.Config.
func (c *Config) KV() kv.Config {
	return kv.Config{Backend: c.Store.Backend, Path: c.Store.Path, URL: c.Store.URL}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Gemini.TimeoutRaw != "" {
		cfg.Gemini.Timeout, err = time.ParseDuration(cfg.Gemini.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing gemini.timeout %q: %w", cfg.Gemini.TimeoutRaw, err)
		}
	}

	if cfg.Chat.DedupeTTLRaw != "" {
		cfg.Chat.DedupeTTL, err = time.ParseDuration(cfg.Chat.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing chat.dedupe_ttl %q: %w", cfg.Chat.DedupeTTLRaw, err)
		}
	}

	return nil
}
