// ABOUTME: Configuration loading for the propdesk-chat terminal client
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/2389/propdesk/internal/config"
	"github.com/2389/propdesk/internal/conversation"
	"github.com/2389/propdesk/internal/kv"
	"github.com/2389/propdesk/internal/responder"
)

type Config struct {
	Store      StoreConfig      `toml:"store"`
	Gemini     GeminiConfig     `toml:"gemini"`
	Generation GenerationConfig `toml:"generation"`
	Client     ClientConfig     `toml:"client"`
	Logging    LoggingConfig    `toml:"logging"`
}

type StoreConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
	URL     string `toml:"url"`
}

type GeminiConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

type GenerationConfig struct {
	Temperature     *float64 `toml:"temperature"`
	MaxOutputTokens int      `toml:"max_output_tokens"`
	CondenseChars   int      `toml:"condense_chars"`
}

type ClientConfig struct {
	// StateFile remembers the current conversation id between runs.
	StateFile string `toml:"state_file"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	// File receives all client logs; the terminal is kept for the chat.
	File string `toml:"file"`
}

// configPath returns $PROPDESK_CHAT_CONFIG or $XDG_CONFIG_HOME/propdesk/chat.toml.
func configPath() string {
	if p := os.Getenv("PROPDESK_CHAT_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "chat.toml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "propdesk", "chat.toml")
}

// stateDir returns $XDG_STATE_HOME/propdesk or ~/.local/state/propdesk.
func stateDir() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "propdesk")
}

// defaultConfig is used when no config file exists. The API key comes from
// GEMINI_API_KEY and conversations are kept in a local bolt file.
func defaultConfig() *Config {
	cfg := &Config{
		Store:  StoreConfig{Backend: kv.BackendBolt},
		Gemini: GeminiConfig{APIKey: os.Getenv("GEMINI_API_KEY")},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads config from the given path, expanding environment variables.
// A missing file at the default location falls back to defaultConfig.
func Load(path string, explicit bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		cfg := defaultConfig()
		return cfg, cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes TOML config text, applies defaults and validates.
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(config.ExpandEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = kv.BackendBolt
	}
	if c.Store.Path == "" && (c.Store.Backend == kv.BackendBolt || c.Store.Backend == kv.BackendSQLite) {
		c.Store.Path = filepath.Join(stateDir(), "conversations."+c.Store.Backend)
	}
	if c.Gemini.Timeout == "" {
		c.Gemini.Timeout = "60s"
	}
	if c.Generation.Temperature == nil {
		t := config.DefaultTemperature
		c.Generation.Temperature = &t
	}
	if c.Generation.MaxOutputTokens == 0 {
		c.Generation.MaxOutputTokens = config.DefaultMaxOutputTokens
	}
	if c.Client.StateFile == "" {
		p, err := conversation.DefaultStatePath()
		if err != nil {
			p = filepath.Join(stateDir(), "current_conversation")
		}
		c.Client.StateFile = p
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(stateDir(), "chat.log")
	}
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is required (or set GEMINI_API_KEY)")
	}
	if _, err := time.ParseDuration(c.Gemini.Timeout); err != nil {
		return fmt.Errorf("gemini.timeout: %w", err)
	}
	switch c.Store.Backend {
	case kv.BackendMemory, kv.BackendBolt, kv.BackendSQLite:
	case kv.BackendRedis:
		if c.Store.URL == "" {
			return fmt.Errorf("store.url is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, bolt, sqlite, redis; got %q", c.Store.Backend)
	}
	if t := *c.Generation.Temperature; t < 0 || t > 2 {
		return fmt.Errorf("generation.temperature must be between 0 and 2, got %v", t)
	}
	return nil
}

// timeout returns the parsed gemini timeout. Validate has already checked it.
func (c *Config) timeout() time.Duration {
	d, _ := time.ParseDuration(c.Gemini.Timeout)
	return d
}

// KV returns the backend config for kv.Open.
func (c *Config) KV() kv.Config {
	return kv.Config{Backend: c.Store.Backend, Path: c.Store.Path, URL: c.Store.URL}
}

// Responder returns generation settings for responder.New.
func (c *Config) Responder() responder.Config {
	rc := responder.DefaultConfig()
	rc.Temperature = *c.Generation.Temperature
	rc.MaxOutputTokens = c.Generation.MaxOutputTokens
	rc.CondenseChars = c.Generation.CondenseChars
	return rc
}
