// ABOUTME: Tests for chat client TOML configuration
// ABOUTME: Covers env expansion, defaults and validation

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/propdesk/internal/kv"
)

func TestParse_Full(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "secret")

	cfg, err := Parse(`
[store]
backend = "redis"
url = "redis://localhost:6379/2"

[gemini]
api_key = "${TEST_GEMINI_KEY}"
model = "gemini-test"
timeout = "15s"

[generation]
temperature = 0.2
max_output_tokens = 512
condense_chars = 800

[client]
state_file = "/tmp/propdesk-state"

[logging]
level = "debug"
file = "/tmp/propdesk-chat.log"
`)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Gemini.APIKey)
	assert.Equal(t, "gemini-test", cfg.Gemini.Model)
	assert.Equal(t, 15*time.Second, cfg.timeout())
	assert.Equal(t, kv.Config{Backend: kv.BackendRedis, URL: "redis://localhost:6379/2"}, cfg.KV())
	assert.Equal(t, "/tmp/propdesk-state", cfg.Client.StateFile)
	assert.Equal(t, "debug", cfg.Logging.Level)

	rc := cfg.Responder()
	assert.Equal(t, 0.2, rc.Temperature)
	assert.Equal(t, 512, rc.MaxOutputTokens)
	assert.Equal(t, 800, rc.CondenseChars)
	assert.Len(t, rc.Safety, 4)
}

func TestParse_Defaults(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/state")

	cfg, err := Parse(`
[gemini]
api_key = "k"
`)
	require.NoError(t, err)

	assert.Equal(t, kv.BackendBolt, cfg.Store.Backend)
	assert.Equal(t, filepath.Join("/state", "propdesk", "conversations.bolt"), cfg.Store.Path)
	assert.Equal(t, filepath.Join("/state", "propdesk", "current_conversation"), cfg.Client.StateFile)
	assert.Equal(t, filepath.Join("/state", "propdesk", "chat.log"), cfg.Logging.File)
	assert.Equal(t, 60*time.Second, cfg.timeout())
	assert.Equal(t, 0.7, *cfg.Generation.Temperature)
	assert.Equal(t, 2048, cfg.Generation.MaxOutputTokens)
}

func TestParse_ZeroTemperatureKept(t *testing.T) {
	cfg, err := Parse(`
[gemini]
api_key = "k"

[generation]
temperature = 0.0
`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Responder().Temperature)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"missing key", `[store]
backend = "memory"`, "gemini.api_key is required"},
		{"bad backend", `[gemini]
api_key = "k"
[store]
backend = "mongo"`, "store.backend"},
		{"redis without url", `[gemini]
api_key = "k"
[store]
backend = "redis"`, "store.url"},
		{"bad timeout", `[gemini]
api_key = "k"
timeout = "soon"`, "gemini.timeout"},
		{"temperature range", `[gemini]
api_key = "k"
[generation]
temperature = 3.5`, "temperature"},
		{"bad toml", `[gemini`, "parsing config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "chat.toml")

	t.Run("default path falls back to env", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "from-env")
		cfg, err := Load(missing, false)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Gemini.APIKey)
		assert.Equal(t, kv.BackendBolt, cfg.Store.Backend)
	})

	t.Run("explicit path must exist", func(t *testing.T) {
		_, err := Load(missing, true)
		assert.ErrorContains(t, err, "reading config file")
	})
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.toml")
	require.NoError(t, os.WriteFile(path, []byte("[gemini]\napi_key = \"k\"\n[store]\nbackend = \"memory\"\n"), 0600))

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, kv.BackendMemory, cfg.Store.Backend)
	assert.Empty(t, cfg.Store.Path)
}

func TestConfigPath(t *testing.T) {
	t.Setenv("PROPDESK_CHAT_CONFIG", "/etc/propdesk/chat.toml")
	assert.Equal(t, "/etc/propdesk/chat.toml", configPath())

	t.Setenv("PROPDESK_CHAT_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	assert.Equal(t, filepath.Join("/cfg", "propdesk", "chat.toml"), configPath())
}
