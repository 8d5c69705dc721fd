package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewColorHandler(&buf, slog.LevelInfo))

	logger.With("component", "store").Info("saved", "key", "conversation:1")
	logger.Debug("hidden")
	logger.WithGroup("req").Warn("slow", "ms", 1200)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INF saved")
	assert.Contains(t, lines[0], "component=store")
	assert.Contains(t, lines[0], "key=conversation:1")
	assert.Contains(t, lines[1], "WRN slow")
	assert.Contains(t, lines[1], "req.ms=1200")
}

func TestNew_JSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(Options{Level: "debug", Format: "json", Console: &buf})
	defer closer.Close()

	logger.Debug("hello", "n", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "DEBUG", rec["level"])
}

func TestNew_FileSink(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "propdesk.log")
	logger, closer := New(Options{Format: "text", Console: &console, File: path})

	logger.Info("to both", "k", "v")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "INF to both")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "to both", rec["msg"])
	assert.Equal(t, "v", rec["k"])
}

func TestNew_FileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	logger, closer := New(Options{Console: io.Discard, File: path})

	logger.Info("quiet")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"quiet"`)
}

func TestNew_Discard(t *testing.T) {
	logger, closer := New(Options{Console: io.Discard})
	defer closer.Close()
	assert.NotPanics(t, func() { logger.Error("nowhere") })
}
