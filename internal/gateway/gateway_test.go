// ABOUTME: Tests for gateway construction, lifecycle and health endpoints.
// ABOUTME: Uses an in-memory store and a scripted LLM client.

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/propdesk/internal/config"
	"github.com/2389/propdesk/internal/kv"
	"github.com/2389/propdesk/internal/llm"
)

// fakeLLM records requests and returns a scripted reply or error.
type fakeLLM struct {
	mu       sync.Mutex
	requests []*llm.Request
	reply    string
	err      error
}

func (f *fakeLLM) Generate(ctx context.Context, req *llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) last(t *testing.T) *llm.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests, "LLM was not called")
	return f.requests[len(f.requests)-1]
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// unreachableKV fails every call, like a store that is down.
type unreachableKV struct{}

var errDown = errors.New("connection refused")

func (unreachableKV) Get(context.Context, string) ([]byte, error) {
	return nil, errDown
}

func (unreachableKV) Set(context.Context, string, []byte) error {
	return errDown
}

func (unreachableKV) Keys(context.Context, string) ([]string, error) {
	return nil, errDown
}

func (unreachableKV) Ping(context.Context) error {
	return errDown
}

func (unreachableKV) Close() error {
	return nil
}

func testConfig() *config.Config {
	temp := 0.7
	return &config.Config{
		Server:     config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Store:      config.StoreConfig{Backend: kv.BackendMemory},
		Gemini:     config.GeminiConfig{APIKey: "test-key"},
		Generation: config.GenerationConfig{Temperature: &temp, MaxOutputTokens: 2048},
		Chat:       config.ChatConfig{DedupeTTL: time.Minute, DedupeSize: 100},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestGateway builds a gateway over backend with a fake LLM.
func newTestGateway(t *testing.T, backend kv.Store, client *fakeLLM) *Gateway {
	t.Helper()
	gw, err := New(testConfig(), testLogger(), WithKVStore(backend), WithLLMClient(client))
	require.NoError(t, err)
	t.Cleanup(func() {
		gw.hub.Close()
		gw.requests.Close()
	})
	return gw
}

func TestNew_FromConfig(t *testing.T) {
	cfg := testConfig()
	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	assert.IsType(t, &kv.Memory{}, gw.kv)
	assert.NotEmpty(t, gw.serverID)
}

func TestNew_BadStoreConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Store = config.StoreConfig{Backend: kv.BackendRedis, URL: "not-a-url"}
	_, err := New(cfg, testLogger())
	assert.ErrorContains(t, err, "opening store")
}

func TestNew_MissingAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Gemini.APIKey = ""
	_, err := New(cfg, testLogger(), WithKVStore(kv.NewMemory()))
	assert.ErrorContains(t, err, "creating gemini client")
}

func TestHealthEndpoint(t *testing.T) {
	gw := newTestGateway(t, kv.NewMemory(), &fakeLLM{})

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("store reachable", func(t *testing.T) {
		gw := newTestGateway(t, kv.NewMemory(), &fakeLLM{})
		rec := httptest.NewRecorder()
		gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "ready")
	})

	t.Run("store down", func(t *testing.T) {
		gw := newTestGateway(t, unreachableKV{}, &fakeLLM{})
		rec := httptest.NewRecorder()
		gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

func TestServe_GracefulShutdown(t *testing.T) {
	gw, err := New(testConfig(), testLogger(), WithKVStore(kv.NewMemory()), WithLLMClient(&fakeLLM{}))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down")
	}
}

func TestRun_BadAddress(t *testing.T) {
	cfg := testConfig()
	cfg.Server.HTTPAddr = "256.0.0.1:-1"
	gw, err := New(cfg, testLogger(), WithKVStore(kv.NewMemory()), WithLLMClient(&fakeLLM{}))
	require.NoError(t, err)
	defer gw.requests.Close()

	err = gw.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "listening on HTTP address"))
}
