// ABOUTME: Gateway wires the conversation store, LLM responder and HTTP API together
// ABOUTME: Owns the HTTP server lifecycle and the health endpoints

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/propdesk/internal/config"
	"github.com/2389/propdesk/internal/conversation"
	"github.com/2389/propdesk/internal/dedupe"
	"github.com/2389/propdesk/internal/kv"
	"github.com/2389/propdesk/internal/llm"
	"github.com/2389/propdesk/internal/responder"
	"github.com/2389/propdesk/internal/store"
)

// Gateway serves the propdesk HTTP API.
type Gateway struct {
	config     *config.Config
	kv         kv.Store
	store      *store.Store
	generator  conversation.Generator
	hub        *conversation.Hub
	httpServer *http.Server
	logger     *slog.Logger

	// serverID identifies this gateway instance
	serverID string

	// requests remembers chat requestIds and their replies
	requests *dedupe.Cache[*store.Message]
}

// Option overrides a dependency New would otherwise build from config.
type Option func(*options)

type options struct {
	kv  kv.Store
	llm llm.Client
}

// WithKVStore uses s instead of opening store.backend.
func WithKVStore(s kv.Store) Option {
	return func(o *options) { o.kv = s }
}

// WithLLMClient uses c instead of the Gemini client.
func WithLLMClient(c llm.Client) Option {
	return func(o *options) { o.llm = c }
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	backend := o.kv
	if backend == nil {
		var err error
		backend, err = kv.Open(cfg.KV())
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
	}

	client := o.llm
	if client == nil {
		gemini, err := llm.NewGemini(llm.GeminiConfig{
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
			Timeout: cfg.Gemini.Timeout,
			Logger:  logger,
		})
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
		client = gemini
	}

	genCfg := responder.DefaultConfig()
	if cfg.Generation.Temperature != nil {
		genCfg.Temperature = *cfg.Generation.Temperature
	}
	if cfg.Generation.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = cfg.Generation.MaxOutputTokens
	}
	genCfg.CondenseChars = cfg.Generation.CondenseChars

	ttl, size := cfg.Chat.DedupeTTL, cfg.Chat.DedupeSize
	if ttl <= 0 {
		ttl = config.DefaultDedupeTTL
	}
	if size <= 0 {
		size = config.DefaultDedupeSize
	}

	gw := &Gateway{
		config:    cfg,
		kv:        backend,
		store:     store.New(backend, logger),
		generator: responder.New(client, genCfg, logger),
		hub:       conversation.NewHub(logger),
		logger:    logger.With("component", "gateway"),
		serverID:  generateServerID(),
		requests:  dedupe.New[*store.Message](ttl, size),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the HTTP routes.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	mux.HandleFunc("/conversation", g.handleConversation)
	mux.HandleFunc("/conversation/transcript", g.handleTranscript)
	mux.HandleFunc("/conversation/events", g.handleEvents)
	mux.HandleFunc("/chat", g.handleChat)

	return g.logRequests(mux)
}

// logRequests logs each request at debug level.
func (g *Gateway) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		g.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// startServer starts the HTTP server in a goroutine, returning error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "server_id", g.serverID)
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.logger.Info("starting gateway", "http_addr", ln.Addr().String(), "store", g.config.Store.Backend)

	errCh := g.startServer(ln)

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The caller's context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	// event streams hold connections open until their channels close
	g.hub.Close()
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.kv.Close())
	g.requests.Close()

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the conversation store is reachable.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "store unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (store: %s)", g.config.Store.Backend)
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("propdesk-gateway-%d", time.Now().UnixNano()%1000000)
}
