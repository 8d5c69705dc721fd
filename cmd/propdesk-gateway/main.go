// ABOUTME: Entry point for propdesk-gateway, the property assistant HTTP server
// ABOUTME: Subcommands: serve, init, health, ready and conversations

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/2389/propdesk/internal/config"
	"github.com/2389/propdesk/internal/gateway"
	"github.com/2389/propdesk/internal/llm"
	"github.com/2389/propdesk/internal/logging"
	"github.com/2389/propdesk/internal/store"
	"github.com/2389/propdesk/internal/telemetry"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                 _           _
  _ __  _ __ ___  _ __   __| | ___  ___| | __
 | '_ \| '__/ _ \| '_ \ / _' |/ _ \/ __| |/ /
 | |_) | | | (_) | |_) | (_| |  __/\__ \   <
 | .__/|_|  \___/| .__/ \__,_|\___||___/_|\_\
 |_|             |_|
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: propdesk-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the gateway server")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  health                 Check gateway liveness")
		fmt.Println("  ready                  Check gateway readiness (store reachable)")
		fmt.Println("  conversations [N]      List the N most recent conversations")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealthCheck(ctx, "/health")
	case "ready":
		err = runHealthCheck(ctx, "/health/ready")
	case "conversations":
		err = runConversations(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, logCloser := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		Dir:         cfg.Telemetry.Dir,
	})
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Store:     %s", cfg.Store.Backend)
	switch {
	case cfg.Store.Path != "":
		gray.Printf(" (%s)", cfg.Store.Path)
	case cfg.Store.URL != "":
		gray.Printf(" (%s)", cfg.Store.URL)
	case cfg.Store.Backend == "memory":
		yellow.Print(" [not persistent]")
	}
	fmt.Println()
	green.Print("    ▶ ")
	model := cfg.Gemini.Model
	if model == "" {
		model = llm.DefaultModel
	}
	fmt.Printf("Model:     %s\n", model)
	if cfg.Telemetry.Enabled {
		green.Print("    ▶ ")
		dest := cfg.Telemetry.Dir
		if dest == "" {
			dest = "stdout"
		}
		fmt.Printf("Telemetry: %s\n", dest)
	}
	fmt.Println()

	logger.Info("starting propdesk-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"store", cfg.Store.Backend,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func loadAddr() (string, error) {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	return cfg.Server.HTTPAddr, nil
}

func get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return http.DefaultClient.Do(req)
}

func runHealthCheck(ctx context.Context, path string) error {
	addr, err := loadAddr()
	if err != nil {
		return err
	}

	resp, err := get(ctx, fmt.Sprintf("http://%s%s", addr, path))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println("healthy")
	return nil
}

func runConversations(ctx context.Context, args []string) error {
	limit := store.DefaultListLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("limit must be a positive integer, got %q", args[0])
		}
		limit = n
	}

	addr, err := loadAddr()
	if err != nil {
		return err
	}

	resp, err := get(ctx, fmt.Sprintf("http://%s/conversation?limit=%d", addr, limit))
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listing conversations: status %d", resp.StatusCode)
	}

	var list gateway.ConversationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(list.Conversations) == 0 {
		fmt.Println("no conversations")
		return nil
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, c := range list.Conversations {
		cyan.Printf("%s", c.ID)
		gray.Printf("  %s  ", time.UnixMilli(c.UpdatedAt).Format("Jan 02 15:04"))
		fmt.Printf("%d messages", len(c.Messages))
		if n := len(c.Messages); n > 0 {
			fmt.Printf("  %s", preview(c.Messages[n-1].Content, 60))
		}
		fmt.Println()
	}
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("propdesk-gateway configuration setup")
	fmt.Println("====================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !yes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Store Configuration ---")
	backend := prompt(reader, "Backend (memory/bolt/sqlite/redis)", "bolt")
	var storeLine string
	switch backend {
	case "bolt", "sqlite":
		storeLine = fmt.Sprintf("  path: %q\n", prompt(reader, "Database path", filepath.Join(dataDir(), "conversations."+backend)))
	case "redis":
		storeLine = fmt.Sprintf("  url: %q\n", prompt(reader, "Redis URL", "redis://localhost:6379/0"))
	}

	fmt.Println("\n--- Gemini Configuration ---")
	apiKey := prompt(reader, "API key (or ${ENV_VAR})", "${GEMINI_API_KEY}")
	model := prompt(reader, "Model", llm.DefaultModel)

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# propdesk-gateway configuration\n")
	cfg.WriteString("# Generated by propdesk-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n\n", httpAddr))

	cfg.WriteString("store:\n")
	cfg.WriteString(fmt.Sprintf("  backend: %q\n", backend))
	cfg.WriteString(storeLine)
	cfg.WriteString("\n")

	cfg.WriteString("gemini:\n")
	cfg.WriteString(fmt.Sprintf("  api_key: %q\n", apiKey))
	cfg.WriteString(fmt.Sprintf("  model: %q\n", model))
	cfg.WriteString("  timeout: \"60s\"\n\n")

	cfg.WriteString("generation:\n")
	cfg.WriteString("  temperature: 0.7\n")
	cfg.WriteString("  max_output_tokens: 2048\n\n")

	cfg.WriteString("chat:\n")
	cfg.WriteString("  dedupe_ttl: \"10m\"\n\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n\n", logFormat))

	cfg.WriteString("telemetry:\n")
	cfg.WriteString("  enabled: false\n")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// api keys may be written inline
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  propdesk-gateway serve\n")

	return nil
}

// dataDir returns $XDG_DATA_HOME/propdesk or ~/.local/share/propdesk.
func dataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "propdesk")
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
