// ABOUTME: Terminal chat client for the propdesk property assistant
// ABOUTME: Runs the conversation orchestrator in-process with local fallback

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/propdesk/internal/agent"
	"github.com/2389/propdesk/internal/conversation"
	"github.com/2389/propdesk/internal/kv"
	"github.com/2389/propdesk/internal/llm"
	"github.com/2389/propdesk/internal/logging"
	"github.com/2389/propdesk/internal/responder"
	"github.com/2389/propdesk/internal/store"
)

var (
	youColor   = color.New(color.FgGreen, color.Bold)
	agentColor = color.New(color.FgCyan, color.Bold)
	dimColor   = color.New(color.FgHiBlack)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed)
)

func main() {
	cfgPath := flag.String("config", "", "Config file (default $XDG_CONFIG_HOME/propdesk/chat.toml)")
	fresh := flag.Bool("new", false, "Start a new conversation instead of resuming")
	flag.Parse()

	path, explicit := *cfgPath, *cfgPath != ""
	if !explicit {
		path = configPath()
	}
	cfg, err := Load(path, explicit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *fresh); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// chat holds the REPL's collaborators. store is nil when the backend could
// not be opened; the session then runs on a local-only conversation.
type chat struct {
	session *conversation.Session
	store   *store.Store
	state   *conversation.ClientState
	logger  *slog.Logger
	closer  io.Closer
}

func run(ctx context.Context, cfg *Config, fresh bool) error {
	logger, logCloser := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  "json",
		Console: io.Discard,
		File:    cfg.Logging.File,
	})
	defer logCloser.Close()

	client, err := llm.NewGemini(llm.GeminiConfig{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: cfg.timeout(),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating gemini client: %w", err)
	}

	c := openChat(ctx, cfg, fresh, client, logger)
	defer c.Close()
	c.session.OnUpdate(printAssistant)

	fmt.Printf("propdesk chat (%s store, model %s)\n", cfg.Store.Backend, client.Model())
	if c.store == nil {
		warnColor.Println("store unavailable, running local only (see log for details)")
	}
	c.printConversationHeader()
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()
	if len(c.session.Conversation().Messages) > 0 {
		c.printHistory()
	}

	return c.loop(ctx, os.Stdin)
}

// openChat opens the configured store and bootstraps the session. It never
// fails: a store that cannot be opened leaves the client on a local conversation.
func openChat(ctx context.Context, cfg *Config, fresh bool, client llm.Client, logger *slog.Logger) *chat {
	gen := responder.New(client, cfg.Responder(), logger)
	c := &chat{
		state:  conversation.NewClientState(cfg.Client.StateFile),
		logger: logger,
	}

	backend, err := kv.Open(cfg.KV())
	if err != nil {
		logger.Error("opening store failed, using local conversation", "backend", cfg.Store.Backend, "error", err)
		c.session = conversation.NewSession(store.NewLocalConversation(), nil, gen, logger)
		return c
	}
	c.closer = backend
	c.store = store.New(backend, logger)

	if fresh {
		if err := c.state.Clear(); err != nil {
			logger.Warn("could not clear client state", "error", err)
		}
	}
	conv := conversation.Bootstrap(ctx, c.store, c.state, logger)
	c.session = conversation.NewSession(conv, c.store, gen, logger)
	return c
}

// Close releases the store, if one was opened.
func (c *chat) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *chat) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for {
		c.printPrompt()

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		if strings.TrimSpace(input) == "" {
			continue
		}

		cmd, err := parseInput(input)
		if err != nil {
			errColor.Printf("[error] %v\n\n", err)
			continue
		}
		if cmd.kind == cmdQuit {
			return nil
		}
		c.handle(ctx, cmd)
		fmt.Println()
	}
}

func (c *chat) handle(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdHelp:
		printHelp()
	case cmdHistory:
		if c.store != nil {
			if err := c.session.Refresh(ctx, c.store); err != nil {
				warnColor.Printf("could not refresh from store, showing local copy: %v\n", err)
			}
		}
		c.printHistory()
	case cmdAgent:
		c.session.Select(cmd.agent)
		if cmd.agent == "" {
			fmt.Println("Agent selection cleared, the router will decide")
		} else {
			fmt.Printf("Now talking to the %s\n", agentLabel(cmd.agent))
		}
	case cmdNew:
		c.newConversation(ctx)
	case cmdImage:
		data, err := readImage(cmd.path)
		if err != nil {
			errColor.Printf("[error] %v\n", err)
			return
		}
		dimColor.Printf("[image attached: %s]\n", cmd.path)
		c.send(ctx, cmd.text, data)
	case cmdMessage:
		c.send(ctx, cmd.text, "")
	}
}

func (c *chat) send(ctx context.Context, content, imageData string) {
	start := time.Now()
	dimColor.Println("thinking...")
	_, err := c.session.Send(ctx, content, imageData)
	switch {
	case errors.Is(err, conversation.ErrBusy):
		warnColor.Println("still waiting for the previous reply")
	case err != nil:
		errColor.Printf("[error] %v\n", err)
	default:
		c.logger.Debug("turn complete", "conversation_id", c.session.ID(), "elapsed", time.Since(start))
	}
}

func (c *chat) newConversation(ctx context.Context) {
	if c.store == nil {
		if err := c.session.Reset(store.NewLocalConversation()); err != nil {
			errColor.Printf("[error] %v\n", err)
			return
		}
		c.printConversationHeader()
		return
	}

	conv, err := c.store.Create(ctx, "")
	if err != nil {
		c.logger.Error("store unavailable, using local conversation", "error", err)
		warnColor.Println("store unavailable, this conversation will not be saved")
		conv = store.NewLocalConversation()
		if err := c.state.Clear(); err != nil {
			c.logger.Warn("could not clear client state", "error", err)
		}
	} else if err := c.state.Save(conv.ID); err != nil {
		c.logger.Warn("could not save client state", "error", err)
	}

	if err := c.session.Reset(conv); err != nil {
		errColor.Printf("[error] %v\n", err)
		return
	}
	c.printConversationHeader()
}

func (c *chat) printConversationHeader() {
	id := c.session.ID()
	if store.IsLocalID(id) {
		warnColor.Printf("Conversation %s (local only, not saved)\n", id)
		return
	}
	dimColor.Printf("Conversation %s\n", id)
}

func (c *chat) printPrompt() {
	if t := c.session.Selected(); t != "" {
		fmt.Printf("[%s]> ", t)
	} else {
		fmt.Print("> ")
	}
}

func (c *chat) printHistory() {
	conv := c.session.Conversation()
	if len(conv.Messages) == 0 {
		dimColor.Println("(no messages yet)")
		return
	}
	for _, m := range conv.Messages {
		printMessage(m)
	}
}

// printAssistant shows assistant replies as they are delivered. User
// messages were typed at the prompt and are not echoed.
func printAssistant(m *store.Message) {
	if m.Role == store.RoleAssistant {
		printMessage(m)
	}
}

func printMessage(m *store.Message) {
	ts := time.UnixMilli(m.Timestamp).Format("15:04")
	if m.Role == store.RoleUser {
		youColor.Print("You")
		dimColor.Printf(" %s", ts)
		if m.HasImage {
			dimColor.Print(" [image]")
		}
		fmt.Println()
	} else {
		agentColor.Print(agentLabel(m.AgentType))
		dimColor.Printf(" %s\n", ts)
	}
	fmt.Println(m.Content)
}

func agentLabel(t agent.Type) string {
	switch t {
	case agent.Troubleshooting:
		return "Troubleshooting Agent"
	case agent.Tenancy:
		return "Tenancy FAQ Agent"
	default:
		return "Assistant"
	}
}
