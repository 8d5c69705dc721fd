// ABOUTME: File-backed record of the chat client's current conversation id
// ABOUTME: Bootstrap picks up the stored conversation or starts a new one

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/propdesk/internal/store"
)

// ClientState remembers the current conversation id in a single file.
type ClientState struct {
	path string
}

// NewClientState returns a ClientState stored at path.
func NewClientState(path string) *ClientState {
	return &ClientState{path: path}
}

// DefaultStatePath returns $XDG_STATE_HOME/propdesk/current_conversation,
// falling back to ~/.local/state.
func DefaultStatePath() (string, error) {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("finding home directory: %w", err)
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "propdesk", "current_conversation"), nil
}

// Path returns the backing file.
func (c *ClientState) Path() string {
	return c.path
}

// Load returns the stored id, or "" if nothing is stored.
func (c *ClientState) Load() (string, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading client state: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save stores id, creating the parent directory if needed.
func (c *ClientState) Save(id string) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := os.WriteFile(c.path, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing client state: %w", err)
	}
	return nil
}

// Clear forgets the stored id.
func (c *ClientState) Clear() error {
	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clearing client state: %w", err)
	}
	return nil
}

// Remote is the durable store as seen by Bootstrap.
type Remote interface {
	Fetcher
	Create(ctx context.Context, id string) (*store.Conversation, error)
}

// Bootstrap returns the conversation the client should open. It never fails:
//  1. a stored id that still resolves is reused
//  2. a stored id that does not resolve is cleared
//  3. otherwise a new durable conversation is created and remembered
//  4. if that fails, a local-only conversation is returned and nothing is saved
func Bootstrap(ctx context.Context, remote Remote, state *ClientState, logger *slog.Logger) *store.Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "conversation")

	id, err := state.Load()
	if err != nil {
		logger.Warn("could not read client state", "error", err)
	}
	if id != "" {
		conv, err := remote.Get(ctx, id)
		if err == nil {
			logger.Info("resumed conversation", "conversation_id", id, "messages", len(conv.Messages))
			return conv
		}
		logger.Warn("stored conversation unavailable, starting fresh", "conversation_id", id, "error", err)
		if err := state.Clear(); err != nil {
			logger.Warn("could not clear client state", "error", err)
		}
	}

	conv, err := remote.Create(ctx, "")
	if err != nil {
		conv = store.NewLocalConversation()
		logger.Error("store unavailable, using local conversation", "conversation_id", conv.ID, "error", err)
		return conv
	}
	if err := state.Save(conv.ID); err != nil {
		logger.Warn("could not save client state", "error", err)
	}
	logger.Info("created conversation", "conversation_id", conv.ID)
	return conv
}
