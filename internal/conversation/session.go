// ABOUTME: Session runs one chat turn: append, persist, route, generate, append, persist
// ABOUTME: Persistence failures degrade to local state; generation failures become apologies

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/propdesk/internal/agent"
	"github.com/2389/propdesk/internal/responder"
	"github.com/2389/propdesk/internal/store"
)

var (
	// ErrBusy is returned by Send while another send is in flight.
	ErrBusy = errors.New("a message is already being processed")

	// ErrEmptyMessage is returned by Send when there is neither text nor image.
	ErrEmptyMessage = errors.New("message has no content")
)

// State is the phase of the current turn.
type State string

const (
	StateIdle             State = "idle"
	StateSendingUser      State = "sending-user-msg"
	StateRouting          State = "routing"
	StateGenerating       State = "generating"
	StateSendingAssistant State = "sending-assistant-msg"
	StateError            State = "error"
)

// Persister defines what the session needs from durable storage
type Persister interface {
	Append(ctx context.Context, conversationID string, msg store.NewMessage) (*store.Message, error)
}

// Generator defines what the session needs to produce replies.
// Implementations return user-facing text and never fail.
type Generator interface {
	GenerateText(ctx context.Context, prompt string, agentType agent.Type) string
	AnalyzeImage(ctx context.Context, imageData, prompt string) string
}

// Fetcher loads a conversation from durable storage.
type Fetcher interface {
	Get(ctx context.Context, id string) (*store.Conversation, error)
}

// Session holds the local copy of a conversation and runs turns against it.
type Session struct {
	persister Persister
	generator Generator
	logger    *slog.Logger

	mu       sync.Mutex
	conv     *store.Conversation
	selected agent.Type
	state    State
	onUpdate func(*store.Message)

	loading atomic.Bool
}

// NewSession creates a session over conv. A nil conv starts a local one.
func NewSession(conv *store.Conversation, persister Persister, generator Generator, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if conv == nil {
		conv = store.NewLocalConversation()
	}
	if conv.Messages == nil {
		conv.Messages = []*store.Message{}
	}
	return &Session{
		persister: persister,
		generator: generator,
		logger:    logger.With("component", "conversation"),
		conv:      conv,
		state:     StateIdle,
	}
}

// Conversation returns a snapshot of the local conversation.
func (s *Session) Conversation() *store.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.conv)
}

// ID returns the conversation id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.ID
}

// Select sets the explicit agent. An empty Type hands the choice back to the router.
func (s *Session) Select(t agent.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = t
}

// Selected returns the explicit agent, or "" when the router decides.
func (s *Session) Selected() agent.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// OnUpdate registers fn to be called after each message is appended.
func (s *Session) OnUpdate(fn func(*store.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// IsLoading reports whether a send is in flight.
func (s *Session) IsLoading() bool {
	return s.loading.Load()
}

// State returns the phase of the current turn.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reset swaps in a different conversation, e.g. after the user starts a new one.
func (s *Session) Reset(conv *store.Conversation) error {
	if s.loading.Load() {
		return ErrBusy
	}
	if conv == nil {
		conv = store.NewLocalConversation()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv = snapshot(conv)
	return nil
}

// Refresh reloads the conversation from durable storage. Local
// conversations are left untouched.
func (s *Session) Refresh(ctx context.Context, remote Fetcher) error {
	if s.loading.Load() {
		return ErrBusy
	}
	id := s.ID()
	if store.IsLocalID(id) {
		return nil
	}
	conv, err := remote.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("refreshing conversation %s: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv = snapshot(conv)
	return nil
}

// Send runs one turn and returns the assistant message. Errors are only
// returned for calls that never start a turn.
func (s *Session) Send(ctx context.Context, content, imageData string) (*store.Message, error) {
	if strings.TrimSpace(content) == "" && imageData == "" {
		return nil, ErrEmptyMessage
	}
	if !s.loading.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer func() {
		s.setState(StateIdle)
		s.loading.Store(false)
	}()

	hasImage := imageData != ""
	convID := s.ID()
	agentType := agent.Decide(s.Selected(), content, hasImage)

	s.setState(StateSendingUser)
	user := store.NewMessage{
		Role:      store.RoleUser,
		Content:   content,
		AgentType: agentType,
		HasImage:  hasImage,
	}
	if hasImage {
		user.ImageURL = responder.DataURI(imageData)
	}
	s.deliver(ctx, convID, user)

	s.setState(StateRouting)
	scores := agent.Score(content)
	s.logger.Info("routing message",
		"conversation_id", convID,
		"agent", agentType,
		"selected", s.Selected(),
		"has_image", hasImage,
		"troubleshooting_score", scores.Troubleshooting,
		"tenancy_score", scores.Tenancy,
	)

	s.setState(StateGenerating)
	reply := s.generate(ctx, agentType, content, imageData)

	s.setState(StateSendingAssistant)
	return s.deliver(ctx, convID, store.NewMessage{
		Role:      store.RoleAssistant,
		Content:   reply,
		AgentType: agentType,
	}), nil
}

// generate calls the generator, converting a panic into the apology.
func (s *Session) generate(ctx context.Context, agentType agent.Type, content, imageData string) (reply string) {
	apology := responder.TextApology
	if imageData != "" {
		apology = responder.ImageApology
	}
	defer func() {
		if r := recover(); r != nil {
			s.setState(StateError)
			s.logger.Error("generation panicked", "agent", agentType, "panic", r)
			reply = apology
		}
	}()

	if imageData != "" {
		reply = s.generator.AnalyzeImage(ctx, imageData, responder.ImagePrompt(content))
	} else {
		reply = s.generator.GenerateText(ctx, content, agentType)
	}
	if strings.TrimSpace(reply) == "" {
		s.setState(StateError)
		s.logger.Warn("generator returned an empty reply", "agent", agentType)
		reply = apology
	}
	return reply
}

// deliver appends msg locally, attempts the durable append and notifies
// the update callback. It never fails.
func (s *Session) deliver(ctx context.Context, convID string, in store.NewMessage) *store.Message {
	local := &store.Message{
		ID:        uuid.New().String(),
		Role:      in.Role,
		Content:   in.Content,
		Timestamp: time.Now().UnixMilli(),
		AgentType: in.AgentType,
		HasImage:  in.HasImage,
		ImageURL:  in.ImageURL,
	}

	s.mu.Lock()
	idx := len(s.conv.Messages)
	s.conv.Messages = append(s.conv.Messages, local)
	if local.Timestamp > s.conv.UpdatedAt {
		s.conv.UpdatedAt = local.Timestamp
	}
	s.mu.Unlock()

	final := local
	if stored := s.persist(ctx, convID, in); stored != nil {
		s.mu.Lock()
		if s.conv.ID == convID && idx < len(s.conv.Messages) && s.conv.Messages[idx] == local {
			s.conv.Messages[idx] = stored
		}
		s.mu.Unlock()
		final = stored
	}

	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn(final)
	}
	return final
}

// persist appends to durable storage, logging and swallowing any failure.
func (s *Session) persist(ctx context.Context, convID string, in store.NewMessage) (stored *store.Message) {
	if s.persister == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("persisting message panicked", "conversation_id", convID, "role", in.Role, "panic", r)
			stored = nil
		}
	}()

	msg, err := s.persister.Append(ctx, convID, in)
	if err != nil {
		s.logger.Warn("failed to persist message, keeping local copy",
			"conversation_id", convID,
			"role", in.Role,
			"error", err,
		)
		return nil
	}
	return msg
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func snapshot(c *store.Conversation) *store.Conversation {
	cp := *c
	cp.Messages = append(make([]*store.Message, 0, len(c.Messages)), c.Messages...)
	return &cp
}
