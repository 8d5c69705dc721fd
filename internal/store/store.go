// ABOUTME: Conversation and Message types plus the Store that persists them
// ABOUTME: Whole-document read-modify-write over a kv.Store, no locking

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/propdesk/internal/agent"
	"github.com/2389/propdesk/internal/kv"
)

// ErrNotFound is returned when a conversation does not exist or is local.
var ErrNotFound = errors.New("conversation not found")

// DefaultListLimit is used by ListRecent when limit <= 0.
const DefaultListLimit = 10

const (
	keyPrefix = "conversation:"
	// LocalPrefix marks conversations that exist only on the client.
	LocalPrefix = "local-"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation. Immutable once created.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp int64      `json:"timestamp"`
	AgentType agent.Type `json:"agentType"`
	HasImage  bool       `json:"hasImage,omitempty"`
	ImageURL  string     `json:"imageUrl,omitempty"`
}

// Conversation is an ordered message log.
type Conversation struct {
	ID        string     `json:"id"`
	Messages  []*Message `json:"messages"`
	CreatedAt int64      `json:"createdAt"`
	UpdatedAt int64      `json:"updatedAt"`
}

// NewMessage is the caller-supplied part of a message; the store assigns
// the id and timestamp.
type NewMessage struct {
	Role      Role
	Content   string
	AgentType agent.Type
	HasImage  bool
	ImageURL  string
}

// IsLocalID reports whether id names a client-only conversation.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}

// NewLocalID returns an id of the form local-<epoch ms>-<7 base36 chars>.
func NewLocalID() string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffix := make([]byte, 7)
	for i := range suffix {
		suffix[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return LocalPrefix + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + string(suffix)
}

// NewLocalConversation synthesizes an empty client-only conversation.
func NewLocalConversation() *Conversation {
	now := time.Now().UnixMilli()
	return &Conversation{
		ID:        NewLocalID(),
		Messages:  []*Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Store persists conversations in a kv.Store.
type Store struct {
	kv     kv.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a conversation store over backend.
func New(backend kv.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:     backend,
		logger: logger.With("component", "store"),
		now:    time.Now,
	}
}

func key(id string) string {
	return keyPrefix + id
}

// Create writes a new empty conversation, overwriting any existing
// document with the same id. An empty id gets a fresh UUID.
func (s *Store) Create(ctx context.Context, id string) (*Conversation, error) {
	if id == "" {
		id = uuid.New().String()
	}
	now := s.now().UnixMilli()
	conv := &Conversation{
		ID:        id,
		Messages:  []*Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.put(ctx, conv); err != nil {
		return nil, err
	}
	s.logger.Debug("created conversation", "conversation_id", id)
	return conv, nil
}

// Get loads a conversation. Local ids and absent keys return ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	if id == "" || IsLocalID(id) {
		return nil, ErrNotFound
	}
	data, err := s.kv.Get(ctx, key(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", id, err)
	}
	return decode(data)
}

// Append adds a message to the end of a conversation and returns it.
// For a local id the message is synthesized and nothing is written.
// A missing conversation is created first.
func (s *Store) Append(ctx context.Context, id string, in NewMessage) (*Message, error) {
	now := s.now().UnixMilli()
	msg := &Message{
		ID:        uuid.New().String(),
		Role:      in.Role,
		Content:   in.Content,
		Timestamp: now,
		AgentType: in.AgentType,
		HasImage:  in.HasImage,
		ImageURL:  in.ImageURL,
	}
	if IsLocalID(id) {
		return msg, nil
	}

	conv, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		s.logger.Warn("appending to missing conversation, creating it", "conversation_id", id)
		conv, err = s.Create(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	conv.Messages = append(conv.Messages, msg)
	if now > conv.UpdatedAt {
		conv.UpdatedAt = now
	}
	if err := s.put(ctx, conv); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListRecent returns up to limit conversations, most recently updated first.
// Documents that fail to load are logged and skipped.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	keys, err := s.kv.Keys(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	convs := make([]*Conversation, 0, len(keys))
	for _, k := range keys {
		data, err := s.kv.Get(ctx, k)
		if err != nil {
			s.logger.Warn("skipping unreadable conversation", "key", k, "error", err)
			continue
		}
		conv, err := decode(data)
		if err != nil {
			s.logger.Warn("skipping malformed conversation", "key", k, "error", err)
			continue
		}
		convs = append(convs, conv)
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt > convs[j].UpdatedAt
	})
	if len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}

// Ping checks the underlying backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

func (s *Store) put(ctx context.Context, conv *Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encoding conversation %s: %w", conv.ID, err)
	}
	if err := s.kv.Set(ctx, key(conv.ID), data); err != nil {
		return fmt.Errorf("saving conversation %s: %w", conv.ID, err)
	}
	return nil
}

func decode(data []byte) (*Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decoding conversation: %w", err)
	}
	if conv.Messages == nil {
		conv.Messages = []*Message{}
	}
	return &conv, nil
}
