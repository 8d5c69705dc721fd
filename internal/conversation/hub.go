// ABOUTME: In-memory fan-out of settled messages to per-conversation subscribers
// ABOUTME: Slow subscribers drop messages instead of blocking the publisher

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/propdesk/internal/store"
)

// subscriberBuffer is the channel capacity per subscriber.
const subscriberBuffer = 64

// Hub delivers messages appended to a conversation to everyone watching it.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[string]chan *store.Message // conversation id -> sub id -> ch
	logger *slog.Logger
}

// NewHub creates an empty hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[string]chan *store.Message),
		logger: logger.With("component", "hub"),
	}
}

// Subscribe watches conversationID until ctx is done. The returned channel
// is closed on unsubscribe.
func (h *Hub) Subscribe(ctx context.Context, conversationID string) (<-chan *store.Message, string) {
	subID := uuid.New().String()
	ch := make(chan *store.Message, subscriberBuffer)

	h.mu.Lock()
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[string]chan *store.Message)
	}
	h.subs[conversationID][subID] = ch
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "conversation_id", conversationID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		h.Unsubscribe(conversationID, subID)
	}()
	return ch, subID
}

// Publish sends msg to every subscriber of conversationID without blocking.
func (h *Hub) Publish(conversationID string, msg *store.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for subID, ch := range h.subs[conversationID] {
		select {
		case ch <- msg:
		default:
			h.logger.Debug("dropped message for slow subscriber",
				"conversation_id", conversationID,
				"sub_id", subID,
				"message_id", msg.ID)
		}
	}
}

// Subscribers returns the number of subscribers watching conversationID.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID])
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(conversationID, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[conversationID]
	ch, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(h.subs, conversationID)
	}
	h.logger.Debug("subscriber removed", "conversation_id", conversationID, "sub_id", subID)
}

// Close closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, subs := range h.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(h.subs, id)
	}
}
