// ABOUTME: HTTP API handlers for conversations and chat turns
// ABOUTME: POST/GET /conversation, POST /chat and the SSE message stream

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/propdesk/internal/agent"
	"github.com/2389/propdesk/internal/conversation"
	"github.com/2389/propdesk/internal/store"
)

// maxBodyBytes caps request bodies; images arrive inline as base64.
const maxBodyBytes = 10 << 20

// ChatRequest is the JSON request body for POST /chat.
type ChatRequest struct {
	ConversationID string       `json:"conversationId"`
	Message        *ChatMessage `json:"message"`
	ImageData      string       `json:"imageData,omitempty"`
	// AgentType selects an agent explicitly; empty lets the router decide.
	AgentType string `json:"agentType,omitempty"`
	// RequestID makes the call idempotent for chat.dedupe_ttl.
	RequestID string `json:"requestId,omitempty"`
}

// ChatMessage is the user's message within a ChatRequest.
type ChatMessage struct {
	Content string `json:"content"`
}

// ChatResponse is the JSON response for POST /chat.
type ChatResponse struct {
	Message *store.Message `json:"message"`
}

// ConversationResponse is the JSON response for a single conversation.
type ConversationResponse struct {
	Conversation *store.Conversation `json:"conversation"`
}

// ConversationsResponse is the JSON response for GET /conversation?limit=N.
type ConversationsResponse struct {
	Conversations []*store.Conversation `json:"conversations"`
}

// DuplicateResponse is returned with 409 for a replayed requestId.
type DuplicateResponse struct {
	Error   string         `json:"error"`
	Message *store.Message `json:"message,omitempty"`
}

// handleConversation dispatches /conversation by method.
func (g *Gateway) handleConversation(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handleCreateConversation(w, r)
	case http.MethodGet:
		g.handleGetConversation(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleCreateConversation handles POST /conversation.
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := g.store.Create(r.Context(), "")
	if err != nil {
		g.logger.Error("failed to create conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	g.logger.Info("conversation created", "conversation_id", conv.ID)
	g.sendJSON(w, http.StatusOK, ConversationResponse{Conversation: conv})
}

// handleGetConversation handles GET /conversation?id=X and GET /conversation?limit=N.
// An id takes precedence over limit.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if id := q.Get("id"); id != "" {
		conv, err := g.store.Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		if err != nil {
			g.logger.Error("failed to fetch conversation", "conversation_id", id, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "failed to fetch conversation(s)")
			return
		}
		g.sendJSON(w, http.StatusOK, ConversationResponse{Conversation: conv})
		return
	}

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	convs, err := g.store.ListRecent(r.Context(), limit)
	if err != nil {
		g.logger.Error("failed to list conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to fetch conversation(s)")
		return
	}
	g.sendJSON(w, http.StatusOK, ConversationsResponse{Conversations: convs})
}

// parseLimit reads the limit query parameter, defaulting to store.DefaultListLimit.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return store.DefaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", raw)
	}
	return n, nil
}

// handleChat handles POST /chat.
//
// The flow is:
//  1. Parse and validate the body (400 before any store or LLM call)
//  2. Claim the requestId, if any (409 on replay)
//  3. Load the conversation (404 if absent)
//  4. Run one turn through a conversation.Session over the stored conversation
//  5. Return the assistant message
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	req, status, err := parseChatRequest(r)
	if err != nil {
		g.sendJSONError(w, status, err.Error())
		return
	}

	var explicit agent.Type
	if req.AgentType != "" {
		explicit, err = agent.Parse(req.AgentType)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if req.RequestID != "" {
		prior, ready, ok := g.requests.Claim(req.RequestID)
		if !ok {
			g.logger.Info("duplicate chat request", "request_id", req.RequestID, "conversation_id", req.ConversationID)
			resp := DuplicateResponse{Error: "duplicate request"}
			if ready {
				resp.Message = prior
			}
			g.sendJSON(w, http.StatusConflict, resp)
			return
		}
	}

	ctx := r.Context()
	conv, err := g.store.Get(ctx, req.ConversationID)
	if err != nil {
		g.releaseRequest(req.RequestID)
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		g.logger.Error("failed to load conversation", "conversation_id", req.ConversationID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	g.logger.Info("chat request",
		"conversation_id", conv.ID,
		"messages", len(conv.Messages),
		"has_image", req.ImageData != "",
		"agent", explicit,
	)

	sess := conversation.NewSession(conv, g.store, g.generator, g.logger)
	sess.Select(explicit)
	sess.OnUpdate(func(m *store.Message) {
		g.hub.Publish(conv.ID, m)
	})

	msg, err := sess.Send(ctx, req.Message.Content, req.ImageData)
	if err != nil {
		g.releaseRequest(req.RequestID)
		if errors.Is(err, conversation.ErrEmptyMessage) {
			g.sendJSONError(w, http.StatusBadRequest, "missing required fields")
			return
		}
		g.logger.Error("chat turn failed", "conversation_id", conv.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	if req.RequestID != "" {
		g.requests.Complete(req.RequestID, msg)
	}
	g.sendJSON(w, http.StatusOK, ChatResponse{Message: msg})
}

func (g *Gateway) releaseRequest(id string) {
	if id != "" {
		g.requests.Release(id)
	}
}

// parseChatRequest decodes and validates a ChatRequest. The returned status
// is the HTTP code to use when err is non-nil.
func parseChatRequest(r *http.Request) (*ChatRequest, int, error) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, errors.New("request body too large")
		}
		return nil, http.StatusBadRequest, errors.New("invalid JSON body")
	}

	if req.ConversationID == "" || req.Message == nil {
		return nil, http.StatusBadRequest, errors.New("missing required fields")
	}
	if strings.TrimSpace(req.Message.Content) == "" && req.ImageData == "" {
		return nil, http.StatusBadRequest, errors.New("missing required fields")
	}
	return &req, 0, nil
}

// handleEvents handles GET /conversation/events?id=X, streaming each message
// appended through this gateway as an SSE "message" event.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		g.sendJSONError(w, http.StatusBadRequest, "id is required")
		return
	}
	if _, err := g.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		g.logger.Error("failed to load conversation", "conversation_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to fetch conversation(s)")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, _ := g.hub.Subscribe(r.Context(), id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "subscribed", map[string]string{"conversationId": id})
	flusher.Flush()

	for msg := range ch {
		g.writeSSEEvent(w, "message", msg)
		flusher.Flush()
	}
}

// formatSSEEvent formats an SSE event as a string with the standard format:
// event: <eventType>\ndata: <data>\n\n
func formatSSEEvent(eventType, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data)
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	_, _ = fmt.Fprint(w, formatSSEEvent(event, string(dataJSON)))
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes {"error": message} with the given status.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
