// ABOUTME: Read-only HTML transcript of a conversation
// ABOUTME: Assistant replies are rendered from markdown with goldmark

package gateway

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/propdesk/internal/agent"
	"github.com/2389/propdesk/internal/store"
)

//go:embed templates/transcript.html
var templateFS embed.FS

var transcriptTmpl = template.Must(template.ParseFS(templateFS, "templates/transcript.html"))

type transcriptData struct {
	ID       string
	Created  string
	Updated  string
	Messages []transcriptMessage
}

type transcriptMessage struct {
	Role      store.Role
	AgentType agent.Type
	Author    string
	Time      string
	Image     template.URL
	Body      template.HTML
}

// handleTranscript handles GET /conversation/transcript?id=X.
func (g *Gateway) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		g.sendJSONError(w, http.StatusBadRequest, "id is required")
		return
	}

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

	var buf bytes.Buffer
	if err := transcriptTmpl.Execute(&buf, g.buildTranscript(conv)); err != nil {
		g.logger.Error("failed to render transcript", "conversation_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to render transcript")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (g *Gateway) buildTranscript(conv *store.Conversation) transcriptData {
	data := transcriptData{
		ID:      conv.ID,
		Created: formatMillis(conv.CreatedAt),
		Updated: formatMillis(conv.UpdatedAt),
	}
	for _, m := range conv.Messages {
		tm := transcriptMessage{
			Role:      m.Role,
			AgentType: m.AgentType,
			Author:    author(m),
			Time:      formatMillis(m.Timestamp),
		}
		// only inline images are shown; anything else would be a remote fetch
		if m.HasImage && strings.HasPrefix(m.ImageURL, "data:image/") {
			tm.Image = template.URL(m.ImageURL)
		}
		if m.Role == store.RoleAssistant {
			tm.Body = g.renderMarkdown(m.Content)
		} else {
			tm.Body = template.HTML("<p>" + template.HTMLEscapeString(m.Content) + "</p>")
		}
		data.Messages = append(data.Messages, tm)
	}
	return data
}

// renderMarkdown converts assistant markdown to HTML. Raw HTML in the
// source is dropped by goldmark's default renderer.
func (g *Gateway) renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		g.logger.Error("failed to convert markdown", "error", err)
		return template.HTML("<p>" + template.HTMLEscapeString(md) + "</p>")
	}
	return template.HTML(buf.String())
}

func author(m *store.Message) string {
	if m.Role == store.RoleUser {
		return "You"
	}
	switch m.AgentType {
	case agent.Troubleshooting:
		return "Troubleshooting Agent"
	case agent.Tenancy:
		return "Tenancy FAQ Agent"
	default:
		return "Assistant"
	}
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04 UTC")
}
