// ABOUTME: Response generator wrapping the LLM client with per-agent system prompts.
// ABOUTME: Collaborator failures become a fixed apology string, never an error.

package responder

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/2389/propdesk/internal/agent"
	"github.com/2389/propdesk/internal/llm"
)

// System instructions per agent.
const (
	TroubleshootingInstruction = "You are a property troubleshooting expert. Help the user with their property issue."
	TenancyInstruction         = "You are a tenancy law and rental agreement expert. Answer the user's question about tenancy rights, rental agreements, or landlord-tenant relations."
	GeneralInstruction         = "You are a helpful real estate assistant who can provide general guidance on property matters. If the user asks about specific property issues or tenancy questions, ask for more details to provide better assistance."
	ImageInstruction           = "You are a property troubleshooting expert who can analyze images to identify issues with homes and buildings."
)

// Apologies returned in place of a reply when generation fails.
const (
	TextApology  = "Sorry, I encountered an error while processing your request. Please try again."
	ImageApology = "Sorry, I encountered an error while analyzing the image. Please try again with a different image or provide more details about your issue."
)

const defaultImageMIME = "image/jpeg"

// Config holds generation parameters.
type Config struct {
	Temperature     float64
	MaxOutputTokens int
	Safety          []llm.SafetySetting

	// CondenseChars shortens replies longer than this many bytes. Zero disables.
	CondenseChars int
}

// DefaultConfig returns temperature 0.7, 2048 output tokens and the default
// safety thresholds.
func DefaultConfig() Config {
	return Config{
		Temperature:     0.7,
		MaxOutputTokens: 2048,
		Safety:          llm.DefaultSafety(),
	}
}

// Responder produces assistant replies.
type Responder struct {
	client llm.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a Responder. A nil Safety list uses llm.DefaultSafety.
func New(client llm.Client, cfg Config, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Safety == nil {
		cfg.Safety = llm.DefaultSafety()
	}
	return &Responder{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "responder"),
	}
}

// Instruction returns the system instruction for an agent type. Unknown
// types get the general instruction.
func Instruction(t agent.Type) string {
	switch t {
	case agent.Troubleshooting:
		return TroubleshootingInstruction
	case agent.Tenancy:
		return TenancyInstruction
	default:
		return GeneralInstruction
	}
}

// GenerateText answers a text prompt as the given agent.
func (r *Responder) GenerateText(ctx context.Context, prompt string, agentType agent.Type) string {
	r.logger.Info("generating response", "agent", agentType, "prompt", preview(prompt))

	text, err := r.client.Generate(ctx, &llm.Request{
		SystemInstruction: Instruction(agentType),
		Parts:             []llm.Part{llm.TextPart(prompt)},
		Temperature:       r.cfg.Temperature,
		MaxOutputTokens:   r.cfg.MaxOutputTokens,
		Safety:            r.cfg.Safety,
	})
	if err != nil {
		r.logger.Error("error generating response", "agent", agentType, "error", err)
		return TextApology
	}

	r.logger.Debug("response generated", "agent", agentType, "response", preview(text))
	return Condense(text, r.cfg.CondenseChars)
}

// AnalyzeImage answers a prompt about an image. The troubleshooting image
// instruction is always used.
func (r *Responder) AnalyzeImage(ctx context.Context, imageData, prompt string) string {
	r.logger.Info("analyzing image", "prompt", preview(prompt))

	mimeType, data := StripDataURI(imageData)
	text, err := r.client.Generate(ctx, &llm.Request{
		SystemInstruction: ImageInstruction,
		Parts: []llm.Part{
			llm.TextPart(prompt),
			llm.ImagePart(mimeType, data),
		},
		Temperature:     r.cfg.Temperature,
		MaxOutputTokens: r.cfg.MaxOutputTokens,
		Safety:          r.cfg.Safety,
	})
	if err != nil {
		r.logger.Error("error analyzing image", "error", err)
		return ImageApology
	}

	r.logger.Debug("image analysis generated", "response", preview(text))
	return Condense(text, r.cfg.CondenseChars)
}

// StripDataURI removes a leading "data:<mime>;base64," prefix and returns the
// MIME type it named along with the raw base64 payload. Input without a
// prefix is returned as-is with image/jpeg.
func StripDataURI(imageData string) (mimeType, data string) {
	if !strings.HasPrefix(imageData, "data:") {
		return defaultImageMIME, imageData
	}
	header, payload, ok := strings.Cut(imageData, ",")
	if !ok {
		return defaultImageMIME, imageData
	}
	mimeType = strings.TrimPrefix(header, "data:")
	mimeType, _, _ = strings.Cut(mimeType, ";")
	if mimeType == "" {
		mimeType = defaultImageMIME
	}
	return mimeType, payload
}

// DataURI wraps raw base64 image data as a JPEG data URI for display.
// Data that already carries a scheme is returned unchanged.
func DataURI(imageData string) string {
	if strings.HasPrefix(imageData, "data:") {
		return imageData
	}
	return "data:" + defaultImageMIME + ";base64," + imageData
}

// ImagePrompt wraps an optional user caption in the image analysis prompt.
func ImagePrompt(caption string) string {
	const lead = "Analyze this property image and identify any issues or problems. "
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return lead + "What issues can you identify in this image?"
	}
	return lead + "The user asks: " + caption
}

// Condense shortens long replies. Replies within maxLen are untouched. With
// more than three paragraphs the first two are kept and the last one is
// appended as a summary; otherwise the text is cut at maxLen.
func Condense(reply string, maxLen int) string {
	if maxLen <= 0 || len(reply) <= maxLen {
		return reply
	}

	paragraphs := strings.Split(reply, "\n\n")
	if len(paragraphs) > 3 {
		shortened := strings.Join(paragraphs[:2], "\n\n")
		if len(shortened) < maxLen {
			return shortened + "\n\nIn summary: " + paragraphs[len(paragraphs)-1]
		}
		return truncate(shortened, maxLen) + "..."
	}
	return truncate(reply, maxLen) + "..."
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func preview(s string) string {
	if len(s) <= 50 {
		return s
	}
	return truncate(s, 50) + "..."
}
