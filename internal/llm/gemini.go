// ABOUTME: Gemini REST client implementing llm.Client via generateContent.
// ABOUTME: Each call is traced with OpenTelemetry and records latency and token metrics.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultModel is the model used when none is configured.
	DefaultModel = "gemini-2.0-flash"

	// DefaultBaseURL is the public Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	instrumentationName = "github.com/2389/propdesk/internal/llm"
)

// GeminiConfig configures a Gemini client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Gemini calls the Gemini generateContent REST endpoint.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	tokens   metric.Int64Counter
}

// NewGemini creates a Gemini client. An API key is required.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	meter := otel.Meter(instrumentationName)
	duration, err := meter.Float64Histogram(
		"llm.request.duration",
		metric.WithDescription("LLM request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	errCounter, err := meter.Int64Counter(
		"llm.request.errors",
		metric.WithDescription("Failed LLM requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating error counter: %w", err)
	}
	tokens, err := meter.Int64Counter(
		"llm.usage.tokens",
		metric.WithDescription("Tokens consumed by LLM requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating token counter: %w", err)
	}

	return &Gemini{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "gemini"),
		tracer:     otel.Tracer(instrumentationName),
		duration:   duration,
		errors:     errCounter,
		tokens:     tokens,
	}, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}

// wire types for the generateContent endpoint

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	SafetySettings    []geminiSafetySetting  `json:"safetySettings,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		TotalTokenCount      int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func buildGeminiRequest(req *Request) geminiRequest {
	out := geminiRequest{
		Contents: []geminiContent{{Role: "user"}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
	if req.SystemInstruction != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemInstruction}}}
	}
	for _, p := range req.Parts {
		gp := geminiPart{Text: p.Text}
		if p.InlineData != nil {
			gp.InlineData = &geminiInlineData{MimeType: p.InlineData.MIMEType, Data: p.InlineData.Data}
		}
		out.Contents[0].Parts = append(out.Contents[0].Parts, gp)
	}
	for _, s := range req.Safety {
		out.SafetySettings = append(out.SafetySettings, geminiSafetySetting{
			Category:  string(s.Category),
			Threshold: string(s.Threshold),
		})
	}
	return out
}

// Generate sends one generateContent request and returns the text of the
// first candidate.
func (g *Gemini) Generate(ctx context.Context, req *Request) (string, error) {
	ctx, span := g.tracer.Start(ctx, "gemini.generate_content",
		trace.WithAttributes(
			attribute.String("llm.model", g.model),
			attribute.Int("llm.parts", len(req.Parts)),
		))
	defer span.End()

	start := time.Now()
	text, err := g.generate(ctx, req)

	attrs := metric.WithAttributes(attribute.String("llm.model", g.model))
	g.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if err != nil {
		g.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

func (g *Gemini) generate(ctx context.Context, req *Request) (string, error) {
	jsonData, err := json.Marshal(buildGeminiRequest(req))
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr geminiErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("gemini API error: %s (%s)", apiErr.Error.Message, apiErr.Error.Status)
		}
		return "", fmt.Errorf("gemini API error: %s", resp.Status)
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshaling response: %w", err)
	}

	if apiResp.UsageMetadata != nil {
		g.tokens.Add(ctx, apiResp.UsageMetadata.PromptTokenCount,
			metric.WithAttributes(attribute.String("llm.token.type", "prompt")))
		g.tokens.Add(ctx, apiResp.UsageMetadata.CandidatesTokenCount,
			metric.WithAttributes(attribute.String("llm.token.type", "candidates")))
	}

	if apiResp.PromptFeedback != nil && apiResp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, apiResp.PromptFeedback.BlockReason)
	}
	if len(apiResp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, p := range apiResp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w (finish reason %s)", ErrEmptyResponse, apiResp.Candidates[0].FinishReason)
	}

	g.logger.Debug("generated response",
		"finish_reason", apiResp.Candidates[0].FinishReason,
		"length", sb.Len())
	return sb.String(), nil
}
