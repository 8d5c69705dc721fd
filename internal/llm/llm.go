// ABOUTME: Request types and the Client interface for the LLM collaborator.
// ABOUTME: Callers build a Request of parts; implementations return plain text or an error.

package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty response from model")

// ErrBlocked is returned when the prompt was rejected by content filtering.
var ErrBlocked = errors.New("prompt blocked")

// Client generates a single reply for a request. Implementations make
// exactly one attempt and leave timeouts to the underlying transport.
type Client interface {
	Generate(ctx context.Context, req *Request) (string, error)
}

// Request is one generation call.
type Request struct {
	SystemInstruction string
	Parts             []Part
	// Temperature is always sent; 0 means deterministic, not unset.
	Temperature       float64
	MaxOutputTokens   int
	Safety            []SafetySetting
}

// Part is either text or an inline image.
type Part struct {
	Text       string
	InlineData *InlineData
}

// InlineData is base64 encoded binary content with its MIME type.
type InlineData struct {
	MIMEType string
	Data     string
}

// TextPart builds a text Part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart builds an inline image Part from raw base64 data.
func ImagePart(mimeType, data string) Part {
	return Part{InlineData: &InlineData{MIMEType: mimeType, Data: data}}
}

// HarmCategory names a content-safety category.
type HarmCategory string

// HarmBlockThreshold is the level at which content in a category is blocked.
type HarmBlockThreshold string

const (
	HarmCategoryHarassment       HarmCategory = "HARM_CATEGORY_HARASSMENT"
	HarmCategoryHateSpeech       HarmCategory = "HARM_CATEGORY_HATE_SPEECH"
	HarmCategorySexuallyExplicit HarmCategory = "HARM_CATEGORY_SEXUALLY_EXPLICIT"
	HarmCategoryDangerousContent HarmCategory = "HARM_CATEGORY_DANGEROUS_CONTENT"

	BlockMediumAndAbove HarmBlockThreshold = "BLOCK_MEDIUM_AND_ABOVE"
	BlockOnlyHigh       HarmBlockThreshold = "BLOCK_ONLY_HIGH"
	BlockNone           HarmBlockThreshold = "BLOCK_NONE"
)

// SafetySetting sets the block threshold for one harm category.
type SafetySetting struct {
	Category  HarmCategory
	Threshold HarmBlockThreshold
}

// DefaultSafety blocks medium-and-above content in every category.
func DefaultSafety() []SafetySetting {
	return []SafetySetting{
		{Category: HarmCategoryHarassment, Threshold: BlockMediumAndAbove},
		{Category: HarmCategoryHateSpeech, Threshold: BlockMediumAndAbove},
		{Category: HarmCategorySexuallyExplicit, Threshold: BlockMediumAndAbove},
		{Category: HarmCategoryDangerousContent, Threshold: BlockMediumAndAbove},
	}
}
