// Package filtergen builds and issues cinematic filter generation requests to
// the Gemini API, validates the replies, and maps failures to a small error
// taxonomy.
//
// The request declares a structured-output schema so the service itself
// constrains the reply to {"filter": string}, but the client still validates
// the reply independently: shape guarantees from an external system are
// advisory, not load-bearing.
package filtergen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/filter-studio/internal/assets"
	"github.com/fpang/filter-studio/internal/ingest"
	"github.com/fpang/filter-studio/internal/jsonutil"
	"github.com/fpang/filter-studio/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// generationTemperature biases the model toward consistent, reproducible
// filter output over creative variation.
const generationTemperature = 0.5

// Generator issues one filter-generation request per call. Implemented by
// Client; the interface exists so the web handlers can be tested without the
// Gemini API.
type Generator interface {
	Generate(ctx context.Context, photo *ingest.Image) (string, error)
}

// filterReply is the declared response shape.
type filterReply struct {
	Filter string `json:"filter"`
}

// Client is the Gemini-backed filter generator.
type Client struct {
	genai *genai.Client
	model string
}

var _ Generator = (*Client)(nil)

// NewClient creates a filter generation client for the given API key and
// model name. An empty model name selects GetModelName().
func NewClient(ctx context.Context, apiKey, modelName string) (*Client, error) {
	if modelName == "" {
		modelName = GetModelName()
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{genai: gc, model: modelName}, nil
}

// GenAI exposes the underlying Gemini client for startup key validation.
func (c *Client) GenAI() *genai.Client {
	return c.genai
}

// Model returns the model name this client generates with.
func (c *Client) Model() string {
	return c.model
}

// Generate requests one cinematic filter descriptor. photo may be nil, in
// which case the fixed instruction alone drives the grade; when a photo is
// provided it is sent inline so the model tailors the grade to it.
//
// On success the returned string is a validated, non-empty CSS filter value.
// All failures are *GenerationError values; no retry is attempted here.
func (c *Client) Generate(ctx context.Context, photo *ingest.Image) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.FilterSystemPrompt}},
		},
		Temperature:      genai.Ptr[float32](generationTemperature),
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"filter": {Type: genai.TypeString},
			},
			Required: []string{"filter"},
		},
	}

	var parts []*genai.Part
	if photo != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: photo.MIMEType,
				Data:     photo.Data,
			},
		})
	}
	parts = append(parts, &genai.Part{Text: assets.RenderFilterRequestPrompt(photo != nil)})

	log.Info().
		Str("model", c.model).
		Bool("with_photo", photo != nil).
		Msg("Requesting cinematic filter from Gemini")

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	geminiStart := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, config)
	geminiElapsed := time.Since(geminiStart)

	// Emit Gemini API metrics
	m := metrics.New("FilterStudio").
		Dimension("Operation", "filterGenerate").
		Metric("GeminiApiLatencyMs", float64(geminiElapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("GeminiApiCalls")
	if err != nil {
		m.Count("GeminiApiErrors")
	}
	if resp != nil && resp.UsageMetadata != nil {
		m.Metric("GeminiInputTokens", float64(resp.UsageMetadata.PromptTokenCount), metrics.UnitCount)
		m.Metric("GeminiOutputTokens", float64(resp.UsageMetadata.CandidatesTokenCount), metrics.UnitCount)
	}
	m.Flush()

	if err != nil {
		log.Error().Err(err).Dur("duration", geminiElapsed).Msg("Filter generation call failed")
		return "", &GenerationError{
			Kind:    ErrServiceUnavailable,
			Message: "filter service unavailable",
			Err:     err,
		}
	}

	var raw string
	if resp != nil {
		raw = resp.Text()
	}

	descriptor, err := ValidateReply(raw)
	if err != nil {
		return "", err
	}

	log.Info().
		Str("filter", descriptor).
		Dur("duration", geminiElapsed).
		Msg("Filter generated")

	return descriptor, nil
}

// ValidateReply performs the client-side half of the response contract:
// trim, parse as the declared shape, and verify a usable filter value.
// Exposed separately so the validation stages are testable without the API.
func ValidateReply(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		log.Warn().Msg("Received empty response from Gemini")
		return "", &GenerationError{
			Kind:    ErrEmptyResponse,
			Message: "the filter service returned an empty response",
		}
	}

	reply, err := jsonutil.ParseObject[filterReply](trimmed)
	if err != nil {
		log.Warn().Err(err).Int("raw_length", len(raw)).Msg("Filter response did not match declared shape")
		return "", &GenerationError{
			Kind:    ErrMalformedResponse,
			Message: "the filter service returned an unparseable response",
			Err:     err,
		}
	}

	descriptor := strings.TrimSpace(reply.Filter)
	if descriptor == "" {
		log.Warn().Msg("Filter response parsed but the filter value is empty")
		return "", &GenerationError{
			Kind:    ErrInvalidFilterValue,
			Message: "the filter service returned an empty filter value",
		}
	}

	return descriptor, nil
}
