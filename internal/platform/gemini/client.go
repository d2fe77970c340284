package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"smartrecipe/internal/llm"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.0-flash"

// ErrEmptyResponse is returned when Gemini answers without any text.
var ErrEmptyResponse = errors.New("empty response from Gemini")

// Client is a client for the Gemini API.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger zerolog.Logger
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is not configured")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{
		client: client,
		model:  client.GenerativeModel(model),
		logger: logger.With().Str("provider", "gemini").Str("model", model).Logger(),
	}, nil
}

// Provider names the backend for processing_method tags.
func (c *Client) Provider() string { return "gemini" }

// Generate sends the prompt, and the image if any, and returns the concatenated text parts.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	var parts []genai.Part
	if req.Image != nil {
		parts = append(parts, genai.ImageData(req.Image.Format(), req.Image.Data))
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	c.logger.Debug().Int("bytes", len(text)).Bool("image", req.Image != nil).Msg("gemini response received")
	return text, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}
