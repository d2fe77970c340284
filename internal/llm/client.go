// Package llm defines the provider-neutral contract for text and vision
// completions, plus helpers to recover structured output from model text.
package llm

import (
	"context"
	"encoding/base64"
	"fmt"
)

// Client is a black-box completion service. Implementations live under
// internal/platform.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is a single prompt, optionally with one image attachment.
type Request struct {
	Prompt string
	Image  *Image
}

// Image is a multimodal attachment.
type Image struct {
	MIMEType string
	Data     []byte
}

// Base64 returns the image bytes encoded for transport.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURI returns the image as a data URI, as accepted by OpenAI-compatible APIs.
func (i *Image) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIMEType, i.Base64())
}

// Format returns the short image format ("jpeg", "png", ...) derived from the MIME type.
func (i *Image) Format() string {
	switch i.MIMEType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	default:
		return "jpeg"
	}
}

// ClientFunc adapts a plain function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f(ctx, req).
func (f ClientFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
