package localllm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartrecipe/internal/llm"
)

func TestGenerate_SendsImageAsDataURI(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Response{Choices: []Choice{{Message: ResponseMessage{Role: "assistant", Content: `{"ok":true}`}}}})
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Model: "test-model"}, zerolog.Nop())
	text, err := c.Generate(context.Background(), llm.Request{
		Prompt: "structure this flyer",
		Image:  &llm.Image{MIMEType: "image/jpeg", Data: []byte("abc")},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, "structure this flyer", got.Messages[0].Content[0].Text)
	assert.Equal(t, "data:image/jpeg;base64,YWJj", got.Messages[0].Content[1].ImageURL.URL)
}

func TestGenerate_TextOnly(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Response{Choices: []Choice{{Message: ResponseMessage{Content: "hi"}}}})
	}))
	defer srv.Close()

	_, err := NewClient(Config{URL: srv.URL}, zerolog.Nop()).Generate(context.Background(), llm.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Len(t, got.Messages[0].Content, 1)
	assert.Equal(t, DefaultModel, got.Model)
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-OK status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}},
		{"invalid body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(Config{URL: srv.URL}, zerolog.Nop()).Generate(context.Background(), llm.Request{Prompt: "p"})
			assert.Error(t, err)
		})
	}
}
