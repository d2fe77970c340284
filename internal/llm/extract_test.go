package llm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_ProseAndFence(t *testing.T) {
	raw, err := ExtractJSON("Here you go:\n```json\n{\"title\":\"Soup\"}\n```\nEnjoy!")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Soup"}`, string(raw))
}

func TestExtractJSON_Wrappers(t *testing.T) {
	obj := `{"store_name":"Fresh Mart","sale_period":{"start":"2024-12-01","end":"2024-12-07"},"items":[{"name":"Apple","sale_price":150}]}`

	wrappers := map[string]string{
		"bare":              obj,
		"json fence":        "```json\n" + obj + "\n```",
		"plain fence":       "```\n" + obj + "\n```",
		"fence no newline":  "```json" + obj + "```",
		"leading prose":     "Sure! Here is the data:\n" + obj,
		"trailing prose":    obj + "\nLet me know if you need anything else.",
		"surrounding space": "\n\n   " + obj + "   \n",
		"prose and fence":   "Result:\n```json\n" + obj + "\n```\nThanks",
	}

	for name, text := range wrappers {
		t.Run(name, func(t *testing.T) {
			raw, err := ExtractJSON(text)
			require.NoError(t, err)
			assert.JSONEq(t, obj, string(raw))
		})
	}
}

func TestExtractJSON_Failures(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"no braces", "I could not read the flyer."},
		{"reversed braces", "} nothing {"},
		{"broken object", "```json\n{\"title\": \"Soup\",}\n```"},
		{"array only", "[1, 2, 3]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractJSON(tt.text)
			require.Error(t, err)

			var formatErr *ResponseFormatError
			require.True(t, errors.As(err, &formatErr))
			assert.Equal(t, tt.text, formatErr.Raw)
		})
	}
}

func TestExtractJSON_NoObjectWrapsSentinel(t *testing.T) {
	_, err := ExtractJSON("nothing to see")
	assert.ErrorIs(t, err, ErrNoJSONObject)
}

func TestDecode(t *testing.T) {
	var out struct {
		Title string `json:"title"`
	}
	require.NoError(t, Decode("ok: {\"title\":\"Curry\"}", &out))
	assert.Equal(t, "Curry", out.Title)

	var mismatch struct {
		Title int `json:"title"`
	}
	err := Decode("{\"title\":\"Curry\"}", &mismatch)
	var formatErr *ResponseFormatError
	require.ErrorAs(t, err, &formatErr)

	var typeErr *json.UnmarshalTypeError
	assert.ErrorAs(t, err, &typeErr)
}
