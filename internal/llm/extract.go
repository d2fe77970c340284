package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSONObject is wrapped by ResponseFormatError when the text holds no {...} span.
var ErrNoJSONObject = errors.New("no JSON object found in response")

var (
	openingFence = regexp.MustCompile("^```(?:json)?\\s*\\n?")
	closingFence = regexp.MustCompile("\\n?```$")
)

// ResponseFormatError reports model output that did not contain a parsable JSON object.
type ResponseFormatError struct {
	Raw string
	Err error
}

func (e *ResponseFormatError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *ResponseFormatError) Unwrap() error { return e.Err }

// ExtractJSON recovers a single JSON object from raw model text. It tolerates
// a surrounding markdown fence and prose before or after the object.
func ExtractJSON(text string) (json.RawMessage, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = openingFence.ReplaceAllString(cleaned, "")
		cleaned = closingFence.ReplaceAllString(cleaned, "")
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || start > end {
		return nil, &ResponseFormatError{Raw: text, Err: ErrNoJSONObject}
	}
	candidate := cleaned[start : end+1]

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, &ResponseFormatError{Raw: text, Err: err}
	}
	return json.RawMessage(candidate), nil
}

// Decode extracts the JSON object from text and unmarshals it into v.
func Decode(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &ResponseFormatError{Raw: text, Err: err}
	}
	return nil
}
