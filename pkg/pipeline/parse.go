package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const snippetLen = 200

// StripFences removes a markdown code fence around JSON. When there is no
// fence but prose surrounds an object, the outermost braces are kept.
func StripFences(text string) string {
	s := strings.TrimSpace(text)

	if start := strings.Index(s, "```"); start >= 0 {
		body := s[start+3:]
		// Drop the info string (```json).
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		} else {
			body = strings.TrimPrefix(body, "json")
		}
		if end := strings.LastIndex(body, "```"); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}

	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	first := strings.IndexByte(s, '{')
	last := strings.LastIndexByte(s, '}')
	if first >= 0 && last > first {
		return s[first : last+1]
	}
	return s
}

// Snippet truncates text for error reports.
func Snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= snippetLen {
		return text
	}
	cut := snippetLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// ParseJSON strips fences and checks the response is a JSON object.
func ParseJSON(text string) (json.RawMessage, error) {
	body := StripFences(text)
	if body == "" {
		return nil, &StepError{Code: CodeParseError, Err: fmt.Errorf("empty model response")}
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return nil, &StepError{
			Code:    CodeParseError,
			Err:     fmt.Errorf("model response is not a JSON object: %w", err),
			Snippet: Snippet(text),
		}
	}
	return json.RawMessage(body), nil
}
