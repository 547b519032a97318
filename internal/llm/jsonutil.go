package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// fencePattern matches a response that is exactly one markdown code block,
// optionally tagged json.
var fencePattern = regexp.MustCompile("(?s)^```(?:json|JSON)?[ \t]*\\r?\\n?(.*?)\\r?\\n?```$")

// StripFence removes one markdown code fence surrounding the whole response.
// Anything else is returned trimmed but otherwise untouched.
func StripFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// ParseObject parses content strictly as one JSON object. The only tolerance
// is a surrounding code fence; prose, trailing commas and trailing data are
// rejected.
func ParseObject(content string) (map[string]any, error) {
	body := StripFence(content)
	if body == "" {
		return nil, errors.New("empty response")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("response is not a JSON object")
	}
	return obj, nil
}
