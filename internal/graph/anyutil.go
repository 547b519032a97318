package graph

import (
	"encoding/json"
	"fmt"
	"strings"
)

func stringFromAny(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}

func mapFromAny(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// mapsFromAny keeps the object elements of a list and ignores the rest.
func mapsFromAny(v any) []map[string]any {
	var out []map[string]any
	for _, item := range sliceAny(v) {
		if m := mapFromAny(item); m != nil {
			out = append(out, m)
		}
	}
	return out
}

func sliceAny(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

// firstString returns the first non-blank string value among keys.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(stringFromAny(m[k])); s != "" {
			return s
		}
	}
	return ""
}

// objectFromAny accepts an object or a JSON-encoded object string.
func objectFromAny(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(t), &m); err != nil || m == nil {
			return nil, false
		}
		return m, true
	default:
		return nil, false
	}
}
