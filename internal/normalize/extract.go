// Package normalize turns shape-shifting upstream payloads (commerce REST bodies and MCP tool
// outputs) into the canonical product models. Nothing in here returns an error: malformed
// input is reported through boolean results and discarded by the caller.
package normalize

import (
	"encoding/json"
	"strings"
)

// containerKeys name the keys that usually hold the product array itself, tried in order.
var containerKeys = []string{"products", "items", "results", "data", "matches"}

// wrapperKeys are consulted only when no container key is present.
var wrapperKeys = []string{"toolResult", "result"}

// maxDepth bounds recursion on hostile or cyclic-looking inputs.
const maxDepth = 16

// ExtractProductArray finds the product array inside raw. The boolean is false when no array
// is reachable, which callers must keep distinct from an empty (but recognized) result.
func ExtractProductArray(raw any) ([]any, bool) {
	return extractArray(raw, 0)
}

func extractArray(raw any, depth int) ([]any, bool) {
	if depth > maxDepth {
		return nil, false
	}

	switch v := raw.(type) {
	case []any:
		return v, true
	case string:
		decoded, ok := decodeJSONText(v)
		if !ok {
			return nil, false
		}
		return extractArray(decoded, depth+1)
	case map[string]any:
		if next, ok := firstPresent(v, containerKeys); ok {
			return extractArray(next, depth+1)
		}
		if next, ok := firstPresent(v, wrapperKeys); ok {
			return extractArray(next, depth+1)
		}
	}
	return nil, false
}

// firstPresent returns the non-nil value under the first of keys present in m.
func firstPresent(m map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if next, present := m[k]; present && next != nil {
			return next, true
		}
	}
	return nil, false
}

// decodeJSONText decodes text that looks like a JSON object or array.
func decodeJSONText(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, false
	}
	return out, true
}

// asMap accepts either a decoded object or JSON text holding one.
func asMap(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		return v, true
	case string:
		decoded, ok := decodeJSONText(v)
		if !ok {
			return nil, false
		}
		m, ok := decoded.(map[string]any)
		return m, ok
	}
	return nil, false
}
