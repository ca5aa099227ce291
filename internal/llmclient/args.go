// internal/llmclient/args.go
package llmclient

import (
	"strings"

	json "github.com/json-iterator/go"
	"github.com/kaptinlin/jsonrepair"
)

// ParseArguments decodes a tool-call argument payload into an object. Models
// frequently emit truncated or sloppy JSON, so a failed decode is retried once
// on the repaired text and anything that still is not an object becomes {}.
func ParseArguments(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	if m, ok := decodeObject(raw); ok {
		return m
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return map[string]any{}
	}
	if m, ok := decodeObject(repaired); ok {
		return m
	}
	return map[string]any{}
}

func decodeObject(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// ExtractJSONObject pulls the first JSON object out of free-form model text,
// tolerating markdown fences and surrounding prose. The result is repaired
// where possible; ok is false when no object could be recovered.
func ExtractJSONObject(text string) (map[string]any, bool) {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}
	start := strings.Index(s, "{")
	if start < 0 {
		return nil, false
	}
	s = s[start:]
	if end := strings.LastIndex(s, "}"); end >= 0 {
		if m, ok := decodeObject(s[:end+1]); ok {
			return m, true
		}
	}
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, false
	}
	return decodeObject(repaired)
}
