// Package jsonx recovers a single JSON document from noisy text.
package jsonx

import (
	"encoding/json"
	"strings"
)

// Extract returns the one JSON document embedded in raw, if any. Worker
// stdout is frequently polluted by third-party library warnings printed to
// the same stream, so the whole trimmed text is tried first and, failing
// that, the window from the first '{' to the last '}' inclusive.
//
// This is a best-effort single-document recovery, not a tokenizer: it does
// not handle multiple embedded objects, nor unbalanced braces inside string
// values. The worker contract promises at most one object per invocation.
func Extract(raw string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), true
	}

	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	candidate := trimmed[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, false
	}
	return json.RawMessage(candidate), true
}
