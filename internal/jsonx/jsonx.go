// Package jsonx decodes JSON produced by language models, which often arrives
// wrapped in markdown code fences or surrounded by prose.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decode unmarshals model output into v. It first tries the text as-is, then
// strips markdown code fences, then falls back to the outermost JSON object
// or array found in the text.
func Decode(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("jsonx: empty input")
	}

	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	if fenced := stripFences(trimmed); fenced != trimmed {
		if err := json.Unmarshal([]byte(fenced), v); err == nil {
			return nil
		}
	}

	if inner := extractOutermost(trimmed); inner != "" {
		if err := json.Unmarshal([]byte(inner), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("jsonx: no decodable JSON in model output")
}

// stripFences removes a leading ```json (or bare ```) fence and the matching
// trailing fence.
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// Drop the language tag on the fence line, if any.
		first := strings.TrimSpace(body[:nl])
		if first == "" || !strings.ContainsAny(first, "{[") {
			body = body[nl+1:]
		}
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

// extractOutermost returns the substring spanning the first opening brace or
// bracket to the last matching closer, or "" when none exists.
func extractOutermost(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	var closer byte
	if text[start] == '{' {
		closer = '}'
	} else {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return ""
	}
	return text[start : end+1]
}
