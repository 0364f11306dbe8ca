package triage

import (
	"encoding/json"
	"strings"
)

// parseLabelArray extracts a JSON array of label names from a model reply.
// Accepted shapes, in order: a bare array, an array inside a fenced code
// block, the first bracketed substring anywhere in the text.
func parseLabelArray(text string) []string {
	text = strings.TrimSpace(text)

	if labels, ok := tryUnmarshal(text); ok {
		return labels
	}

	if fenced := insideFence(text); fenced != "" {
		if labels, ok := tryUnmarshal(fenced); ok {
			return labels
		}
	}

	if start := strings.Index(text, "["); start >= 0 {
		if end := strings.Index(text[start:], "]"); end > 0 {
			if labels, ok := tryUnmarshal(text[start : start+end+1]); ok {
				return labels
			}
		}
	}

	return nil
}

func tryUnmarshal(s string) ([]string, bool) {
	var labels []string
	if err := json.Unmarshal([]byte(s), &labels); err != nil {
		return nil, false
	}
	return labels, true
}

// insideFence returns the body of the first fenced code block, with an
// optional language tag stripped.
func insideFence(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	body := rest[:end]
	if nl := strings.Index(body, "\n"); nl >= 0 {
		// Drop a language tag like "json" on the opening line.
		if !strings.Contains(body[:nl], "[") {
			body = body[nl+1:]
		}
	}
	return strings.TrimSpace(body)
}
