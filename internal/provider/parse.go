package provider

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// StripFences removes markup models wrap code replies in: a leading
// ```lang line, a trailing ``` line, and surrounding blank space. The
// result ends in exactly one newline unless it is empty.
func StripFences(reply string) string {
	text := strings.TrimSpace(reply)
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	if strings.HasPrefix(strings.TrimSpace(lines[0]), "```") || strings.HasPrefix(strings.TrimSpace(lines[0]), "~~~") {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 {
		last := strings.TrimSpace(lines[n-1])
		if strings.HasPrefix(last, "```") || strings.HasPrefix(last, "~~~") {
			lines = lines[:n-1]
		}
	}

	text = strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return ""
	}
	return text + "\n"
}

// ExtractField finds a string field in a model reply. It tries, in order,
// the JSON object between the first '{' and last '}', the same inside a
// fenced block, and a plain "key: value" line.
func ExtractField(reply, key string) (string, bool) {
	if v, ok := jsonField(reply, key); ok {
		return v, true
	}
	if inner := fencedBody(reply); inner != "" {
		if v, ok := jsonField(inner, key); ok {
			return v, true
		}
	}

	prefix := strings.ToLower(key) + ":"
	for _, line := range strings.Split(reply, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), prefix) {
			v := strings.TrimSpace(trimmed[len(prefix):])
			v = strings.Trim(v, "\"'`.,")
			if v != "" {
				return v, true
			}
		}
	}
	return "", false
}

func jsonField(s, key string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return "", false
	}
	v, ok := obj[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func fencedBody(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

const truncationMarker = "\n...[truncated]...\n"

// Truncate shortens s to at most maxBytes, keeping 70% from the head and
// 30% from the tail, cut on rune boundaries.
func Truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	budget := maxBytes - len(truncationMarker)
	if budget <= 0 {
		return runePrefix(s, maxBytes)
	}
	head := budget * 7 / 10
	tail := budget - head
	return runePrefix(s, head) + truncationMarker + runeSuffix(s, tail)
}

func runePrefix(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func runeSuffix(s string, n int) string {
	if n >= len(s) {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
