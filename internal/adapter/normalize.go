package adapter

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Length bounds for emitted messages. Free text from unrecognized lines
// is cut harder than structured output.
const (
	maxMessageLen  = 120
	maxFreeTextLen = 100
)

// actionKeyword maps a case-insensitive substring of a backend tool name
// to a human-readable action phrase and icon category. Substring matching
// on purpose: backends use inconsistent verbs ("patch" vs "edit", "exec"
// vs "run"), so exact enumeration would miss most of them.
type actionKeyword struct {
	substr string
	phrase string
	icon   string
}

// Checked in order; first match wins.
var actionKeywords = []actionKeyword{
	{"edit", "Editing file", "edit"},
	{"patch", "Editing file", "edit"},
	{"replace", "Editing file", "edit"},
	{"write", "Writing file", "write"},
	{"create", "Writing file", "write"},
	{"read", "Reading file", "read"},
	{"view", "Reading file", "read"},
	{"cat", "Reading file", "read"},
	{"search", "Searching", "search"},
	{"grep", "Searching", "search"},
	{"find", "Searching", "search"},
	{"glob", "Searching", "search"},
	{"ls", "Listing files", "search"},
	{"exec", "Running command", "command"},
	{"run", "Running command", "command"},
	{"bash", "Running command", "command"},
	{"shell", "Running command", "command"},
	{"command", "Running command", "command"},
	{"terminal", "Running command", "command"},
	{"process", "Running command", "command"},
	{"fetch", "Fetching", "search"},
	{"web", "Fetching", "search"},
}

// toolActionEvent maps a backend tool name to a normalized tool-action
// event, optionally suffixed with a target (file path, command).
func toolActionEvent(toolName, target string) *ProgressEvent {
	phrase := "Using " + toolName
	icon := "tool"
	lower := strings.ToLower(toolName)
	for _, kw := range actionKeywords {
		if strings.Contains(lower, kw.substr) {
			phrase = kw.phrase
			icon = kw.icon
			break
		}
	}
	if target != "" {
		phrase += ": " + target
	}
	return &ProgressEvent{
		Kind:    KindToolAction,
		Message: truncate(phrase, maxMessageLen),
		Icon:    icon,
	}
}

// freeTextEvent turns a non-JSON line into a low-priority status event.
// Whitespace-only lines produce nothing.
func freeTextEvent(line string) *ProgressEvent {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	return &ProgressEvent{
		Kind:    KindInfo,
		Message: truncate(trimmed, maxFreeTextLen),
		Icon:    "info",
	}
}

// errorEvent builds a terminal-flavored error event.
func errorEvent(msg string) *ProgressEvent {
	if strings.TrimSpace(msg) == "" {
		msg = "Agent reported an error"
	}
	return &ProgressEvent{
		Kind:    KindResult,
		Message: truncate(strings.TrimSpace(msg), maxMessageLen),
		Icon:    "error",
		Err:     true,
	}
}

// outputEvent builds a partial-output event from assistant text.
func outputEvent(text string) *ProgressEvent {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	return &ProgressEvent{
		Kind:    KindOutput,
		Message: truncate(trimmed, maxMessageLen),
		Icon:    "output",
	}
}

// infoEvent builds an informational event.
func infoEvent(msg string) *ProgressEvent {
	return &ProgressEvent{
		Kind:    KindInfo,
		Message: truncate(msg, maxMessageLen),
		Icon:    "info",
	}
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	// Do not split a multi-byte rune at the boundary. Only the final
	// boundary matters; invalid bytes earlier in the line stay as-is.
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

// decodeLine attempts to parse a line as a JSON object. Non-JSON lines
// and JSON scalars/arrays return (nil, false).
func decodeLine(line string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return nil, false
	}
	return m, true
}

// getString extracts a string field from a decoded JSON object.
func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// getMap extracts a nested object field.
func getMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

// getSlice extracts a nested array field.
func getSlice(m map[string]any, key string) []any {
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}

// explicitError checks the two error indicators that always win over any
// other fields on the line: a non-empty "error" field, or a type/method
// ending in ".error".
func explicitError(m map[string]any, typ string) (string, bool) {
	if strings.HasSuffix(typ, ".error") {
		return firstText(m, "error", "message", "text"), true
	}
	switch e := m["error"].(type) {
	case string:
		if e != "" {
			return e, true
		}
	case map[string]any:
		return firstText(e, "message", "text"), true
	}
	return "", false
}

// firstText returns the first non-empty candidate free-text field, in
// the given priority order.
func firstText(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := getString(m, key); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
