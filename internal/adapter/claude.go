package adapter

import "strings"

// Claude normalizes the claude CLI stream-json protocol: one JSON object
// per line with a top-level "type" of system/assistant/user/result.
// The session identifier arrives as a top-level "session_id", first on
// the system/init message and again on every turn message.
type Claude struct{}

// NewClaude creates an adapter for the claude stream-json protocol.
func NewClaude() *Claude { return &Claude{} }

// Tool implements Adapter.
func (a *Claude) Tool() string { return ToolClaude }

// ParseLine implements Adapter.
func (a *Claude) ParseLine(line string) (*ProgressEvent, string) {
	m, ok := decodeLine(line)
	if !ok {
		return freeTextEvent(line), ""
	}

	sessionID := getString(m, "session_id")
	typ := getString(m, "type")

	if msg, isErr := explicitError(m, typ); isErr {
		return errorEvent(msg), sessionID
	}

	switch typ {
	case "system":
		if getString(m, "subtype") == "init" {
			model := getString(m, "model")
			if model != "" {
				return infoEvent("Session started (" + model + ")"), sessionID
			}
			return infoEvent("Session started"), sessionID
		}
		return nil, sessionID

	case "assistant":
		return a.parseAssistant(m), sessionID

	case "user":
		// Tool results echoed back; nothing worth reporting.
		return nil, sessionID

	case "result":
		if getString(m, "is_error") == "true" || m["is_error"] == true ||
			strings.HasPrefix(getString(m, "subtype"), "error") {
			return errorEvent(firstText(m, "result", "message")), sessionID
		}
		msg := firstText(m, "result", "message")
		if msg == "" {
			msg = "Task completed"
		}
		return &ProgressEvent{
			Kind:    KindResult,
			Message: truncate(strings.TrimSpace(msg), maxMessageLen),
			Icon:    "done",
		}, sessionID
	}

	if text := firstText(m, "message", "status", "delta", "text"); text != "" {
		return freeTextEvent(text), sessionID
	}
	return nil, sessionID
}

// parseAssistant walks the nested message/content blocks and reports the
// first meaningful one: a tool invocation wins over plain text.
func (a *Claude) parseAssistant(m map[string]any) *ProgressEvent {
	msg := getMap(m, "message")
	if msg == nil {
		return nil
	}
	var text string
	for _, raw := range getSlice(msg, "content") {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch getString(block, "type") {
		case "tool_use":
			return toolActionEvent(getString(block, "name"), toolTarget(getMap(block, "input")))
		case "text":
			if text == "" {
				text = getString(block, "text")
			}
		}
	}
	return outputEvent(text)
}

// toolTarget pulls a displayable target out of a tool_use input block.
func toolTarget(input map[string]any) string {
	if input == nil {
		return ""
	}
	return firstText(input, "file_path", "path", "pattern", "command", "query")
}
