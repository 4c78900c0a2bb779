package adapter

import "strings"

// Codex normalizes the codex app-server notification stream: JSON-RPC
// style lines carrying a "method" plus "params". The session identifier
// is params.thread_id, first seen on the thread/started notification.
type Codex struct{}

// NewCodex creates an adapter for the codex notification protocol.
func NewCodex() *Codex { return &Codex{} }

// Tool implements Adapter.
func (a *Codex) Tool() string { return ToolCodex }

// ParseLine implements Adapter.
func (a *Codex) ParseLine(line string) (*ProgressEvent, string) {
	m, ok := decodeLine(line)
	if !ok {
		return freeTextEvent(line), ""
	}

	params := getMap(m, "params")
	sessionID := ""
	if params != nil {
		sessionID = getString(params, "thread_id")
	}

	method := getString(m, "method")
	if msg, isErr := explicitError(m, method); isErr || method == "error" {
		if msg == "" && params != nil {
			msg = firstText(params, "message", "error")
		}
		return errorEvent(msg), sessionID
	}

	switch method {
	case "thread/started":
		return infoEvent("Thread started"), sessionID

	case "turn/started":
		return infoEvent("Working..."), sessionID

	case "turn/completed":
		return &ProgressEvent{
			Kind:    KindResult,
			Message: "Turn completed",
			Icon:    "done",
		}, sessionID

	case "item/started", "item/completed":
		return a.parseItem(params), sessionID

	case "item/agentMessage/delta":
		if params != nil {
			return outputEvent(getString(params, "delta")), sessionID
		}
		return nil, sessionID
	}

	if params != nil {
		if text := firstText(params, "message", "status", "delta", "text"); text != "" {
			return freeTextEvent(text), sessionID
		}
	}
	if text := firstText(m, "message", "status", "delta", "text"); text != "" {
		return freeTextEvent(text), sessionID
	}
	return nil, sessionID
}

// parseItem maps a thread item notification to a tool action or output.
func (a *Codex) parseItem(params map[string]any) *ProgressEvent {
	item := getMap(params, "item")
	if item == nil {
		return nil
	}
	itemType := getString(item, "type")
	switch {
	case itemType == "agent_message":
		return outputEvent(firstText(item, "text", "message"))
	case itemType == "reasoning":
		return nil
	case itemType != "":
		// command_execution, file_change, web_search... the keyword table
		// maps the inconsistent verbs.
		target := firstText(item, "command", "path", "query")
		return toolActionEvent(strings.ReplaceAll(itemType, "_", " "), target)
	}
	return nil
}
