package adapter

import "strings"

// Opencode normalizes the opencode executor event stream: one JSON
// object per line with a top-level "type" (session_start/sdk_event/
// error/done). The session identifier is "session_id", only present on
// the session_start event.
type Opencode struct{}

// NewOpencode creates an adapter for the opencode executor protocol.
func NewOpencode() *Opencode { return &Opencode{} }

// Tool implements Adapter.
func (a *Opencode) Tool() string { return ToolOpencode }

// ParseLine implements Adapter.
func (a *Opencode) ParseLine(line string) (*ProgressEvent, string) {
	m, ok := decodeLine(line)
	if !ok {
		return freeTextEvent(line), ""
	}

	typ := getString(m, "type")
	sessionID := ""
	if typ == "session_start" {
		sessionID = getString(m, "session_id")
	}

	if msg, isErr := explicitError(m, typ); isErr || typ == "error" {
		if msg == "" {
			msg = firstText(m, "message", "text")
		}
		return errorEvent(msg), sessionID
	}

	switch typ {
	case "startup_log":
		return freeTextEvent(getString(m, "message")), sessionID

	case "session_start":
		return infoEvent("Session started"), sessionID

	case "sdk_event":
		return a.parseSDKEvent(getMap(m, "event")), sessionID

	case "done":
		return &ProgressEvent{
			Kind:    KindResult,
			Message: "Task completed",
			Icon:    "done",
		}, sessionID
	}

	if text := firstText(m, "message", "status", "delta", "text"); text != "" {
		return freeTextEvent(text), sessionID
	}
	return nil, sessionID
}

// parseSDKEvent maps a nested SDK event (message part updates, tool
// state changes) to a normalized event.
func (a *Opencode) parseSDKEvent(event map[string]any) *ProgressEvent {
	if event == nil {
		return nil
	}
	evType := getString(event, "type")
	if strings.HasSuffix(evType, ".error") {
		props := getMap(event, "properties")
		return errorEvent(firstText(props, "message", "error"))
	}

	props := getMap(event, "properties")
	if props == nil {
		return nil
	}
	part := getMap(props, "part")
	if part == nil {
		return nil
	}

	switch getString(part, "type") {
	case "text":
		return outputEvent(getString(part, "text"))
	case "tool":
		target := ""
		if state := getMap(part, "state"); state != nil {
			if input := getMap(state, "input"); input != nil {
				target = firstText(input, "filePath", "file_path", "path", "command", "pattern")
			}
		}
		return toolActionEvent(getString(part, "tool"), target)
	}
	return nil
}
