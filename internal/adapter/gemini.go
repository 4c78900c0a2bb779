package adapter

// Gemini normalizes the gemini CLI streaming JSON output: one object per
// line with a top-level "type" (init/message/tool_call/result) and the
// session identifier in camel-case "sessionId" on the init message and
// on turn messages.
type Gemini struct{}

// NewGemini creates an adapter for the gemini streaming protocol.
func NewGemini() *Gemini { return &Gemini{} }

// Tool implements Adapter.
func (a *Gemini) Tool() string { return ToolGemini }

// ParseLine implements Adapter.
func (a *Gemini) ParseLine(line string) (*ProgressEvent, string) {
	m, ok := decodeLine(line)
	if !ok {
		return freeTextEvent(line), ""
	}

	sessionID := getString(m, "sessionId")
	typ := getString(m, "type")

	if msg, isErr := explicitError(m, typ); isErr {
		return errorEvent(msg), sessionID
	}

	switch typ {
	case "init":
		return infoEvent("Session started"), sessionID

	case "message":
		if getString(m, "role") == "assistant" {
			return outputEvent(firstText(m, "content", "text")), sessionID
		}
		return nil, sessionID

	case "tool_call", "tool_use":
		name := firstText(m, "name", "tool")
		target := ""
		if args := getMap(m, "args"); args != nil {
			target = firstText(args, "file_path", "path", "pattern", "command", "query")
		}
		return toolActionEvent(name, target), sessionID

	case "result":
		msg := firstText(m, "result", "message", "text")
		if msg == "" {
			msg = "Task completed"
		}
		return &ProgressEvent{
			Kind:    KindResult,
			Message: truncate(msg, maxMessageLen),
			Icon:    "done",
		}, sessionID
	}

	if text := firstText(m, "message", "status", "delta", "text"); text != "" {
		return freeTextEvent(text), sessionID
	}
	return nil, sessionID
}
