// Package adapter provides protocol adapters for the agent CLI backends.
// Each backend streams a different line-oriented JSON schema; adapters
// normalize those lines into the ProgressEvent format the orchestrator
// exposes to callers.
package adapter

import (
	"fmt"
	"sort"
)

// ProgressEvent kind constants
const (
	KindInfo       = "info"        // Informational status (session start, phases)
	KindToolAction = "tool_action" // The agent invoked a tool (read/edit/run...)
	KindOutput     = "output"      // Partial assistant text
	KindResult     = "result"      // Terminal-flavored message (done or error)
)

// ProgressEvent is a protocol-agnostic progress update from the agent.
// All adapters normalize their backend's output to this format.
type ProgressEvent struct {
	// Kind identifies the event type. Use Kind* constants.
	Kind string `json:"kind"`

	// Message is a short human-readable status line, bounded in length.
	Message string `json:"message"`

	// Icon is a category tag the UI maps to a glyph (read, edit, write,
	// search, command, tool, info, output, done, error).
	Icon string `json:"icon"`

	// Err marks a terminal-flavored error event.
	Err bool `json:"error,omitempty"`
}

// Adapter translates one raw output line from its backend into at most
// one ProgressEvent. The second return value carries a session identifier
// when the line exposes one, empty otherwise. Implementations never
// return an error: unparseable lines degrade to free-text info events.
type Adapter interface {
	// Tool returns the backend identifier this adapter is scoped to.
	Tool() string

	// ParseLine consumes one complete output line. Returns (nil, "") for
	// lines that carry nothing worth reporting.
	ParseLine(line string) (*ProgressEvent, string)
}

// builders is the adapter registry, keyed by tool identifier. Adding a
// backend means adding one adapter file and one entry here; the
// orchestrator resolves adapters only through New.
var builders = map[string]func() Adapter{
	ToolClaude:   func() Adapter { return NewClaude() },
	ToolCodex:    func() Adapter { return NewCodex() },
	ToolGemini:   func() Adapter { return NewGemini() },
	ToolOpencode: func() Adapter { return NewOpencode() },
}

// Tool identifiers for the supported backends.
const (
	ToolClaude   = "claude"
	ToolCodex    = "codex"
	ToolGemini   = "gemini"
	ToolOpencode = "opencode"
)

// New creates a fresh adapter instance for the given tool. Each
// invocation gets its own instance; adapters are never shared across
// concurrent executions.
func New(tool string) (Adapter, error) {
	build, ok := builders[tool]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for tool %q", tool)
	}
	return build(), nil
}

// Tools returns the registered tool identifiers, sorted.
func Tools() []string {
	tools := make([]string, 0, len(builders))
	for id := range builders {
		tools = append(tools, id)
	}
	sort.Strings(tools)
	return tools
}

// Supported reports whether a tool identifier has a registered adapter.
func Supported(tool string) bool {
	_, ok := builders[tool]
	return ok
}
