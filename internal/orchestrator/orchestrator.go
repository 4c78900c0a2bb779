// Package orchestrator runs prompts against external AI coding-assistant
// CLIs. For each request it probes backend availability, spawns the CLI
// headlessly with the right protocol adapter wired to its output stream,
// and falls back to OS keyboard automation when headless execution is
// unavailable or fails. Every failure mode is converted into a Result
// value; no fault escapes the execution path.
package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/taskpilot/taskpilot/internal/adapter"
)

// Common errors
var (
	ErrEmptyPrompt      = errors.New("prompt must not be empty")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrUnknownExecution = errors.New("unknown execution")
)

// Request describes one prompt execution. Immutable once submitted.
type Request struct {
	// Prompt is the natural-language instruction for the agent.
	Prompt string `json:"prompt"`

	// WorkDir is the workspace the agent operates in. Empty means the
	// orchestrator process working directory.
	WorkDir string `json:"work_dir,omitempty"`

	// Tool selects the backend (claude, codex, gemini, opencode).
	Tool string `json:"tool"`

	// ConversationKey scopes session continuity. When set and no explicit
	// SessionID is given, the last captured session for this key is
	// resumed. The key's meaning (project/phase) belongs to the caller.
	ConversationKey string `json:"conversation_key,omitempty"`

	// SessionID explicitly resumes a backend session, overriding the
	// tracker lookup.
	SessionID string `json:"session_id,omitempty"`

	// Timeout bounds the headless execution. Zero means the configured
	// default (5 minutes).
	Timeout time.Duration `json:"timeout,omitempty"`

	// AllowedTools lists auto-approved capabilities, passed through to
	// the backend's allow-list flag.
	AllowedTools []string `json:"allowed_tools,omitempty"`
}

// Validate checks the request invariants.
func (r Request) Validate() error {
	if r.Prompt == "" {
		return ErrEmptyPrompt
	}
	if !adapter.Supported(r.Tool) {
		return fmt.Errorf("%w: %q", ErrUnknownTool, r.Tool)
	}
	return nil
}

// Result is the terminal outcome of one Request. Exactly one Result is
// produced per request, after all progress events.
type Result struct {
	// Success reports whether the prompt was delivered and the agent
	// finished without error, on either path.
	Success bool `json:"success"`

	// Message is a short human-readable diagnostic, suitable for a UI
	// status line. Set on failure and on fallback outcomes.
	Message string `json:"message,omitempty"`

	// SessionID is the captured backend session identifier, when the
	// stream exposed one.
	SessionID string `json:"session_id,omitempty"`

	// ExitCode is the headless process exit code. -1 when the process
	// never ran or was killed before exiting.
	ExitCode int `json:"exit_code"`

	// TimedOut marks an execution killed by the timeout.
	TimedOut bool `json:"timed_out,omitempty"`

	// UsedFallback marks a result produced by the automation fallback
	// rather than headless execution.
	UsedFallback bool `json:"used_fallback,omitempty"`
}

// Callbacks receive asynchronous notifications during one execution.
// Both are optional. They are invoked in production order from a
// dispatch goroutine, never from the process read loop, so a slow
// callback cannot stall the child's stdout.
type Callbacks struct {
	// OnProgress receives normalized progress events. Consecutive
	// duplicate messages are suppressed before delivery.
	OnProgress func(adapter.ProgressEvent)

	// OnSessionID fires at most once per execution, the first time a
	// session identifier appears in the stream, strictly before Execute
	// returns.
	OnSessionID func(sessionID string)
}
