// Package agents holds the per-backend invocation catalog: executable
// names, argument conventions, stdin wiring, and credential requirements.
// Flag syntax lives here as configuration data so a backend changing its
// CLI surface never touches adapter parsing logic.
package agents

import (
	"strings"

	"github.com/taskpilot/taskpilot/internal/process"
)

// Param is a CLI flag template. Args may contain the {prompt} or {value}
// placeholders; plain tokens are emitted verbatim.
type Param struct {
	args []string
}

// NewParam creates a flag template from its tokens.
func NewParam(args ...string) Param {
	return Param{args: append([]string{}, args...)}
}

// IsEmpty reports whether the param has no tokens.
func (p Param) IsEmpty() bool { return len(p.args) == 0 }

// Spec describes how to invoke one backend headlessly. One instance per
// supported tool, constructed at startup, immutable afterwards.
type Spec struct {
	// ID is the tool identifier, matching the adapter registry key.
	ID string `yaml:"id"`

	// Name is the human-readable backend name.
	Name string `yaml:"name"`

	// Executable is resolved against PATH by the availability probe.
	Executable string `yaml:"executable"`

	// BaseArgs select headless mode and the streaming output format the
	// tool's adapter expects.
	BaseArgs []string `yaml:"baseArgs"`

	// PromptFlag carries the prompt. Empty means positional.
	PromptFlag Param `yaml:"-"`

	// ResumeFlag requests resumption of a previous session. The session
	// identifier is appended after the flag tokens.
	ResumeFlag Param `yaml:"-"`

	// AllowFlag names the auto-approval/allow-list flag. Allowed
	// capabilities are joined with commas after the flag tokens.
	AllowFlag Param `yaml:"-"`

	// StdinMode selects stdin wiring; some CLIs refuse to start without
	// a live stdin.
	StdinMode process.StdinMode `yaml:"-"`

	// RequiredEnv names a credential environment variable that must be
	// non-empty for headless execution. Empty means no credential gate.
	RequiredEnv string `yaml:"requiredEnv"`
}

// BuildArgs assembles the full argument list for one invocation:
// base args, then resume flag + session id, then the allow-list, then
// the prompt last.
func (s Spec) BuildArgs(prompt, sessionID string, allowed []string) []string {
	args := append([]string{}, s.BaseArgs...)

	if sessionID != "" && !s.ResumeFlag.IsEmpty() {
		args = append(args, s.ResumeFlag.args...)
		args = append(args, sessionID)
	}

	if len(allowed) > 0 && !s.AllowFlag.IsEmpty() {
		args = append(args, s.AllowFlag.args...)
		args = append(args, strings.Join(allowed, ","))
	}

	if s.PromptFlag.IsEmpty() {
		args = append(args, prompt)
		return args
	}
	for _, arg := range s.PromptFlag.args {
		args = append(args, strings.ReplaceAll(arg, "{prompt}", prompt))
	}
	return args
}
