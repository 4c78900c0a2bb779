//go:build !windows

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpilot/taskpilot/internal/adapter"
	"github.com/taskpilot/taskpilot/internal/agents"
	"github.com/taskpilot/taskpilot/internal/common/logger"
	"github.com/taskpilot/taskpilot/internal/fallback"
	"github.com/taskpilot/taskpilot/internal/process"
	"github.com/taskpilot/taskpilot/internal/session"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "error",
		Format:     "console",
		OutputPath: "stderr",
	})
	require.NoError(t, err)
	return log
}

// stubFallback records the attempt and returns a canned result.
type stubFallback struct {
	mu      sync.Mutex
	called  bool
	prompt  string
	workDir string
	result  fallback.Result
}

func (f *stubFallback) Attempt(_ context.Context, prompt, workDir string) fallback.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = true
	f.prompt = prompt
	f.workDir = workDir
	return f.result
}

func (f *stubFallback) wasCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.called
}

// installFakeTool writes an executable shell script and points the
// claude catalog entry at it via a PATH entry and a yaml override.
func installFakeTool(t *testing.T, tool, script string) *agents.Catalog {
	t.Helper()
	dir := t.TempDir()

	exe := "fake-" + tool
	path := filepath.Join(dir, exe)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	overrides := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(overrides,
		[]byte(fmt.Sprintf("%s:\n  executable: %s\n", tool, exe)), 0o644))

	catalog := agents.DefaultCatalog()
	require.NoError(t, catalog.LoadOverrides(overrides))
	return catalog
}

func newTestService(t *testing.T, catalog *agents.Catalog, fb fallback.Strategy) *Service {
	t.Helper()
	log := newTestLogger(t)
	return NewService(
		catalog,
		process.NewSupervisor(log, process.WithKillGrace(200*time.Millisecond)),
		session.NewTracker(),
		fb,
		log,
	)
}

// eventLog records callback invocations in delivery order.
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.entries...)
}

func (l *eventLog) callbacks() Callbacks {
	return Callbacks{
		OnProgress:  func(ev adapter.ProgressEvent) { l.add("progress:" + ev.Message) },
		OnSessionID: func(id string) { l.add("session:" + id) },
	}
}

func TestExecute_HeadlessSuccess(t *testing.T) {
	// Scenario: three valid JSON lines then exit 0, no session id.
	catalog := installFakeTool(t, "claude", `
echo '{"type":"system","subtype":"init","model":"opus"}'
echo '{"type":"assistant","message":{"content":[{"type":"text","text":"working on it"}]}}'
echo '{"type":"result","result":"All done"}'
`)
	fb := &stubFallback{}
	svc := newTestService(t, catalog, fb)

	log := &eventLog{}
	res, err := svc.Execute(context.Background(), Request{
		Tool:   "claude",
		Prompt: "fix bug",
	}, log.callbacks())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, res.SessionID)
	assert.False(t, res.UsedFallback)
	assert.False(t, fb.wasCalled())

	entries := log.all()
	require.NotEmpty(t, entries)
	assert.Contains(t, entries, "progress:Session started (opus)")
	assert.Contains(t, entries, "progress:All done")
	for _, e := range entries {
		assert.NotContains(t, e, "session:", "no session id should be reported")
	}
}

func TestExecute_SessionCapturedOnceBeforeResult(t *testing.T) {
	catalog := installFakeTool(t, "claude", `
echo '{"type":"system","subtype":"init","session_id":"abc123"}'
echo '{"type":"assistant","session_id":"abc123","message":{"content":[{"type":"text","text":"step one"}]}}'
echo '{"type":"assistant","session_id":"other-id","message":{"content":[{"type":"text","text":"step two"}]}}'
echo '{"type":"result","session_id":"abc123","result":"done"}'
`)
	svc := newTestService(t, catalog, &stubFallback{})

	log := &eventLog{}
	res, err := svc.Execute(context.Background(), Request{
		Tool:            "claude",
		Prompt:          "fix bug",
		ConversationKey: "proj-1/phase-2",
	}, log.callbacks())
	require.NoError(t, err)

	// Execute returning is the terminal result; the session notification
	// must already have been delivered, exactly once, with the first id.
	entries := log.all()
	var sessions []string
	for _, e := range entries {
		if strings.HasPrefix(e, "session:") {
			sessions = append(sessions, e)
		}
	}
	require.Equal(t, []string{"session:abc123"}, sessions)
	assert.Equal(t, "abc123", res.SessionID)

	state, ok := svc.Tracker().Get("proj-1/phase-2")
	require.True(t, ok)
	assert.Equal(t, "abc123", state.SessionID)
	assert.Equal(t, "claude", state.Tool)
}

func TestExecute_DuplicateMessagesSuppressed(t *testing.T) {
	catalog := installFakeTool(t, "claude", `
echo 'compiling...'
echo 'compiling...'
echo 'linking...'
`)
	svc := newTestService(t, catalog, &stubFallback{})

	log := &eventLog{}
	res, err := svc.Execute(context.Background(), Request{
		Tool:   "claude",
		Prompt: "build it",
	}, log.callbacks())
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Equal(t, []string{
		"progress:compiling...",
		"progress:linking...",
	}, log.all())
}

func TestExecute_ZeroProgressEventsStillTerminates(t *testing.T) {
	catalog := installFakeTool(t, "claude", "exit 0")
	svc := newTestService(t, catalog, &stubFallback{})

	log := &eventLog{}
	res, err := svc.Execute(context.Background(), Request{
		Tool:   "claude",
		Prompt: "noop",
	}, log.callbacks())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Empty(t, log.all())
}

func TestExecute_TimeoutFallsBack(t *testing.T) {
	catalog := installFakeTool(t, "claude", "sleep 30")
	fb := &stubFallback{result: fallback.Result{Message: "automation fallback not configured"}}
	svc := newTestService(t, catalog, fb)

	res, err := svc.Execute(context.Background(), Request{
		Tool:    "claude",
		Prompt:  "slow task",
		Timeout: 300 * time.Millisecond,
	}, Callbacks{})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.TimedOut)
	assert.True(t, res.UsedFallback)
	assert.True(t, fb.wasCalled())
	assert.Contains(t, res.Message, "timed out after")
}

func TestExecute_NonZeroExitFallsBack(t *testing.T) {
	catalog := installFakeTool(t, "claude", "echo 'rate limited' >&2; exit 2")
	fb := &stubFallback{result: fallback.Result{Success: true, Message: "prompt delivered via automation"}}
	svc := newTestService(t, catalog, fb)

	res, err := svc.Execute(context.Background(), Request{
		Tool:   "claude",
		Prompt: "fix bug",
	}, Callbacks{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.UsedFallback)
	assert.True(t, fb.wasCalled())
	// The headless diagnostic is preserved alongside the fallback outcome.
	assert.Contains(t, res.Message, "exited with code 2")
	assert.Contains(t, res.Message, "rate limited")
}

func TestExecute_SessionNotReannouncedByFallback(t *testing.T) {
	// Headless captures a session id, then fails; the fallback strategy
	// reports its own id. First capture wins for the whole invocation:
	// the caller must see exactly one session notification.
	catalog := installFakeTool(t, "claude", `
echo '{"type":"system","subtype":"init","session_id":"headless-sid"}'
exit 2
`)
	fb := &stubFallback{result: fallback.Result{
		Success:   true,
		Message:   "prompt delivered via automation",
		SessionID: "fallback-sid",
	}}
	svc := newTestService(t, catalog, fb)

	log := &eventLog{}
	res, err := svc.Execute(context.Background(), Request{
		Tool:            "claude",
		Prompt:          "fix bug",
		ConversationKey: "proj-3",
	}, log.callbacks())
	require.NoError(t, err)

	assert.True(t, res.UsedFallback)
	assert.Equal(t, "headless-sid", res.SessionID)

	var sessions []string
	for _, e := range log.all() {
		if strings.HasPrefix(e, "session:") {
			sessions = append(sessions, e)
		}
	}
	assert.Equal(t, []string{"session:headless-sid"}, sessions)

	state, ok := svc.Tracker().Get("proj-3")
	require.True(t, ok)
	assert.Equal(t, "headless-sid", state.SessionID)
}

func TestExecute_MissingCredentialSkipsSpawn(t *testing.T) {
	// Scenario: executable resolvable but the credential variable is
	// unset. The orchestrator must route straight to the fallback with
	// the literal prompt and working directory, never spawning.
	dir := t.TempDir()
	marker := filepath.Join(dir, "spawned")
	catalog := installFakeTool(t, "gemini", "touch "+marker)
	t.Setenv("GEMINI_API_KEY", "")

	fb := &stubFallback{result: fallback.Result{Success: true, Message: "prompt delivered via automation"}}
	svc := newTestService(t, catalog, fb)

	workDir := t.TempDir()
	res, err := svc.Execute(context.Background(), Request{
		Tool:    "gemini",
		Prompt:  "add tests",
		WorkDir: workDir,
	}, Callbacks{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.UsedFallback)
	assert.True(t, fb.wasCalled())
	assert.Equal(t, "add tests", fb.prompt)
	assert.Equal(t, workDir, fb.workDir)
	assert.NoFileExists(t, marker, "headless path must not spawn")
}

func TestExecute_SpawnFailureFallsBack(t *testing.T) {
	// The executable resolves at probe time (it exists and is marked
	// executable) but the spawn itself fails: the interpreter named in
	// the shebang does not exist.
	dir := t.TempDir()
	exe := filepath.Join(dir, "fake-claude")
	require.NoError(t, os.WriteFile(exe, []byte("#!/nonexistent-interpreter\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	overrides := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(overrides, []byte("claude:\n  executable: fake-claude\n"), 0o644))
	catalog := agents.DefaultCatalog()
	require.NoError(t, catalog.LoadOverrides(overrides))

	fb := &stubFallback{result: fallback.Result{Message: "automation fallback not configured"}}
	svc := newTestService(t, catalog, fb)

	res, err := svc.Execute(context.Background(), Request{
		Tool:   "claude",
		Prompt: "fix bug",
	}, Callbacks{})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.UsedFallback)
	assert.True(t, fb.wasCalled())
}

func TestExecute_ResumeArgsIncludeSessionBeforePrompt(t *testing.T) {
	// Scenario: a resume session id must appear after the resume flag
	// and before the prompt in the spawned argument list.
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	catalog := installFakeTool(t, "claude", `printf '%s\n' "$@" > `+argsFile)

	svc := newTestService(t, catalog, &stubFallback{})

	res, err := svc.Execute(context.Background(), Request{
		Tool:      "claude",
		Prompt:    "fix bug",
		SessionID: "abc123",
	}, Callbacks{})
	require.NoError(t, err)
	require.True(t, res.Success)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	args := strings.Split(strings.TrimSpace(string(data)), "\n")

	resumeIdx := indexOf(args, "--resume")
	sessionIdx := indexOf(args, "abc123")
	promptIdx := indexOf(args, "fix bug")
	require.GreaterOrEqual(t, resumeIdx, 0, "args: %v", args)
	require.GreaterOrEqual(t, sessionIdx, 0, "args: %v", args)
	require.GreaterOrEqual(t, promptIdx, 0, "args: %v", args)
	assert.Equal(t, resumeIdx+1, sessionIdx)
	assert.Less(t, sessionIdx, promptIdx)
}

func TestExecute_TrackerSessionUsedForConversation(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	catalog := installFakeTool(t, "claude", `printf '%s\n' "$@" > `+argsFile)

	svc := newTestService(t, catalog, &stubFallback{})
	svc.Tracker().Capture("proj-9", "claude", "prev-session")

	res, err := svc.Execute(context.Background(), Request{
		Tool:            "claude",
		Prompt:          "continue",
		ConversationKey: "proj-9",
	}, Callbacks{})
	require.NoError(t, err)
	require.True(t, res.Success)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "prev-session")
}

func TestExecute_InvalidRequests(t *testing.T) {
	svc := newTestService(t, agents.DefaultCatalog(), &stubFallback{})

	_, err := svc.Execute(context.Background(), Request{Tool: "claude"}, Callbacks{})
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = svc.Execute(context.Background(), Request{Tool: "no-such-tool", Prompt: "hi"}, Callbacks{})
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestExecute_SlowCallbackDoesNotLoseEvents(t *testing.T) {
	catalog := installFakeTool(t, "claude", `
for i in 1 2 3 4 5; do echo "status $i"; done
`)
	svc := newTestService(t, catalog, &stubFallback{})

	var mu sync.Mutex
	var got []string
	res, err := svc.Execute(context.Background(), Request{
		Tool:   "claude",
		Prompt: "go",
	}, Callbacks{
		OnProgress: func(ev adapter.ProgressEvent) {
			time.Sleep(20 * time.Millisecond) // deliberately slow consumer
			mu.Lock()
			got = append(got, ev.Message)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"status 1", "status 2", "status 3", "status 4", "status 5"}, got)
}

func indexOf(ss []string, want string) int {
	for i, s := range ss {
		if s == want {
			return i
		}
	}
	return -1
}
