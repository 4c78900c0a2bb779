//go:build !windows

package process

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpilot/taskpilot/internal/common/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "debug",
		Format:     "console",
		OutputPath: "stdout",
	})
	require.NoError(t, err)
	return log
}

func collectOutput(e *Execution) string {
	var out []byte
	for chunk := range e.Chunks() {
		out = append(out, chunk...)
	}
	return string(out)
}

func TestSupervisor_Success(t *testing.T) {
	s := NewSupervisor(newTestLogger(t))
	e := s.Run(context.Background(), Cmd{
		Path: "/bin/sh",
		Args: []string{"-c", "echo line1; echo line2"},
	}, 10*time.Second)

	out := collectOutput(e)
	outcome := e.Wait()

	assert.True(t, outcome.Success())
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Contains(t, out, "line1")
	assert.Contains(t, out, "line2")
}

func TestSupervisor_NonZeroExit(t *testing.T) {
	s := NewSupervisor(newTestLogger(t))
	e := s.Run(context.Background(), Cmd{
		Path: "/bin/sh",
		Args: []string{"-c", "echo diagnostic >&2; exit 3"},
	}, 10*time.Second)

	collectOutput(e)
	outcome := e.Wait()

	assert.False(t, outcome.Success())
	assert.Equal(t, 3, outcome.ExitCode)
	assert.Contains(t, outcome.Stderr, "diagnostic")
}

func TestSupervisor_SpawnFailureSynthesized(t *testing.T) {
	s := NewSupervisor(newTestLogger(t))
	e := s.Run(context.Background(), Cmd{
		Path: "/nonexistent/definitely-not-a-binary",
	}, 10*time.Second)

	collectOutput(e)
	outcome := e.Wait()

	assert.False(t, outcome.Success())
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "failed to start")
}

func TestSupervisor_TimeoutKillsProcess(t *testing.T) {
	s := NewSupervisor(newTestLogger(t), WithKillGrace(200*time.Millisecond))
	e := s.Run(context.Background(), Cmd{
		Path: "/bin/sh",
		Args: []string{"-c", "sleep 30"},
	}, 300*time.Millisecond)

	collectOutput(e)
	outcome := e.Wait()

	assert.False(t, outcome.Success())
	assert.True(t, outcome.TimedOut)

	// The process must actually be gone.
	pid := e.PID()
	require.NotZero(t, pid)
	err := syscall.Kill(pid, 0)
	assert.Error(t, err, "process %d should be terminated", pid)
}

func TestSupervisor_ContextCancelReusesKillPath(t *testing.T) {
	s := NewSupervisor(newTestLogger(t), WithKillGrace(200*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	e := s.Run(ctx, Cmd{
		Path: "/bin/sh",
		Args: []string{"-c", "sleep 30"},
	}, time.Minute)

	time.AfterFunc(100*time.Millisecond, cancel)
	collectOutput(e)
	outcome := e.Wait()

	assert.False(t, outcome.Success())
}

func TestSupervisor_StderrTailBounded(t *testing.T) {
	s := NewSupervisor(newTestLogger(t), WithStderrTail(20))
	e := s.Run(context.Background(), Cmd{
		Path: "/bin/sh",
		Args: []string{"-c", "for i in $(seq 1 50); do echo error-line-$i >&2; done; exit 1"},
	}, 10*time.Second)

	collectOutput(e)
	outcome := e.Wait()

	assert.LessOrEqual(t, len(outcome.Stderr), 20)
	assert.NotEmpty(t, outcome.Stderr)
}

func TestSupervisor_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	s := NewSupervisor(newTestLogger(t))
	e := s.Run(context.Background(), Cmd{
		Path: "/bin/sh",
		Args: []string{"-c", "pwd"},
		Dir:  dir,
	}, 10*time.Second)

	out := collectOutput(e)
	outcome := e.Wait()

	assert.True(t, outcome.Success())
	assert.Contains(t, out, dir)
}

func TestSupervisor_EnvAppended(t *testing.T) {
	s := NewSupervisor(newTestLogger(t))
	e := s.Run(context.Background(), Cmd{
		Path: "/bin/sh",
		Args: []string{"-c", "echo $TASKPILOT_TEST_VAR"},
		Env:  []string{"TASKPILOT_TEST_VAR=wired"},
	}, 10*time.Second)

	out := collectOutput(e)
	e.Wait()
	assert.Contains(t, out, "wired")
}
