package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taskpilot/taskpilot/internal/common/logger"
)

// StdinMode selects how the child's standard input is wired.
type StdinMode int

const (
	// StdinNone leaves stdin unconnected. Most agent CLIs run fine this way.
	StdinNone StdinMode = iota
	// StdinInherit passes the parent's stdin through, for CLIs that refuse
	// to start without a terminal-like stdin.
	StdinInherit
)

// Cmd describes one subprocess invocation.
type Cmd struct {
	Path      string
	Args      []string
	Dir       string
	Env       []string // appended to the parent environment
	StdinMode StdinMode
}

// Outcome is the terminal result of one supervised process.
type Outcome struct {
	ExitCode int
	Err      error
	TimedOut bool
	// Stderr holds the trailing captured stderr, bounded for display.
	Stderr string
}

// Success reports whether the process exited naturally with code 0.
func (o Outcome) Success() bool {
	return o.Err == nil && !o.TimedOut && o.ExitCode == 0
}

// Supervisor spawns subprocesses and supervises their lifecycle. It is
// safe for concurrent use; each Run owns its own Execution.
type Supervisor struct {
	killGrace  time.Duration
	stderrTail int
	logger     *logger.Logger
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithKillGrace sets the delay between SIGTERM and SIGKILL.
func WithKillGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.killGrace = d }
}

// WithStderrTail sets how many bytes of trailing stderr an Outcome keeps.
func WithStderrTail(n int) Option {
	return func(s *Supervisor) { s.stderrTail = n }
}

// NewSupervisor creates a process supervisor.
func NewSupervisor(log *logger.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		killGrace:  2 * time.Second,
		stderrTail: 200,
		logger:     log.WithFields(zap.String("component", "process-supervisor")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execution is a handle to one running (or failed-to-start) process.
type Execution struct {
	chunks   chan []byte
	done     chan struct{}
	outcome  Outcome
	cmd      *exec.Cmd
	timedOut atomic.Bool
}

// Chunks returns the stream of raw stdout chunks. The channel is closed
// when the process exits (or immediately on spawn failure).
func (e *Execution) Chunks() <-chan []byte {
	return e.chunks
}

// Wait blocks until the process has exited and returns its outcome.
func (e *Execution) Wait() Outcome {
	<-e.done
	return e.outcome
}

// PID returns the OS process ID, or 0 if the process never started.
func (e *Execution) PID() int {
	if e.cmd != nil && e.cmd.Process != nil {
		return e.cmd.Process.Pid
	}
	return 0
}

// Run spawns the given command and supervises it until exit or timeout.
// Construction failures never surface as faults: they are synthesized
// into an immediate failure Outcome with a closed chunk stream.
//
// A timeout of zero disables the timer; ctx cancellation reuses the same
// forced-termination path as timeout expiry.
func (s *Supervisor) Run(ctx context.Context, spec Cmd, timeout time.Duration) *Execution {
	e := &Execution{
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	if spec.StdinMode == StdinInherit {
		cmd.Stdin = os.Stdin
	}
	setProcGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.failEarly(e, fmt.Errorf("failed to create stdout pipe: %w", err))
		return e
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.failEarly(e, fmt.Errorf("failed to create stderr pipe: %w", err))
		return e
	}

	if err := cmd.Start(); err != nil {
		s.failEarly(e, fmt.Errorf("failed to start %s: %w", spec.Path, err))
		return e
	}
	e.cmd = cmd

	s.logger.Info("process started",
		zap.String("path", spec.Path),
		zap.Strings("args", spec.Args),
		zap.String("workdir", spec.Dir),
		zap.Int("pid", cmd.Process.Pid))

	stderrRing := NewOutputRing(64)

	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() {
			e.timedOut.Store(true)
			s.logger.Warn("process timed out, terminating",
				zap.Int("pid", cmd.Process.Pid),
				zap.Duration("timeout", timeout))
			s.terminate(cmd)
		})
	}

	// Caller cancellation reuses the timeout termination path.
	cancelWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.terminate(cmd)
		case <-cancelWatch:
		}
	}()

	go func() {
		defer close(e.done)
		defer close(e.chunks)
		defer close(cancelWatch)

		var g errgroup.Group
		g.Go(func() error { return s.readStdout(stdout, e.chunks) })
		g.Go(func() error { return s.readStderr(stderr, stderrRing) })
		_ = g.Wait()

		waitErr := cmd.Wait()
		if timer != nil {
			timer.Stop()
		}

		outcome := Outcome{ExitCode: 0, TimedOut: e.timedOut.Load()}
		if waitErr != nil {
			outcome.ExitCode = -1
			if exitErr, ok := waitErr.(*exec.ExitError); ok {
				outcome.ExitCode = exitErr.ExitCode()
			} else {
				outcome.Err = waitErr
			}
		}
		if ctx.Err() != nil && outcome.Err == nil {
			outcome.Err = ctx.Err()
		}
		outcome.Stderr = stderrRing.Tail(s.stderrTail)

		s.logger.Info("process exited",
			zap.Int("exit_code", outcome.ExitCode),
			zap.Bool("timed_out", outcome.TimedOut),
			zap.Error(outcome.Err))

		e.outcome = outcome
	}()

	return e
}

// failEarly synthesizes an immediate failure outcome for a process that
// could not be constructed or started.
func (s *Supervisor) failEarly(e *Execution, err error) {
	s.logger.Warn("process spawn failed", zap.Error(err))
	e.outcome = Outcome{ExitCode: -1, Err: err}
	close(e.chunks)
	close(e.done)
}

// readStdout streams raw chunks from the process stdout. Chunks are
// copied because the read buffer is reused.
func (s *Supervisor) readStdout(r io.Reader, out chan<- []byte) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			out <- chunk
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// readStderr collects stderr lines into the diagnostics ring.
func (s *Supervisor) readStderr(r io.Reader, ring *OutputRing) error {
	lb := &LineBuffer{}
	buf := make([]byte, 8*1024)
	add := func(line string) {
		ring.Add(OutputLine{Timestamp: time.Now(), Stream: "stderr", Content: line})
	}
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range lb.Write(buf[:n]) {
				add(line)
			}
		}
		if err != nil {
			if line, ok := lb.Flush(); ok {
				add(line)
			}
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// terminate force-stops the process: graceful signal first, then a
// process-group kill after the grace period if it has not exited.
func (s *Supervisor) terminate(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := signalTerm(cmd.Process); err != nil {
		// Already gone or not signalable; escalate immediately.
		_ = killProcessGroup(pid)
		return
	}
	time.AfterFunc(s.killGrace, func() {
		// No-op if the process already exited; the group is gone.
		_ = killProcessGroup(pid)
	})
}
