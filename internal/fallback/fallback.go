// Package fallback drives the OS keyboard-automation path used when
// headless execution is unavailable or fails. The automation script
// itself is opaque; this package only stages the prompt, invokes the
// script within a time bound, and reports the same result contract as
// headless execution.
package fallback

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot/internal/common/logger"
)

// Result mirrors the headless execution result shape.
type Result struct {
	Success   bool
	Message   string
	SessionID string
}

// Strategy is the automation-fallback contract: bounded time, never
// panics out, returns a result value for every failure mode.
type Strategy interface {
	Attempt(ctx context.Context, prompt, workDir string) Result
}

// Config holds script fallback settings.
type Config struct {
	// Script is the automation script path. Empty disables the fallback.
	Script string
	// Timeout bounds one attempt.
	Timeout time.Duration
	// UseClipboard stages the prompt on the system clipboard before the
	// script runs, so the script only has to paste and submit.
	UseClipboard bool
}

// Script invokes an OS automation script with the prompt and working
// directory in its environment.
type Script struct {
	cfg    Config
	logger *logger.Logger
}

// NewScript creates a script-based fallback strategy.
func NewScript(cfg Config, log *logger.Logger) *Script {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &Script{
		cfg:    cfg,
		logger: log.WithFields(zap.String("component", "automation-fallback")),
	}
}

// Attempt implements Strategy. Every failure mode becomes a Result value.
func (s *Script) Attempt(ctx context.Context, prompt, workDir string) (res Result) {
	// The automation script is external code; keep the no-panic contract
	// even if something below misbehaves.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("fallback attempt panicked", zap.Any("panic", r))
			res = Result{Message: fmt.Sprintf("automation fallback panicked: %v", r)}
		}
	}()

	if s.cfg.Script == "" {
		return Result{Message: "automation fallback not configured"}
	}

	if s.cfg.UseClipboard {
		if err := clipboard.WriteAll(prompt); err != nil {
			// The script can still read the prompt from its environment.
			s.logger.Warn("failed to stage prompt on clipboard", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.Script)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"TASKPILOT_PROMPT="+prompt,
		"TASKPILOT_WORKDIR="+workDir,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	s.logger.Info("invoking automation fallback",
		zap.String("script", s.cfg.Script),
		zap.String("workdir", workDir))

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{Message: fmt.Sprintf("automation fallback timed out after %s", s.cfg.Timeout)}
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 200 {
			detail = detail[len(detail)-200:]
		}
		if detail == "" {
			detail = err.Error()
		}
		return Result{Message: "automation fallback failed: " + detail}
	}

	return Result{Success: true, Message: "prompt delivered via automation"}
}
