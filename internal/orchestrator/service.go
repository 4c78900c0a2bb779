package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot/internal/adapter"
	"github.com/taskpilot/taskpilot/internal/agents"
	"github.com/taskpilot/taskpilot/internal/common/logger"
	"github.com/taskpilot/taskpilot/internal/common/tracing"
	"github.com/taskpilot/taskpilot/internal/fallback"
	"github.com/taskpilot/taskpilot/internal/process"
	"github.com/taskpilot/taskpilot/internal/session"
)

// DefaultTimeout bounds a headless execution when the request does not
// carry its own.
const DefaultTimeout = 5 * time.Minute

// Service executes prompts against agent CLIs. The session tracker is
// the only state shared across invocations; each execution owns its own
// line buffer, adapter instance and dispatch queue.
type Service struct {
	catalog    *agents.Catalog
	supervisor *process.Supervisor
	tracker    *session.Tracker
	fallback   fallback.Strategy
	logger     *logger.Logger

	defaultTimeout time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDefaultTimeout overrides the built-in 5 minute execution bound.
func WithDefaultTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.defaultTimeout = d
		}
	}
}

// NewService creates the execution orchestrator.
func NewService(
	catalog *agents.Catalog,
	supervisor *process.Supervisor,
	tracker *session.Tracker,
	fb fallback.Strategy,
	log *logger.Logger,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		catalog:        catalog,
		supervisor:     supervisor,
		tracker:        tracker,
		fallback:       fb,
		logger:         log.WithFields(zap.String("component", "orchestrator")),
		defaultTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tracker exposes the session continuity tracker.
func (s *Service) Tracker() *session.Tracker {
	return s.tracker
}

// Catalog exposes the backend catalog for availability listings.
func (s *Service) Catalog() *agents.Catalog {
	return s.catalog
}

// Execute runs one request to completion and returns its terminal
// Result. Progress and session notifications are delivered through cb
// in production order, and all of them strictly before Execute returns.
//
// An error is returned only for invalid requests; every execution
// failure (spawn, non-zero exit, timeout, fallback outcome) is a Result.
func (s *Service) Execute(ctx context.Context, req Request, cb Callbacks) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	spec, err := s.catalog.Get(req.Tool)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTool, req.Tool)
	}

	if req.WorkDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			req.WorkDir = cwd
		}
	}
	if req.Timeout <= 0 {
		req.Timeout = s.defaultTimeout
	}

	tracer := tracing.Tracer("orchestrator")
	ctx, span := tracer.Start(ctx, "orchestrator.execute")
	span.SetAttributes(
		attribute.String("tool", req.Tool),
		attribute.String("workdir", req.WorkDir),
	)
	defer span.End()

	log := s.logger.WithFields(
		zap.String("tool", req.Tool),
		zap.String("workdir", req.WorkDir),
	)

	if !spec.Available() {
		// Missing executable or credential is not an error: it routes
		// straight to the fallback without attempting a spawn.
		log.Info("headless execution unavailable, using fallback")
		span.SetAttributes(attribute.String("path", "fallback"))
		return s.runFallback(ctx, req, cb, "headless execution unavailable for "+req.Tool, ""), nil
	}

	res := s.runHeadless(ctx, req, spec, cb, log)
	if res.Success {
		span.SetAttributes(attribute.String("path", "headless"))
		return res, nil
	}

	// Any headless failure falls back, once. The headless diagnostic is
	// kept so callers can tell a fallback-after-failure from a clean
	// fallback; a timeout is never converted into success silently.
	log.Warn("headless execution failed, using fallback",
		zap.String("reason", res.Message),
		zap.Bool("timed_out", res.TimedOut))
	span.SetStatus(codes.Error, res.Message)
	span.SetAttributes(attribute.String("path", "headless+fallback"))

	fbRes := s.runFallback(ctx, req, cb, res.Message, res.SessionID)
	fbRes.TimedOut = res.TimedOut
	if fbRes.SessionID == "" {
		fbRes.SessionID = res.SessionID
	}
	fbRes.ExitCode = res.ExitCode
	return fbRes, nil
}

// runHeadless is the headless-attempt state: spawn the CLI, stream its
// stdout through a fresh line buffer and adapter, and convert the exit
// outcome into a Result.
func (s *Service) runHeadless(ctx context.Context, req Request, spec agents.Spec, cb Callbacks, log *logger.Logger) Result {
	ad, err := adapter.New(req.Tool)
	if err != nil {
		// Catalog and registry are keyed identically; reaching this
		// means a tool was cataloged without an adapter.
		return Result{ExitCode: -1, Message: err.Error()}
	}

	sessionID := req.SessionID
	if sessionID == "" && req.ConversationKey != "" {
		if state, ok := s.tracker.Get(req.ConversationKey); ok && state.Tool == req.Tool {
			sessionID = state.SessionID
		}
	}
	if sessionID != "" {
		log.Info("resuming session", zap.String("session_id", sessionID))
	}

	args := spec.BuildArgs(req.Prompt, sessionID, req.AllowedTools)

	disp := newDispatcher(cb)
	exec := s.supervisor.Run(ctx, process.Cmd{
		Path:      spec.Executable,
		Args:      args,
		Dir:       req.WorkDir,
		StdinMode: spec.StdinMode,
	}, req.Timeout)

	var (
		lb       process.LineBuffer
		captured string
		lastMsg  string
	)
	consume := func(line string) {
		ev, sid := ad.ParseLine(line)
		if sid != "" && captured == "" {
			// First capture wins; later occurrences are ignored. The
			// notification goes out immediately, not batched with the
			// terminal result.
			captured = sid
			if req.ConversationKey != "" {
				s.tracker.Capture(req.ConversationKey, req.Tool, sid)
			}
			disp.Session(sid)
		}
		if ev == nil {
			return
		}
		if ev.Message == lastMsg {
			return
		}
		lastMsg = ev.Message
		disp.Progress(*ev)
	}

	for chunk := range exec.Chunks() {
		for _, line := range lb.Write(chunk) {
			consume(line)
		}
	}
	if line, ok := lb.Flush(); ok {
		consume(line)
	}

	outcome := exec.Wait()

	// Everything queued must reach the caller before the terminal
	// result; Close blocks until the dispatch queue is drained.
	disp.Close()

	res := Result{
		SessionID: captured,
		ExitCode:  outcome.ExitCode,
		TimedOut:  outcome.TimedOut,
	}
	switch {
	case outcome.Success():
		res.Success = true
	case outcome.TimedOut:
		res.Message = fmt.Sprintf("%s timed out after %s", req.Tool, req.Timeout)
	case outcome.Err != nil:
		res.Message = outcome.Err.Error()
	default:
		res.Message = fmt.Sprintf("%s exited with code %d", req.Tool, outcome.ExitCode)
		if outcome.Stderr != "" {
			res.Message += ": " + outcome.Stderr
		}
	}
	return res
}

// runFallback delegates to the automation-fallback strategy. The
// strategy is a black box with the same result contract as headless
// execution; headlessReason is carried into the final message so the
// caller can see why the fallback ran. capturedSession is the id the
// headless attempt already reported, if any: first capture wins for the
// whole invocation, so a session from the strategy is not re-announced.
func (s *Service) runFallback(ctx context.Context, req Request, cb Callbacks, headlessReason, capturedSession string) Result {
	disp := newDispatcher(cb)
	disp.Progress(adapter.ProgressEvent{
		Kind:    adapter.KindInfo,
		Message: "Switching to automation fallback",
		Icon:    "info",
	})

	fbRes := s.fallback.Attempt(ctx, req.Prompt, req.WorkDir)

	if fbRes.SessionID != "" && capturedSession == "" {
		if req.ConversationKey != "" {
			s.tracker.Capture(req.ConversationKey, req.Tool, fbRes.SessionID)
		}
		disp.Session(fbRes.SessionID)
	}
	disp.Close()

	msg := fbRes.Message
	if headlessReason != "" && headlessReason != msg {
		if fbRes.Success {
			msg = fbRes.Message + " (headless: " + headlessReason + ")"
		} else {
			msg = headlessReason + "; " + msg
		}
	}
	sessionID := fbRes.SessionID
	if capturedSession != "" {
		sessionID = capturedSession
	}
	return Result{
		Success:      fbRes.Success,
		Message:      msg,
		SessionID:    sessionID,
		ExitCode:     -1,
		UsedFallback: true,
	}
}
