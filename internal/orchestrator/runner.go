package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot/internal/adapter"
	"github.com/taskpilot/taskpilot/internal/common/logger"
	"github.com/taskpilot/taskpilot/internal/events"
	"github.com/taskpilot/taskpilot/internal/events/bus"
)

// Execution status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Execution is the in-memory record of one submitted request. Records
// live for the orchestrator process lifetime only; nothing is persisted
// across restarts.
type Execution struct {
	ID         string                  `json:"id"`
	Request    Request                 `json:"request"`
	Status     string                  `json:"status"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
	SessionID  string                  `json:"session_id,omitempty"`
	Events     []adapter.ProgressEvent `json:"events"`
	Result     *Result                 `json:"result,omitempty"`
}

// Broadcaster pushes per-execution payloads to streaming subscribers.
type Broadcaster interface {
	Broadcast(executionID string, payload interface{})
}

// Runner submits requests asynchronously, keeps the execution registry
// the HTTP surface polls, and mirrors progress onto the event bus and
// the streaming hub.
type Runner struct {
	service *Service
	bus     bus.EventBus
	hub     Broadcaster
	logger  *logger.Logger

	mu         sync.RWMutex
	executions map[string]*Execution
}

// NewRunner creates a runner. Both bus and hub are optional.
func NewRunner(service *Service, eventBus bus.EventBus, hub Broadcaster, log *logger.Logger) *Runner {
	return &Runner{
		service:    service,
		bus:        eventBus,
		hub:        hub,
		logger:     log.WithFields(zap.String("component", "execution-runner")),
		executions: make(map[string]*Execution),
	}
}

// Service returns the underlying execution orchestrator.
func (r *Runner) Service() *Service {
	return r.service
}

// Start validates and submits a request, returning its execution ID
// immediately. The execution proceeds on its own goroutine; progress is
// observable via Get, the streaming hub, and the event bus.
func (r *Runner) Start(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	exec := &Execution{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
		Events:    []adapter.ProgressEvent{},
	}

	r.mu.Lock()
	r.executions[exec.ID] = exec
	r.mu.Unlock()

	r.publish(ctx, exec.ID, events.ExecutionStarted, map[string]interface{}{
		"tool":    req.Tool,
		"workdir": req.WorkDir,
	})

	go r.run(exec.ID, req)

	return exec.ID, nil
}

func (r *Runner) run(id string, req Request) {
	ctx := context.Background()

	cb := Callbacks{
		OnProgress: func(ev adapter.ProgressEvent) {
			r.mu.Lock()
			if exec, ok := r.executions[id]; ok {
				exec.Events = append(exec.Events, ev)
			}
			r.mu.Unlock()

			if r.hub != nil {
				r.hub.Broadcast(id, map[string]interface{}{
					"type":  "progress",
					"event": ev,
				})
			}
			r.publish(ctx, id, events.ExecutionProgress, map[string]interface{}{
				"kind":    ev.Kind,
				"message": ev.Message,
				"icon":    ev.Icon,
				"error":   ev.Err,
			})
		},
		OnSessionID: func(sessionID string) {
			r.mu.Lock()
			if exec, ok := r.executions[id]; ok {
				exec.SessionID = sessionID
			}
			r.mu.Unlock()

			if r.hub != nil {
				r.hub.Broadcast(id, map[string]interface{}{
					"type":       "session",
					"session_id": sessionID,
				})
			}
			r.publish(ctx, id, events.ExecutionSession, map[string]interface{}{
				"session_id": sessionID,
			})
		},
	}

	res, err := r.service.Execute(ctx, req, cb)
	if err != nil {
		// Validation already ran in Start; an error here means the
		// catalog and registry disagree about the tool set.
		r.logger.Error("execution rejected", zap.String("execution_id", id), zap.Error(err))
		res = Result{Success: false, Message: err.Error(), ExitCode: -1}
	}

	now := time.Now().UTC()
	r.mu.Lock()
	if exec, ok := r.executions[id]; ok {
		exec.Result = &res
		exec.FinishedAt = &now
		if res.Success {
			exec.Status = StatusCompleted
		} else {
			exec.Status = StatusFailed
		}
		if exec.SessionID == "" {
			exec.SessionID = res.SessionID
		}
	}
	r.mu.Unlock()

	if res.UsedFallback {
		r.publish(ctx, id, events.ExecutionFallback, map[string]interface{}{
			"success": res.Success,
		})
	}
	r.publish(ctx, id, events.ExecutionCompleted, map[string]interface{}{
		"success":       res.Success,
		"message":       res.Message,
		"exit_code":     res.ExitCode,
		"timed_out":     res.TimedOut,
		"used_fallback": res.UsedFallback,
	})
	if r.hub != nil {
		r.hub.Broadcast(id, map[string]interface{}{
			"type":   "result",
			"result": res,
		})
	}

	r.logger.Info("execution finished",
		zap.String("execution_id", id),
		zap.Bool("success", res.Success),
		zap.Bool("used_fallback", res.UsedFallback))
}

// Get returns a copy of one execution record.
func (r *Runner) Get(id string) (Execution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executions[id]
	if !ok {
		return Execution{}, false
	}
	return r.snapshot(exec), true
}

// List returns copies of all execution records, newest first.
func (r *Runner) List() []Execution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Execution, 0, len(r.executions))
	for _, exec := range r.executions {
		out = append(out, r.snapshot(exec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// snapshot copies a record so callers never see concurrent mutation.
// Callers must hold at least a read lock.
func (r *Runner) snapshot(exec *Execution) Execution {
	cp := *exec
	cp.Events = append([]adapter.ProgressEvent{}, exec.Events...)
	if exec.Result != nil {
		res := *exec.Result
		cp.Result = &res
	}
	return cp
}

func (r *Runner) publish(ctx context.Context, executionID, eventType string, data map[string]interface{}) {
	if r.bus == nil {
		return
	}
	data["execution_id"] = executionID
	event := bus.NewEvent(eventType, "orchestrator", data)
	if err := r.bus.Publish(ctx, events.Subject(executionID), event); err != nil {
		r.logger.Warn("failed to publish event",
			zap.String("execution_id", executionID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
