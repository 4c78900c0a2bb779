package api

import (
	"time"

	"github.com/taskpilot/taskpilot/internal/orchestrator"
)

// CreateExecutionRequest is the POST /executions body.
type CreateExecutionRequest struct {
	Tool            string   `json:"tool" binding:"required"`
	Prompt          string   `json:"prompt" binding:"required"`
	WorkDir         string   `json:"work_dir"`
	ConversationKey string   `json:"conversation_key"`
	SessionID       string   `json:"session_id"`
	TimeoutSeconds  int      `json:"timeout_seconds"`
	AllowedTools    []string `json:"allowed_tools"`
}

// ToRequest converts the HTTP body into an orchestrator request.
func (r CreateExecutionRequest) ToRequest() orchestrator.Request {
	return orchestrator.Request{
		Prompt:          r.Prompt,
		WorkDir:         r.WorkDir,
		Tool:            r.Tool,
		ConversationKey: r.ConversationKey,
		SessionID:       r.SessionID,
		Timeout:         time.Duration(r.TimeoutSeconds) * time.Second,
		AllowedTools:    r.AllowedTools,
	}
}

// CreateExecutionResponse carries the ID of a submitted execution.
type CreateExecutionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
