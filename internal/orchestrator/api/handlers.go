// Package api exposes the orchestrator's REST surface.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot/internal/common/logger"
	"github.com/taskpilot/taskpilot/internal/orchestrator"
)

// Handler contains HTTP handlers for the orchestrator API
type Handler struct {
	runner *orchestrator.Runner
	logger *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(runner *orchestrator.Runner, log *logger.Logger) *Handler {
	return &Handler{
		runner: runner,
		logger: log.WithFields(zap.String("component", "orchestrator-api")),
	}
}

// CreateExecution submits a prompt for asynchronous execution
// POST /api/v1/executions
func (h *Handler) CreateExecution(c *gin.Context) {
	var req CreateExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	id, err := h.runner.Start(c.Request.Context(), req.ToRequest())
	if err != nil {
		if errors.Is(err, orchestrator.ErrUnknownTool) || errors.Is(err, orchestrator.ErrEmptyPrompt) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("failed to start execution", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, CreateExecutionResponse{ID: id, Status: orchestrator.StatusRunning})
}

// GetExecution returns one execution record
// GET /api/v1/executions/:id
func (h *Handler) GetExecution(c *gin.Context) {
	exec, ok := h.runner.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: orchestrator.ErrUnknownExecution.Error()})
		return
	}
	c.JSON(http.StatusOK, exec)
}

// ListExecutions returns all execution records, newest first
// GET /api/v1/executions
func (h *Handler) ListExecutions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"executions": h.runner.List()})
}

// ListAgents returns per-backend availability
// GET /api/v1/agents
func (h *Handler) ListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.runner.Service().Catalog().Probe()})
}
