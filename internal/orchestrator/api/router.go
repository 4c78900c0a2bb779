package api

import (
	"github.com/gin-gonic/gin"

	"github.com/taskpilot/taskpilot/internal/common/logger"
	"github.com/taskpilot/taskpilot/internal/orchestrator"
	"github.com/taskpilot/taskpilot/internal/orchestrator/streaming"
)

// SetupRoutes configures the orchestrator API routes
func SetupRoutes(router *gin.RouterGroup, runner *orchestrator.Runner, hub *streaming.Hub, log *logger.Logger) {
	handler := NewHandler(runner, log)
	wsHandler := streaming.NewWSHandler(hub, log)

	router.GET("/agents", handler.ListAgents)

	executions := router.Group("/executions")
	{
		executions.POST("", handler.CreateExecution)
		executions.GET("", handler.ListExecutions)
		executions.GET("/:id", handler.GetExecution)
		executions.GET("/:id/stream", wsHandler.StreamExecution)
	}
}
