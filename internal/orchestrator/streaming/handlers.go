package streaming

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot/internal/common/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard is served from another origin in development.
		return true
	},
}

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub    *Hub
	logger *logger.Logger
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(hub *Hub, log *logger.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		logger: log.WithFields(zap.String("component", "ws_handler")),
	}
}

// StreamExecution handles the WebSocket connection for one execution
// WS /api/v1/executions/:id/stream
func (h *WSHandler) StreamExecution(c *gin.Context) {
	executionID := c.Param("id")
	if executionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "MISSING_EXECUTION_ID",
				"message": "Execution ID is required",
			},
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection",
			zap.String("execution_id", executionID),
			zap.Error(err),
		)
		return
	}

	clientID := uuid.New().String()
	h.logger.Info("WebSocket connection established",
		zap.String("client_id", clientID),
		zap.String("execution_id", executionID),
	)

	client := NewClient(clientID, conn, h.hub, h.logger)
	h.hub.Register(client)
	h.hub.SubscribeClient(client, executionID)

	go client.WritePump()
	go client.ReadPump()
}
