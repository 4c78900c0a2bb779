// Package streaming handles WebSocket connections for real-time
// execution progress streaming.
package streaming

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot/internal/common/logger"
)

// Hub manages all WebSocket clients and routes per-execution payloads
// to the clients subscribed to them.
type Hub struct {
	clients map[*Client]bool

	// Clients by execution ID for efficient routing
	executionClients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	mu     sync.RWMutex
	logger *logger.Logger
}

type broadcastMessage struct {
	executionID string
	data        []byte
}

// NewHub creates a new WebSocket hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:          make(map[*Client]bool),
		executionClients: make(map[string]map[*Client]bool),
		register:         make(chan *Client),
		unregister:       make(chan *Client),
		broadcast:        make(chan *broadcastMessage, 256),
		logger:           log.WithFields(zap.String("component", "websocket_hub")),
	}
}

// Run starts the hub processing loop
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.executionClients = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("Client registered", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			h.dropClient(client)
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", zap.String("client_id", client.ID))

		case msg := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.executionClients[msg.executionID]))
			for client := range h.executionClients[msg.executionID] {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			for _, client := range clients {
				select {
				case client.send <- msg.data:
				default:
					// Client send buffer is full, drop the connection
					h.mu.Lock()
					h.dropClient(client)
					h.mu.Unlock()
				}
			}
		}
	}
}

// dropClient removes a client and its subscriptions. Callers must hold
// the write lock.
func (h *Hub) dropClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for executionID := range client.executionIDs {
		if clients, ok := h.executionClients[executionID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.executionClients, executionID)
			}
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast sends a payload to all clients subscribed to an execution.
// The payload is marshaled once, not per client.
func (h *Hub) Broadcast(executionID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast payload", zap.Error(err))
		return
	}
	h.broadcast <- &broadcastMessage{executionID: executionID, data: data}
}

// SubscribeClient subscribes a client to an execution's stream
func (h *Hub) SubscribeClient(client *Client, executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.executionClients[executionID]; !ok {
		h.executionClients[executionID] = make(map[*Client]bool)
	}
	h.executionClients[executionID][client] = true
	client.executionIDs[executionID] = true

	h.logger.Debug("Client subscribed to execution",
		zap.String("client_id", client.ID),
		zap.String("execution_id", executionID))
}

// UnsubscribeClient unsubscribes a client from an execution's stream
func (h *Hub) UnsubscribeClient(client *Client, executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.executionClients[executionID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.executionClients, executionID)
		}
	}
	delete(client.executionIDs, executionID)

	h.logger.Debug("Client unsubscribed from execution",
		zap.String("client_id", client.ID),
		zap.String("execution_id", executionID))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients subscribed to an execution
func (h *Hub) SubscriberCount(executionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.executionClients[executionID])
}
