package websocket

import (
	"sync"

	"github.com/dreschagin/pipeline-analytics/internal/application/dto"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"
)

// Hub manages WebSocket clients and fans updates out to them.
// Implements port.RealtimePublisher.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Broadcast channel for updates
	broadcast chan *dto.RealtimeUpdate

	// Client registration channel
	register chan *Client

	// Client removal channel
	unregister chan *Client

	// Guards the clients map
	mu sync.RWMutex

	logger *logger.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *dto.RealtimeUpdate, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run starts the hub loop (must run in its own goroutine)
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("Client registered", "total_clients", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", "total_clients", h.ClientCount())

		case update := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- Message{Type: update.Type, Data: update}:
					// Delivered
				default:
					// Client channel is full, drop the connection
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client channel full, disconnected")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast queues an update for all clients (implements port.RealtimePublisher).
// Updates are dropped when the hub is saturated rather than blocking analysis.
func (h *Hub) Broadcast(update *dto.RealtimeUpdate) {
	select {
	case h.broadcast <- update:
		// Queued
	default:
		h.logger.Warn("Broadcast channel full, dropping update", "type", update.Type)
	}
}

// ClientCount returns the number of connected clients (implements port.RealtimePublisher)
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Message is the envelope sent to clients
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
