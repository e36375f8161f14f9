package websocket

import (
	"context"
	"sync"

	"promochat/internal/pkg/logger"
)

// Handler receives every frame a client sends.
type Handler func(c *Client, frame []byte)

type Hub struct {
	// Registered clients by connection id.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	handler Handler

	// done is closed once Run returns.
	done chan struct{}

	// Dedicated Logger
	logger logger.ILogger
}

func NewHub(handler Handler, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]*Client),
		handler:    handler,
		done:       make(chan struct{}),
		logger:     log,
	}
}

// Run tracks connections until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"client_id": client.ID})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				client.close()
				h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"client_id": client.ID})
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				client.close()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Send queues a frame for one connection. Frames for unknown or saturated
// clients are dropped.
func (h *Hub) Send(clientID string, frame []byte) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if !client.Push(frame) {
		h.logger.Warn("Hub", "Client send buffer full, dropping frame", map[string]interface{}{"client_id": clientID})
		return false
	}
	return true
}

// Count reports connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.close()
	}
}

func (h *Hub) handle(c *Client, frame []byte) {
	if h.handler != nil {
		h.handler(c, frame)
	}
}
