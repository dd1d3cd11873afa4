package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultMaxConnections = 100

const writeTimeout = 5 * time.Second

// Client wraps a subscriber's WebSocket connection.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

func (c *Client) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub tracks the connections subscribed to generated reports.
type Hub struct {
	mu             sync.RWMutex
	clients        map[*Client]struct{}
	maxConnections int
	logger         *zap.Logger
}

// NewHub creates a Hub that accepts at most maxConnections subscribers.
func NewHub(maxConnections int, logger *zap.Logger) *Hub {
	if maxConnections <= 0 {
		maxConnections = defaultMaxConnections
	}
	return &Hub{
		clients:        make(map[*Client]struct{}),
		maxConnections: maxConnections,
		logger:         logger,
	}
}

// Register adds a subscriber connection.
// If the limit is reached, the new connection is closed and nil is returned.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.maxConnections {
		h.logger.Warn("Report subscriber limit reached, closing new connection",
			zap.Int("max_connections", h.maxConnections))
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many report subscribers"),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	h.clients[client] = struct{}{}
	return client
}

// Unregister removes a subscriber and closes its connection.
func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()

	_ = client.conn.Close()
}

// Broadcast sends msg to every subscriber as a text frame.
// Subscribers that fail to receive it are dropped.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(msg); err != nil {
			h.logger.Warn("Failed to push report to subscriber", zap.Error(err))
			h.Unregister(client)
		}
	}
}

// ActiveConnections returns the number of registered subscribers.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for client := range clients {
		_ = client.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second),
		)
		_ = client.conn.Close()
	}
}
