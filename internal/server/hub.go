package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/raphaelgruber/forgebot/internal/orchestrator"
)

// Hub fans job lifecycle events out to websocket subscribers. It
// implements the orchestrator's event sink.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Handle upgrades the request and keeps the connection subscribed until
// the peer goes away.
func (h *Hub) Handle(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("websocket client connected", "clients", count)

	go h.drain(conn)
	return nil
}

// drain reads until the peer disconnects, then drops the client.
func (h *Hub) drain(conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		count := len(h.clients)
		h.mu.Unlock()
		conn.Close()
		h.logger.Info("websocket client disconnected", "clients", count)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish sends the event to every subscriber. Write failures drop the
// client on its next read.
func (h *Hub) Publish(event orchestrator.JobEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Warn("websocket write failed", "error", err)
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
