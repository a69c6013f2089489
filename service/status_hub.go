package service

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StatusEvent is pushed to stream subscribers whenever a flow's runtime
// state changes.
type StatusEvent struct {
	FlowID    string    `json:"flow_id"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// statusHub fans flow status events out to connected WebSocket clients.
// Slow clients drop events instead of blocking the broadcaster.
type statusHub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan StatusEvent
}

func newStatusHub(logger *slog.Logger) *statusHub {
	return &statusHub{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan StatusEvent),
	}
}

var statusUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The visual IDE runs on a separate origin during development.
	CheckOrigin: func(*http.Request) bool { return true },
}

// serve upgrades the request and streams events until the client
// disconnects.
func (h *statusHub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := statusUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	events := make(chan StatusEvent, 16)
	h.mu.Lock()
	h.clients[conn] = events
	h.mu.Unlock()

	h.logger.Debug("Status stream client connected", "remote", conn.RemoteAddr())

	go h.writeLoop(conn, events)
	h.readLoop(conn)
}

// writeLoop pushes events to one client.
func (h *statusHub) writeLoop(conn *websocket.Conn, events chan StatusEvent) {
	for event := range events {
		if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
			break
		}
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Debug("Status stream write failed", "error", err)
			break
		}
	}
	_ = conn.Close()
}

// readLoop discards inbound messages and detects disconnect.
func (h *statusHub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(conn)
}

func (h *statusHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if events, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(events)
	}
}

// broadcast delivers an event to every connected client. Full client
// buffers are skipped.
func (h *statusHub) broadcast(event StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, events := range h.clients {
		select {
		case events <- event:
		default:
			h.logger.Debug("Status stream client lagging, event dropped", "remote", conn.RemoteAddr())
		}
	}
}

// close disconnects all clients.
func (h *statusHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, events := range h.clients {
		delete(h.clients, conn)
		close(events)
		_ = conn.Close()
	}
}

// clientCount reports the number of connected stream clients.
func (h *statusHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
