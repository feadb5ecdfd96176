package panel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Notification is the envelope pushed to panel UI clients whenever the
// runtime state changes.
type Notification struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Notification types pushed over the panel WebSocket.
const (
	NotifySnapshot            = "snapshot"
	NotifyModuleLocked        = "module_locked"
	NotifyModuleUnlocked      = "module_unlocked"
	NotifyModuleConfig        = "module_config"
	NotifyModuleMode          = "module_mode"
	NotifyInteractionsChanged = "interactions_changed"
)

// Hub fans notifications out to connected WebSocket clients. Slow clients
// are disconnected rather than allowed to block the broadcast path.
type Hub struct {
	logger *slog.Logger

	clientsMu sync.RWMutex
	clients   map[*hubClient]struct{}

	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once

	upgrader websocket.Upgrader
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub ready to accept clients.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:    logger,
		clients:   make(map[*hubClient]struct{}),
		broadcast: make(chan []byte, 64),
		done:      make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The panel UI is served from arbitrary local origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run pumps broadcasts to clients until the context is canceled.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case msg := <-h.broadcast:
			h.clientsMu.RLock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Client is not draining; drop it
					go h.removeClient(client)
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// Broadcast queues a notification for all connected clients. It never
// blocks; when the queue is full the notification is dropped.
func (h *Hub) Broadcast(n Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("Failed to encode notification", "type", n.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("Notification queue full, dropping", "type", n.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a WebSocket client connection.
// Clients arriving after the hub has shut down are rejected; nothing
// would ever broadcast to them.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "hub is shut down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := &hubClient{
		conn: conn,
		send: make(chan []byte, 32),
	}

	h.clientsMu.Lock()
	h.clients[client] = struct{}{}
	h.clientsMu.Unlock()

	h.logger.Debug("WebSocket client connected", "remote", conn.RemoteAddr().String())

	go h.writePump(client)
	go h.readPump(client)
}

// Close shuts down the hub and disconnects all clients.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) removeClient(client *hubClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// writePump drains the client send queue and keeps the connection alive
// with pings.
func (h *Hub) writePump(client *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the panel protocol is push-only.
// Reading is still required to process control frames and detect closes.
func (h *Hub) readPump(client *hubClient) {
	defer func() {
		h.removeClient(client)
		_ = client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
