// Package ws broadcasts committed market pricing snapshots to WebSocket
// subscribers so open clients see price moves without polling.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"opinion-market/internal/metrics"
	"opinion-market/internal/services"
)

// Hub manages WebSocket connections and fans out pricing updates to every
// connected client.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewHub creates a new hub. Run must be started in a goroutine before any
// client connects.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run is the hub's event loop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			metrics.WebSocketClients.Inc()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				metrics.WebSocketClients.Dec()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
					metrics.WebSocketClients.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastPricing implements services.PriceBroadcaster. Messages are
// dropped when the buffer is full rather than blocking a committing trade.
func (h *Hub) BroadcastPricing(p services.MarketPricing) {
	msg := struct {
		Type string                 `json:"type"`
		Data services.MarketPricing `json:"data"`
	}{Type: "eventUpdated", Data: p}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("ws: failed to marshal pricing update: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Println("ws: broadcast buffer full, dropping pricing update")
	}
}

// Serve upgrades an HTTP request to a WebSocket subscription. The read loop
// only watches for the client closing the connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	h.register <- conn

	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
