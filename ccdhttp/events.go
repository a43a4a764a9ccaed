package ccdhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openpmd/ccd/session"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

// Hub fans series events out to websocket clients
type Hub struct {
	upgrader  websocket.Upgrader
	broadcast chan []byte

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
}

// NewHub returns a hub; call Run to start delivery
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 64),
		clients:   make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Publish queues an event for every client.  Events are dropped when the
// queue is full rather than blocking the writer.
func (h *Hub) Publish(ev session.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("encoding event: %v", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		logger.Warningf("event queue full, dropped %s event for %s", ev.Kind, ev.Name)
	}
}

// Run delivers queued events until ctx is done, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		case payload := <-h.broadcast:
			var stale []*websocket.Conn
			h.mu.Lock()
			for conn, writeMu := range h.clients {
				if err := write(conn, writeMu, websocket.TextMessage, payload); err != nil {
					stale = append(stale, conn)
				}
			}
			h.mu.Unlock()
			for _, conn := range stale {
				h.remove(conn)
			}
		}
	}
}

// Clients is the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
		logger.Debugf("event client disconnected, %d remain", len(h.clients))
	}
	h.mu.Unlock()
}

func write(conn *websocket.Conn, mu *sync.Mutex, kind int, payload []byte) error {
	mu.Lock()
	defer mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(kind, payload)
}

// ServeHTTP upgrades the request and streams events until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warningf("websocket upgrade: %v", err)
		return
	}
	conn.SetReadLimit(1 << 16)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	writeMu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = writeMu
	n := len(h.clients)
	h.mu.Unlock()
	logger.Debugf("event client connected, %d total", n)

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := write(conn, writeMu, websocket.PingMessage, nil); err != nil {
						conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer h.remove(conn)
		for {
			// clients only listen; reads service control frames
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
