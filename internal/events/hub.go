// Package events streams marketplace notifications to websocket subscribers.
package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 32
)

// Hub fans marketplace events out to connected websocket clients. It
// implements the engine's emitter interface, so it can be registered next to
// the log and metrics observers.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	log      *logger.Logger
	closed   bool
}

type client struct {
	conn *websocket.Conn
	send chan market.Event
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeHTTP upgrades the request and streams events until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan market.Event, sendBufferSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

// Emit delivers one event to every connected client. Clients that cannot keep
// up are dropped rather than blocking the engine.
func (h *Hub) Emit(_ context.Context, event market.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			h.log.Warnf("dropping slow websocket client, buffered %d events", len(c.send))
			go h.remove(c)
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readPump discards inbound frames; its job is to notice the peer closing.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for event := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(event); err != nil {
			h.log.WithError(err).Debug("websocket write failed")
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
