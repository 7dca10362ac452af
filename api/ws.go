/*
ws.go - Websocket hub for the live notification feed

PURPOSE:
  Pushes every published notification snapshot to connected clients as a
  notifications_update event. Each event carries the FULL snapshot, so
  clients replace their local list instead of appending - reconnects and
  duplicate deliveries are harmless.

DESIGN:
  Hub goroutine owns the client set. Clients register/unregister through
  channels; the hub subscribes to the NotificationBus and fans each
  snapshot out. A client that cannot keep up is dropped rather than
  allowed to block the hub.

WIRE FORMAT:
  {"event": "notifications_update", "data": [ ...NotificationDTO ]}

SEE ALSO:
  - stock/notify.go: NotificationBus and snapshot semantics
  - server.go: /ws route
*/
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brewkeep/stockroom/metrics"
	"github.com/brewkeep/stockroom/stock"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// feedEvent is the envelope every push uses.
type feedEvent struct {
	Event string            `json:"event"`
	Data  []NotificationDTO `json:"data"`
}

// =============================================================================
// HUB
// =============================================================================

// Hub fans notification snapshots out to websocket clients.
type Hub struct {
	Bus     *stock.NotificationBus
	Metrics *metrics.Collector

	upgrader   websocket.Upgrader
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
}

// NewHub creates a hub. Call Run in a goroutine before serving /ws.
func NewHub(bus *stock.NotificationBus, collector *metrics.Collector) *Hub {
	return &Hub{
		Bus:     bus,
		Metrics: collector,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Same trust model as the REST API: no auth yet.
				return true
			},
		},
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until Stop is called.
func (h *Hub) Run() {
	snapshots, cancel := h.Bus.Subscribe()
	defer cancel()

	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			if h.Metrics != nil {
				h.Metrics.ClientConnected()
			}
			// Replay the current snapshot so a fresh client starts
			// with the full picture.
			c.trySend(marshalEvent(h.Bus.Snapshot()))

		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				if h.Metrics != nil {
					h.Metrics.ClientDisconnected()
				}
			}

		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			payload := marshalEvent(snapshot)
			for c := range h.clients {
				if !c.trySend(payload) {
					delete(h.clients, c)
					close(c.send)
					if h.Metrics != nil {
						h.Metrics.ClientDisconnected()
					}
				}
			}

		case <-h.done:
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		}
	}
}

// Stop shuts the hub down and disconnects all clients.
func (h *Hub) Stop() {
	close(h.done)
}

// ServeWS upgrades the connection and attaches it to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, 4)}
	select {
	case h.register <- c:
	case <-h.done:
		// The hub is gone; refuse the connection instead of blocking.
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func marshalEvent(snapshot []stock.Notification) []byte {
	payload, err := json.Marshal(feedEvent{
		Event: "notifications_update",
		Data:  toNotificationDTOs(snapshot),
	})
	if err != nil {
		log.Printf("[WS] marshal failed: %v", err)
		return nil
	}
	return payload
}

// =============================================================================
// CLIENT
// =============================================================================

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// trySend queues a payload without blocking the hub. Returns false when
// the client's buffer is full, which marks it for disconnection.
func (c *wsClient) trySend(payload []byte) bool {
	if payload == nil {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// readPump discards inbound messages; the feed is one-way. It exists to
// process control frames and detect the close.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
