// Package httpapi exposes a read-only, JWT-authenticated view of a running
// or completed backtest: portfolio snapshots over REST and a websocket hub
// broadcasting live updates as the engine advances.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// EventType names the kind of streamed update.
type EventType string

// Event kinds the hub broadcasts.
const (
	EventBar      EventType = "bar"
	EventOrder    EventType = "order"
	EventFill     EventType = "fill"
	EventEquity   EventType = "equity"
	EventMargin   EventType = "margin_call"
	EventHeartbeat EventType = "heartbeat"
)

// Event is one message sent to every connected client.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Hub fans out Events to every connected websocket client.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Event
	register   chan *client
	unregister chan *client

	upgrader websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub constructs a Hub. Call Run in its own goroutine before serving
// websocket connections.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run is the hub's event loop; it owns all client bookkeeping and must run
// in exactly one goroutine for the lifetime of the Hub.
func (h *Hub) Run() {
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case ev := <-h.broadcast:
			h.fanOut(ev)
		case <-heartbeat.C:
			h.Broadcast(Event{Type: EventHeartbeat, Data: map[string]int{"clients": len(h.clients)}})
		}
	}
}

func (h *Hub) fanOut(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("httpapi: marshal event: %v", err)
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// Broadcast queues an event for delivery to every connected client.
// Non-blocking: a full internal buffer drops the event rather than
// stalling the caller (the engine's dispatcher worker).
func (h *Hub) Broadcast(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- ev:
	default:
		log.Printf("httpapi: broadcast buffer full, dropping %s event", ev.Type)
	}
}

// ServeWS upgrades the connection and registers a new client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("httpapi: websocket upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 256)}
	h.register <- c
	go c.writePump()
	go c.readPump(h)
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
