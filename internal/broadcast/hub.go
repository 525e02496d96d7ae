// Package broadcast implements the real-time hub side of the Sink
// (spec.md §4.G): a websocket fan-out of JSON envelope messages, grounded
// on the teacher's Hub/Client goroutine pair (internal/broadcast/server.go)
// with the wire format switched from hand-rolled MsgPack to the spec's
// fixed {target, arguments:[payload]} JSON envelope.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"spyoptions/internal/contracts"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is the wire message every broadcast carries (spec.md §4.G /
// §6): {target, arguments: [payload]}.
type Envelope struct {
	Target    string `json:"target"`
	Arguments [1]any `json:"arguments"`
}

// Hub maintains connected clients and fans out JSON envelope messages.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Envelope
	history    *RingBuffer
	log        *slog.Logger
}

// NewHub builds a Hub backed by the given anomaly history buffer.
func NewHub(history *RingBuffer) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Envelope, 256),
		history:    history,
		log:        slog.With("component", "broadcast"),
	}
}

// Run drives the hub's event loop until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case c := <-h.register:
			h.clients[c] = true
			h.log.Info("client connected", "total", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.Info("client disconnected", "total", len(h.clients))
			}
		case env := <-h.broadcast:
			if a, ok := env.Arguments[0].(contracts.Anomaly); ok && h.history != nil {
				h.history.Add(a)
			}
			msg, err := json.Marshal(env)
			if err != nil {
				h.log.Error("marshal envelope failed", "error", err)
				continue
			}
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client: drop this tick rather than block the hub.
				}
			}
		}
	}
}

// Send publishes target/payload to every connected client. Non-blocking:
// if the hub's internal queue is full the message is dropped (the sink's
// bounded worker pool, not this channel, is the primary overflow point —
// see internal/sink).
func (h *Hub) Send(target string, payload any) bool {
	select {
	case h.broadcast <- Envelope{Target: target, Arguments: [1]any{payload}}:
		return true
	default:
		return false
	}
}

// ServeWS upgrades the request to a websocket, replays anomaly history,
// then registers the client for live broadcasts.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "error", err)
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}

	if h.history != nil {
		for _, a := range h.history.GetAll() {
			env := Envelope{Target: "anomalyDetected", Arguments: [1]any{a}}
			if msg, err := json.Marshal(env); err == nil {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					return
				}
			}
		}
	}

	h.register <- client
	go client.writePump()
	go client.readPump()
}

// Client is one connected websocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
