package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/JuniperScripture/internal/library"
	"github.com/FocuswithJustin/JuniperScripture/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxClientMessage = 512
	clientBuffer     = 256
)

// Message types sent to websocket clients.
const (
	MessageProgress     = "progress"
	MessageNotification = "notification"
	MessageSlides       = "slides"
	MessageService      = "service"
)

// Message is one event pushed to every connected client.
type Message struct {
	Type      string   `json:"type"`
	ImportID  string   `json:"import_id,omitempty"`
	Phase     string   `json:"phase,omitempty"`
	Percent   int      `json:"percent,omitempty"`
	Level     string   `json:"level,omitempty"`
	Message   string   `json:"message,omitempty"`
	Slides    []string `json:"slides,omitempty"`
	Reference string   `json:"reference,omitempty"`
	Text      string   `json:"text,omitempty"`
	Timestamp string   `json:"timestamp"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to websocket clients. Its methods match the library
// callbacks, so a Hub can be passed straight into library.Options.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}

	mu    sync.RWMutex
	count int
}

// NewHub creates a hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, clientBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			h.setCount()
			logging.WebSocketEvent("client_connected", len(h.clients))

		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
				logging.WebSocketEvent("client_disconnected", len(h.clients))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client.
					h.drop(c)
				}
			}
		}
	}
}

// drop must only be called from Run.
func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("websocket_marshal_failed", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logging.Warn("websocket_broadcast_dropped", "type", msg.Type)
	}
}

// ImportProgress broadcasts an import progress report.
func (h *Hub) ImportProgress(s library.ImportStatus) {
	h.Broadcast(Message{Type: MessageProgress, ImportID: s.ID, Phase: string(s.Phase), Percent: s.Percent})
}

// Notify broadcasts a notification.
func (h *Hub) Notify(n library.Notification) {
	h.Broadcast(Message{Type: MessageNotification, Level: string(n.Level), Message: n.Message})
}

// Output broadcasts slides for the presentation output.
func (h *Hub) Output(slides []string) {
	h.Broadcast(Message{Type: MessageSlides, Slides: slides})
}

// Service broadcasts a passage added to the service order.
func (h *Hub) Service(ref, text string) {
	h.Broadcast(Message{Type: MessageService, Reference: ref, Text: text})
}

// readPump discards client messages and keeps the read deadline fresh.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxClientMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("websocket_unexpected_close", "error", err)
			}
			return
		}
	}
}

// writePump sends queued messages, one websocket frame each, and pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(s.cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.SecurityEvent("websocket_upgrade_rejected", "api", "error", err, "origin", r.Header.Get("Origin"))
		return
	}

	c := &client{hub: s.hub, conn: conn, send: make(chan []byte, clientBuffer)}
	select {
	case s.hub.register <- c:
	case <-s.hub.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}
