package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tracker-service/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Geolocation is the derived location pair attached to every notification.
// Nil fields serialize as null, which is the contract for observations that
// carry no fix.
type Geolocation struct {
	Lat *float64 `json:"Lat"`
	Lng *float64 `json:"Lng"`
}

// Record is one enriched observation as broadcast to subscribers: the raw
// observation fields plus the best-effort local-time rendering.
type Record struct {
	store.Observation
	DTLocal string `json:"DT_local,omitempty"`
	Zone    string `json:"timezone,omitempty"`
}

// Notification is the canonical fan-out payload. It exists only in flight;
// nothing persists it.
type Notification struct {
	OperationType string      `json:"operationType"`
	TrackerID     int64       `json:"tracker_id"`
	NewRecord     Record      `json:"new_record"`
	Geolocation   Geolocation `json:"geolocation"`
}

// Hub owns the set of live subscriber connections. The set is only ever
// touched under mu; delivery rides per-client buffered channels so one slow
// subscriber cannot stall the broadcast or the others.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// shutdown tears down the connection. The send channel is never closed;
// writePump exits via done, so a concurrent Broadcast can never hit a closed
// channel.
func (c *client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Cross-origin policy is enforced by the CORS layer in front.
				return true
			},
		},
		clients: map[*client]struct{}{},
	}
}

// ServeHTTP performs the subscriber handshake (websocket upgrade) and
// registers the connection. The connection lives until disconnect, send
// failure, or hub shutdown; after that a subscriber starts over from a fresh
// handshake.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 32),
		done: make(chan struct{}),
	}
	if !h.addClient(c) {
		_ = conn.Close()
		return
	}
	slog.Info("ws subscriber connected", "conn_id", c.id)

	go h.writePump(c)
	h.readPump(c)
}

// Broadcast delivers one notification to every currently registered
// subscriber. Delivery is best-effort at-most-once: a subscriber whose
// buffer is full or whose connection is dead is unregistered and the rest
// still get the message. Broadcast itself never fails.
func (h *Hub) Broadcast(n Notification) {
	b, err := json.Marshal(n)
	if err != nil {
		slog.Error("ws notification marshal failed", "error", err)
		return
	}
	h.BroadcastRaw(b)
}

// BroadcastRaw delivers a pre-encoded JSON payload with the same fan-out
// semantics as Broadcast. The route layer uses it for registration
// announcements, which carry a different shape than change notifications.
func (h *Hub) BroadcastRaw(b []byte) {
	// Snapshot under the mutex, deliver outside it. Registrations and
	// removals during the fan-out affect the next broadcast, not this one.
	h.mu.Lock()
	snapshot := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	for _, c := range snapshot {
		select {
		case c.send <- b:
		default:
			// Send buffer full; the subscriber is too slow to keep its
			// FIFO contract, so drop it.
			slog.Warn("ws subscriber send failed, dropping", "conn_id", c.id)
			h.removeClient(c)
		}
	}
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown disconnects every subscriber and refuses new registrations.
// Disconnection is terminal; clients re-register from scratch.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = map[*client]struct{}{}
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}
}

func (h *Hub) addClient(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// removeClient is idempotent: removing an absent subscriber is a no-op.
func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	c.shutdown()
	if ok {
		slog.Info("ws subscriber disconnected", "conn_id", c.id)
	}
}

func (h *Hub) readPump(c *client) {
	defer h.removeClient(c)
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	// Subscribers never send application messages; the read loop only
	// notices disconnects and pong traffic.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.removeClient(c)
				return
			}
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.removeClient(c)
				return
			}
		}
	}
}
