package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/healthwatch/healthwatch/pkg/types"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// All origins are accepted; restrict at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub is the process-wide publish point for metrics and alert events.
// Safe for concurrent use.
type Hub struct {
	now func() time.Time

	mu          sync.Mutex
	clients     map[*client]struct{}
	subs        map[int]chan Message
	nextSub     int
	lastMetrics []byte
	closed      bool
}

// client represents one connected WebSocket client.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{
		now:     time.Now,
		clients: make(map[*client]struct{}),
		subs:    make(map[int]chan Message),
	}
}

// Publish sends an event to every client and subscriber without blocking.
func (h *Hub) Publish(event string, data any) {
	msg := Message{Event: event, Data: data, Timestamp: h.now().UTC()}
	raw, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("ws: marshal message failed", "event", event, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if event == EventMetrics {
		h.lastMetrics = raw
	}
	for c := range h.clients {
		select {
		case c.send <- raw:
		default:
			// Outgoing buffer full; disconnect the client.
			h.removeLocked(c)
			slog.Debug("ws: dropped slow client")
		}
	}
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// PublishMetrics publishes the per-tick metrics summary of s.
func (h *Hub) PublishMetrics(s types.Snapshot) {
	h.Publish(EventMetrics, metricsData(s))
}

// PublishAlert publishes one alert transition.
func (h *Hub) PublishAlert(tr types.Transition) {
	h.Publish(EventAlert, AlertData{Kind: tr.Kind, Alert: tr.Alert})
}

// Subscribe registers an in-process listener with a buffer of size buf.
// The returned cancel func unregisters it and closes the channel.
func (h *Hub) Subscribe(buf int) (<-chan Message, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Message, buf)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
		})
	}
}

// Run blocks until ctx is cancelled, then closes all connections and
// subscriber channels.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// The latest metrics message is sent immediately on connect. Blocks until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	if !h.register(c) {
		conn.Close()
		return
	}
	defer h.unregister(c)

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Subscribers returns the number of in-process subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.lastMetrics != nil {
		c.send <- h.lastMetrics
	}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				// Channel closed: hub shut down or client removed.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames to process control messages (pong, close) and detect
// disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
