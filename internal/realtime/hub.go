// Package realtime pushes document changes to websocket subscribers.
// Clients subscribe to topics ("events", "chat:general", "users", ...) and
// receive every Change published on them, the way live queries would.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/cineforum/internal/httpx"
	"github.com/ziadkadry99/cineforum/internal/logging"
)

// Change is one pushed update.
type Change struct {
	Topic string      `json:"topic"`
	Kind  string      `json:"kind"`
	Data  interface{} `json:"data,omitempty"`
	At    time.Time   `json:"at"`
}

// Publisher is what feature packages depend on to announce changes.
type Publisher interface {
	Publish(topic, kind string, data interface{})
}

type discard struct{}

func (discard) Publish(string, string, interface{}) {}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TopicAuthorizer reports whether the requester may follow topic. ctx is the
// upgrade request's context and carries the session user.
type TopicAuthorizer func(ctx context.Context, topic string) bool

// Hub fans changes out to subscribed clients.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]struct{}
	closed    bool
	authorize TopicAuthorizer
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	topics map[string]bool
	once   sync.Once
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Publish delivers a change to every client subscribed to topic. It never
// blocks: a client whose buffer is full is disconnected.
func (h *Hub) Publish(topic, kind string, data interface{}) {
	msg, err := json.Marshal(Change{Topic: topic, Kind: kind, Data: data, At: time.Now().UTC()})
	if err != nil {
		logging.Error().Err(err).Str("topic", topic).Msg("realtime: marshal change")
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if !c.subscribed(topic) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logging.Warn().Str("topic", topic).Msg("realtime: dropping slow client")
		h.remove(c)
	}
}

// Authorize installs the check applied to every topic a client asks for.
func (h *Hub) Authorize(fn TopicAuthorizer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authorize = fn
}

func (h *Hub) allowed(ctx context.Context, topic string) bool {
	h.mu.RLock()
	fn := h.authorize
	h.mu.RUnlock()
	return fn == nil || fn(ctx, topic)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.once.Do(func() { close(c.send) })
}

func (c *client) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[topic]
}

func (c *client) setTopic(topic string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.topics[topic] = true
	} else {
		delete(c.topics, topic)
	}
}

// clientMessage is what subscribers send to change their topic set.
type clientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Topic  string `json:"topic"`
}

// ServeWS upgrades the request and registers a client subscribed to the
// comma-separated topics query parameter.
// Every requested topic must pass the hub's authorizer, otherwise the
// upgrade is refused with 403.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	topics := make(map[string]bool)
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		if !h.allowed(r.Context(), t) {
			httpx.Error(w, http.StatusForbidden, "topic "+t+" is not available")
			return
		}
		topics[t] = true
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("realtime: websocket upgrade")
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		topics: topics,
	}

	if !h.add(c) {
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump(r.Context(), h)
}

func (c *client) readPump(ctx context.Context, h *Hub) {
	defer h.remove(c)

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug().Err(err).Msg("realtime: websocket read")
			}
			return
		}
		switch msg.Action {
		case "subscribe":
			if !h.allowed(ctx, msg.Topic) {
				logging.Debug().Str("topic", msg.Topic).Msg("realtime: subscription refused")
				continue
			}
			c.setTopic(msg.Topic, true)
		case "unsubscribe":
			c.setTopic(msg.Topic, false)
		}
	}
}

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
