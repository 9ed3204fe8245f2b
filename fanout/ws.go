// Package fanout is the outbound half of the system described in
// spec.md §4.7: a WebSocket registry that broadcasts change events to live
// subscribers, and an outbound-webhook dispatcher that delivers the same
// events to registered URLs with HMAC-signed, retried POSTs. It is
// grounded on gorilla/websocket (vendored by rivine for its own API
// surface) for the socket layer, with connection-registry bookkeeping
// modeled on rivine's explorer subscriber-set pattern: a read-mostly map
// guarded by a mutex, broadcasting over a snapshot rather than holding the
// lock during I/O (spec.md §5's "WebSocket registry" resource note).
package fanout

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/convictiond/oracled/lifecycle"
	"github.com/convictiond/oracled/types"
)

const (
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// ServerMessage is the envelope every outbound WS frame uses, per
// spec.md §6's wire protocol (`{event, data, ts}`).
type ServerMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	Ts    int64       `json:"ts"`
}

type client struct {
	conn     *websocket.Conn
	key      string
	tier     types.Tier
	send     chan ServerMessage
	lastPong time.Time
	mu       sync.Mutex
}

// Hub is the live-connection registry plus broadcaster.
type Hub struct {
	upgrader  websocket.Upgrader
	maxPerKey int
	log       *logrus.Entry

	mu      sync.RWMutex
	clients map[*client]bool
	byKey   map[string]int
}

// NewHub builds a Hub accepting up to maxPerKey simultaneous connections
// for a given API key (spec.md §4.7's per-key connection cap, default 5).
func NewHub(maxPerKey int, checkOrigin func(*http.Request) bool, log *logrus.Entry) *Hub {
	return &Hub{
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: checkOrigin},
		maxPerKey: maxPerKey,
		log:       log,
		clients:   make(map[*client]bool),
		byKey:     make(map[string]int),
	}
}

// capError is returned by Upgrade when key already holds maxPerKey
// connections.
type capError struct{ key string }

func (e capError) Error() string { return "fanout: connection cap reached for key " + e.key }

// Upgrade accepts the WS handshake and registers the resulting connection
// under key/tier, starting its read pump and heartbeat participation. It
// blocks until the connection closes, so callers should invoke it from the
// request goroutine the Gateway already dedicates to this upgrade.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, key string, tier types.Tier) error {
	h.mu.Lock()
	if h.maxPerKey > 0 && h.byKey[key] >= h.maxPerKey {
		h.mu.Unlock()
		return capError{key: key}
	}
	h.byKey[key]++
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.mu.Lock()
		h.byKey[key]--
		h.mu.Unlock()
		return err
	}

	c := &client{conn: conn, key: key, tier: tier, send: make(chan ServerMessage, 32), lastPong: time.Now()}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()
		return nil
	})

	c.send <- ServerMessage{Event: "connected", Data: map[string]string{"tier": string(tier)}, Ts: time.Now().Unix()}

	done := make(chan struct{})
	go h.writePump(c, done)
	h.readPump(c)
	close(done)

	h.mu.Lock()
	delete(h.clients, c)
	h.byKey[key]--
	h.mu.Unlock()
	conn.Close()
	return nil
}

func (h *Hub) writePump(c *client, done <-chan struct{}) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readPump discards client frames other than the documented `{action:"ping"}`
// keepalive, which is answered with a `pong` event per spec.md §6.
func (h *Hub) readPump(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Action string `json:"action"`
		}
		if json.Unmarshal(data, &msg) == nil && msg.Action == "ping" {
			select {
			case c.send <- ServerMessage{Event: "pong", Data: map[string]int64{"ts": time.Now().Unix()}, Ts: time.Now().Unix()}:
			default:
			}
		}
	}
}

// Broadcast writes event/payload to every connected client.
func (h *Hub) Broadcast(event string, payload interface{}) {
	h.broadcastFiltered(event, payload, func(*client) bool { return true })
}

// BroadcastToTier writes only to clients whose tier rank is >= minTier's.
func (h *Hub) BroadcastToTier(event string, payload interface{}, minTier types.Tier) {
	minRank := minTier.Rank()
	h.broadcastFiltered(event, payload, func(c *client) bool { return c.tier.Rank() >= minRank })
}

func (h *Hub) broadcastFiltered(event string, payload interface{}, include func(*client) bool) {
	msg := ServerMessage{Event: event, Data: payload, Ts: time.Now().Unix()}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if include(c) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- msg:
		default:
			h.log.WithField("key", c.key).Warn("ws client send buffer full, dropping message")
		}
	}
}

// RunHeartbeat starts the shared ping ticker; connections silent past
// pongTimeout are closed and dropped, per spec.md §4.7.
func (h *Hub) RunHeartbeat(g *lifecycle.Group) {
	if err := g.Add(); err != nil {
		return
	}
	go func() {
		defer g.Done()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.pingAll()
			case <-g.StopChan():
				return
			}
		}
	}()
}

func (h *Hub) pingAll() {
	now := time.Now()
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.mu.Lock()
		stale := now.Sub(c.lastPong) > pongTimeout
		c.mu.Unlock()
		if stale {
			c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "pong timeout"), now.Add(writeTimeout))
			c.conn.Close()
			continue
		}
		c.conn.SetWriteDeadline(now.Add(writeTimeout))
		c.conn.WriteControl(websocket.PingMessage, nil, now.Add(writeTimeout))
	}
}

// ConnectionCount returns the current number of live connections, for the
// /k-metric/status endpoint.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
