package api

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"pong-arena/internal/game"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // must be less than pongWait
	maxMessageSize = 512
	sendBufferSize = 64
)

// HubConfig controls how connections are admitted
type HubConfig struct {
	AllowSpectators     bool
	MaxConnections      int
	MaxConnectionsPerIP int
	IntentsPerSecond    float64
	IntentBurst         int
	Origins             *OriginChecker // nil accepts every origin
}

// DefaultHubConfig mirrors config.DefaultLimits
func DefaultHubConfig() HubConfig {
	return HubConfig{
		AllowSpectators:     true,
		MaxConnections:      500,
		MaxConnectionsPerIP: 10,
		IntentsPerSecond:    120,
		IntentBurst:         30,
	}
}

// wsClient is one open socket. Its id is the identity handed to the match.
type wsClient struct {
	id      string
	ip      string
	conn    *websocket.Conn
	codec   Codec
	send    chan []byte
	intents *rate.Limiter
	closed  bool // guarded by Hub.mu
}

// WebSocketHub is the adapter between sockets and the match: it maps
// connect, message and disconnect events to match operations and fans out
// snapshots to every open socket.
type WebSocketHub struct {
	match    *game.Match
	cfg      HubConfig
	upgrader websocket.Upgrader
	limiter  *WebSocketRateLimiter

	mu      sync.RWMutex
	clients map[string]*wsClient
}

// NewWebSocketHub creates a hub bound to match. Non-positive limits fall
// back to DefaultHubConfig.
func NewWebSocketHub(match *game.Match, cfg HubConfig) *WebSocketHub {
	def := DefaultHubConfig()
	if cfg.MaxConnectionsPerIP <= 0 {
		cfg.MaxConnectionsPerIP = def.MaxConnectionsPerIP
	}
	if cfg.IntentsPerSecond <= 0 {
		cfg.IntentsPerSecond = def.IntentsPerSecond
	}
	if cfg.IntentBurst <= 0 {
		cfg.IntentBurst = def.IntentBurst
	}

	h := &WebSocketHub{
		match:   match,
		cfg:     cfg,
		limiter: NewWebSocketRateLimiter(cfg.MaxConnectionsPerIP, cfg.MaxConnections),
		clients: make(map[string]*wsClient),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.Origins == nil || cfg.Origins.Check(r) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", r.Header.Get("Origin"))
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// HandleWebSocket upgrades the request and seats the new connection
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	codec, err := codecFor(r)
	if err != nil {
		RecordConnectionRejected("codec")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ip := GetClientIP(r)
	if reason := h.limiter.Allow(ip); reason != "" {
		log.Printf("⚠️ WebSocket connection rejected from %s: %s", ip, reason)
		RecordConnectionRejected(reason)
		status := http.StatusTooManyRequests
		if reason == "ws_total_limit" {
			status = http.StatusServiceUnavailable
		}
		writeError(w, "Too many connections", status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.limiter.Release(ip)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &wsClient{
		id:      uuid.NewString(),
		ip:      ip,
		conn:    conn,
		codec:   codec,
		send:    make(chan []byte, sendBufferSize),
		intents: rate.NewLimiter(rate.Limit(h.cfg.IntentsPerSecond), h.cfg.IntentBurst),
	}
	go h.writePump(c)

	// welcome and the first game-state are queued before the client can
	// receive tick broadcasts
	h.admit(c)
	h.register(c)
	go h.readPump(c)
}

// admit asks the match for a slot and tells the client the result. A
// rejected client that may not spectate has its send queue closed.
func (h *WebSocketHub) admit(c *wsClient) {
	slot, err := h.match.Join(c.id)
	h.sendTo(c, EventWelcome, Welcome{ID: c.id, Slot: int(slot)})

	if errors.Is(err, game.ErrMatchFull) {
		RecordMatchFull()
		h.sendTo(c, EventGameFull, nil)
		if !h.cfg.AllowSpectators {
			h.closeClient(c)
			return
		}
		log.Printf("👀 Spectator %s connected from %s", c.id, c.ip)
	}

	h.sendTo(c, EventGameState, h.match.Snapshot())
}

func (h *WebSocketHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("📱 Client %s connected from %s (%d total)", c.id, c.ip, count)
	UpdateWSConnections(count)
}

// unregister drops the client and frees its slot. It reports whether the
// client held a slot.
func (h *WebSocketHub) unregister(c *wsClient) bool {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.clients, c.id)
	h.closeLocked(c)
	count := len(h.clients)
	h.mu.Unlock()

	h.limiter.Release(c.ip)
	UpdateWSConnections(count)
	log.Printf("📱 Client %s disconnected (%d remaining)", c.id, count)

	return h.match.Leave(c.id) != game.SlotNone
}

// closeClient stops sending to c; writePump then sends a close frame
func (h *WebSocketHub) closeClient(c *wsClient) {
	h.mu.Lock()
	h.closeLocked(c)
	h.mu.Unlock()
}

func (h *WebSocketHub) closeLocked(c *wsClient) {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// sendTo queues one event for a single client
func (h *WebSocketHub) sendTo(c *wsClient, event string, data interface{}) {
	frame, err := c.codec.Encode(event, data)
	if err != nil {
		log.Printf("⚠️ Encode %s for %s: %v", event, c.codec.Name(), err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	h.enqueue(c, frame)
}

// enqueue never blocks; a full buffer drops the frame. Caller holds h.mu.
func (h *WebSocketHub) enqueue(c *wsClient, frame []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
		IncrementWSMessages()
	default:
		IncrementWSDropped()
	}
}

// Broadcast sends an event to every client, encoding once per codec
func (h *WebSocketHub) Broadcast(event string, data interface{}) {
	frames := make(map[string][]byte, 2)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		name := c.codec.Name()
		frame, ok := frames[name]
		if !ok {
			var err error
			frame, err = c.codec.Encode(event, data)
			if err != nil {
				log.Printf("⚠️ Encode %s for %s: %v", event, name, err)
				frame = nil
			}
			frames[name] = frame
		}
		if frame != nil {
			h.enqueue(c, frame)
		}
	}
}

// BroadcastSnapshot publishes a tick snapshot; it is safe to use as a
// game.TickListener
func (h *WebSocketHub) BroadcastSnapshot(res game.TickResult) {
	h.Broadcast(EventGameState, res.Snapshot)
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// LimiterStats reports the connection limiter counters
func (h *WebSocketHub) LimiterStats() map[string]interface{} {
	return map[string]interface{}{
		"reserved": h.limiter.Total(),
		"rejected": h.limiter.GetStats()["rejected"],
	}
}

// Close disconnects every client
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	for _, c := range h.clients {
		h.closeLocked(c)
	}
	h.mu.Unlock()
}

func (h *WebSocketHub) readPump(c *wsClient) {
	defer func() {
		if h.unregister(c) {
			h.Broadcast(EventPlayerDisconnected, c.id)
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("⚠️ WebSocket read error from %s: %v", c.id, err)
			}
			return
		}
		h.handleMessage(c, frame)
	}
}

// handleMessage maps a client frame to a match operation. Malformed
// frames and unknown events are ignored.
func (h *WebSocketHub) handleMessage(c *wsClient, frame []byte) {
	in, err := c.codec.Decode(frame)
	if err != nil {
		return
	}

	switch in.Event {
	case EventMovePaddle:
		if !c.intents.Allow() {
			RecordDroppedIntent()
			return
		}
		h.match.SetIntent(c.id, in.Position)
	case EventResetGame:
		if h.match.RequestReset(c.id) {
			h.Broadcast(EventGameState, h.match.Snapshot())
		}
	}
}

func (h *WebSocketHub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(c.codec.FrameType(), frame); err != nil {
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
