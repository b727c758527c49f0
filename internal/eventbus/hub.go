package eventbus

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wonny/swingdag/internal/swing"
)

const (
	// Ping/Pong settings
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	clientBuffer = 64
)

// ClientObserver is notified as websocket subscribers come and go.
type ClientObserver interface {
	ClientConnected()
	ClientDisconnected()
}

// Hub fans event batches out to websocket subscribers of a session.
// A subscriber that cannot keep up is disconnected rather than slowing the
// session down.
// ⭐ SSOT: 웹소켓 구독자 관리는 여기서만
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger
	observer ClientObserver

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	session string
}

// NewHub creates a hub. observer may be nil.
func NewHub(log zerolog.Logger, observer ClientObserver) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:      log.With().Str("component", "eventbus.hub").Logger(),
		observer: observer,
		clients:  make(map[string]map[*client]struct{}),
	}
}

// Publish implements Sink. Each batch becomes one JSON array frame.
func (h *Hub) Publish(_ context.Context, sessionID string, events []swing.Event) error {
	if len(events) == 0 {
		return nil
	}

	h.mu.RLock()
	subs := h.clients[sessionID]
	if len(subs) == 0 {
		h.mu.RUnlock()
		return nil
	}
	frame, err := json.Marshal(events)
	if err != nil {
		h.mu.RUnlock()
		return err
	}

	// sends happen under the read lock so unregister cannot close a channel
	// mid-send
	var slow []*client
	for c := range subs {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn().Str("session", sessionID).Msg("slow websocket client dropped")
		h.unregister(c)
	}
	return nil
}

// Subscribers returns the number of clients following a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Serve upgrades the request and streams the session's events until the
// client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer), session: sessionID}
	h.register(c)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if h.clients[c.session] == nil {
		h.clients[c.session] = make(map[*client]struct{})
	}
	h.clients[c.session][c] = struct{}{}
	h.mu.Unlock()

	if h.observer != nil {
		h.observer.ClientConnected()
	}
	h.log.Debug().Str("session", c.session).Msg("websocket client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	subs, ok := h.clients[c.session]
	if ok {
		if _, ok = subs[c]; ok {
			delete(subs, c)
			close(c.send)
			if len(subs) == 0 {
				delete(h.clients, c.session)
			}
		}
	}
	h.mu.Unlock()

	if ok && h.observer != nil {
		h.observer.ClientDisconnected()
	}
}

// readLoop only services control frames; clients never send data.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
