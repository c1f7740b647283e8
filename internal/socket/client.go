// Package socket bridges rooms to websocket clients: one Client per
// connection with gorilla read/write pumps, a Hub tracking connections
// per room, and a Router translating between client messages and room
// operations / bus events.
package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The game is origin-agnostic; rooms are gated by code and passcode.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Inbound is the envelope for client-to-server messages.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is the envelope for server-to-client messages. GameCode and
// Timestamp are stamped by the router on every send.
type Outbound struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	GameCode  string         `json:"gameCode,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Client is one websocket connection. ID doubles as the transport
// connection id bound to a seat; playerID and gameCode are set once the
// client joins or resumes a room.
type Client struct {
	ID string

	conn    *websocket.Conn
	send    chan Outbound
	hub     *Hub
	limiter *rate.Limiter
	logger  *zap.Logger

	playerID string
	gameCode string
}

func newClient(conn *websocket.Conn, hub *Hub, perSecond float64, burst int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		ID:      uuid.NewString(),
		conn:    conn,
		send:    make(chan Outbound, sendBuffer),
		hub:     hub,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:  logger,
	}
}

// Send queues a message for the write pump. A client that cannot keep
// up has its message dropped rather than blocking the room.
func (c *Client) Send(msg Outbound) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("send buffer full, dropping message",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type))
	}
}

// allow reports whether the inbound rate limit admits another message.
func (c *Client) allow() bool { return c.limiter.Allow() }

// ServeWS upgrades an HTTP request and runs the connection until it
// drops.
func ServeWS(hub *Hub, router *Router, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		router.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := newClient(conn, hub, router.cfg.InboundPerSecond, router.cfg.InboundBurst, router.logger)
	hub.Add(client)

	go client.writePump()
	go client.readPump(router)
}

func (c *Client) readPump(router *Router) {
	defer func() {
		router.HandleDisconnect(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}
		if !c.allow() {
			c.Send(Outbound{
				Type:      "gameError",
				Payload:   map[string]any{"error": "rate limit exceeded"},
				Timestamp: time.Now().UTC(),
			})
			continue
		}
		router.HandleInbound(c, raw)
	}
}

func (c *Client) writePump() {
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
			if err := c.conn.WriteJSON(msg); err != nil {
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
