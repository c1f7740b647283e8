package socket

import (
	"sync"

	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/observability"
)

// Hub tracks live clients by connection id, by seat, and by room, so
// the router can address a broadcast or a single player without touching
// connection internals.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]*Client            // connection id
	byGame   map[string]map[string]*Client // game code -> connection id
	byPlayer map[string]*Client            // game code + player id

	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewHub(logger *zap.Logger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[string]*Client),
		byGame:   make(map[string]map[string]*Client),
		byPlayer: make(map[string]*Client),
		logger:   logger,
		metrics:  metrics,
	}
}

func playerKey(gameCode, playerID string) string { return gameCode + "/" + playerID }

// Add registers a fresh connection.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ConnectedClients.Inc()
	}
}

// Remove drops a connection, returning the room binding it held.
func (h *Hub) Remove(c *Client) (gameCode, playerID string) {
	h.mu.Lock()
	defer func() {
		h.mu.Unlock()
		if h.metrics != nil {
			h.metrics.ConnectedClients.Dec()
		}
	}()

	delete(h.clients, c.ID)
	gameCode, playerID = c.gameCode, c.playerID
	if gameCode == "" {
		return
	}
	if conns := h.byGame[gameCode]; conns != nil {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(h.byGame, gameCode)
		}
	}
	// A reconnect may already have rebound the seat to a newer client.
	if h.byPlayer[playerKey(gameCode, playerID)] == c {
		delete(h.byPlayer, playerKey(gameCode, playerID))
	}
	return
}

// Bind attaches a client to a seat in a room. A previous connection for
// the same seat is superseded.
func (h *Hub) Bind(c *Client, gameCode, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.gameCode = gameCode
	c.playerID = playerID
	if h.byGame[gameCode] == nil {
		h.byGame[gameCode] = make(map[string]*Client)
	}
	h.byGame[gameCode][c.ID] = c
	h.byPlayer[playerKey(gameCode, playerID)] = c
}

// Broadcast sends msg to every client in a room.
func (h *Hub) Broadcast(gameCode string, msg Outbound) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.byGame[gameCode]))
	for _, c := range h.byGame[gameCode] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.Send(msg)
	}
}

// SendToPlayer sends msg to the seat's current connection, if any.
func (h *Hub) SendToPlayer(gameCode, playerID string, msg Outbound) {
	h.mu.Lock()
	c := h.byPlayer[playerKey(gameCode, playerID)]
	h.mu.Unlock()
	if c != nil {
		c.Send(msg)
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// RoomCount returns the number of connections bound to a room.
func (h *Hub) RoomCount(gameCode string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byGame[gameCode])
}
