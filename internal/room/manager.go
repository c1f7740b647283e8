package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/auth"
	"github.com/warlockgg/warlock-server/internal/events"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrNoFreeCode   = errors.New("no free game code")
)

const codeAttempts = 64

// Manager owns the live room actors, keyed by game code. It creates
// rooms with fresh 4-digit codes and restarts any actor that crashes
// from its latest snapshot.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*Room

	ctx    context.Context
	deps   Deps
	logger *zap.Logger
	rng    *rand.Rand
}

func NewManager(ctx context.Context, deps Deps, seed int64) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Manager{
		rooms:  make(map[string]*Room),
		ctx:    ctx,
		deps:   deps,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Create starts a new room under a fresh game code. A non-empty
// passcode locks the room to holders of it.
func (m *Manager) Create(ctx context.Context, passcode string) (*Room, error) {
	hash, err := auth.HashPasscode(passcode)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	code, err := m.freeCodeLocked()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	// Reserve the code before the (blocking) actor construction.
	m.rooms[code] = nil
	m.mu.Unlock()

	r, err := New(ctx, m.ctx, code, hash, m.deps, m.handleCrash)
	if err != nil {
		m.mu.Lock()
		delete(m.rooms, code)
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	m.rooms[code] = r
	m.mu.Unlock()

	if m.deps.Metrics != nil {
		m.deps.Metrics.RoomsActive.Inc()
	}
	r.Bus().Emit(events.GameCreated, map[string]any{
		"gameCode": code,
		"private":  passcode != "",
	})
	m.logger.Info("room created", zap.String("game_code", code))
	return r, nil
}

// freeCodeLocked draws random 4-digit codes until one is unused.
func (m *Manager) freeCodeLocked() (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code := fmt.Sprintf("%04d", 1000+m.rng.Intn(9000))
		if _, taken := m.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", ErrNoFreeCode
}

// Get returns the live room for a game code.
func (m *Manager) Get(gameCode string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[gameCode]
	if !ok || r == nil {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, gameCode)
	}
	return r, nil
}

// Remove stops a room and frees its code.
func (m *Manager) Remove(gameCode string) {
	m.mu.Lock()
	r, ok := m.rooms[gameCode]
	delete(m.rooms, gameCode)
	m.mu.Unlock()
	if !ok || r == nil {
		return
	}
	r.Stop()
	if m.deps.Metrics != nil {
		m.deps.Metrics.RoomsActive.Dec()
	}
	m.logger.Info("room removed", zap.String("game_code", gameCode))
}

// Count returns how many rooms are live.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// handleCrash replaces a crashed actor with a fresh one restored from
// the latest snapshot. If restoration fails the code is freed so the
// players can at least start over.
func (m *Manager) handleCrash(gameCode string) {
	m.mu.Lock()
	old, ok := m.rooms[gameCode]
	m.mu.Unlock()
	if !ok {
		return
	}
	if old != nil {
		old.Stop()
	}

	m.logger.Warn("restarting crashed room", zap.String("game_code", gameCode))
	r, err := New(m.ctx, m.ctx, gameCode, "", m.deps, m.handleCrash)
	if err != nil {
		m.logger.Error("room restart failed",
			zap.String("game_code", gameCode),
			zap.Error(err))
		m.mu.Lock()
		delete(m.rooms, gameCode)
		m.mu.Unlock()
		if m.deps.Metrics != nil {
			m.deps.Metrics.RoomsActive.Dec()
		}
		return
	}

	m.mu.Lock()
	m.rooms[gameCode] = r
	m.mu.Unlock()
}

// Close stops every room.
func (m *Manager) Close() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		if r != nil {
			rooms = append(rooms, r)
		}
	}
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	for _, r := range rooms {
		r.Stop()
	}
}
