package store

import (
	"context"
	"sync"
)

// Memory is the in-process store used when no DSN is configured, and by
// tests. Latest-wins per game code, like the MySQL store.
type Memory struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewMemory() *Memory {
	return &Memory{snaps: make(map[string]Snapshot)}
}

func (m *Memory) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.GameCode] = snap
	return nil
}

func (m *Memory) LoadLatest(_ context.Context, gameCode string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[gameCode]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (m *Memory) Delete(_ context.Context, gameCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, gameCode)
	return nil
}

func (m *Memory) Close() error { return nil }
