// Package store persists room snapshots taken at phase boundaries. A
// crashed room actor restarts from the latest snapshot for its game
// code; only the most recent snapshot per room is kept.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("no snapshot for game code")

// Snapshot is one persisted room state.
type Snapshot struct {
	GameCode string          `json:"gameCode"`
	Round    int             `json:"round"`
	Phase    string          `json:"phase"`
	TakenAt  time.Time       `json:"takenAt"`
	State    json.RawMessage `json:"state"`
}

// SnapshotStore is the persistence surface the room layer consumes.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	LoadLatest(ctx context.Context, gameCode string) (Snapshot, error)
	Delete(ctx context.Context, gameCode string) error
	Close() error
}
