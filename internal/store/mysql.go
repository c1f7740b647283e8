package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const schema = `
CREATE TABLE IF NOT EXISTS room_snapshots (
	game_code VARCHAR(8)   NOT NULL PRIMARY KEY,
	round     INT          NOT NULL,
	phase     VARCHAR(16)  NOT NULL,
	taken_at  TIMESTAMP(3) NOT NULL,
	state     JSON         NOT NULL
)`

// MySQL persists snapshots in a single latest-wins table keyed by game
// code.
type MySQL struct {
	db *sql.DB
}

// OpenMySQL connects, verifies the connection and ensures the schema.
func OpenMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &MySQL{db: db}, nil
}

func (s *MySQL) Save(ctx context.Context, snap Snapshot) error {
	const q = `
INSERT INTO room_snapshots (game_code, round, phase, taken_at, state)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
	round = VALUES(round), phase = VALUES(phase),
	taken_at = VALUES(taken_at), state = VALUES(state)`
	_, err := s.db.ExecContext(ctx, q, snap.GameCode, snap.Round, snap.Phase, snap.TakenAt, []byte(snap.State))
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.GameCode, err)
	}
	return nil
}

func (s *MySQL) LoadLatest(ctx context.Context, gameCode string) (Snapshot, error) {
	const q = `SELECT round, phase, taken_at, state FROM room_snapshots WHERE game_code = ?`
	snap := Snapshot{GameCode: gameCode}
	var state []byte
	err := s.db.QueryRowContext(ctx, q, gameCode).Scan(&snap.Round, &snap.Phase, &snap.TakenAt, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot %s: %w", gameCode, err)
	}
	snap.State = state
	return snap, nil
}

func (s *MySQL) Delete(ctx context.Context, gameCode string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM room_snapshots WHERE game_code = ?`, gameCode)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", gameCode, err)
	}
	return nil
}

func (s *MySQL) Close() error { return s.db.Close() }
