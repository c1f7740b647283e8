package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/auth"
	"github.com/warlockgg/warlock-server/internal/catalog"
	"github.com/warlockgg/warlock-server/internal/game"
	"github.com/warlockgg/warlock-server/internal/observability"
	"github.com/warlockgg/warlock-server/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	deps := Deps{
		Logger:    zap.NewNop(),
		Metrics:   observability.NewTestMetrics(),
		Config:    testConfig(),
		Catalog:   catalog.MustStatic(),
		Snapshots: store.NewMemory(),
		Sessions:  auth.NewSessions("test-secret", time.Hour),
	}
	m := NewManager(context.Background(), deps, 1)
	t.Cleanup(m.Close)
	return m
}

func TestManagerCreateAssignsUniqueCodes(t *testing.T) {
	m := newTestManager(t)

	codes := make(map[string]bool)
	for i := 0; i < 5; i++ {
		r, err := m.Create(context.Background(), "")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		code := r.GameCode
		if len(code) != 4 || code < "1000" || code > "9999" {
			t.Errorf("code %q outside 1000-9999", code)
		}
		if codes[code] {
			t.Errorf("duplicate code %q", code)
		}
		codes[code] = true

		got, err := m.Get(code)
		if err != nil || got != r {
			t.Errorf("Get(%s) = %v, %v", code, got, err)
		}
	}
	if m.Count() != 5 {
		t.Errorf("Count = %d, want 5", m.Count())
	}
}

func TestManagerGetUnknownCode(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Get("0000"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("error = %v, want ErrRoomNotFound", err)
	}
}

func TestManagerRemoveFreesCode(t *testing.T) {
	m := newTestManager(t)
	r, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.Remove(r.GameCode)
	if _, err := m.Get(r.GameCode); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("removed room still resolvable: %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d after remove, want 0", m.Count())
	}
}

func TestManagerCrashRestartRestoresFromSnapshot(t *testing.T) {
	m := newTestManager(t)
	r, err := m.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	code := r.GameCode

	ids, _ := seatWarriors(t, r, 4)
	if err := r.StartGame(ids[0]); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	m.handleCrash(code)

	revived, err := m.Get(code)
	if err != nil {
		t.Fatalf("Get after restart: %v", err)
	}
	if revived == r {
		t.Fatal("crashed actor was not replaced")
	}
	if revived.Phase() != game.PhaseAction || revived.Round() != 1 {
		t.Fatalf("revived phase=%s round=%d, want action/1", revived.Phase(), revived.Round())
	}
	if got := len(revived.Players()); got != 4 {
		t.Errorf("revived players = %d, want 4", got)
	}
}
