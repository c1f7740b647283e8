package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/events"
	"github.com/warlockgg/warlock-server/internal/game"
	"github.com/warlockgg/warlock-server/internal/phase"
	"github.com/warlockgg/warlock-server/internal/store"
)

const snapshotWriteTimeout = 5 * time.Second

// roomSnapshot is the persisted room state, written at phase boundaries
// and read back on a warm restart. Player JSON hides the warlock flag
// and connection id, so roles persist in their own list and connections
// are re-bound on reconnect.
type roomSnapshot struct {
	GameCode     string                  `json:"gameCode"`
	Phase        game.Phase              `json:"phase"`
	Round        int                     `json:"round"`
	Players      map[string]*game.Player `json:"players"`
	Warlocks     []string                `json:"warlocks,omitempty"`
	Monster      *game.Monster           `json:"monster,omitempty"`
	HostID       string                  `json:"hostId,omitempty"`
	PasscodeHash string                  `json:"passcodeHash,omitempty"`
	Winner       string                  `json:"winner,omitempty"`

	PendingActions            []phase.PendingAction     `json:"pendingActions,omitempty"`
	PendingRacialActions      []phase.PendingAction     `json:"pendingRacialActions,omitempty"`
	NextReady                 []string                  `json:"nextReady,omitempty"`
	PendingDisconnectEvents   []phase.DisconnectEvent   `json:"pendingDisconnectEvents,omitempty"`
	PendingPassiveActivations []phase.PassiveActivation `json:"pendingPassiveActivations,omitempty"`
}

// buildSnapshot captures the room. Actor goroutine only.
func (r *Room) buildSnapshot() roomSnapshot {
	ctrl := r.controller.GetSnapshot()

	var warlocks []string
	for id, p := range r.players {
		if p.IsWarlock {
			warlocks = append(warlocks, id)
		}
	}
	sort.Strings(warlocks)

	return roomSnapshot{
		GameCode:     r.GameCode,
		Phase:        ctrl.Phase,
		Round:        ctrl.Round,
		Players:      r.players,
		Warlocks:     warlocks,
		Monster:      r.monster,
		HostID:       r.hostID,
		PasscodeHash: r.passcodeHash,
		Winner:       r.winner,

		PendingActions:            ctrl.PendingActions,
		PendingRacialActions:      ctrl.PendingRacialActions,
		NextReady:                 ctrl.NextReady,
		PendingDisconnectEvents:   ctrl.Disconnects,
		PendingPassiveActivations: ctrl.Passives,
	}
}

// saveSnapshot persists the current room state. Failures are logged and
// swallowed: losing a snapshot degrades crash recovery, not the game.
func (r *Room) saveSnapshot() {
	if r.snapshots == nil {
		return
	}
	snap := r.buildSnapshot()
	state, err := json.Marshal(snap)
	if err != nil {
		r.logger.Error("marshal snapshot failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotWriteTimeout)
	defer cancel()
	err = r.snapshots.Save(ctx, store.Snapshot{
		GameCode: r.GameCode,
		Round:    snap.Round,
		Phase:    string(snap.Phase),
		TakenAt:  time.Now().UTC(),
		State:    state,
	})
	if err != nil {
		r.logger.Error("save snapshot failed", zap.Error(err))
		return
	}
	if r.metrics != nil {
		r.metrics.SnapshotWrites.Inc()
	}
	r.bus.Emit(events.ControllerSnapshot, map[string]any{
		"round": snap.Round,
		"phase": string(snap.Phase),
	})
}

// restoreSnapshot rebuilds room state from persisted bytes.
func (r *Room) restoreSnapshot(state json.RawMessage) error {
	var snap roomSnapshot
	if err := json.Unmarshal(state, &snap); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}

	players := snap.Players
	if players == nil {
		players = make(map[string]*game.Player)
	}
	for _, p := range players {
		if p.AbilityCooldowns == nil {
			p.AbilityCooldowns = make(map[string]int)
		}
	}
	for _, id := range snap.Warlocks {
		if p, ok := players[id]; ok {
			p.IsWarlock = true
		}
	}

	r.players = players
	r.monster = snap.Monster
	r.hostID = snap.HostID
	r.winner = snap.Winner
	if snap.PasscodeHash != "" {
		r.passcodeHash = snap.PasscodeHash
	}

	return r.controller.Restore(phase.Snapshot{
		Phase:                snap.Phase,
		Round:                snap.Round,
		PendingActions:       snap.PendingActions,
		PendingRacialActions: snap.PendingRacialActions,
		NextReady:            snap.NextReady,
		Disconnects:          snap.PendingDisconnectEvents,
		Passives:             snap.PendingPassiveActivations,
	})
}

// PublicPlayer is the scrubbed per-player view sent to clients. The
// warlock flag only appears once the player has been revealed.
type PublicPlayer struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Race               string              `json:"race,omitempty"`
	Class              string              `json:"class,omitempty"`
	HP                 int                 `json:"hp"`
	MaxHP              int                 `json:"maxHp"`
	IsAlive            bool                `json:"isAlive"`
	IsRevealed         bool                `json:"isRevealed"`
	IsWarlock          bool                `json:"isWarlock,omitempty"`
	StatusEffects      []game.StatusEffect `json:"statusEffects,omitempty"`
	HasSubmittedAction bool                `json:"hasSubmittedAction"`
	IsReady            bool                `json:"isReady"`
	Connected          bool                `json:"connected"`
}

// ClientState is the full sync payload replayed to a reconnecting
// client: everything it needs to redraw, scrubbed of other players'
// hidden roles.
type ClientState struct {
	GameCode  string         `json:"gameCode"`
	Phase     game.Phase     `json:"phase"`
	Round     int            `json:"round"`
	PlayerID  string         `json:"playerId"`
	You       *game.Player   `json:"you"`
	IsWarlock bool           `json:"isWarlock"`
	Players   []PublicPlayer `json:"players"`
	Monster   *game.Monster  `json:"monster,omitempty"`
	HostID    string         `json:"hostId,omitempty"`
	Winner    string         `json:"winner,omitempty"`

	PendingAction *phase.PendingAction `json:"pendingAction,omitempty"`
	NextReady     []string             `json:"nextReady,omitempty"`

	UnlockedAbilities []string       `json:"unlockedAbilities,omitempty"`
	AbilityCooldowns  map[string]int `json:"abilityCooldowns,omitempty"`
	RacialUsesLeft    int            `json:"racialUsesLeft"`
}

// clientState builds the sync payload for one player. Actor goroutine
// only.
func (r *Room) clientState(playerID string) *ClientState {
	ctrl := r.controller.GetSnapshot()

	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	public := make([]PublicPlayer, 0, len(ids))
	for _, id := range ids {
		p := r.players[id]
		pub := PublicPlayer{
			ID:                 p.ID,
			Name:               p.Name,
			Race:               p.Race,
			Class:              p.Class,
			HP:                 p.HP,
			MaxHP:              p.MaxHP,
			IsAlive:            p.IsAlive,
			IsRevealed:         p.IsRevealed,
			StatusEffects:      append([]game.StatusEffect(nil), p.StatusEffects...),
			HasSubmittedAction: p.HasSubmittedAction,
			IsReady:            p.IsReady,
			Connected:          p.ConnectionID != "",
		}
		if p.IsRevealed {
			pub.IsWarlock = p.IsWarlock
		}
		public = append(public, pub)
	}

	state := &ClientState{
		GameCode:  r.GameCode,
		Phase:     ctrl.Phase,
		Round:     ctrl.Round,
		PlayerID:  playerID,
		Players:   public,
		Monster:   r.monster,
		HostID:    r.hostID,
		Winner:    r.winner,
		NextReady: ctrl.NextReady,
	}

	you, ok := r.players[playerID]
	if !ok {
		return state
	}
	clone := *you
	state.You = &clone
	state.IsWarlock = you.IsWarlock
	state.UnlockedAbilities = append([]string(nil), you.UnlockedAbilities...)
	state.AbilityCooldowns = make(map[string]int, len(you.AbilityCooldowns))
	for k, v := range you.AbilityCooldowns {
		state.AbilityCooldowns[k] = v
	}
	state.RacialUsesLeft = you.RacialUsesLeft

	for _, a := range ctrl.PendingActions {
		if a.PlayerID == playerID {
			pending := a
			state.PendingAction = &pending
			break
		}
	}
	return state
}

// State returns the sync payload for playerID, for transport use.
func (r *Room) State(playerID string) *ClientState {
	var state *ClientState
	_ = r.do(func() { state = r.clientState(playerID) })
	return state
}
