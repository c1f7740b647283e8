// Package phase tracks the room lifecycle state machine and the
// serializable per-round bookkeeping: pending action records, the ready
// set, and queues that survive into the next round. The live command
// objects live in the processor; the controller keeps the durable record
// that snapshots and reconnect sync are built from.
package phase

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warlockgg/warlock-server/internal/eventbus"
	"github.com/warlockgg/warlock-server/internal/events"
	"github.com/warlockgg/warlock-server/internal/game"
	"github.com/warlockgg/warlock-server/internal/observability"
)

// PendingAction is the durable record of one submitted action.
type PendingAction struct {
	PlayerID       string    `json:"playerId"`
	ActionType     string    `json:"actionType"`
	TargetID       string    `json:"targetId,omitempty"`
	CommandID      string    `json:"commandId"`
	SubmissionTime time.Time `json:"submissionTime"`
}

// DisconnectEvent records a disconnect observed mid-round, replayed to
// clients when the round resolves.
type DisconnectEvent struct {
	PlayerID string    `json:"playerId"`
	At       time.Time `json:"at"`
}

// PassiveActivation records a passive racial or effect trigger queued for
// the next resolution, e.g. a Dwarf's stone armor notice.
type PassiveActivation struct {
	PlayerID string `json:"playerId"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail,omitempty"`
}

// Controller is the phase state machine for one room. All methods are
// called from the room actor; the mutex only guards snapshot reads from
// the transport side.
type Controller struct {
	mu sync.Mutex

	phase game.Phase
	round int

	pendingActions       []PendingAction
	pendingRacialActions []PendingAction
	readyPlayers         map[string]bool

	// These two queues survive resetForNewRound and drain at resolution.
	disconnects []DisconnectEvent
	passives    []PassiveActivation

	bus     *eventbus.Bus
	metrics *observability.Metrics
}

func NewController(bus *eventbus.Bus, metrics *observability.Metrics) *Controller {
	return &Controller{
		phase:        game.PhaseLobby,
		round:        0,
		readyPlayers: make(map[string]bool),
		bus:          bus,
		metrics:      metrics,
	}
}

// Phase returns the current phase.
func (c *Controller) Phase() game.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Round returns the current round number; zero in the lobby.
func (c *Controller) Round() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

// TransitionTo moves to the next phase. Illegal edges are a no-op: the
// room keeps running and a system.warning is emitted instead.
func (c *Controller) TransitionTo(to game.Phase) bool {
	c.mu.Lock()
	from := c.phase
	if !game.ValidTransition(from, to) {
		c.mu.Unlock()
		c.bus.Emit(events.SystemWarning, map[string]any{
			"kind": "invalid_phase_transition",
			"from": string(from),
			"to":   string(to),
		})
		return false
	}

	c.phase = to
	if to == game.PhaseAction {
		c.round++
	}
	round := c.round
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.PhaseTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
	c.bus.Emit(events.PhaseChanged, map[string]any{
		"oldPhase": string(from),
		"newPhase": string(to),
		"round":    round,
	})
	if to == game.PhaseAction {
		c.bus.Emit(events.ControllerRoundStarted, map[string]any{"round": round})
	}
	return true
}

// AddPendingAction records a submitted action. Only legal during the
// action phase.
func (c *Controller) AddPendingAction(a PendingAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != game.PhaseAction {
		return fmt.Errorf("pending action outside action phase (%s)", c.phase)
	}
	// A resubmission replaces the player's earlier record.
	for i, existing := range c.pendingActions {
		if existing.PlayerID == a.PlayerID {
			c.pendingActions[i] = a
			return nil
		}
	}
	c.pendingActions = append(c.pendingActions, a)
	return nil
}

// AddPendingRacialAction records a racial invocation alongside the
// player's main action.
func (c *Controller) AddPendingRacialAction(a PendingAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != game.PhaseAction {
		return fmt.Errorf("pending racial action outside action phase (%s)", c.phase)
	}
	c.pendingRacialActions = append(c.pendingRacialActions, a)
	return nil
}

// PendingActions returns a copy of the action records.
func (c *Controller) PendingActions() []PendingAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PendingAction, len(c.pendingActions))
	copy(out, c.pendingActions)
	return out
}

// HasPendingAction reports whether the player has an action recorded.
func (c *Controller) HasPendingAction(playerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.pendingActions {
		if a.PlayerID == playerID {
			return true
		}
	}
	return false
}

// RemovePendingActionsForPlayer drops the player's action and racial
// records, returning how many were removed.
func (c *Controller) RemovePendingActionsForPlayer(playerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	c.pendingActions, removed = removeFor(c.pendingActions, playerID, removed)
	c.pendingRacialActions, removed = removeFor(c.pendingRacialActions, playerID, removed)
	return removed
}

func removeFor(actions []PendingAction, playerID string, removed int) ([]PendingAction, int) {
	kept := actions[:0]
	for _, a := range actions {
		if a.PlayerID == playerID {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	return kept, removed
}

// UpdatePendingActionTargets rewrites records aimed at oldID, used when a
// player reconnects under a new id.
func (c *Controller) UpdatePendingActionTargets(oldID, newID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	updated := 0
	for i := range c.pendingActions {
		if c.pendingActions[i].TargetID == oldID {
			c.pendingActions[i].TargetID = newID
			updated++
		}
	}
	for i := range c.pendingRacialActions {
		if c.pendingRacialActions[i].TargetID == oldID {
			c.pendingRacialActions[i].TargetID = newID
			updated++
		}
	}
	return updated
}

// SetReady marks a player ready and reports whether ready players now
// form a strict majority of aliveCount.
func (c *Controller) SetReady(playerID string, aliveCount int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readyPlayers[playerID] = true
	return c.majorityLocked(aliveCount)
}

// ClearReady unmarks a player, used on disconnect.
func (c *Controller) ClearReady(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.readyPlayers, playerID)
}

// ReadyCount returns how many players are marked ready.
func (c *Controller) ReadyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.readyPlayers)
}

// MajorityReady reports whether ready players exceed half of aliveCount.
func (c *Controller) MajorityReady(aliveCount int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.majorityLocked(aliveCount)
}

func (c *Controller) majorityLocked(aliveCount int) bool {
	if aliveCount <= 0 {
		return false
	}
	return len(c.readyPlayers)*2 > aliveCount
}

// QueueDisconnect records a mid-round disconnect for replay at
// resolution.
func (c *Controller) QueueDisconnect(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects = append(c.disconnects, DisconnectEvent{PlayerID: playerID, At: time.Now().UTC()})
}

// DrainDisconnects returns and clears the queued disconnect events.
func (c *Controller) DrainDisconnects() []DisconnectEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.disconnects
	c.disconnects = nil
	return out
}

// QueuePassiveActivation records a passive trigger for the next
// resolution.
func (c *Controller) QueuePassiveActivation(a PassiveActivation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passives = append(c.passives, a)
}

// DrainPassiveActivations returns and clears the queued passives.
func (c *Controller) DrainPassiveActivations() []PassiveActivation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.passives
	c.passives = nil
	return out
}

// ResetForNewRound clears per-round state. The disconnect and passive
// queues are deliberately preserved: entries queued late in a round must
// surface in the next resolution, not vanish.
func (c *Controller) ResetForNewRound() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingActions = nil
	c.pendingRacialActions = nil
	c.readyPlayers = make(map[string]bool)
}

// Snapshot is the serialized controller state, embedded in the room's
// persisted snapshot.
type Snapshot struct {
	Phase                game.Phase          `json:"phase"`
	Round                int                 `json:"round"`
	PendingActions       []PendingAction     `json:"pendingActions,omitempty"`
	PendingRacialActions []PendingAction     `json:"pendingRacialActions,omitempty"`
	NextReady            []string            `json:"nextReady,omitempty"`
	Disconnects          []DisconnectEvent   `json:"pendingDisconnectEvents,omitempty"`
	Passives             []PassiveActivation `json:"pendingPassiveActivations,omitempty"`
}

// GetSnapshot captures the controller state without draining anything.
func (c *Controller) GetSnapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	ready := make([]string, 0, len(c.readyPlayers))
	for id := range c.readyPlayers {
		ready = append(ready, id)
	}
	sort.Strings(ready)
	return Snapshot{
		Phase:                c.phase,
		Round:                c.round,
		PendingActions:       append([]PendingAction(nil), c.pendingActions...),
		PendingRacialActions: append([]PendingAction(nil), c.pendingRacialActions...),
		NextReady:            ready,
		Disconnects:          append([]DisconnectEvent(nil), c.disconnects...),
		Passives:             append([]PassiveActivation(nil), c.passives...),
	}
}

// Restore replaces the controller state with a snapshot.
func (c *Controller) Restore(s Snapshot) error {
	switch s.Phase {
	case game.PhaseLobby, game.PhaseAction, game.PhaseResults:
	default:
		return fmt.Errorf("restore controller: unknown phase %q", s.Phase)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = s.Phase
	c.round = s.Round
	c.pendingActions = s.PendingActions
	c.pendingRacialActions = s.PendingRacialActions
	c.readyPlayers = make(map[string]bool, len(s.NextReady))
	for _, id := range s.NextReady {
		c.readyPlayers[id] = true
	}
	c.disconnects = s.Disconnects
	c.passives = s.Passives
	return nil
}

// ToJSON serializes the controller for persistence. Restoring the result
// with FromJSON yields an equivalent controller.
func (c *Controller) ToJSON() ([]byte, error) {
	return json.Marshal(c.GetSnapshot())
}

// FromJSON restores controller state from a ToJSON snapshot.
func (c *Controller) FromJSON(data []byte) error {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("restore controller: %w", err)
	}
	return c.Restore(s)
}
