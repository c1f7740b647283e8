package game

// Phase is the room lifecycle state. Transitions are forward-only around
// the round loop: lobby starts a game into action, action resolves into
// results, results starts the next round's action phase.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhaseAction  Phase = "action"
	PhaseResults Phase = "results"
)

// ValidTransition reports whether from -> to is a legal phase edge.
// Returning to the lobby is allowed from any in-game phase (endGame).
func ValidTransition(from, to Phase) bool {
	switch from {
	case PhaseLobby:
		return to == PhaseAction
	case PhaseAction:
		return to == PhaseResults || to == PhaseLobby
	case PhaseResults:
		return to == PhaseAction || to == PhaseLobby
	}
	return false
}
