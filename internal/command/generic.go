package command

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/warlockgg/warlock-server/internal/events"
	"github.com/warlockgg/warlock-server/internal/game"
)

// GenericKind names the non-ability player actions.
type GenericKind string

const (
	KindChat     GenericKind = "chat"
	KindReady    GenericKind = "ready"
	KindNotReady GenericKind = "not_ready"
	KindSpectate GenericKind = "spectate"
)

// GenericCommand covers chat, ready toggles and spectate requests. These
// run immediately on submission instead of queuing for resolution, and
// dead players may use all of them.
type GenericCommand struct {
	base
	kind    GenericKind
	message string
}

func NewGenericCommand(playerID string, kind GenericKind, message string) *GenericCommand {
	return &GenericCommand{
		base:    newBase(uuid.NewString(), playerID, string(kind), 0),
		kind:    kind,
		message: message,
	}
}

func (c *GenericCommand) Validate(ctx *Context) error {
	if _, ok := ctx.Room.Players[c.playerID]; !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, c.playerID)
	}
	switch c.kind {
	case KindChat:
		if c.message == "" {
			return fmt.Errorf("%w: empty chat message", ErrPrereqNotMet)
		}
	case KindReady, KindNotReady:
		// Ready is a results-phase signal; in the lobby it marks the seat
		// willing to start.
		if ctx.Phase == game.PhaseAction {
			return fmt.Errorf("%w: %s", ErrWrongPhase, ctx.Phase)
		}
	case KindSpectate:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrPrereqNotMet, c.kind)
	}
	return nil
}

func (c *GenericCommand) Execute(ctx *Context) error {
	player := ctx.Room.Players[c.playerID]
	switch c.kind {
	case KindReady:
		player.IsReady = true
		ctx.Bus.Emit(events.PlayerReady, map[string]any{
			"playerId": c.playerID,
			"ready":    true,
		})
	case KindNotReady:
		player.IsReady = false
		ctx.Bus.Emit(events.PlayerReady, map[string]any{
			"playerId": c.playerID,
			"ready":    false,
		})
	case KindChat:
		ctx.Bus.Emit(events.PlayerStatusUpdated, map[string]any{
			"playerId": c.playerID,
			"kind":     "chat",
			"message":  c.message,
		})
	case KindSpectate:
		ctx.Bus.Emit(events.PlayerStatusUpdated, map[string]any{
			"playerId": c.playerID,
			"kind":     "spectate",
		})
	}
	return nil
}

func (c *GenericCommand) Summary() Summary { return c.summary("") }
