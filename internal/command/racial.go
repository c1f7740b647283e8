package command

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/warlockgg/warlock-server/internal/catalog"
	"github.com/warlockgg/warlock-server/internal/events"
	"github.com/warlockgg/warlock-server/internal/game"
)

// RacialCommand invokes the actor's racial ability. Blood rage and keen
// senses arm the player's next attack; the processor reads the action
// type of completed racial commands to build the coordination info it
// hands the ability dispatch.
type RacialCommand struct {
	base
	racialID string
}

// NewRacialCommand builds an unvalidated racial invocation. The racial id
// is resolved from the actor's race at validation.
func NewRacialCommand(playerID string) *RacialCommand {
	return &RacialCommand{
		base: newBase(uuid.NewString(), playerID, "racial", catalog.PriorityDefense),
	}
}

// RacialID is set during validation; empty before.
func (c *RacialCommand) RacialID() string { return c.racialID }

func (c *RacialCommand) Validate(ctx *Context) error {
	actor, ok := ctx.Room.Players[c.playerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, c.playerID)
	}
	if !actor.IsAlive {
		return fmt.Errorf("%w: %s", ErrPlayerDead, c.playerID)
	}
	if ctx.Phase != game.PhaseAction {
		return fmt.Errorf("%w: %s", ErrWrongPhase, ctx.Phase)
	}

	racial, err := ctx.Catalog.GetRacialAbility(actor.Race)
	if err != nil {
		return err
	}
	c.racialID = racial.ID
	c.actionType = racial.ID

	if racial.UsageLimit == catalog.UsagePassive {
		return fmt.Errorf("%w: %s is passive", ErrPrereqNotMet, racial.ID)
	}
	if actor.RacialUsesLeft <= 0 {
		return fmt.Errorf("%w: no %s uses left", ErrPrereqNotMet, racial.ID)
	}
	return nil
}

func (c *RacialCommand) Execute(ctx *Context) error {
	actor := ctx.Room.Players[c.playerID]
	actor.RacialUsesLeft--

	ctx.Bus.Emit(events.ActionRacialAbility, map[string]any{
		"playerId":  c.playerID,
		"racialId":  c.racialID,
		"usesLeft":  actor.RacialUsesLeft,
		"commandId": c.id,
	})
	return nil
}

func (c *RacialCommand) Summary() Summary { return c.summary("") }

// AdaptabilityCommand is the Human racial: swap one unlocked ability for
// another ability of the same unlock level from a compatible class.
type AdaptabilityCommand struct {
	base
	oldAbility string
	newAbility string
}

func NewAdaptabilityCommand(playerID, oldAbility, newAbility string) *AdaptabilityCommand {
	return &AdaptabilityCommand{
		base:       newBase(uuid.NewString(), playerID, "adaptability", catalog.PriorityUtility),
		oldAbility: oldAbility,
		newAbility: newAbility,
	}
}

func (c *AdaptabilityCommand) Validate(ctx *Context) error {
	actor, ok := ctx.Room.Players[c.playerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, c.playerID)
	}
	if !actor.IsAlive {
		return fmt.Errorf("%w: %s", ErrPlayerDead, c.playerID)
	}
	if ctx.Phase != game.PhaseAction {
		return fmt.Errorf("%w: %s", ErrWrongPhase, ctx.Phase)
	}

	racial, err := ctx.Catalog.GetRacialAbility(actor.Race)
	if err != nil {
		return err
	}
	if racial.ID != "adaptability" {
		return fmt.Errorf("%w: race %s has no adaptability", ErrPrereqNotMet, actor.Race)
	}
	if actor.RacialUsesLeft <= 0 {
		return fmt.Errorf("%w: adaptability already used", ErrPrereqNotMet)
	}
	if !actor.HasUnlocked(c.oldAbility) {
		return fmt.Errorf("%w: %s not unlocked", ErrAbilityLocked, c.oldAbility)
	}
	if actor.HasUnlocked(c.newAbility) {
		return fmt.Errorf("%w: %s already unlocked", ErrPrereqNotMet, c.newAbility)
	}

	oldDef, err := ctx.Catalog.GetAbility(c.oldAbility)
	if err != nil {
		return err
	}
	newDef, err := ctx.Catalog.GetAbility(c.newAbility)
	if err != nil {
		return err
	}
	if newDef.UnlockAt != oldDef.UnlockAt {
		return fmt.Errorf("%w: replacement must share unlock level %d", ErrPrereqNotMet, oldDef.UnlockAt)
	}
	return nil
}

func (c *AdaptabilityCommand) Execute(ctx *Context) error {
	actor := ctx.Room.Players[c.playerID]
	if !actor.ReplaceAbility(c.oldAbility, c.newAbility) {
		return fmt.Errorf("%w: %s not unlocked", ErrAbilityLocked, c.oldAbility)
	}
	actor.RacialUsesLeft--

	ctx.Bus.Emit(events.ActionAdaptability, map[string]any{
		"playerId":   c.playerID,
		"oldAbility": c.oldAbility,
		"newAbility": c.newAbility,
		"commandId":  c.id,
	})
	return nil
}

func (c *AdaptabilityCommand) Summary() Summary { return c.summary("") }
