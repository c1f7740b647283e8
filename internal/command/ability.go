package command

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/warlockgg/warlock-server/internal/catalog"
	"github.com/warlockgg/warlock-server/internal/events"
	"github.com/warlockgg/warlock-server/internal/game"
)

// AbilityCommand is a class-ability use queued for the next resolution.
type AbilityCommand struct {
	base
	abilityKey string
	targetID   string
	def        catalog.AbilityDef
	resolved   bool
}

// NewAbilityCommand builds an unvalidated ability command. The raw target
// id is normalized: "monster" aliases the canonical monster target.
func NewAbilityCommand(playerID, abilityKey, targetID string) *AbilityCommand {
	if targetID == "monster" {
		targetID = game.MonsterTargetID
	}
	return &AbilityCommand{
		base:       newBase(uuid.NewString(), playerID, abilityKey, 0),
		abilityKey: abilityKey,
		targetID:   targetID,
	}
}

func (c *AbilityCommand) TargetID() string { return c.targetID }

// RetargetTo updates the target id, used when a target reconnects under a
// new id mid-round.
func (c *AbilityCommand) RetargetTo(newID string) { c.targetID = newID }

// Validate applies the full rule chain: actor liveness, phase, unlock,
// cooldown, target legality, prerequisites. It is called at submission
// and again at execution since room state moves between the two.
func (c *AbilityCommand) Validate(ctx *Context) error {
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

	def, err := ctx.Catalog.GetAbility(c.abilityKey)
	if err != nil {
		return err
	}
	c.def = def
	c.priority = def.Priority
	c.resolved = true

	if !actor.HasUnlocked(c.abilityKey) {
		return fmt.Errorf("%w: %s", ErrAbilityLocked, c.abilityKey)
	}
	if actor.OnCooldown(c.abilityKey) {
		return fmt.Errorf("%w: %s (%d turns left)", ErrOnCooldown, c.abilityKey, actor.AbilityCooldowns[c.abilityKey])
	}

	if err := c.validateTarget(ctx, actor); err != nil {
		return err
	}
	return c.validatePrereqs(actor)
}

func (c *AbilityCommand) validateTarget(ctx *Context, actor *game.Player) error {
	switch c.def.Target {
	case catalog.TargetSelf:
		c.targetID = actor.ID
		return nil

	case catalog.TargetMonster:
		if c.targetID != game.MonsterTargetID {
			return fmt.Errorf("%w: %s targets the monster", ErrInvalidTarget, c.abilityKey)
		}
		if ctx.Room.Monster == nil || ctx.Room.Monster.HP <= 0 {
			return ErrMonsterDead
		}
		return nil

	case catalog.TargetPlayer:
		if c.targetID == game.MonsterTargetID {
			// Player-targeted abilities may still be aimed at the monster.
			if ctx.Room.Monster == nil || ctx.Room.Monster.HP <= 0 {
				return ErrMonsterDead
			}
			return nil
		}
		target, ok := ctx.Room.Players[c.targetID]
		if !ok {
			return fmt.Errorf("%w: no player %s", ErrInvalidTarget, c.targetID)
		}
		// canTargetDead widens the rule, it does not invert it; abilities
		// that strictly need a corpse enforce that at dispatch.
		if !target.IsAlive && !c.def.CanTargetDead {
			return fmt.Errorf("%w: %s", ErrTargetDead, c.targetID)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown target kind %q", ErrInvalidTarget, c.def.Target)
}

func (c *AbilityCommand) validatePrereqs(actor *game.Player) error {
	if req := c.def.RequiresHealth; req != nil {
		if req.Absolute > 0 && actor.HP < req.Absolute {
			return fmt.Errorf("%w: requires %d hp", ErrPrereqNotMet, req.Absolute)
		}
		if req.Fraction > 0 && float64(actor.HP) < req.Fraction*float64(actor.MaxHP) {
			return fmt.Errorf("%w: requires %.0f%% hp", ErrPrereqNotMet, req.Fraction*100)
		}
	}
	if c.def.RequiresEffect != "" && !actor.HasEffect(c.def.RequiresEffect) {
		return fmt.Errorf("%w: requires %s", ErrPrereqNotMet, c.def.RequiresEffect)
	}
	for _, banned := range c.def.ProhibitedEffects {
		if actor.HasEffect(banned) {
			return fmt.Errorf("%w: blocked by %s", ErrPrereqNotMet, banned)
		}
	}
	return nil
}

// Execute dispatches the ability, starts its cooldown and re-emits each
// outcome on the bus. The processor has already revalidated.
func (c *AbilityCommand) Execute(ctx *Context) error {
	actor := ctx.Room.Players[c.playerID]

	outcomes, err := ctx.Catalog.DispatchAbility(actor, c.targetID, c.def, ctx.Room, ctx.Coord)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", c.abilityKey, err)
	}

	if c.def.Cooldown > 0 {
		// +1 absorbs the tick at the end of the round the ability fired in.
		actor.AbilityCooldowns[c.abilityKey] = c.def.Cooldown + 1
		ctx.Bus.Emit(events.AbilityCooldown, map[string]any{
			"playerId":  c.playerID,
			"abilityId": c.abilityKey,
			"turns":     c.def.Cooldown,
		})
	}

	for _, outcome := range outcomes {
		emitOutcome(ctx, c.abilityKey, outcome)
	}

	if c.targetID == game.MonsterTargetID && ctx.Room.Monster != nil && ctx.Room.Monster.HP <= 0 {
		ctx.Bus.Emit(events.MonsterDied, map[string]any{"slainBy": c.playerID})
	}

	ctx.Bus.Emit(events.ActionExecuted, map[string]any{
		"playerId":   c.playerID,
		"actionType": "ability",
		"abilityId":  c.abilityKey,
		"targetId":   c.targetID,
		"commandId":  c.id,
	})
	return nil
}

// emitOutcome maps one dispatch outcome to its bus event.
func emitOutcome(ctx *Context, abilityKey string, o catalog.EffectOutcome) {
	switch o.Kind {
	case catalog.OutcomeDamage:
		ctx.Bus.Emit(events.DamageApplied, map[string]any{
			"targetId":       o.TargetID,
			"damageAmount":   o.Amount,
			"targetHpBefore": o.HPBefore,
			"targetHpAfter":  o.HPAfter,
			"attackerId":     o.ActorID,
			"abilityId":      abilityKey,
		})
	case catalog.OutcomeHeal:
		ctx.Bus.Emit(events.HealApplied, map[string]any{
			"targetId":   o.TargetID,
			"healAmount": o.Amount,
			"healerId":   o.ActorID,
			"abilityId":  abilityKey,
		})
	case catalog.OutcomeEffect:
		payload := map[string]any{
			"targetId": o.TargetID,
			"sourceId": o.ActorID,
		}
		if o.Effect != nil {
			payload["effectType"] = string(o.Effect.Type)
			payload["turns"] = o.Effect.TurnsRemaining
			payload["magnitude"] = o.Effect.Magnitude
		}
		ctx.Bus.Emit(events.EffectApplied, payload)
	case catalog.OutcomeDeath:
		ctx.Bus.Emit(events.PlayerDied, map[string]any{
			"playerId": o.TargetID,
			"cause":    abilityKey,
		})
	case catalog.OutcomeReveal:
		if o.Detail == "warlock" {
			ctx.Bus.Emit(events.WarlockRevealed, map[string]any{
				"playerId":   o.TargetID,
				"revealedBy": o.ActorID,
			})
		}
	}
}

func (c *AbilityCommand) Summary() Summary { return c.summary(c.targetID) }
