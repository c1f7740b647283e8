package catalog

import (
	"fmt"

	"github.com/warlockgg/warlock-server/internal/game"
)

// DispatchAbility applies def for actor against targetID inside room,
// returning the outcomes in application order. Mutations happen here;
// the command layer turns outcomes into bus events.
func (s *Static) DispatchAbility(actor *game.Player, targetID string, def AbilityDef, room *RoomContext, coord CoordinationInfo) ([]EffectOutcome, error) {
	if actor == nil || room == nil {
		return nil, fmt.Errorf("dispatch %s: nil actor or room", def.Type)
	}

	var outcomes []EffectOutcome
	actor.Stats.AbilitiesUsed++

	switch def.Category {
	case "Attack":
		out, err := s.dispatchAttack(actor, targetID, def, room, coord)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, out...)
	case "Heal":
		out, err := s.dispatchHeal(actor, targetID, def, room)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, out...)
	case "Defense", "Special":
		out, err := s.dispatchEffect(actor, targetID, def, room)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, out...)
	default:
		return nil, fmt.Errorf("dispatch %s: unknown category %q", def.Type, def.Category)
	}

	if coord.KeenSenses && targetID != game.MonsterTargetID {
		if target, ok := room.Players[targetID]; ok {
			outcomes = append(outcomes, EffectOutcome{
				Kind:     OutcomeReveal,
				ActorID:  actor.ID,
				TargetID: targetID,
				Detail:   revealDetail(target),
			})
		}
	}

	return outcomes, nil
}

func revealDetail(target *game.Player) string {
	if target.IsWarlock {
		return "warlock"
	}
	return "not_warlock"
}

// attackAmount folds race, effect, racial and coordination modifiers into
// the ability's base damage.
func (s *Static) attackAmount(actor *game.Player, def AbilityDef, coord CoordinationInfo) int {
	amount := def.Params["damage"]

	if attrs, err := s.GetRaceAttributes(actor.Race); err == nil {
		amount = int(float64(amount) * attrs.DamageModifier)
	}
	if actor.HasEffect(game.EffectEnraged) {
		amount += amount / 4
	}
	if actor.HasEffect(game.EffectWeakened) {
		amount -= amount / 4
	}
	if coord.BloodRage {
		amount *= 2
	}
	// Coordination bonus: +25% per other player hitting the same target
	// this round.
	amount += amount * coord.SameTargetCount / 4
	if amount < 0 {
		amount = 0
	}
	return amount
}

func (s *Static) dispatchAttack(actor *game.Player, targetID string, def AbilityDef, room *RoomContext, coord CoordinationInfo) ([]EffectOutcome, error) {
	amount := s.attackAmount(actor, def, coord)
	var outcomes []EffectOutcome

	if coord.BloodRage {
		selfDamage := 10
		if racial, err := s.GetRacialAbility(actor.Race); err == nil && racial.Params["selfDamage"] > 0 {
			selfDamage = racial.Params["selfDamage"]
		}
		before := actor.HP
		applied, died := actor.ApplyDamage(selfDamage)
		outcomes = append(outcomes, EffectOutcome{
			Kind: OutcomeDamage, ActorID: actor.ID, TargetID: actor.ID,
			Amount: applied, HPBefore: before, HPAfter: actor.HP, Detail: "bloodRage",
		})
		if died {
			outcomes = append(outcomes, EffectOutcome{Kind: OutcomeDeath, ActorID: actor.ID, TargetID: actor.ID, Detail: "bloodRage"})
		}
	}

	if targetID == game.MonsterTargetID {
		if room.Monster == nil || !room.Monster.Alive() {
			return nil, fmt.Errorf("dispatch %s: monster is not a valid target", def.Type)
		}
		before := room.Monster.HP
		applied := room.Monster.Damage(amount)
		actor.Stats.TotalDamageDealt += applied
		if applied > actor.Stats.HighestSingleHit {
			actor.Stats.HighestSingleHit = applied
		}
		room.Monster.AddThreat(actor.ID, float64(applied))
		outcomes = append(outcomes, EffectOutcome{
			Kind: OutcomeDamage, ActorID: actor.ID, TargetID: game.MonsterTargetID,
			Amount: applied, HPBefore: before, HPAfter: room.Monster.HP,
		})
		return outcomes, nil
	}

	target, ok := room.Players[targetID]
	if !ok {
		return nil, fmt.Errorf("dispatch %s: unknown target %s", def.Type, targetID)
	}
	if target.HasEffect(game.EffectInvisible) {
		outcomes = append(outcomes, EffectOutcome{
			Kind: OutcomeDamage, ActorID: actor.ID, TargetID: targetID,
			Amount: 0, HPBefore: target.HP, HPAfter: target.HP, Detail: "missed",
		})
		return outcomes, nil
	}

	before := target.HP
	applied, died := target.ApplyDamage(amount)
	actor.Stats.TotalDamageDealt += applied
	if applied > actor.Stats.HighestSingleHit {
		actor.Stats.HighestSingleHit = applied
	}
	outcomes = append(outcomes, EffectOutcome{
		Kind: OutcomeDamage, ActorID: actor.ID, TargetID: targetID,
		Amount: applied, HPBefore: before, HPAfter: target.HP,
	})
	if died {
		outcomes = append(outcomes, EffectOutcome{Kind: OutcomeDeath, ActorID: actor.ID, TargetID: targetID, Detail: def.Type})
	}

	// Rider effects, e.g. poisonBlade.
	if target.IsAlive && def.Params["poison"] > 0 {
		effect, err := s.GetStatusEffectDefaults(game.EffectPoison)
		if err == nil {
			effect.Magnitude = def.Params["poison"]
			if turns := def.Params["turns"]; turns > 0 {
				effect.TurnsRemaining = turns
			}
			effect.SourcePlayerID = actor.ID
			if target.AddEffect(effect) == nil {
				outcomes = append(outcomes, EffectOutcome{
					Kind: OutcomeEffect, ActorID: actor.ID, TargetID: targetID, Effect: &effect,
				})
			}
		}
	}
	return outcomes, nil
}

func (s *Static) dispatchHeal(actor *game.Player, targetID string, def AbilityDef, room *RoomContext) ([]EffectOutcome, error) {
	target := actor
	if targetID != "" && targetID != actor.ID {
		t, ok := room.Players[targetID]
		if !ok {
			return nil, fmt.Errorf("dispatch %s: unknown target %s", def.Type, targetID)
		}
		target = t
	}

	// Over-time heals apply an effect instead of instant healing.
	if def.Type == "renew" {
		effect, err := s.GetStatusEffectDefaults(game.EffectHealingOT)
		if err != nil {
			return nil, err
		}
		effect.Magnitude = def.Params["heal"]
		if turns := def.Params["turns"]; turns > 0 {
			effect.TurnsRemaining = turns
		}
		effect.SourcePlayerID = actor.ID
		if err := target.AddEffect(effect); err != nil {
			return nil, fmt.Errorf("dispatch %s: %w", def.Type, err)
		}
		return []EffectOutcome{{Kind: OutcomeEffect, ActorID: actor.ID, TargetID: target.ID, Effect: &effect}}, nil
	}

	before := target.HP
	healed := target.Heal(def.Params["heal"])
	actor.Stats.TotalHealingDone += healed
	if target.ID == actor.ID {
		actor.Stats.SelfHeals++
	}
	return []EffectOutcome{{
		Kind: OutcomeHeal, ActorID: actor.ID, TargetID: target.ID,
		Amount: healed, HPBefore: before, HPAfter: target.HP,
	}}, nil
}

// effectByAbility maps non-attack abilities to the status effect they
// apply.
var effectByAbility = map[string]game.EffectType{
	"flameShield": game.EffectShielded,
	"shieldWall":  game.EffectShielded,
	"sanctuary":   game.EffectSanctuary,
	"rally":       game.EffectEnraged,
	"vanish":      game.EffectInvisible,
	"expose":      game.EffectVulnerable,
}

func (s *Static) dispatchEffect(actor *game.Player, targetID string, def AbilityDef, room *RoomContext) ([]EffectOutcome, error) {
	target := actor
	if targetID != "" && targetID != actor.ID {
		t, ok := room.Players[targetID]
		if !ok {
			return nil, fmt.Errorf("dispatch %s: unknown target %s", def.Type, targetID)
		}
		target = t
	}

	// lastRites inspects a dead player's hidden role.
	if def.Type == "lastRites" {
		if target.IsAlive {
			return nil, fmt.Errorf("dispatch lastRites: target must be dead")
		}
		target.IsRevealed = true
		return []EffectOutcome{{Kind: OutcomeReveal, ActorID: actor.ID, TargetID: target.ID, Detail: revealDetail(target)}}, nil
	}

	effectType, ok := effectByAbility[def.Type]
	if !ok {
		return nil, fmt.Errorf("dispatch %s: no effect mapping", def.Type)
	}
	effect, err := s.GetStatusEffectDefaults(effectType)
	if err != nil {
		return nil, err
	}
	if armor := def.Params["armor"]; armor > 0 {
		effect.Magnitude = armor
	}
	if turns := def.Params["turns"]; turns > 0 {
		effect.TurnsRemaining = turns
	}
	effect.SourcePlayerID = actor.ID
	if err := target.AddEffect(effect); err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", def.Type, err)
	}
	return []EffectOutcome{{Kind: OutcomeEffect, ActorID: actor.ID, TargetID: target.ID, Effect: &effect}}, nil
}
