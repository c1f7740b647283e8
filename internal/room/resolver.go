package room

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/events"
	"github.com/warlockgg/warlock-server/internal/game"
	"github.com/warlockgg/warlock-server/internal/trophy"
)

// Winner values for the game.ended event and the archive record.
const (
	WinnerGood = "good"
	WinnerEvil = "evil"
	WinnerDraw = "draw"
)

// Resolver runs one round resolution in a fixed order: flip to results,
// surface queued passives, execute commands, monster action, status and
// cooldown ticks, surface queued disconnects, then the victory check.
// It runs on the room's actor goroutine and mutates room state directly.
type Resolver struct {
	room     *Room
	trophies []trophy.Trophy
}

func NewResolver(r *Room) *Resolver {
	return &Resolver{room: r}
}

// Trophies returns the awards computed by the resolution that ended the
// game; empty while the game runs.
func (rs *Resolver) Trophies() []trophy.Trophy { return rs.trophies }

// Resolve executes the full resolution sequence. The returned error is
// fatal for the room: a half-applied round cannot be rolled back.
func (rs *Resolver) Resolve() error {
	r := rs.room
	_, span := r.tracer.Start(context.Background(), "room.resolve",
		oteltrace.WithAttributes(
			attribute.String("game_code", r.GameCode),
			attribute.Int("round", r.controller.Round()),
		))
	defer span.End()

	start := time.Now()
	round := r.controller.Round()

	// The phase flips before anything executes so late submissions are
	// rejected as wrong-phase rather than racing the pass.
	if !r.controller.TransitionTo(game.PhaseResults) {
		return fmt.Errorf("round %d: not in action phase", round)
	}

	rs.emitPassives()

	// Commands validated against the action phase must revalidate against
	// it too, even though the controller has already moved on.
	cmdCtx := r.cmdContext()
	cmdCtx.Phase = game.PhaseAction
	if err := r.processor.ProcessCommands(cmdCtx); err != nil {
		return fmt.Errorf("round %d: %w", round, err)
	}

	rs.monsterAction()
	rs.tickStatuses()
	rs.emitDisconnects()

	if r.metrics != nil {
		r.metrics.RoundsResolved.Inc()
		r.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	}
	r.logger.Info("round resolved",
		zap.Int("round", round),
		zap.Duration("took", time.Since(start)))

	rs.checkVictory()
	return nil
}

func (rs *Resolver) emitPassives() {
	for _, p := range rs.room.controller.DrainPassiveActivations() {
		rs.room.bus.Emit(events.PlayerStatusUpdated, map[string]any{
			"playerId": p.PlayerID,
			"kind":     "passive",
			"passive":  p.Kind,
			"detail":   p.Detail,
		})
	}
}

// monsterAction has the monster strike its top-threat target, then age.
// A dead monster respawns stronger instead of attacking.
func (rs *Resolver) monsterAction() {
	r := rs.room
	m := r.monster
	if m == nil {
		return
	}

	if !m.Alive() {
		rs.respawnMonster()
		return
	}

	if targetID := rs.pickMonsterTarget(); targetID != "" {
		target := r.players[targetID]
		applied, died := target.ApplyDamage(m.AttackDamage())
		r.bus.Emit(events.MonsterAttacked, map[string]any{
			"targetId":     targetID,
			"damageAmount": applied,
		})
		if died {
			r.bus.Emit(events.PlayerDied, map[string]any{
				"playerId": targetID,
				"cause":    "monster",
			})
		}
	}

	m.AgeRound(threatDecay)
	r.bus.Emit(events.MonsterAged, map[string]any{
		"age": m.Age,
		"hp":  m.HP,
	})
}

// pickMonsterTarget prefers the threat leader, falling back to the
// lexically first living player when nobody has drawn aggro yet.
func (rs *Resolver) pickMonsterTarget() string {
	r := rs.room
	if top := r.monster.TopThreat(); top != "" {
		if p, ok := r.players[top]; ok && p.IsAlive {
			return top
		}
	}
	ids := make([]string, 0, len(r.players))
	for id, p := range r.players {
		if p.IsAlive {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	return ids[0]
}

// respawnMonster replaces a slain monster with a stronger one, keeping
// the accumulated age so damage scaling carries over.
func (rs *Resolver) respawnMonster() {
	r := rs.room
	old := r.monster
	next := game.NewMonster(old.MaxHP*3/2, old.BaseDamage+5)
	next.Age = old.Age + 1
	r.monster = next

	r.logger.Info("monster respawned",
		zap.Int("hp", next.HP),
		zap.Int("base_damage", next.BaseDamage),
		zap.Int("age", next.Age))
	r.bus.Emit(events.MonsterAged, map[string]any{
		"age":       next.Age,
		"hp":        next.HP,
		"respawned": true,
	})
}

// tickStatuses applies over-time effects in a fixed order across all
// players: damage first, then healing, then expiry and cooldown ticks.
// Players are walked in id order so multi-effect rounds replay
// deterministically.
func (rs *Resolver) tickStatuses() {
	r := rs.room
	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := r.players[id]
		if !p.IsAlive {
			continue
		}
		for _, e := range p.StatusEffects {
			if !e.IsDamageOverTime() {
				continue
			}
			before := p.HP
			applied, died := p.ApplyDamage(e.Magnitude)
			if applied > 0 {
				r.bus.Emit(events.DamageApplied, map[string]any{
					"targetId":       id,
					"damageAmount":   applied,
					"targetHpBefore": before,
					"targetHpAfter":  p.HP,
					"attackerId":     e.SourcePlayerID,
					"abilityId":      string(e.Type),
				})
			}
			if died {
				r.bus.Emit(events.PlayerDied, map[string]any{
					"playerId": id,
					"cause":    string(e.Type),
				})
				break
			}
		}
	}

	for _, id := range ids {
		p := r.players[id]
		if !p.IsAlive {
			continue
		}
		for _, e := range p.StatusEffects {
			if !e.IsHealingOverTime() {
				continue
			}
			if healed := p.Heal(e.Magnitude); healed > 0 {
				r.bus.Emit(events.HealApplied, map[string]any{
					"targetId":   id,
					"healAmount": healed,
					"healerId":   e.SourcePlayerID,
					"abilityId":  string(e.Type),
				})
			}
		}
	}

	for _, id := range ids {
		p := r.players[id]
		p.TickEffects()
		p.TickCooldowns()
	}
}

func (rs *Resolver) emitDisconnects() {
	for _, d := range rs.room.controller.DrainDisconnects() {
		rs.room.bus.Emit(events.PlayerStatusUpdated, map[string]any{
			"playerId": d.PlayerID,
			"kind":     "disconnected_during_round",
			"at":       d.At.Format(time.RFC3339),
		})
	}
}

// checkVictory evaluates end conditions after everything else has
// applied. Draw outranks both sides: a round that kills everyone has no
// winner.
func (rs *Resolver) checkVictory() {
	r := rs.room

	aliveWarlocks, aliveGood := 0, 0
	for _, p := range r.players {
		if !p.IsAlive {
			continue
		}
		if p.IsWarlock {
			aliveWarlocks++
		} else {
			aliveGood++
		}
	}

	var winner, reason string
	switch {
	case aliveWarlocks == 0 && aliveGood == 0:
		winner, reason = WinnerDraw, "everyone has fallen"
	case aliveWarlocks == 0:
		winner, reason = WinnerGood, "all warlocks are dead"
	case aliveGood <= aliveWarlocks:
		winner, reason = WinnerEvil, "warlocks match the survivors"
	default:
		return
	}

	r.winner = winner
	rs.trophies = trophy.Award(r.players)
	r.bus.Emit(events.GameEnded, map[string]any{
		"winner": winner,
		"reason": reason,
	})
	r.logger.Info("game ended",
		zap.String("winner", winner),
		zap.Int("rounds", r.controller.Round()))
}
