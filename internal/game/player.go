// Package game holds the domain model for one Warlock game: players,
// status effects and the monster. The types are plain data plus the
// mutations the resolver and commands need; everything here runs inside
// the owning room actor, so no locking.
package game

import (
	"errors"
	"time"
)

var (
	ErrEffectNotStackable = errors.New("effect already present and not stackable")
	ErrPlayerDead         = errors.New("player is dead")
)

// PlayerStats aggregates per-game numbers used for trophies and the
// end-of-game summary.
type PlayerStats struct {
	TotalDamageDealt int `json:"totalDamageDealt"`
	TotalHealingDone int `json:"totalHealingDone"`
	DamageTaken      int `json:"damageTaken"`
	HighestSingleHit int `json:"highestSingleHit"`
	TimesDied        int `json:"timesDied"`
	SelfHeals        int `json:"selfHeals"`
	AbilitiesUsed    int `json:"abilitiesUsed"`
}

// Player is one seat in a room. ID is stable across reconnects;
// ConnectionID is the transport id and changes on reconnect. IsWarlock is
// server-only truth and must never reach a non-warlock client.
type Player struct {
	ID           string `json:"id"`
	ConnectionID string `json:"-"`
	Name         string `json:"name"`

	Race  string `json:"race,omitempty"`
	Class string `json:"class,omitempty"`

	HP         int  `json:"hp"`
	MaxHP      int  `json:"maxHp"`
	IsAlive    bool `json:"isAlive"`
	IsWarlock  bool `json:"-"`
	IsRevealed bool `json:"isRevealed"`

	AbilityCooldowns map[string]int `json:"abilityCooldowns"`
	StatusEffects    []StatusEffect `json:"statusEffects"`

	HasSubmittedAction   bool      `json:"hasSubmittedAction"`
	ActionSubmissionTime time.Time `json:"actionSubmissionTime,omitzero"`
	IsReady              bool      `json:"isReady"`

	UnlockedAbilities []string    `json:"unlockedAbilities"`
	RacialUsesLeft    int         `json:"racialUsesLeft"`
	Stats             PlayerStats `json:"stats"`
}

// NewPlayer creates a lobby-phase player with no race or class selected.
func NewPlayer(id, name string) *Player {
	return &Player{
		ID:               id,
		Name:             name,
		IsAlive:          true,
		AbilityCooldowns: make(map[string]int),
	}
}

// ApplyDamage reduces hp by amount after armor from shielded/stoneArmor
// effects, clamping at zero. It returns the damage actually applied and
// whether the player died from it. Vulnerable adds 25%, weakened on the
// attacker is handled by the catalog.
func (p *Player) ApplyDamage(amount int) (applied int, died bool) {
	if !p.IsAlive || amount <= 0 {
		return 0, false
	}

	armor := 0
	for _, e := range p.StatusEffects {
		switch e.Type {
		case EffectShielded, EffectStoneArmor, EffectSanctuary:
			armor += e.Magnitude
		case EffectVulnerable:
			amount += amount / 4
		}
	}
	amount -= armor
	if amount <= 0 {
		return 0, false
	}

	p.HP -= amount
	p.Stats.DamageTaken += amount
	if p.HP <= 0 {
		p.HP = 0
		if p.tryUndying() {
			return amount, false
		}
		p.IsAlive = false
		p.Stats.TimesDied++
		return amount, true
	}
	return amount, false
}

// tryUndying consumes an undying effect, if present, leaving the player
// at 1 hp instead of dead.
func (p *Player) tryUndying() bool {
	for i, e := range p.StatusEffects {
		if e.Type == EffectUndying {
			p.StatusEffects = append(p.StatusEffects[:i], p.StatusEffects[i+1:]...)
			p.HP = 1
			return true
		}
	}
	return false
}

// Heal raises hp by amount, clamped at MaxHP, returning the healing
// actually applied. Dead players cannot be healed.
func (p *Player) Heal(amount int) int {
	if !p.IsAlive || amount <= 0 {
		return 0
	}
	healed := amount
	if p.HP+healed > p.MaxHP {
		healed = p.MaxHP - p.HP
	}
	p.HP += healed
	return healed
}

// AddEffect applies a status effect, honoring stackability: a
// non-stackable effect already present is refreshed when refreshable,
// otherwise rejected.
func (p *Player) AddEffect(effect StatusEffect) error {
	if !p.IsAlive {
		return ErrPlayerDead
	}
	if !effect.Stackable {
		for i, e := range p.StatusEffects {
			if e.Type == effect.Type {
				if !effect.Refreshable {
					return ErrEffectNotStackable
				}
				p.StatusEffects[i] = effect
				return nil
			}
		}
	}
	p.StatusEffects = append(p.StatusEffects, effect)
	return nil
}

// HasEffect reports whether any effect of the given type is active.
func (p *Player) HasEffect(t EffectType) bool {
	for _, e := range p.StatusEffects {
		if e.Type == t {
			return true
		}
	}
	return false
}

// RemoveEffect drops the first effect of the given type, reporting
// whether one was removed.
func (p *Player) RemoveEffect(t EffectType) bool {
	for i, e := range p.StatusEffects {
		if e.Type == t {
			p.StatusEffects = append(p.StatusEffects[:i], p.StatusEffects[i+1:]...)
			return true
		}
	}
	return false
}

// TickEffects decrements turn counters and drops expired effects.
// Permanent effects (-1) are untouched. Damage and healing application is
// the resolver's job; this only ages the list.
func (p *Player) TickEffects() {
	kept := p.StatusEffects[:0]
	for _, e := range p.StatusEffects {
		if e.Permanent() {
			kept = append(kept, e)
			continue
		}
		e.TurnsRemaining--
		if e.TurnsRemaining > 0 {
			kept = append(kept, e)
		}
	}
	p.StatusEffects = kept
}

// TickCooldowns decrements every ability cooldown, removing entries that
// reach zero.
func (p *Player) TickCooldowns() {
	for key, turns := range p.AbilityCooldowns {
		turns--
		if turns <= 0 {
			delete(p.AbilityCooldowns, key)
		} else {
			p.AbilityCooldowns[key] = turns
		}
	}
}

// OnCooldown reports whether the ability key is cooling down.
func (p *Player) OnCooldown(abilityKey string) bool {
	return p.AbilityCooldowns[abilityKey] > 0
}

// HasUnlocked reports whether the ability key is in the player's unlocked
// list.
func (p *Player) HasUnlocked(abilityKey string) bool {
	for _, key := range p.UnlockedAbilities {
		if key == abilityKey {
			return true
		}
	}
	return false
}

// ReplaceAbility swaps oldKey for newKey in the unlocked list, used by
// the Human adaptability racial. Reports whether a swap happened.
func (p *Player) ReplaceAbility(oldKey, newKey string) bool {
	for i, key := range p.UnlockedAbilities {
		if key == oldKey {
			p.UnlockedAbilities[i] = newKey
			delete(p.AbilityCooldowns, oldKey)
			return true
		}
	}
	return false
}

// ResetRound clears per-round submission state at the start of a new
// action phase.
func (p *Player) ResetRound() {
	p.HasSubmittedAction = false
	p.ActionSubmissionTime = time.Time{}
	p.IsReady = false
}
