package game

// EffectType names an active status effect. The set is closed; the
// catalog supplies per-type defaults.
type EffectType string

const (
	EffectPoison        EffectType = "poison"
	EffectBleed         EffectType = "bleed"
	EffectShielded      EffectType = "shielded"
	EffectInvisible     EffectType = "invisible"
	EffectStunned       EffectType = "stunned"
	EffectVulnerable    EffectType = "vulnerable"
	EffectWeakened      EffectType = "weakened"
	EffectEnraged       EffectType = "enraged"
	EffectHealingOT     EffectType = "healingOverTime"
	EffectStoneArmor    EffectType = "stoneArmor"
	EffectUndying       EffectType = "undying"
	EffectMoonbeam      EffectType = "moonbeam"
	EffectLifeBond      EffectType = "lifeBond"
	EffectSpiritGuard   EffectType = "spiritGuard"
	EffectSanctuary     EffectType = "sanctuary"
)

// PermanentTurns marks an effect that never expires on its own.
const PermanentTurns = -1

// StatusEffect is one active effect on a player. Magnitude is
// effect-specific: damage per turn for poison/bleed, armor for
// shielded/stoneArmor, healing per turn for healingOverTime.
type StatusEffect struct {
	Type           EffectType `json:"type"`
	TurnsRemaining int        `json:"turnsRemaining"`
	Magnitude      int        `json:"magnitude"`
	SourcePlayerID string     `json:"sourcePlayerId,omitempty"`
	Stackable      bool       `json:"stackable"`
	Refreshable    bool       `json:"refreshable"`
}

// Permanent reports whether the effect never expires.
func (e StatusEffect) Permanent() bool { return e.TurnsRemaining == PermanentTurns }

// damageEffects tick before healing effects during resolution; undying is
// checked last, after deaths.
var damageEffects = map[EffectType]bool{
	EffectPoison: true,
	EffectBleed:  true,
}

var healingEffects = map[EffectType]bool{
	EffectHealingOT: true,
}

// IsDamageOverTime reports whether the effect deals its magnitude as
// damage each round.
func (e StatusEffect) IsDamageOverTime() bool { return damageEffects[e.Type] }

// IsHealingOverTime reports whether the effect heals its magnitude each
// round.
func (e StatusEffect) IsHealingOverTime() bool { return healingEffects[e.Type] }
