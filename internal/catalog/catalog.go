// Package catalog is the read-only game-content surface: races, classes,
// abilities, status-effect defaults, and the ability dispatch the command
// pipeline invokes. Content is validated once at load; the runtime treats
// the catalog as immutable.
package catalog

import (
	"errors"

	"github.com/warlockgg/warlock-server/internal/game"
)

var (
	ErrUnknownAbility = errors.New("unknown ability")
	ErrUnknownRace    = errors.New("unknown race")
	ErrUnknownClass   = errors.New("unknown class")
)

// TargetKind constrains what an ability may be aimed at.
type TargetKind string

const (
	TargetSelf    TargetKind = "Self"
	TargetPlayer  TargetKind = "Player"
	TargetMonster TargetKind = "Monster"
)

// UsageLimit constrains how often a racial ability fires.
type UsageLimit string

const (
	UsagePassive  UsageLimit = "passive"
	UsagePerGame  UsageLimit = "perGame"
	UsagePerRound UsageLimit = "perRound"
	UsagePerTurn  UsageLimit = "perTurn"
)

// RaceAttributes are the race-level stat modifiers.
type RaceAttributes struct {
	HPModifier        float64
	ArmorModifier     int
	DamageModifier    float64
	CompatibleClasses []string
}

// RacialAbility describes a race's special action.
type RacialAbility struct {
	ID         string
	Name       string
	UsageLimit UsageLimit
	MaxUses    int
	Cooldown   int
	Params     map[string]int
}

// HealthRequirement is an ability prerequisite on the actor's health.
// Exactly one of Absolute or Fraction is set.
type HealthRequirement struct {
	Absolute int
	Fraction float64
}

// AbilityDef is one class ability. Priority orders execution during
// resolution: higher first, defense > heal > damage > utility.
type AbilityDef struct {
	Type              string
	Name              string
	Category          string
	UnlockAt          int
	Priority          int
	Target            TargetKind
	Cooldown          int
	CanTargetDead     bool
	RequiresHealth    *HealthRequirement
	RequiresEffect    game.EffectType
	ProhibitedEffects []game.EffectType
	Params            map[string]int
}

// OutcomeKind discriminates EffectOutcome variants.
type OutcomeKind string

const (
	OutcomeDamage OutcomeKind = "damage"
	OutcomeHeal   OutcomeKind = "heal"
	OutcomeEffect OutcomeKind = "effect"
	OutcomeReveal OutcomeKind = "reveal"
	OutcomeDeath  OutcomeKind = "death"
)

// EffectOutcome is one applied consequence of an ability dispatch. The
// command layer re-emits these as bus events.
type EffectOutcome struct {
	Kind     OutcomeKind
	ActorID  string
	TargetID string
	Amount   int
	HPBefore int
	HPAfter  int
	Effect   *game.StatusEffect
	Detail   string
}

// RoomContext is the slice of room state dispatch may read and mutate.
type RoomContext struct {
	GameCode string
	Round    int
	Players  map[string]*game.Player
	Monster  *game.Monster
}

// CoordinationInfo carries per-round modifiers resolved by the processor:
// how many other players hit the same target this round, and which racial
// toggles the actor armed.
type CoordinationInfo struct {
	SameTargetCount int
	BloodRage       bool
	KeenSenses      bool
}

// ContentCatalog is the narrow interface the core consumes, implemented
// by Static here or by an external content loader.
type ContentCatalog interface {
	GetRaceAttributes(race string) (RaceAttributes, error)
	GetRacialAbility(race string) (RacialAbility, error)
	GetClassAbilities(class string) ([]AbilityDef, error)
	GetAbility(abilityKey string) (AbilityDef, error)
	GetStatusEffectDefaults(t game.EffectType) (game.StatusEffect, error)
	DispatchAbility(actor *game.Player, targetID string, def AbilityDef, room *RoomContext, coord CoordinationInfo) ([]EffectOutcome, error)
}
