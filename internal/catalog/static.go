package catalog

import (
	"fmt"

	"github.com/warlockgg/warlock-server/internal/game"
)

// Ability priority bands. Defensive buffs resolve before heals, heals
// before damage, damage before utility.
const (
	PriorityDefense = 80
	PriorityHeal    = 60
	PriorityDamage  = 40
	PriorityUtility = 20
)

// Static is the built-in catalog. A deployment may substitute a catalog
// loaded from external content files; the core only sees ContentCatalog.
type Static struct {
	races          map[string]RaceAttributes
	racialAbility  map[string]RacialAbility
	classAbilities map[string][]AbilityDef
	abilities      map[string]AbilityDef
	effectDefaults map[game.EffectType]game.StatusEffect
}

// NewStatic builds and validates the built-in content set.
func NewStatic() (*Static, error) {
	s := &Static{
		races:          make(map[string]RaceAttributes),
		racialAbility:  make(map[string]RacialAbility),
		classAbilities: make(map[string][]AbilityDef),
		abilities:      make(map[string]AbilityDef),
		effectDefaults: make(map[game.EffectType]game.StatusEffect),
	}
	s.loadRaces()
	s.loadClasses()
	s.loadEffectDefaults()
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustStatic is NewStatic for wiring code where the built-in content is
// known-good (it is validated by tests).
func MustStatic() *Static {
	s, err := NewStatic()
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Static) loadRaces() {
	s.races["Human"] = RaceAttributes{HPModifier: 1.0, DamageModifier: 1.0, CompatibleClasses: []string{"Pyromancer", "Priest", "Warrior", "Rogue"}}
	s.races["Orc"] = RaceAttributes{HPModifier: 1.1, DamageModifier: 1.1, CompatibleClasses: []string{"Warrior", "Pyromancer", "Rogue"}}
	s.races["Elf"] = RaceAttributes{HPModifier: 0.9, DamageModifier: 1.05, CompatibleClasses: []string{"Rogue", "Priest", "Pyromancer"}}
	s.races["Dwarf"] = RaceAttributes{HPModifier: 1.2, ArmorModifier: 2, DamageModifier: 0.95, CompatibleClasses: []string{"Warrior", "Priest"}}

	s.racialAbility["Human"] = RacialAbility{ID: "adaptability", Name: "Adaptability", UsageLimit: UsagePerGame, MaxUses: 1}
	s.racialAbility["Orc"] = RacialAbility{ID: "bloodRage", Name: "Blood Rage", UsageLimit: UsagePerRound, MaxUses: 3, Params: map[string]int{"selfDamage": 10}}
	s.racialAbility["Elf"] = RacialAbility{ID: "keenSenses", Name: "Keen Senses", UsageLimit: UsagePerGame, MaxUses: 2}
	s.racialAbility["Dwarf"] = RacialAbility{ID: "stoneArmor", Name: "Stone Armor", UsageLimit: UsagePassive, Params: map[string]int{"armor": 3}}
}

func (s *Static) loadClasses() {
	s.classAbilities["Pyromancer"] = []AbilityDef{
		{Type: "fireball", Name: "Fireball", Category: "Attack", UnlockAt: 1, Priority: PriorityDamage, Target: TargetPlayer, Cooldown: 2, Params: map[string]int{"damage": 25}},
		{Type: "cauterize", Name: "Cauterize", Category: "Heal", UnlockAt: 2, Priority: PriorityHeal, Target: TargetSelf, Cooldown: 2, Params: map[string]int{"heal": 20}},
		{Type: "flameShield", Name: "Flame Shield", Category: "Defense", UnlockAt: 3, Priority: PriorityDefense, Target: TargetSelf, Cooldown: 3, Params: map[string]int{"armor": 8, "turns": 2}},
		{Type: "pyroblast", Name: "Pyroblast", Category: "Attack", UnlockAt: 4, Priority: PriorityDamage, Target: TargetMonster, Cooldown: 3, Params: map[string]int{"damage": 45}},
	}
	s.classAbilities["Priest"] = []AbilityDef{
		{Type: "smite", Name: "Smite", Category: "Attack", UnlockAt: 1, Priority: PriorityDamage, Target: TargetPlayer, Cooldown: 1, Params: map[string]int{"damage": 18}},
		{Type: "heal", Name: "Heal", Category: "Heal", UnlockAt: 1, Priority: PriorityHeal, Target: TargetPlayer, Cooldown: 1, Params: map[string]int{"heal": 25}},
		{Type: "renew", Name: "Renew", Category: "Heal", UnlockAt: 2, Priority: PriorityHeal, Target: TargetPlayer, Cooldown: 2, Params: map[string]int{"heal": 8, "turns": 3}},
		{Type: "sanctuary", Name: "Sanctuary", Category: "Defense", UnlockAt: 3, Priority: PriorityDefense, Target: TargetPlayer, Cooldown: 4, Params: map[string]int{"armor": 10, "turns": 2}},
		{Type: "lastRites", Name: "Last Rites", Category: "Special", UnlockAt: 4, Priority: PriorityUtility, Target: TargetPlayer, Cooldown: 5, CanTargetDead: true},
	}
	s.classAbilities["Warrior"] = []AbilityDef{
		{Type: "slash", Name: "Slash", Category: "Attack", UnlockAt: 1, Priority: PriorityDamage, Target: TargetPlayer, Cooldown: 0, Params: map[string]int{"damage": 20}},
		{Type: "shieldWall", Name: "Shield Wall", Category: "Defense", UnlockAt: 2, Priority: PriorityDefense, Target: TargetSelf, Cooldown: 3, Params: map[string]int{"armor": 12, "turns": 2}},
		{Type: "rally", Name: "Rally", Category: "Special", UnlockAt: 3, Priority: PriorityUtility, Target: TargetSelf, Cooldown: 3, Params: map[string]int{"turns": 2}},
		{Type: "recklessStrike", Name: "Reckless Strike", Category: "Attack", UnlockAt: 4, Priority: PriorityDamage, Target: TargetMonster, Cooldown: 2, RequiresHealth: &HealthRequirement{Fraction: 0.3}, Params: map[string]int{"damage": 50}},
	}
	s.classAbilities["Rogue"] = []AbilityDef{
		{Type: "backstab", Name: "Backstab", Category: "Attack", UnlockAt: 1, Priority: PriorityDamage, Target: TargetPlayer, Cooldown: 1, Params: map[string]int{"damage": 22}},
		{Type: "poisonBlade", Name: "Poison Blade", Category: "Attack", UnlockAt: 2, Priority: PriorityDamage, Target: TargetPlayer, Cooldown: 2, Params: map[string]int{"damage": 10, "poison": 5, "turns": 3}},
		{Type: "vanish", Name: "Vanish", Category: "Defense", UnlockAt: 3, Priority: PriorityDefense, Target: TargetSelf, Cooldown: 4, ProhibitedEffects: []game.EffectType{game.EffectInvisible}, Params: map[string]int{"turns": 1}},
		{Type: "expose", Name: "Expose", Category: "Special", UnlockAt: 4, Priority: PriorityUtility, Target: TargetPlayer, Cooldown: 3, Params: map[string]int{"turns": 2}},
	}

	for _, defs := range s.classAbilities {
		for _, def := range defs {
			s.abilities[def.Type] = def
		}
	}
}

func (s *Static) loadEffectDefaults() {
	s.effectDefaults[game.EffectPoison] = game.StatusEffect{Type: game.EffectPoison, TurnsRemaining: 3, Magnitude: 5, Stackable: true}
	s.effectDefaults[game.EffectBleed] = game.StatusEffect{Type: game.EffectBleed, TurnsRemaining: 2, Magnitude: 7, Stackable: true}
	s.effectDefaults[game.EffectShielded] = game.StatusEffect{Type: game.EffectShielded, TurnsRemaining: 2, Magnitude: 10, Refreshable: true}
	s.effectDefaults[game.EffectInvisible] = game.StatusEffect{Type: game.EffectInvisible, TurnsRemaining: 1}
	s.effectDefaults[game.EffectStunned] = game.StatusEffect{Type: game.EffectStunned, TurnsRemaining: 1}
	s.effectDefaults[game.EffectVulnerable] = game.StatusEffect{Type: game.EffectVulnerable, TurnsRemaining: 2, Refreshable: true}
	s.effectDefaults[game.EffectWeakened] = game.StatusEffect{Type: game.EffectWeakened, TurnsRemaining: 2, Refreshable: true}
	s.effectDefaults[game.EffectEnraged] = game.StatusEffect{Type: game.EffectEnraged, TurnsRemaining: 2, Refreshable: true}
	s.effectDefaults[game.EffectHealingOT] = game.StatusEffect{Type: game.EffectHealingOT, TurnsRemaining: 3, Magnitude: 8, Refreshable: true}
	s.effectDefaults[game.EffectStoneArmor] = game.StatusEffect{Type: game.EffectStoneArmor, TurnsRemaining: game.PermanentTurns, Magnitude: 3}
	s.effectDefaults[game.EffectUndying] = game.StatusEffect{Type: game.EffectUndying, TurnsRemaining: game.PermanentTurns}
	s.effectDefaults[game.EffectMoonbeam] = game.StatusEffect{Type: game.EffectMoonbeam, TurnsRemaining: game.PermanentTurns}
	s.effectDefaults[game.EffectLifeBond] = game.StatusEffect{Type: game.EffectLifeBond, TurnsRemaining: game.PermanentTurns, Magnitude: 5}
	s.effectDefaults[game.EffectSpiritGuard] = game.StatusEffect{Type: game.EffectSpiritGuard, TurnsRemaining: 2, Magnitude: 6, Refreshable: true}
	s.effectDefaults[game.EffectSanctuary] = game.StatusEffect{Type: game.EffectSanctuary, TurnsRemaining: 2, Magnitude: 10, Refreshable: true}
}

// validate enforces the loaded-content contract: every ability has a
// target kind, non-negative cooldown and a priority; every race's
// compatible classes exist.
func (s *Static) validate() error {
	for key, def := range s.abilities {
		if def.Target == "" {
			return fmt.Errorf("ability %s: missing target kind", key)
		}
		if def.Cooldown < 0 {
			return fmt.Errorf("ability %s: negative cooldown", key)
		}
		if def.Priority == 0 {
			return fmt.Errorf("ability %s: missing priority", key)
		}
	}
	for race, attrs := range s.races {
		for _, class := range attrs.CompatibleClasses {
			if _, ok := s.classAbilities[class]; !ok {
				return fmt.Errorf("race %s: unknown class %s", race, class)
			}
		}
		if _, ok := s.racialAbility[race]; !ok {
			return fmt.Errorf("race %s: missing racial ability", race)
		}
	}
	return nil
}

func (s *Static) GetRaceAttributes(race string) (RaceAttributes, error) {
	attrs, ok := s.races[race]
	if !ok {
		return RaceAttributes{}, fmt.Errorf("%w: %s", ErrUnknownRace, race)
	}
	return attrs, nil
}

func (s *Static) GetRacialAbility(race string) (RacialAbility, error) {
	ab, ok := s.racialAbility[race]
	if !ok {
		return RacialAbility{}, fmt.Errorf("%w: %s", ErrUnknownRace, race)
	}
	return ab, nil
}

func (s *Static) GetClassAbilities(class string) ([]AbilityDef, error) {
	defs, ok := s.classAbilities[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	out := make([]AbilityDef, len(defs))
	copy(out, defs)
	return out, nil
}

func (s *Static) GetAbility(abilityKey string) (AbilityDef, error) {
	def, ok := s.abilities[abilityKey]
	if !ok {
		return AbilityDef{}, fmt.Errorf("%w: %s", ErrUnknownAbility, abilityKey)
	}
	return def, nil
}

func (s *Static) GetStatusEffectDefaults(t game.EffectType) (game.StatusEffect, error) {
	def, ok := s.effectDefaults[t]
	if !ok {
		return game.StatusEffect{}, fmt.Errorf("unknown effect type: %s", t)
	}
	return def, nil
}
