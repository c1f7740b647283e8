package events

import (
	"errors"
	"fmt"
)

var ErrUnknownType = errors.New("event type not in registry")

// FieldKind is the expected JSON-level type of a payload field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
	KindBool
	KindAny
)

// Field is one payload field rule.
type Field struct {
	Name        string
	Kind        FieldKind
	Required    bool
	NonNegative bool
}

// schemas holds per-type payload contracts. Types absent from this table
// accept any payload; presence means the listed rules are enforced.
var schemas = map[Type][]Field{
	ActionSubmitted: {
		{Name: "playerId", Kind: KindString, Required: true},
		{Name: "actionType", Kind: KindString, Required: true},
		{Name: "targetId", Kind: KindString},
		{Name: "abilityId", Kind: KindString},
		{Name: "commandId", Kind: KindString},
		{Name: "metadata", Kind: KindAny},
	},
	ActionExecuted: {
		{Name: "playerId", Kind: KindString, Required: true},
		{Name: "actionType", Kind: KindString, Required: true},
		{Name: "targetId", Kind: KindString},
		{Name: "abilityId", Kind: KindString},
		{Name: "commandId", Kind: KindString},
	},
	ActionRejected: {
		{Name: "playerId", Kind: KindString, Required: true},
		{Name: "reason", Kind: KindString, Required: true},
		{Name: "commandId", Kind: KindString},
	},
	DamageApplied: {
		{Name: "targetId", Kind: KindString, Required: true},
		{Name: "damageAmount", Kind: KindInt, Required: true, NonNegative: true},
		{Name: "targetHpBefore", Kind: KindInt, Required: true},
		{Name: "targetHpAfter", Kind: KindInt, Required: true, NonNegative: true},
		{Name: "attackerId", Kind: KindString},
		{Name: "abilityId", Kind: KindString},
	},
	HealApplied: {
		{Name: "targetId", Kind: KindString, Required: true},
		{Name: "healAmount", Kind: KindInt, Required: true, NonNegative: true},
		{Name: "healerId", Kind: KindString},
		{Name: "abilityId", Kind: KindString},
	},
	EffectApplied: {
		{Name: "targetId", Kind: KindString, Required: true},
		{Name: "effectType", Kind: KindString, Required: true},
		{Name: "turns", Kind: KindInt},
		{Name: "magnitude", Kind: KindInt},
		{Name: "sourceId", Kind: KindString},
	},
	PhaseChanged: {
		{Name: "oldPhase", Kind: KindString, Required: true},
		{Name: "newPhase", Kind: KindString, Required: true},
		{Name: "round", Kind: KindInt, NonNegative: true},
		{Name: "duration", Kind: KindInt},
		{Name: "reason", Kind: KindString},
	},
	PlayerDied: {
		{Name: "playerId", Kind: KindString, Required: true},
		{Name: "cause", Kind: KindString},
	},
	PlayerJoined: {
		{Name: "playerId", Kind: KindString, Required: true},
		{Name: "name", Kind: KindString, Required: true},
	},
	GameEnded: {
		{Name: "winner", Kind: KindString, Required: true},
		{Name: "reason", Kind: KindString},
	},
	MonsterAttacked: {
		{Name: "targetId", Kind: KindString, Required: true},
		{Name: "damageAmount", Kind: KindInt, Required: true, NonNegative: true},
	},
	WarlockRevealed: {
		{Name: "playerId", Kind: KindString, Required: true},
		{Name: "revealedBy", Kind: KindString},
	},
}

// Validate checks t against the registry and payload against t's schema.
// A nil payload passes schemas with no required fields.
func Validate(t Type, payload map[string]any) error {
	if !Known(t) {
		return fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	fields, ok := schemas[t]
	if !ok {
		return nil
	}
	for _, f := range fields {
		value, present := payload[f.Name]
		if !present {
			if f.Required {
				return fmt.Errorf("event %s: missing required field %q", t, f.Name)
			}
			continue
		}
		switch f.Kind {
		case KindString:
			if _, ok := value.(string); !ok {
				return fmt.Errorf("event %s: field %q must be a string", t, f.Name)
			}
		case KindInt:
			n, ok := asInt(value)
			if !ok {
				return fmt.Errorf("event %s: field %q must be an integer", t, f.Name)
			}
			if f.NonNegative && n < 0 {
				return fmt.Errorf("event %s: field %q must be non-negative", t, f.Name)
			}
		case KindBool:
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("event %s: field %q must be a bool", t, f.Name)
			}
		case KindAny:
		}
	}
	return nil
}

// asInt accepts the numeric shapes a payload may carry after JSON
// round-trips.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}
