// Package events defines the closed registry of event types flowing over
// a room's bus, with per-type payload schemas. The Validation middleware
// rejects types outside the registry and payloads violating the schema.
package events

// Type is a dotted lowercase event type from the fixed registry.
type Type string

const (
	GameCreated Type = "game.created"
	GameStarted Type = "game.started"
	GameEnded   Type = "game.ended"
	GameError   Type = "game.error"

	PhaseChanged Type = "phase.changed"

	PlayerJoined         Type = "player.joined"
	PlayerLeft           Type = "player.left"
	PlayerDisconnected   Type = "player.disconnected"
	PlayerReconnected    Type = "player.reconnected"
	PlayerDied           Type = "player.died"
	PlayerStatusUpdated  Type = "player.status.updated"
	PlayerReady          Type = "player.ready"
	PlayerNameCheck      Type = "player.name.check"
	PlayerClassAbilities Type = "player.class.abilities.request"

	ActionSubmitted     Type = "action.submitted"
	ActionExecuted      Type = "action.executed"
	ActionRejected      Type = "action.rejected"
	ActionRacialAbility Type = "action.racial_ability"
	ActionAdaptability  Type = "action.adaptability"

	CombatDamageApplied  Type = "combat.damage_applied"
	CombatHealingApplied Type = "combat.healing_applied"
	CombatEffectApplied  Type = "combat.effect_applied"

	DamageApplied Type = "damage.applied"
	HealApplied   Type = "heal.applied"
	EffectApplied Type = "effect.applied"
	EffectExpired Type = "effect.expired"

	AbilityCooldown Type = "ability.cooldown_started"

	CoordinationBonus Type = "coordination.bonus"

	MonsterAttacked Type = "monster.attacked"
	MonsterDied     Type = "monster.died"
	MonsterAged     Type = "monster.aged"

	WarlockRevealed Type = "warlock.revealed"

	SystemWarning Type = "system.warning"
	SystemError   Type = "system.error"

	SocketConnected    Type = "socket.connected"
	SocketDisconnected Type = "socket.disconnected"

	ControllerRoundStarted Type = "controller.round_started"
	ControllerSnapshot     Type = "controller.snapshot_saved"
)

// registry is the closed set. Unknown types are integrity violations in
// strict mode.
var registry = map[Type]bool{
	GameCreated: true, GameStarted: true, GameEnded: true, GameError: true,
	PhaseChanged: true,
	PlayerJoined: true, PlayerLeft: true, PlayerDisconnected: true,
	PlayerReconnected: true, PlayerDied: true, PlayerStatusUpdated: true,
	PlayerReady: true, PlayerNameCheck: true, PlayerClassAbilities: true,
	ActionSubmitted: true, ActionExecuted: true, ActionRejected: true,
	ActionRacialAbility: true, ActionAdaptability: true,
	CombatDamageApplied: true, CombatHealingApplied: true, CombatEffectApplied: true,
	DamageApplied: true, HealApplied: true, EffectApplied: true, EffectExpired: true,
	AbilityCooldown: true,
	CoordinationBonus: true,
	MonsterAttacked: true, MonsterDied: true, MonsterAged: true,
	WarlockRevealed: true,
	SystemWarning: true, SystemError: true,
	SocketConnected: true, SocketDisconnected: true,
	ControllerRoundStarted: true, ControllerSnapshot: true,
}

// Known reports whether t is in the registry.
func Known(t Type) bool { return registry[t] }

// All returns the registry contents; used by tests and docs tooling.
func All() []Type {
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}
