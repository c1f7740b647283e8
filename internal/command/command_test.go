package command

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/catalog"
	"github.com/warlockgg/warlock-server/internal/eventbus"
	"github.com/warlockgg/warlock-server/internal/game"
)

func fighter(id, race, class string, abilities ...string) *game.Player {
	p := game.NewPlayer(id, id)
	p.Race = race
	p.Class = class
	p.HP = 100
	p.MaxHP = 100
	p.RacialUsesLeft = 3
	p.UnlockedAbilities = abilities
	return p
}

func testContext(phase game.Phase, players ...*game.Player) *Context {
	room := &catalog.RoomContext{
		GameCode: "1234",
		Round:    1,
		Players:  make(map[string]*game.Player),
		Monster:  game.NewMonster(200, 10),
	}
	for _, p := range players {
		room.Players[p.ID] = p
	}
	return &Context{
		Phase:   phase,
		Room:    room,
		Catalog: catalog.MustStatic(),
		Bus:     eventbus.New("1234", 0, zap.NewNop()),
	}
}

func TestStatusTransitionsForwardOnly(t *testing.T) {
	b := newBase("c1", "p1", "ability", 0)

	if err := b.transition(StatusValidating); err != nil {
		t.Fatalf("pending -> validating: %v", err)
	}
	if err := b.transition(StatusPending); err == nil {
		t.Errorf("backward transition must fail")
	}
	if err := b.transition(StatusValidated); err != nil {
		t.Fatalf("validating -> validated: %v", err)
	}
	if err := b.transition(StatusExecuting); err != nil {
		t.Fatalf("validated -> executing: %v", err)
	}
	if err := b.Cancel(); err == nil {
		t.Errorf("cancel while executing must fail")
	}
	if err := b.transition(StatusCompleted); err != nil {
		t.Fatalf("executing -> completed: %v", err)
	}
	if err := b.transition(StatusFailed); err == nil {
		t.Errorf("terminal state must not transition")
	}
}

func TestCancelFromPending(t *testing.T) {
	b := newBase("c1", "p1", "ability", 0)
	if err := b.Cancel(); err != nil {
		t.Fatalf("cancel from pending: %v", err)
	}
	if b.Status() != StatusCancelled {
		t.Errorf("status = %s, want cancelled", b.Status())
	}
	if err := b.Cancel(); err == nil {
		t.Errorf("cancel is terminal, second cancel must fail")
	}
}

func TestAbilityValidationDeadActor(t *testing.T) {
	actor := fighter("p1", "Human", "Pyromancer", "fireball")
	actor.IsAlive = false
	ctx := testContext(game.PhaseAction, actor, fighter("p2", "Human", "Priest", "heal"))

	c := NewAbilityCommand("p1", "fireball", "p2")
	if err := c.Validate(ctx); !errors.Is(err, ErrPlayerDead) {
		t.Fatalf("expected ErrPlayerDead, got %v", err)
	}
}

func TestAbilityValidationWrongPhase(t *testing.T) {
	ctx := testContext(game.PhaseLobby,
		fighter("p1", "Human", "Pyromancer", "fireball"),
		fighter("p2", "Human", "Priest", "heal"))

	c := NewAbilityCommand("p1", "fireball", "p2")
	if err := c.Validate(ctx); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("expected ErrWrongPhase, got %v", err)
	}
}

func TestAbilityValidationLockedAndCooldown(t *testing.T) {
	actor := fighter("p1", "Human", "Pyromancer", "fireball")
	target := fighter("p2", "Human", "Priest", "heal")
	ctx := testContext(game.PhaseAction, actor, target)

	locked := NewAbilityCommand("p1", "pyroblast", game.MonsterTargetID)
	if err := locked.Validate(ctx); !errors.Is(err, ErrAbilityLocked) {
		t.Fatalf("expected ErrAbilityLocked, got %v", err)
	}

	actor.AbilityCooldowns["fireball"] = 2
	cooling := NewAbilityCommand("p1", "fireball", "p2")
	if err := cooling.Validate(ctx); !errors.Is(err, ErrOnCooldown) {
		t.Fatalf("expected ErrOnCooldown, got %v", err)
	}
}

func TestAbilityValidationTargetRules(t *testing.T) {
	actor := fighter("p1", "Human", "Pyromancer", "fireball", "pyroblast")
	target := fighter("p2", "Human", "Priest", "heal")
	ctx := testContext(game.PhaseAction, actor, target)

	missing := NewAbilityCommand("p1", "fireball", "nobody")
	if err := missing.Validate(ctx); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}

	target.IsAlive = false
	dead := NewAbilityCommand("p1", "fireball", "p2")
	if err := dead.Validate(ctx); !errors.Is(err, ErrTargetDead) {
		t.Fatalf("expected ErrTargetDead, got %v", err)
	}
	target.IsAlive = true

	// "monster" aliases the canonical monster id.
	alias := NewAbilityCommand("p1", "pyroblast", "monster")
	if alias.TargetID() != game.MonsterTargetID {
		t.Errorf("monster alias not normalized: %s", alias.TargetID())
	}
	if err := alias.Validate(ctx); err != nil {
		t.Fatalf("monster-targeted ability rejected: %v", err)
	}

	ctx.Room.Monster.HP = 0
	deadMonster := NewAbilityCommand("p1", "pyroblast", "monster")
	if err := deadMonster.Validate(ctx); !errors.Is(err, ErrMonsterDead) {
		t.Fatalf("expected ErrMonsterDead, got %v", err)
	}
}

func TestCorpseAbilityAcceptsLivingTarget(t *testing.T) {
	actor := fighter("p1", "Human", "Priest", "lastRites")
	target := fighter("p2", "Human", "Warrior", "slash")
	ctx := testContext(game.PhaseAction, actor, target)

	// lastRites widens targeting to corpses without excluding the living;
	// the corpse requirement belongs to dispatch, not targeting.
	alive := NewAbilityCommand("p1", "lastRites", "p2")
	if err := alive.Validate(ctx); err != nil {
		t.Fatalf("living target rejected: %v", err)
	}

	target.IsAlive = false
	dead := NewAbilityCommand("p1", "lastRites", "p2")
	if err := dead.Validate(ctx); err != nil {
		t.Fatalf("dead target rejected: %v", err)
	}
}

func TestAbilityValidationPrerequisites(t *testing.T) {
	actor := fighter("p1", "Human", "Warrior", "recklessStrike", "vanish")
	ctx := testContext(game.PhaseAction, actor)

	// recklessStrike needs at least 30% hp.
	actor.HP = 20
	weak := NewAbilityCommand("p1", "recklessStrike", "monster")
	if err := weak.Validate(ctx); !errors.Is(err, ErrPrereqNotMet) {
		t.Fatalf("expected ErrPrereqNotMet below health floor, got %v", err)
	}
	actor.HP = 100
	if err := NewAbilityCommand("p1", "recklessStrike", "monster").Validate(ctx); err != nil {
		t.Fatalf("healthy actor rejected: %v", err)
	}

	// vanish is blocked while already invisible.
	if err := actor.AddEffect(game.StatusEffect{Type: game.EffectInvisible, TurnsRemaining: 1}); err != nil {
		t.Fatalf("add effect: %v", err)
	}
	hidden := NewAbilityCommand("p1", "vanish", "")
	if err := hidden.Validate(ctx); !errors.Is(err, ErrPrereqNotMet) {
		t.Fatalf("expected ErrPrereqNotMet while invisible, got %v", err)
	}
}

func TestSelfTargetIsForced(t *testing.T) {
	actor := fighter("p1", "Human", "Warrior", "shieldWall")
	other := fighter("p2", "Human", "Priest", "heal")
	ctx := testContext(game.PhaseAction, actor, other)

	c := NewAbilityCommand("p1", "shieldWall", "p2")
	if err := c.Validate(ctx); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.TargetID() != "p1" {
		t.Errorf("self-targeted ability must aim at the actor, got %s", c.TargetID())
	}
}

func TestAdaptabilitySwapsSameLevelAbility(t *testing.T) {
	actor := fighter("p1", "Human", "Warrior", "slash", "shieldWall")
	ctx := testContext(game.PhaseAction, actor)
	actor.RacialUsesLeft = 1

	// slash and backstab both unlock at level 1.
	c := NewAdaptabilityCommand("p1", "slash", "backstab")
	if err := c.Validate(ctx); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := c.Execute(ctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !actor.HasUnlocked("backstab") || actor.HasUnlocked("slash") {
		t.Errorf("swap not applied: %v", actor.UnlockedAbilities)
	}
	if actor.RacialUsesLeft != 0 {
		t.Errorf("racial use not consumed")
	}

	// shieldWall unlocks at 2; a level-1 replacement is rejected.
	mismatch := NewAdaptabilityCommand("p1", "shieldWall", "smite")
	if err := mismatch.Validate(ctx); !errors.Is(err, ErrPrereqNotMet) {
		t.Fatalf("expected unlock-level mismatch rejection, got %v", err)
	}
}

func TestGenericReadyToggles(t *testing.T) {
	player := fighter("p1", "Human", "Warrior", "slash")
	ctx := testContext(game.PhaseResults, player)
	p := NewProcessor(zap.NewNop(), nil)

	if err := p.RunImmediate(ctx, NewGenericCommand("p1", KindReady, "")); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if !player.IsReady {
		t.Errorf("ready flag not set")
	}
	if err := p.RunImmediate(ctx, NewGenericCommand("p1", KindNotReady, "")); err != nil {
		t.Fatalf("not_ready: %v", err)
	}
	if player.IsReady {
		t.Errorf("ready flag not cleared")
	}

	ctx.Phase = game.PhaseAction
	if err := p.RunImmediate(ctx, NewGenericCommand("p1", KindReady, "")); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("ready during action phase must fail, got %v", err)
	}
}

func TestGenericChatRequiresMessage(t *testing.T) {
	player := fighter("p1", "Human", "Warrior", "slash")
	player.IsAlive = false // dead players can still chat
	ctx := testContext(game.PhaseAction, player)
	p := NewProcessor(zap.NewNop(), nil)

	if err := p.RunImmediate(ctx, NewGenericCommand("p1", KindChat, "")); err == nil {
		t.Fatalf("empty chat must be rejected")
	}
	if err := p.RunImmediate(ctx, NewGenericCommand("p1", KindChat, "gg")); err != nil {
		t.Fatalf("chat from dead player must pass: %v", err)
	}
}
