package command

import (
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/eventbus"
	"github.com/warlockgg/warlock-server/internal/events"
	"github.com/warlockgg/warlock-server/internal/game"
	"github.com/warlockgg/warlock-server/internal/observability"
)

func testProcessor() *Processor {
	return NewProcessor(zap.NewNop(), observability.NewTestMetrics())
}

func TestSubmitStampsPlayerState(t *testing.T) {
	actor := fighter("p1", "Human", "Pyromancer", "fireball")
	target := fighter("p2", "Human", "Priest", "heal")
	ctx := testContext(game.PhaseAction, actor, target)
	p := testProcessor()

	c := NewAbilityCommand("p1", "fireball", "p2")
	if err := p.SubmitAction(ctx, c); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !actor.HasSubmittedAction || actor.ActionSubmissionTime.IsZero() {
		t.Errorf("submission flag/time not stamped server-side")
	}
	if c.Status() != StatusValidated {
		t.Errorf("status = %s, want validated", c.Status())
	}
	if !p.HasPending("p1") {
		t.Errorf("command not queued")
	}
}

func TestSubmitRejectionEmitsActionRejected(t *testing.T) {
	actor := fighter("p1", "Human", "Pyromancer", "fireball")
	ctx := testContext(game.PhaseAction, actor)

	var rejections atomic.Int32
	ctx.Bus.On(events.ActionRejected, func(e eventbus.Event) error {
		if e.Payload["playerId"] != "p1" {
			t.Errorf("rejection for wrong player: %v", e.Payload)
		}
		rejections.Add(1)
		return nil
	})

	p := testProcessor()
	err := p.SubmitAction(ctx, NewAbilityCommand("p1", "fireball", "nobody"))
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if rejections.Load() != 1 {
		t.Errorf("no action.rejected event emitted")
	}
	if p.PendingCount() != 0 {
		t.Errorf("rejected command must not queue")
	}
}

func TestResubmissionReplacesPending(t *testing.T) {
	actor := fighter("p1", "Human", "Priest", "smite", "heal")
	target := fighter("p2", "Human", "Warrior", "slash")
	ctx := testContext(game.PhaseAction, actor, target)
	p := testProcessor()

	first := NewAbilityCommand("p1", "smite", "p2")
	if err := p.SubmitAction(ctx, first); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second := NewAbilityCommand("p1", "heal", "p2")
	if err := p.SubmitAction(ctx, second); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	if p.PendingCount() != 1 {
		t.Fatalf("expected one pending command, got %d", p.PendingCount())
	}
	if first.Status() != StatusCancelled {
		t.Errorf("replaced command must be cancelled, got %s", first.Status())
	}

	summaries := p.Summaries()
	if len(summaries) != 1 || summaries[0].ActionType != "heal" {
		t.Errorf("queue holds wrong command: %+v", summaries)
	}
}

func TestRevalidationRejectsStaleCommand(t *testing.T) {
	actor := fighter("p1", "Human", "Pyromancer", "fireball")
	target := fighter("p2", "Human", "Priest", "heal")
	ctx := testContext(game.PhaseAction, actor, target)
	p := testProcessor()

	c := NewAbilityCommand("p1", "fireball", "p2")
	if err := p.SubmitAction(ctx, c); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var rejections atomic.Int32
	ctx.Bus.On(events.ActionRejected, func(eventbus.Event) error {
		rejections.Add(1)
		return nil
	})

	// The target dies between submission and resolution.
	target.IsAlive = false
	target.HP = 0

	if err := p.ProcessCommands(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if c.Status() != StatusFailed {
		t.Errorf("stale command must fail, got %s", c.Status())
	}
	if rejections.Load() != 1 {
		t.Errorf("revalidation failure must emit action.rejected")
	}
	if target.HP != 0 || actor.Stats.TotalDamageDealt != 0 {
		t.Errorf("stale command must not execute")
	}
	if actor.HasSubmittedAction {
		t.Errorf("submission flag must clear when the command fails revalidation")
	}
}

func TestProcessOrdersByPriorityThenTime(t *testing.T) {
	warrior := fighter("p1", "Human", "Warrior", "slash", "shieldWall")
	mage := fighter("p2", "Human", "Pyromancer", "fireball")
	ctx := testContext(game.PhaseAction, warrior, mage)
	p := testProcessor()

	// The attack is submitted first, but the defense buff (higher
	// priority) must land before it.
	if err := p.SubmitAction(ctx, NewAbilityCommand("p2", "fireball", "p1")); err != nil {
		t.Fatalf("submit fireball: %v", err)
	}
	if err := p.SubmitAction(ctx, NewAbilityCommand("p1", "shieldWall", "")); err != nil {
		t.Fatalf("submit shieldWall: %v", err)
	}

	if err := p.ProcessCommands(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	// shieldWall grants 12 armor, so fireball's 25 lands as 13.
	if warrior.HP != 87 {
		t.Errorf("defense did not resolve first: hp=%d, want 87", warrior.HP)
	}
	if !warrior.HasEffect(game.EffectShielded) {
		t.Errorf("shieldWall effect missing")
	}
}

func TestProcessCoordinationBonus(t *testing.T) {
	a := fighter("p1", "Human", "Warrior", "slash")
	b := fighter("p2", "Human", "Warrior", "slash")
	victim := fighter("p3", "Human", "Priest", "heal")
	ctx := testContext(game.PhaseAction, a, b, victim)
	p := testProcessor()

	if err := p.SubmitAction(ctx, NewAbilityCommand("p1", "slash", "p3")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := p.SubmitAction(ctx, NewAbilityCommand("p2", "slash", "p3")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := p.ProcessCommands(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	// Each slash: 20 + 20*1/4 = 25. Two of them leave 50 hp.
	if victim.HP != 50 {
		t.Errorf("coordination bonus wrong: hp=%d, want 50", victim.HP)
	}
}

func TestProcessBloodRageArmsNextAttack(t *testing.T) {
	orc := fighter("p1", "Orc", "Warrior", "slash")
	victim := fighter("p2", "Human", "Priest", "heal")
	ctx := testContext(game.PhaseAction, orc, victim)
	p := testProcessor()

	if err := p.SubmitRacial(ctx, NewRacialCommand("p1")); err != nil {
		t.Fatalf("submit racial: %v", err)
	}
	if err := p.SubmitAction(ctx, NewAbilityCommand("p1", "slash", "p2")); err != nil {
		t.Fatalf("submit slash: %v", err)
	}
	if err := p.ProcessCommands(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	// slash 20 * 1.1 orc = 22, doubled by blood rage = 44.
	if victim.HP != 56 {
		t.Errorf("blood rage not applied: hp=%d, want 56", victim.HP)
	}
	// Blood rage costs 10 self-damage.
	if orc.HP != 90 {
		t.Errorf("self damage missing: hp=%d, want 90", orc.HP)
	}
	if orc.RacialUsesLeft != 2 {
		t.Errorf("racial use not consumed: %d", orc.RacialUsesLeft)
	}
}

func TestProcessSetsCooldown(t *testing.T) {
	actor := fighter("p1", "Human", "Pyromancer", "fireball")
	target := fighter("p2", "Human", "Priest", "heal")
	ctx := testContext(game.PhaseAction, actor, target)
	p := testProcessor()

	if err := p.SubmitAction(ctx, NewAbilityCommand("p1", "fireball", "p2")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := p.ProcessCommands(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	// Cooldown 2 plus the end-of-round tick it absorbs.
	if actor.AbilityCooldowns["fireball"] != 3 {
		t.Errorf("cooldown = %d, want 3", actor.AbilityCooldowns["fireball"])
	}
	actor.TickCooldowns()
	if !actor.OnCooldown("fireball") {
		t.Errorf("fireball must still cool down after the firing round")
	}
}

func TestClearPlayerCommands(t *testing.T) {
	actor := fighter("p1", "Orc", "Warrior", "slash")
	target := fighter("p2", "Human", "Priest", "heal")
	ctx := testContext(game.PhaseAction, actor, target)
	p := testProcessor()

	if err := p.SubmitAction(ctx, NewAbilityCommand("p1", "slash", "p2")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := p.SubmitRacial(ctx, NewRacialCommand("p1")); err != nil {
		t.Fatalf("submit racial: %v", err)
	}

	if removed := p.ClearPlayerCommands("p1"); removed != 2 {
		t.Fatalf("removed %d commands, want 2", removed)
	}
	if p.PendingCount() != 0 {
		t.Errorf("queue not empty after clear")
	}

	if err := p.ProcessCommands(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if target.HP != 100 {
		t.Errorf("cleared command still executed")
	}
}

func TestCancelCommandByID(t *testing.T) {
	actor := fighter("p1", "Human", "Warrior", "slash")
	target := fighter("p2", "Human", "Priest", "heal")
	ctx := testContext(game.PhaseAction, actor, target)
	p := testProcessor()

	c := NewAbilityCommand("p1", "slash", "p2")
	if err := p.SubmitAction(ctx, c); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !p.CancelCommand("p1", c.ID()) {
		t.Fatalf("cancel by id failed")
	}
	if p.CancelCommand("p1", c.ID()) {
		t.Errorf("second cancel must report not found")
	}
	if c.Status() != StatusCancelled {
		t.Errorf("status = %s, want cancelled", c.Status())
	}
}

func TestUpdateTargetsRetargetsQueuedCommands(t *testing.T) {
	actor := fighter("p1", "Human", "Warrior", "slash")
	target := fighter("old-id", "Human", "Priest", "heal")
	ctx := testContext(game.PhaseAction, actor, target)
	p := testProcessor()

	if err := p.SubmitAction(ctx, NewAbilityCommand("p1", "slash", "old-id")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if updated := p.UpdateTargets("old-id", "new-id"); updated != 1 {
		t.Fatalf("updated %d commands, want 1", updated)
	}
	if got := p.Summaries()[0].TargetID; got != "new-id" {
		t.Errorf("target = %s, want new-id", got)
	}
}

func TestSubmissionDuringProcessingDefersToNextRound(t *testing.T) {
	actor := fighter("p1", "Human", "Warrior", "slash")
	target := fighter("p2", "Human", "Priest", "heal", "smite")
	ctx := testContext(game.PhaseAction, actor, target)
	p := testProcessor()

	// A handler reacting to damage submits a fresh command mid-pass.
	ctx.Bus.On(events.DamageApplied, func(eventbus.Event) error {
		return p.SubmitAction(ctx, NewAbilityCommand("p2", "smite", "p1"))
	})

	if err := p.SubmitAction(ctx, NewAbilityCommand("p1", "slash", "p2")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := p.ProcessCommands(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	// The mid-pass submission queued but did not run this round.
	if p.PendingCount() != 1 {
		t.Fatalf("deferred command missing, pending=%d", p.PendingCount())
	}
	if actor.HP != 100 {
		t.Errorf("deferred command executed this round: hp=%d", actor.HP)
	}
	if target.HP != 80 {
		t.Errorf("original command result wrong: hp=%d, want 80", target.HP)
	}
}
