// Package command implements the player action pipeline: validated
// command objects, per-player queues, and priority-ordered execution at
// round resolution. Commands are created from socket payloads, validated
// immediately for fast feedback, and revalidated at execution time since
// room state moves between submission and resolution.
package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/warlockgg/warlock-server/internal/catalog"
	"github.com/warlockgg/warlock-server/internal/eventbus"
	"github.com/warlockgg/warlock-server/internal/game"
)

var (
	ErrPlayerNotFound   = errors.New("player not in room")
	ErrPlayerDead       = errors.New("player is dead")
	ErrWrongPhase       = errors.New("action not allowed in this phase")
	ErrAbilityLocked    = errors.New("ability not unlocked")
	ErrOnCooldown       = errors.New("ability on cooldown")
	ErrInvalidTarget    = errors.New("invalid target")
	ErrTargetDead       = errors.New("target is dead")
	ErrMonsterDead      = errors.New("monster is already dead")
	ErrPrereqNotMet     = errors.New("ability prerequisite not met")
	ErrBadTransition    = errors.New("illegal command status transition")
	ErrAlreadyExecuting = errors.New("command is executing")
)

// Status is a command's lifecycle state. Transitions only move forward;
// cancelled is terminal and reachable from any state except executing.
type Status string

const (
	StatusPending    Status = "pending"
	StatusValidating Status = "validating"
	StatusValidated  Status = "validated"
	StatusExecuting  Status = "executing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var statusOrder = map[Status]int{
	StatusPending:    0,
	StatusValidating: 1,
	StatusValidated:  2,
	StatusExecuting:  3,
	StatusCompleted:  4,
	StatusFailed:     4,
	StatusCancelled:  4,
}

// Context is the room state a command validates and executes against. The
// processor owns one per resolution pass; Coord is filled per command.
type Context struct {
	Phase   game.Phase
	Room    *catalog.RoomContext
	Catalog catalog.ContentCatalog
	Bus     *eventbus.Bus
	Coord   catalog.CoordinationInfo
}

// Summary is the client-facing digest of a queued command.
type Summary struct {
	ID          string    `json:"commandId"`
	PlayerID    string    `json:"playerId"`
	ActionType  string    `json:"actionType"`
	TargetID    string    `json:"targetId,omitempty"`
	Status      Status    `json:"status"`
	Priority    int       `json:"priority"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Command is one queued player action.
type Command interface {
	ID() string
	PlayerID() string
	ActionType() string
	Priority() int
	SubmittedAt() time.Time
	Status() Status

	Validate(ctx *Context) error
	Execute(ctx *Context) error
	Cancel() error
	Summary() Summary
}

// base carries the fields and status machine shared by all commands.
type base struct {
	id          string
	playerID    string
	actionType  string
	priority    int
	submittedAt time.Time
	status      Status
}

func newBase(id, playerID, actionType string, priority int) base {
	return base{
		id:          id,
		playerID:    playerID,
		actionType:  actionType,
		priority:    priority,
		submittedAt: time.Now().UTC(),
		status:      StatusPending,
	}
}

func (b *base) ID() string             { return b.id }
func (b *base) PlayerID() string       { return b.playerID }
func (b *base) ActionType() string     { return b.actionType }
func (b *base) Priority() int          { return b.priority }
func (b *base) SubmittedAt() time.Time { return b.submittedAt }
func (b *base) Status() Status         { return b.status }

// transition advances the status machine, rejecting backward moves and
// moves out of a terminal state.
func (b *base) transition(to Status) error {
	from := b.status
	if from == StatusCompleted || from == StatusFailed || from == StatusCancelled {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, to)
	}
	if to == StatusCancelled {
		if from == StatusExecuting {
			return fmt.Errorf("%w: cancel while executing", ErrAlreadyExecuting)
		}
		b.status = to
		return nil
	}
	if statusOrder[to] <= statusOrder[from] {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, to)
	}
	b.status = to
	return nil
}

// Cancel marks the command cancelled unless it is mid-execution or
// already terminal.
func (b *base) Cancel() error {
	return b.transition(StatusCancelled)
}

func (b *base) summary(targetID string) Summary {
	return Summary{
		ID:          b.id,
		PlayerID:    b.playerID,
		ActionType:  b.actionType,
		TargetID:    targetID,
		Status:      b.status,
		Priority:    b.priority,
		SubmittedAt: b.submittedAt,
	}
}
