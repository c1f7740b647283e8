package command

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/catalog"
	"github.com/warlockgg/warlock-server/internal/events"
	"github.com/warlockgg/warlock-server/internal/observability"
)

var ErrAlreadyProcessing = errors.New("resolution already in progress")

// Processor owns the per-player command queues and the resolution pass.
// Each player holds at most one pending ability command; racial commands
// queue alongside and never displace it. All entry points take the room
// context because validation reads live room state.
type Processor struct {
	mu         sync.Mutex
	pending    map[string]*AbilityCommand
	racial     map[string][]Command
	processing bool

	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewProcessor(logger *zap.Logger, metrics *observability.Metrics) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		pending: make(map[string]*AbilityCommand),
		racial:  make(map[string][]Command),
		logger:  logger,
		metrics: metrics,
	}
}

// SubmitAction validates and queues an ability command. A pending
// command from the same player is replaced; submissions that arrive while
// a resolution pass runs land in the next round's queue. On success the
// player's submission flag and timestamp are stamped server-side.
func (p *Processor) SubmitAction(ctx *Context, c *AbilityCommand) error {
	if err := p.validate(ctx, c); err != nil {
		p.reject(ctx, c, err)
		return err
	}

	p.mu.Lock()
	if old, ok := p.pending[c.playerID]; ok {
		_ = old.Cancel()
	}
	p.pending[c.playerID] = c
	p.mu.Unlock()

	actor := ctx.Room.Players[c.playerID]
	actor.HasSubmittedAction = true
	actor.ActionSubmissionTime = time.Now().UTC()

	if p.metrics != nil {
		p.metrics.CommandsSubmitted.WithLabelValues(c.actionType).Inc()
	}
	ctx.Bus.Emit(events.ActionSubmitted, map[string]any{
		"playerId":   c.playerID,
		"actionType": "ability",
		"abilityId":  c.abilityKey,
		"targetId":   c.targetID,
		"commandId":  c.id,
	})
	return nil
}

// SubmitRacial validates and queues a racial or adaptability command
// alongside the player's ability command.
func (p *Processor) SubmitRacial(ctx *Context, c Command) error {
	if err := p.validate(ctx, c); err != nil {
		p.reject(ctx, c, err)
		return err
	}

	p.mu.Lock()
	p.racial[c.PlayerID()] = append(p.racial[c.PlayerID()], c)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.CommandsSubmitted.WithLabelValues(c.ActionType()).Inc()
	}
	return nil
}

func (p *Processor) validate(ctx *Context, c Command) error {
	b := baseOf(c)
	if err := b.transition(StatusValidating); err != nil {
		return err
	}
	if err := c.Validate(ctx); err != nil {
		_ = b.transition(StatusFailed)
		return err
	}
	return b.transition(StatusValidated)
}

func (p *Processor) reject(ctx *Context, c Command, cause error) {
	if p.metrics != nil {
		p.metrics.CommandReject.WithLabelValues(rejectReason(cause)).Inc()
	}
	ctx.Bus.Emit(events.ActionRejected, map[string]any{
		"playerId":  c.PlayerID(),
		"reason":    cause.Error(),
		"commandId": c.ID(),
	})
}

// RunImmediate validates and executes a command in place, bypassing the
// queues. Chat, ready toggles and spectate requests use this path.
func (p *Processor) RunImmediate(ctx *Context, c Command) error {
	if err := p.validate(ctx, c); err != nil {
		p.reject(ctx, c, err)
		return err
	}
	b := baseOf(c)
	if err := b.transition(StatusExecuting); err != nil {
		return err
	}
	if err := c.Execute(ctx); err != nil {
		_ = b.transition(StatusFailed)
		p.reject(ctx, c, err)
		return err
	}
	_ = b.transition(StatusCompleted)
	if p.metrics != nil {
		p.metrics.CommandsCompleted.Inc()
	}
	return nil
}

// CancelCommand cancels a specific queued command, reporting whether it
// was found and cancellable.
func (p *Processor) CancelCommand(playerID, commandID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.pending[playerID]; ok && c.ID() == commandID {
		if c.Cancel() == nil {
			delete(p.pending, playerID)
			return true
		}
		return false
	}
	for i, c := range p.racial[playerID] {
		if c.ID() == commandID {
			if c.Cancel() == nil {
				p.racial[playerID] = append(p.racial[playerID][:i], p.racial[playerID][i+1:]...)
				return true
			}
			return false
		}
	}
	return false
}

// ClearPlayerCommands drops everything queued for a player, used when the
// player disconnects or dies before resolution.
func (p *Processor) ClearPlayerCommands(playerID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	if c, ok := p.pending[playerID]; ok {
		_ = c.Cancel()
		delete(p.pending, playerID)
		removed++
	}
	for _, c := range p.racial[playerID] {
		_ = c.Cancel()
		removed++
	}
	delete(p.racial, playerID)
	return removed
}

// UpdateTargets rewrites queued ability commands aimed at oldID, used
// when a player's id changes on reconnect.
func (p *Processor) UpdateTargets(oldID, newID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	updated := 0
	for _, c := range p.pending {
		if c.TargetID() == oldID {
			c.RetargetTo(newID)
			updated++
		}
	}
	return updated
}

// PendingCount returns how many players have an ability command queued.
func (p *Processor) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// HasPending reports whether a player holds a queued ability command.
func (p *Processor) HasPending(playerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[playerID]
	return ok
}

// Summaries lists the queued commands, for state sync on reconnect.
func (p *Processor) Summaries() []Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Summary, 0, len(p.pending))
	for _, c := range p.pending {
		out = append(out, c.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

// ProcessCommands runs one resolution pass: racial commands first, then
// ability commands ordered by priority (descending) with submission time
// breaking ties. Every command is revalidated against current state
// before executing since earlier commands may have killed its actor or
// target. Commands submitted during the pass queue for the next round.
func (p *Processor) ProcessCommands(ctx *Context) error {
	p.mu.Lock()
	if p.processing {
		p.mu.Unlock()
		return ErrAlreadyProcessing
	}
	p.processing = true
	pending := p.pending
	racial := p.racial
	p.pending = make(map[string]*AbilityCommand)
	p.racial = make(map[string][]Command)
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.processing = false
		p.mu.Unlock()
	}()

	armed := p.runRacials(ctx, racial)
	p.runAbilities(ctx, pending, armed)
	return nil
}

// armedRacials are the attack modifiers racial commands switch on for the
// same round.
type armedRacials struct {
	bloodRage  bool
	keenSenses bool
}

func (p *Processor) runRacials(ctx *Context, racial map[string][]Command) map[string]armedRacials {
	ordered := make([]Command, 0)
	for _, cmds := range racial {
		ordered = append(ordered, cmds...)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SubmittedAt().Before(ordered[j].SubmittedAt())
	})

	armed := make(map[string]armedRacials)
	for _, c := range ordered {
		if c.Status() == StatusCancelled {
			continue
		}
		if !p.executeOne(ctx, c) {
			continue
		}
		a := armed[c.PlayerID()]
		switch c.ActionType() {
		case "bloodRage":
			a.bloodRage = true
		case "keenSenses":
			a.keenSenses = true
		}
		armed[c.PlayerID()] = a
	}
	return armed
}

func (p *Processor) runAbilities(ctx *Context, pending map[string]*AbilityCommand, armed map[string]armedRacials) {
	ordered := make([]*AbilityCommand, 0, len(pending))
	for _, c := range pending {
		ordered = append(ordered, c)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority() != ordered[j].Priority() {
			return ordered[i].Priority() > ordered[j].Priority()
		}
		return ordered[i].SubmittedAt().Before(ordered[j].SubmittedAt())
	})

	// Coordination counts damage-dealing commands per target before any
	// of them run.
	attackers := make(map[string]int)
	for _, c := range ordered {
		if c.resolved && c.def.Category == "Attack" {
			attackers[c.targetID]++
		}
	}

	for _, c := range ordered {
		if c.Status() == StatusCancelled {
			continue
		}
		a := armed[c.PlayerID()]
		ctx.Coord = catalog.CoordinationInfo{
			BloodRage:  a.bloodRage,
			KeenSenses: a.keenSenses,
		}
		if c.resolved && c.def.Category == "Attack" {
			ctx.Coord.SameTargetCount = attackers[c.targetID] - 1
		}
		p.executeOne(ctx, c)
	}
	ctx.Coord = catalog.CoordinationInfo{}
}

// executeOne revalidates and runs a single command, driving its status
// machine. It reports whether the command completed.
func (p *Processor) executeOne(ctx *Context, c Command) bool {
	b := baseOf(c)

	// Revalidate: state may have shifted since submission.
	if err := c.Validate(ctx); err != nil {
		_ = b.transition(StatusFailed)
		// The submission flag clears so the player may resubmit while the
		// phase still permits.
		if _, isAbility := c.(*AbilityCommand); isAbility {
			if actor, ok := ctx.Room.Players[c.PlayerID()]; ok {
				actor.HasSubmittedAction = false
			}
		}
		p.reject(ctx, c, err)
		p.logger.Debug("command failed revalidation",
			zap.String("player_id", c.PlayerID()),
			zap.String("action_type", c.ActionType()),
			zap.Error(err))
		return false
	}

	if err := b.transition(StatusExecuting); err != nil {
		return false
	}
	if err := c.Execute(ctx); err != nil {
		_ = b.transition(StatusFailed)
		p.reject(ctx, c, err)
		p.logger.Warn("command execution failed",
			zap.String("player_id", c.PlayerID()),
			zap.String("action_type", c.ActionType()),
			zap.Error(err))
		return false
	}
	_ = b.transition(StatusCompleted)
	if p.metrics != nil {
		p.metrics.CommandsCompleted.Inc()
	}
	return true
}

// baseOf reaches the embedded status machine of any concrete command.
func baseOf(c Command) *base {
	switch cmd := c.(type) {
	case *AbilityCommand:
		return &cmd.base
	case *RacialCommand:
		return &cmd.base
	case *AdaptabilityCommand:
		return &cmd.base
	case *GenericCommand:
		return &cmd.base
	}
	panic("unknown command type")
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrPlayerNotFound):
		return "player_not_found"
	case errors.Is(err, ErrPlayerDead):
		return "player_dead"
	case errors.Is(err, ErrWrongPhase):
		return "wrong_phase"
	case errors.Is(err, ErrAbilityLocked):
		return "ability_locked"
	case errors.Is(err, ErrOnCooldown):
		return "on_cooldown"
	case errors.Is(err, ErrInvalidTarget), errors.Is(err, ErrTargetDead), errors.Is(err, ErrMonsterDead):
		return "invalid_target"
	case errors.Is(err, ErrPrereqNotMet):
		return "prerequisite"
	default:
		return "other"
	}
}
