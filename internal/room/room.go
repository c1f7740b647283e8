// Package room hosts the per-game actor: one goroutine owning all state
// for one game code, fed by a buffered task channel. Everything the
// other packages expose — bus, processor, controller, resolver — is
// assembled here and driven from the actor loop, so no game state needs
// locking. A panicking actor is logged with its stack and restarted by
// the manager from the latest snapshot.
package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/auth"
	"github.com/warlockgg/warlock-server/internal/catalog"
	"github.com/warlockgg/warlock-server/internal/command"
	"github.com/warlockgg/warlock-server/internal/config"
	"github.com/warlockgg/warlock-server/internal/eventbus"
	"github.com/warlockgg/warlock-server/internal/events"
	"github.com/warlockgg/warlock-server/internal/game"
	"github.com/warlockgg/warlock-server/internal/observability"
	"github.com/warlockgg/warlock-server/internal/phase"
	"github.com/warlockgg/warlock-server/internal/store"
	"github.com/warlockgg/warlock-server/internal/taskq"
)

var (
	ErrRoomStopped   = errors.New("room actor stopped")
	ErrRoomFull      = errors.New("room is full")
	ErrRoomFrozen    = errors.New("room is frozen after a fatal error")
	ErrNameTaken     = errors.New("name already taken")
	ErrNotHost       = errors.New("only the host can do that")
	ErrNotEnough     = errors.New("not enough players")
	ErrNotSelected   = errors.New("players still selecting race and class")
	ErrBadSelection  = errors.New("race and class are not compatible")
	ErrUnknownPlayer = errors.New("unknown player")
)

const (
	basePlayerHP       = 100
	monsterHPPerPlayer = 100
	monsterBaseDamage  = 10
	threatDecay        = 0.5
	maxAbilityLevel    = 4
)

// Room is one game's actor. Exported methods marshal onto the actor
// goroutine; all unexported state is owned by it.
type Room struct {
	GameCode string

	ctx     context.Context
	cancel  context.CancelFunc
	onCrash func(gameCode string)
	taskCh  chan task
	frozen  atomic.Bool

	logger  *zap.Logger
	metrics *observability.Metrics
	cfg     config.Config
	tracer  trace.Tracer

	bus        *eventbus.Bus
	processor  *command.Processor
	controller *phase.Controller
	resolver   *Resolver
	catalog    catalog.ContentCatalog
	snapshots  store.SnapshotStore
	archive    *taskq.Publisher
	sessions   *auth.Sessions

	players      map[string]*game.Player
	monster      *game.Monster
	hostID       string
	passcodeHash string
	winner       string

	disconnectedAt map[string]time.Time
	actionTimer    *time.Timer
	readyTimer     *time.Timer
}

type task struct {
	fn   func()
	done chan struct{}
}

// Deps bundles the shared services a room needs.
type Deps struct {
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Config    config.Config
	Catalog   catalog.ContentCatalog
	Snapshots store.SnapshotStore
	Archive   *taskq.Publisher
	Sessions  *auth.Sessions
	Tracer    trace.Tracer
}

// New creates a room actor for gameCode, restoring from the latest
// snapshot when one exists, and starts its loop.
func New(loadCtx, loopCtx context.Context, gameCode, passcodeHash string, deps Deps, onCrash func(string)) (*Room, error) {
	if loopCtx == nil {
		loopCtx = context.Background()
	}
	if loadCtx == nil {
		loadCtx = context.Background()
	}
	actorCtx, cancel := context.WithCancel(loopCtx)

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("game_code", gameCode))

	tracer := deps.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("room")
	}

	bus := eventbus.New(gameCode, deps.Config.HistorySize, logger)
	eventbus.InstallStandard(bus, eventbus.ChainConfig{
		SlowThreshold:    deps.Config.SlowEventThreshold,
		RateWindow:       deps.Config.RateLimitWindow,
		RateMax:          deps.Config.RateLimitMax,
		RateExempt:       []events.Type{events.PhaseChanged, events.GameEnded, events.SystemWarning, events.SystemError},
		StrictValidation: true,
	}, logger, deps.Metrics)

	r := &Room{
		GameCode:       gameCode,
		ctx:            actorCtx,
		cancel:         cancel,
		onCrash:        onCrash,
		taskCh:         make(chan task, 256),
		logger:         logger,
		metrics:        deps.Metrics,
		cfg:            deps.Config,
		tracer:         tracer,
		bus:            bus,
		processor:      command.NewProcessor(logger, deps.Metrics),
		controller:     phase.NewController(bus, deps.Metrics),
		catalog:        deps.Catalog,
		snapshots:      deps.Snapshots,
		archive:        deps.Archive,
		sessions:       deps.Sessions,
		players:        make(map[string]*game.Player),
		passcodeHash:   passcodeHash,
		disconnectedAt: make(map[string]time.Time),
	}
	r.resolver = NewResolver(r)

	if err := r.loadState(loadCtx); err != nil {
		cancel()
		return nil, err
	}

	// Late commands for a disconnecting player are dropped from the
	// queues rather than executed against a ghost.
	bus.On(events.PlayerDisconnected, func(e eventbus.Event) error {
		if id, ok := e.Payload["playerId"].(string); ok {
			r.processor.ClearPlayerCommands(id)
		}
		return nil
	})

	go r.loop(actorCtx)
	return r, nil
}

func (r *Room) loadState(ctx context.Context) error {
	if r.snapshots == nil {
		return nil
	}
	snap, err := r.snapshots.LoadLatest(ctx, r.GameCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load room %s: %w", r.GameCode, err)
	}
	if err := r.restoreSnapshot(snap.State); err != nil {
		return fmt.Errorf("restore room %s: %w", r.GameCode, err)
	}
	r.logger.Info("room restored from snapshot",
		zap.Int("round", snap.Round),
		zap.String("phase", snap.Phase))
	return nil
}

func (r *Room) loop(ctx context.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("room actor crashed",
				zap.Any("panic", recovered),
				zap.ByteString("stack", debug.Stack()))
			if r.onCrash != nil {
				go r.onCrash(r.GameCode)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.taskCh:
			t.fn()
			close(t.done)
		}
	}
}

// do runs fn on the actor goroutine and waits for it.
func (r *Room) do(fn func()) error {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case r.taskCh <- t:
	case <-r.ctx.Done():
		return ErrRoomStopped
	}
	select {
	case <-t.done:
		return nil
	case <-r.ctx.Done():
		return ErrRoomStopped
	}
}

// call is do with an error result.
func (r *Room) call(fn func() error) error {
	var err error
	if doErr := r.do(func() { err = fn() }); doErr != nil {
		return doErr
	}
	return err
}

// Stop halts the actor. Pending tasks are abandoned.
func (r *Room) Stop() {
	r.cancel()
	r.bus.Destroy()
}

// Bus exposes the room's event bus for transport subscription.
func (r *Room) Bus() *eventbus.Bus { return r.bus }

func (r *Room) cmdContext() *command.Context {
	return &command.Context{
		Phase: r.controller.Phase(),
		Room: &catalog.RoomContext{
			GameCode: r.GameCode,
			Round:    r.controller.Round(),
			Players:  r.players,
			Monster:  r.monster,
		},
		Catalog: r.catalog,
		Bus:     r.bus,
	}
}

// Join seats a new player during the lobby phase and returns the stable
// player id plus a session token for reconnects.
func (r *Room) Join(name, passcode string) (playerID, token string, err error) {
	err = r.call(func() error {
		if r.frozen.Load() {
			return ErrRoomFrozen
		}
		if err := auth.CheckPasscode(r.passcodeHash, passcode); err != nil {
			return err
		}
		if r.controller.Phase() != game.PhaseLobby {
			return fmt.Errorf("game already started")
		}
		if len(r.players) >= r.cfg.MaxPlayers {
			return ErrRoomFull
		}
		if !r.nameAvailable(name) {
			return fmt.Errorf("%w: %s", ErrNameTaken, name)
		}

		p := game.NewPlayer(uuid.NewString(), name)
		r.players[p.ID] = p
		if r.hostID == "" {
			r.hostID = p.ID
		}
		playerID = p.ID

		r.bus.Emit(events.PlayerJoined, map[string]any{
			"playerId": p.ID,
			"name":     name,
		})
		return nil
	})
	if err != nil {
		return "", "", err
	}
	if r.sessions != nil {
		token, err = r.sessions.Issue(playerID, r.GameCode)
		if err != nil {
			return "", "", err
		}
	}
	return playerID, token, nil
}

// NameAvailable reports whether a name is free in this room.
func (r *Room) NameAvailable(name string) bool {
	available := false
	_ = r.do(func() { available = r.nameAvailable(name) })
	return available
}

func (r *Room) nameAvailable(name string) bool {
	if name == "" {
		return false
	}
	for _, p := range r.players {
		if p.Name == name {
			return false
		}
	}
	return true
}

// SelectCharacter assigns race and class, rolling starting hp and
// level-1 abilities from the catalog.
func (r *Room) SelectCharacter(playerID, race, class string) error {
	return r.call(func() error {
		p, ok := r.players[playerID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
		}
		if r.controller.Phase() != game.PhaseLobby {
			return fmt.Errorf("selection is a lobby action")
		}

		attrs, err := r.catalog.GetRaceAttributes(race)
		if err != nil {
			return err
		}
		compatible := false
		for _, c := range attrs.CompatibleClasses {
			if c == class {
				compatible = true
				break
			}
		}
		if !compatible {
			return fmt.Errorf("%w: %s/%s", ErrBadSelection, race, class)
		}
		if _, err := r.catalog.GetClassAbilities(class); err != nil {
			return err
		}
		racial, err := r.catalog.GetRacialAbility(race)
		if err != nil {
			return err
		}

		p.Race = race
		p.Class = class
		p.MaxHP = int(float64(basePlayerHP) * attrs.HPModifier)
		p.HP = p.MaxHP
		p.RacialUsesLeft = racial.MaxUses
		p.UnlockedAbilities = nil
		r.unlockAbilities(p, 1)

		// Passive racials apply as permanent effects immediately.
		if racial.UsageLimit == catalog.UsagePassive {
			r.applyPassiveRacial(p, racial)
		}

		r.bus.Emit(events.PlayerStatusUpdated, map[string]any{
			"playerId": playerID,
			"kind":     "character_selected",
			"race":     race,
			"class":    class,
		})
		return nil
	})
}

func (r *Room) applyPassiveRacial(p *game.Player, racial catalog.RacialAbility) {
	if racial.ID != "stoneArmor" {
		return
	}
	effect, err := r.catalog.GetStatusEffectDefaults(game.EffectStoneArmor)
	if err != nil {
		return
	}
	if armor := racial.Params["armor"]; armor > 0 {
		effect.Magnitude = armor
	}
	if p.AddEffect(effect) == nil {
		r.controller.QueuePassiveActivation(phase.PassiveActivation{
			PlayerID: p.ID,
			Kind:     racial.ID,
			Detail:   fmt.Sprintf("armor %d", effect.Magnitude),
		})
	}
}

// unlockAbilities grants every class ability with UnlockAt <= level.
func (r *Room) unlockAbilities(p *game.Player, level int) {
	if level > maxAbilityLevel {
		level = maxAbilityLevel
	}
	defs, err := r.catalog.GetClassAbilities(p.Class)
	if err != nil {
		return
	}
	for _, def := range defs {
		if def.UnlockAt <= level && !p.HasUnlocked(def.Type) {
			p.UnlockedAbilities = append(p.UnlockedAbilities, def.Type)
		}
	}
}

// StartGame begins round 1: host-only, minimum players, everyone
// selected. Warlocks are assigned secretly, one per four players.
func (r *Room) StartGame(byPlayerID string) error {
	return r.call(func() error {
		if byPlayerID != r.hostID {
			return ErrNotHost
		}
		if len(r.players) < r.cfg.MinPlayers {
			return fmt.Errorf("%w: %d of %d", ErrNotEnough, len(r.players), r.cfg.MinPlayers)
		}
		for _, p := range r.players {
			if p.Race == "" || p.Class == "" {
				return fmt.Errorf("%w: %s", ErrNotSelected, p.Name)
			}
		}
		if r.controller.Phase() != game.PhaseLobby {
			return fmt.Errorf("game already started")
		}

		r.assignWarlocks()
		r.monster = game.NewMonster(monsterHPPerPlayer*len(r.players), monsterBaseDamage)

		r.bus.Emit(events.GameStarted, map[string]any{
			"playerCount": len(r.players),
			"round":       1,
		})
		r.controller.TransitionTo(game.PhaseAction)
		r.armActionTimeout()
		r.saveSnapshot()
		return nil
	})
}

// assignWarlocks marks one player in four (at least one) as a warlock.
func (r *Room) assignWarlocks() {
	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	count := len(ids) / 4
	if count < 1 {
		count = 1
	}
	for _, id := range ids[:count] {
		r.players[id].IsWarlock = true
	}
}

// SubmitAction queues a class-ability use. The racial toggles piggyback
// on the same message and queue their own racial command.
func (r *Room) SubmitAction(playerID, actionType, targetID string, bloodRage, keenSenses bool) error {
	return r.call(func() error {
		if r.frozen.Load() {
			return ErrRoomFrozen
		}
		ctx := r.cmdContext()

		if bloodRage || keenSenses {
			if err := r.processor.SubmitRacial(ctx, command.NewRacialCommand(playerID)); err != nil {
				return err
			}
			r.recordRacialPending(playerID)
		}

		c := command.NewAbilityCommand(playerID, actionType, targetID)
		if err := r.processor.SubmitAction(ctx, c); err != nil {
			return err
		}
		_ = r.controller.AddPendingAction(phase.PendingAction{
			PlayerID:       playerID,
			ActionType:     actionType,
			TargetID:       c.TargetID(),
			CommandID:      c.ID(),
			SubmissionTime: c.SubmittedAt(),
		})

		if r.allAliveSubmitted() {
			r.resolveRound()
		}
		return nil
	})
}

// UseRacialAbility queues the actor's racial invocation on its own.
func (r *Room) UseRacialAbility(playerID string) error {
	return r.call(func() error {
		if r.frozen.Load() {
			return ErrRoomFrozen
		}
		if err := r.processor.SubmitRacial(r.cmdContext(), command.NewRacialCommand(playerID)); err != nil {
			return err
		}
		r.recordRacialPending(playerID)
		return nil
	})
}

func (r *Room) recordRacialPending(playerID string) {
	_ = r.controller.AddPendingRacialAction(phase.PendingAction{
		PlayerID:       playerID,
		ActionType:     "racial",
		SubmissionTime: time.Now().UTC(),
	})
}

// Adaptability swaps one Human ability for another of the same level.
func (r *Room) Adaptability(playerID, oldAbility, newAbility string) error {
	return r.call(func() error {
		if r.frozen.Load() {
			return ErrRoomFrozen
		}
		return r.processor.RunImmediate(r.cmdContext(), command.NewAdaptabilityCommand(playerID, oldAbility, newAbility))
	})
}

// Chat relays a chat line through the command pipeline.
func (r *Room) Chat(playerID, message string) error {
	return r.call(func() error {
		return r.processor.RunImmediate(r.cmdContext(), command.NewGenericCommand(playerID, command.KindChat, message))
	})
}

// Spectate marks the player as watching. Dead players use this to keep
// receiving the round playback without holding up resolution.
func (r *Room) Spectate(playerID string) error {
	return r.call(func() error {
		return r.processor.RunImmediate(r.cmdContext(), command.NewGenericCommand(playerID, command.KindSpectate, ""))
	})
}

// NextReady flags the player ready for the next round. All living
// players ready advances immediately; a strict majority arms the grace
// timer instead.
func (r *Room) NextReady(playerID string) error {
	return r.call(func() error {
		if r.controller.Phase() != game.PhaseResults {
			return fmt.Errorf("ready is a results-phase action")
		}
		p, ok := r.players[playerID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
		}
		p.IsReady = true

		alive := r.aliveCount()
		majority := r.controller.SetReady(playerID, alive)
		r.bus.Emit(events.PlayerReady, map[string]any{
			"playerId": playerID,
			"ready":    true,
		})

		if r.controller.ReadyCount() >= alive {
			r.advanceRound()
			return nil
		}
		if majority {
			r.armReadyGrace()
		}
		return nil
	})
}

// armReadyGrace starts the majority fast-forward timer once. Actor
// goroutine only.
func (r *Room) armReadyGrace() {
	if r.readyTimer != nil {
		return
	}
	r.readyTimer = time.AfterFunc(r.cfg.ReadyGrace, func() {
		_ = r.do(func() {
			if r.controller.Phase() == game.PhaseResults && r.controller.MajorityReady(r.aliveCount()) {
				r.advanceRound()
			}
		})
	})
}

// maybeAdvanceReady re-evaluates the results-phase advance conditions.
// Seat removal can shrink the living set below the ready count, so the
// check cannot live in NextReady alone. Actor goroutine only.
func (r *Room) maybeAdvanceReady() {
	if r.controller.Phase() != game.PhaseResults {
		return
	}
	alive := r.aliveCount()
	if alive == 0 {
		return
	}
	if r.controller.ReadyCount() >= alive {
		r.advanceRound()
		return
	}
	if r.controller.MajorityReady(alive) {
		r.armReadyGrace()
	}
}

// advanceRound starts the next action phase. Actor goroutine only.
func (r *Room) advanceRound() {
	if r.readyTimer != nil {
		r.readyTimer.Stop()
		r.readyTimer = nil
	}
	r.controller.ResetForNewRound()
	round := r.controller.Round() + 1
	for _, p := range r.players {
		p.ResetRound()
		if p.IsAlive {
			r.unlockAbilities(p, round)
		}
	}
	r.controller.TransitionTo(game.PhaseAction)
	r.armActionTimeout()
	r.saveSnapshot()
}

func (r *Room) armActionTimeout() {
	if r.actionTimer != nil {
		r.actionTimer.Stop()
	}
	round := r.controller.Round()
	r.actionTimer = time.AfterFunc(r.cfg.ActionTimeout, func() {
		_ = r.do(func() {
			// Absent players simply have no action this round.
			if r.controller.Phase() == game.PhaseAction && r.controller.Round() == round {
				r.resolveRound()
			}
		})
	})
}

// resolveRound runs the resolver. Actor goroutine only.
func (r *Room) resolveRound() {
	if r.actionTimer != nil {
		r.actionTimer.Stop()
		r.actionTimer = nil
	}
	if err := r.resolver.Resolve(); err != nil {
		r.freeze(err)
		return
	}
	r.saveSnapshot()
	if r.winner != "" {
		r.endGame()
	}
}

// freeze puts the room in the terminal error state: no further commands.
func (r *Room) freeze(cause error) {
	r.frozen.Store(true)
	r.logger.Error("room frozen", zap.Error(cause))
	r.bus.Emit(events.GameError, map[string]any{
		"error": cause.Error(),
		"fatal": true,
	})
}

// endGame publishes the archive task and returns the room to the lobby.
func (r *Room) endGame() {
	stats := make(map[string]game.PlayerStats, len(r.players))
	for id, p := range r.players {
		stats[id] = p.Stats
	}
	trophies := make([]taskq.Trophy, 0)
	for _, t := range r.resolver.Trophies() {
		trophies = append(trophies, taskq.Trophy{PlayerID: t.PlayerID, Name: t.Name})
	}
	if r.archive != nil {
		if err := r.archive.Publish(r.ctx, taskq.ArchiveTask{
			GameCode:    r.GameCode,
			Winner:      r.winner,
			Rounds:      r.controller.Round(),
			EndedAt:     time.Now().UTC(),
			PlayerStats: stats,
			Trophies:    trophies,
		}); err == nil && r.metrics != nil {
			r.metrics.ArchiveTasks.Inc()
		}
	}
	r.controller.TransitionTo(game.PhaseLobby)
}

func (r *Room) aliveCount() int {
	alive := 0
	for _, p := range r.players {
		if p.IsAlive {
			alive++
		}
	}
	return alive
}

func (r *Room) allAliveSubmitted() bool {
	for _, p := range r.players {
		if p.IsAlive && !p.HasSubmittedAction {
			return false
		}
	}
	return r.aliveCount() > 0
}

// Disconnect handles a transport drop: the seat is held for the
// reconnect grace window, queued commands are cleared, and the round
// continues without the player.
func (r *Room) Disconnect(playerID string) error {
	return r.call(func() error {
		p, ok := r.players[playerID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
		}
		p.ConnectionID = ""
		r.disconnectedAt[playerID] = time.Now().UTC()
		r.controller.QueueDisconnect(playerID)
		r.controller.ClearReady(playerID)

		r.bus.Emit(events.PlayerDisconnected, map[string]any{
			"playerId": playerID,
		})

		grace := r.cfg.ReconnectGrace
		time.AfterFunc(grace, func() {
			_ = r.do(func() {
				if at, gone := r.disconnectedAt[playerID]; gone && time.Since(at) >= grace {
					r.removePlayer(playerID)
				}
			})
		})
		return nil
	})
}

// removePlayer drops a seat for good. Actor goroutine only.
func (r *Room) removePlayer(playerID string) {
	p, ok := r.players[playerID]
	if !ok {
		return
	}
	delete(r.players, playerID)
	delete(r.disconnectedAt, playerID)
	r.processor.ClearPlayerCommands(playerID)
	r.controller.RemovePendingActionsForPlayer(playerID)
	if r.hostID == playerID {
		r.hostID = r.nextHost()
	}
	r.bus.Emit(events.PlayerLeft, map[string]any{
		"playerId": playerID,
		"name":     p.Name,
	})

	// The departed seat may have been the last holdout.
	switch r.controller.Phase() {
	case game.PhaseAction:
		if r.allAliveSubmitted() {
			r.resolveRound()
		}
	case game.PhaseResults:
		r.maybeAdvanceReady()
	}
}

func (r *Room) nextHost() string {
	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// Resume reattaches a session-token holder to its seat with a fresh
// connection id, rewriting any queued actions that referenced the old
// transport id and replaying a state snapshot to the caller.
func (r *Room) Resume(token, connectionID string) (playerID string, state *ClientState, err error) {
	if r.sessions == nil {
		return "", nil, auth.ErrInvalidToken
	}
	playerID, gameCode, err := r.sessions.Verify(token)
	if err != nil {
		return "", nil, err
	}
	if gameCode != r.GameCode {
		return "", nil, fmt.Errorf("%w: token for another game", auth.ErrInvalidToken)
	}

	err = r.call(func() error {
		p, ok := r.players[playerID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
		}
		oldConn := p.ConnectionID
		p.ConnectionID = connectionID
		delete(r.disconnectedAt, playerID)

		if oldConn != "" && oldConn != connectionID {
			r.controller.UpdatePendingActionTargets(oldConn, connectionID)
			r.processor.UpdateTargets(oldConn, connectionID)
		}

		// Disconnect cancelled the queued processor command. Rebuild it
		// from the durable pending record so the submission still resolves.
		if r.controller.Phase() == game.PhaseAction && !r.processor.HasPending(playerID) {
			for _, a := range r.controller.PendingActions() {
				if a.PlayerID != playerID {
					continue
				}
				c := command.NewAbilityCommand(playerID, a.ActionType, a.TargetID)
				if submitErr := r.processor.SubmitAction(r.cmdContext(), c); submitErr != nil {
					p.HasSubmittedAction = false
					r.controller.RemovePendingActionsForPlayer(playerID)
					r.logger.Warn("requeue after reconnect failed",
						zap.String("player_id", playerID),
						zap.String("action_type", a.ActionType),
						zap.Error(submitErr))
					break
				}
				_ = r.controller.AddPendingAction(phase.PendingAction{
					PlayerID:       playerID,
					ActionType:     a.ActionType,
					TargetID:       c.TargetID(),
					CommandID:      c.ID(),
					SubmissionTime: a.SubmissionTime,
				})
				break
			}
		}

		r.bus.Emit(events.PlayerReconnected, map[string]any{
			"playerId": playerID,
		})
		state = r.clientState(playerID)
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return playerID, state, nil
}

// BindConnection attaches a transport connection id to a seat.
func (r *Room) BindConnection(playerID, connectionID string) error {
	return r.call(func() error {
		p, ok := r.players[playerID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
		}
		p.ConnectionID = connectionID
		delete(r.disconnectedAt, playerID)
		return nil
	})
}

// Players returns a stable-ordered copy of the seat list.
func (r *Room) Players() []*game.Player {
	var out []*game.Player
	_ = r.do(func() {
		ids := make([]string, 0, len(r.players))
		for id := range r.players {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			clone := *r.players[id]
			out = append(out, &clone)
		}
	})
	return out
}

// Phase returns the room's current phase.
func (r *Room) Phase() game.Phase { return r.controller.Phase() }

// Round returns the current round number.
func (r *Room) Round() int { return r.controller.Round() }

// Winner returns the winning side once the game has ended.
func (r *Room) Winner() string {
	var w string
	_ = r.do(func() { w = r.winner })
	return w
}

// ClassAbilities lists a player's class abilities for the client.
func (r *Room) ClassAbilities(playerID string) ([]catalog.AbilityDef, error) {
	var defs []catalog.AbilityDef
	err := r.call(func() error {
		p, ok := r.players[playerID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
		}
		var err error
		defs, err = r.catalog.GetClassAbilities(p.Class)
		return err
	})
	return defs, err
}
