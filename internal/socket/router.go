package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/config"
	"github.com/warlockgg/warlock-server/internal/eventbus"
	"github.com/warlockgg/warlock-server/internal/events"
	"github.com/warlockgg/warlock-server/internal/room"
)

// routeKind selects the delivery scope of an outbound event.
type routeKind int

const (
	routeBroadcast routeKind = iota
	routeToPlayer            // addressed by the payload's playerId
)

type route struct {
	name string
	kind routeKind
}

// outboundRoutes maps bus event types to client message names and
// delivery scope. Types absent here stay server-internal.
var outboundRoutes = map[events.Type]route{
	events.GameCreated:  {"gameCreated", routeBroadcast},
	events.GameStarted:  {"gameStarted", routeBroadcast},
	events.GameEnded:    {"gameEnded", routeBroadcast},
	events.PhaseChanged: {"phaseChanged", routeBroadcast},

	events.PlayerJoined:        {"playerJoined", routeBroadcast},
	events.PlayerLeft:          {"playerLeft", routeBroadcast},
	events.PlayerDisconnected:  {"playerDisconnected", routeBroadcast},
	events.PlayerReconnected:   {"playerReconnected", routeBroadcast},
	events.PlayerDied:          {"playerDied", routeBroadcast},
	events.PlayerStatusUpdated: {"playerList", routeBroadcast},
	events.PlayerReady:         {"playerReady", routeBroadcast},

	events.ActionSubmitted:     {"actionSubmitted", routeToPlayer},
	events.ActionExecuted:      {"actionExecuted", routeToPlayer},
	events.ActionRejected:      {"actionRejected", routeToPlayer},
	events.ActionRacialAbility: {"racialAbilityUsed", routeToPlayer},
	events.ActionAdaptability:  {"adaptabilityUsed", routeToPlayer},
	events.AbilityCooldown:     {"abilityCooldown", routeToPlayer},

	events.DamageApplied:        {"damageApplied", routeBroadcast},
	events.HealApplied:          {"healingApplied", routeBroadcast},
	events.EffectApplied:        {"effectApplied", routeBroadcast},
	events.EffectExpired:        {"effectExpired", routeBroadcast},
	events.CombatDamageApplied:  {"damageApplied", routeBroadcast},
	events.CombatHealingApplied: {"healingApplied", routeBroadcast},
	events.CombatEffectApplied:  {"effectApplied", routeBroadcast},
	events.CoordinationBonus:    {"coordinationBonus", routeBroadcast},

	events.MonsterAttacked: {"monsterAttacked", routeBroadcast},
	events.MonsterDied:     {"monsterDied", routeBroadcast},
	events.MonsterAged:     {"monsterAged", routeBroadcast},
}

// Router dispatches inbound client messages to room operations and
// fans room bus events back out through the hub.
type Router struct {
	hub     *Hub
	manager *room.Manager
	cfg     config.Config
	logger  *zap.Logger

	mu       sync.Mutex
	attached map[string]bool
}

func NewRouter(hub *Hub, manager *room.Manager, cfg config.Config, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		hub:      hub,
		manager:  manager,
		cfg:      cfg,
		logger:   logger,
		attached: make(map[string]bool),
	}
}

type createGameReq struct {
	Name     string `json:"name"`
	Passcode string `json:"passcode,omitempty"`
}

type joinGameReq struct {
	GameCode string `json:"gameCode"`
	Name     string `json:"name"`
	Passcode string `json:"passcode,omitempty"`
}

type resumeSessionReq struct {
	GameCode     string `json:"gameCode"`
	SessionToken string `json:"sessionToken"`
}

type selectCharacterReq struct {
	Race  string `json:"race"`
	Class string `json:"class"`
}

type performActionReq struct {
	ActionType       string `json:"actionType"`
	TargetID         string `json:"targetId,omitempty"`
	BloodRageActive  bool   `json:"bloodRageActive,omitempty"`
	KeenSensesActive bool   `json:"keenSensesActive,omitempty"`
}

type adaptabilityReq struct {
	OldAbilityType string `json:"oldAbilityType"`
	NewAbilityType string `json:"newAbilityType"`
}

type checkNameReq struct {
	GameCode string `json:"gameCode"`
	Name     string `json:"name"`
}

type chatReq struct {
	Message string `json:"message"`
}

// HandleInbound parses and dispatches one client message. Failures are
// answered with a gameError on the same socket; they never close it.
func (rt *Router) HandleInbound(c *Client, raw []byte) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		rt.sendError(c, "", fmt.Errorf("malformed message: %w", err))
		return
	}

	var err error
	switch msg.Type {
	case "createGame":
		err = rt.createGame(c, msg.Payload)
	case "joinGame":
		err = rt.joinGame(c, msg.Payload)
	case "resumeSession":
		err = rt.resumeSession(c, msg.Payload)
	case "checkNameAvailability":
		err = rt.checkName(c, msg.Payload)
	case "selectCharacter":
		err = rt.selectCharacter(c, msg.Payload)
	case "startGame":
		err = rt.withRoom(c, func(r *room.Room) error { return r.StartGame(c.playerID) })
	case "performAction":
		err = rt.performAction(c, msg.Payload)
	case "useRacialAbility":
		err = rt.withRoom(c, func(r *room.Room) error { return r.UseRacialAbility(c.playerID) })
	case "adaptabilityReplaceAbility":
		err = rt.adaptability(c, msg.Payload)
	case "playerNextReady":
		err = rt.withRoom(c, func(r *room.Room) error { return r.NextReady(c.playerID) })
	case "getClassAbilities":
		err = rt.classAbilities(c)
	case "chat":
		err = rt.chat(c, msg.Payload)
	case "spectate":
		err = rt.withRoom(c, func(r *room.Room) error { return r.Spectate(c.playerID) })
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}
	if err != nil {
		rt.sendError(c, msg.Type, err)
	}
}

// HandleDisconnect tears down a dropped connection and notifies the
// room so the seat enters its reconnect grace window.
func (rt *Router) HandleDisconnect(c *Client) {
	gameCode, playerID := rt.hub.Remove(c)
	if gameCode == "" || playerID == "" {
		return
	}
	r, err := rt.manager.Get(gameCode)
	if err != nil {
		return
	}
	if err := r.Disconnect(playerID); err != nil {
		rt.logger.Debug("disconnect notify failed",
			zap.String("game_code", gameCode),
			zap.String("player_id", playerID),
			zap.Error(err))
	}
}

func (rt *Router) withRoom(c *Client, fn func(*room.Room) error) error {
	if c.gameCode == "" {
		return fmt.Errorf("not in a game")
	}
	r, err := rt.manager.Get(c.gameCode)
	if err != nil {
		return err
	}
	return fn(r)
}

func (rt *Router) createGame(c *Client, payload json.RawMessage) error {
	var req createGameReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("createGame payload: %w", err)
	}
	if req.Name == "" {
		return fmt.Errorf("createGame: name is required")
	}

	r, err := rt.manager.Create(context.Background(), req.Passcode)
	if err != nil {
		return err
	}
	rt.AttachRoom(r)
	return rt.seat(c, r, "gameCreated", req.Name, req.Passcode)
}

func (rt *Router) joinGame(c *Client, payload json.RawMessage) error {
	var req joinGameReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("joinGame payload: %w", err)
	}
	r, err := rt.manager.Get(req.GameCode)
	if err != nil {
		return err
	}
	rt.AttachRoom(r)
	return rt.seat(c, r, "gameJoined", req.Name, req.Passcode)
}

// seat joins the client into the room and answers with the private
// session token. The token never rides a broadcast.
func (rt *Router) seat(c *Client, r *room.Room, replyType, name, passcode string) error {
	playerID, token, err := r.Join(name, passcode)
	if err != nil {
		return err
	}
	if err := r.BindConnection(playerID, c.ID); err != nil {
		return err
	}
	rt.hub.Bind(c, r.GameCode, playerID)

	rt.reply(c, r.GameCode, replyType, map[string]any{
		"gameCode":     r.GameCode,
		"playerId":     playerID,
		"sessionToken": token,
	})
	return nil
}

func (rt *Router) resumeSession(c *Client, payload json.RawMessage) error {
	var req resumeSessionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("resumeSession payload: %w", err)
	}
	r, err := rt.manager.Get(req.GameCode)
	if err != nil {
		return err
	}
	playerID, state, err := r.Resume(req.SessionToken, c.ID)
	if err != nil {
		return err
	}
	rt.AttachRoom(r)
	rt.hub.Bind(c, r.GameCode, playerID)

	rt.reply(c, r.GameCode, "stateSync", map[string]any{"state": state})
	return nil
}

func (rt *Router) checkName(c *Client, payload json.RawMessage) error {
	var req checkNameReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("checkNameAvailability payload: %w", err)
	}
	r, err := rt.manager.Get(req.GameCode)
	if err != nil {
		return err
	}
	rt.reply(c, req.GameCode, "nameAvailability", map[string]any{
		"name":      req.Name,
		"available": r.NameAvailable(req.Name),
	})
	return nil
}

func (rt *Router) selectCharacter(c *Client, payload json.RawMessage) error {
	var req selectCharacterReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("selectCharacter payload: %w", err)
	}
	return rt.withRoom(c, func(r *room.Room) error {
		if err := r.SelectCharacter(c.playerID, req.Race, req.Class); err != nil {
			return err
		}
		defs, err := r.ClassAbilities(c.playerID)
		if err != nil {
			return err
		}
		rt.reply(c, r.GameCode, "classAbilities", map[string]any{
			"class":     req.Class,
			"abilities": defs,
		})
		return nil
	})
}

func (rt *Router) performAction(c *Client, payload json.RawMessage) error {
	var req performActionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("performAction payload: %w", err)
	}
	if req.ActionType == "" {
		return fmt.Errorf("performAction: actionType is required")
	}
	return rt.withRoom(c, func(r *room.Room) error {
		return r.SubmitAction(c.playerID, req.ActionType, req.TargetID,
			req.BloodRageActive, req.KeenSensesActive)
	})
}

func (rt *Router) adaptability(c *Client, payload json.RawMessage) error {
	var req adaptabilityReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("adaptabilityReplaceAbility payload: %w", err)
	}
	return rt.withRoom(c, func(r *room.Room) error {
		return r.Adaptability(c.playerID, req.OldAbilityType, req.NewAbilityType)
	})
}

func (rt *Router) classAbilities(c *Client) error {
	return rt.withRoom(c, func(r *room.Room) error {
		defs, err := r.ClassAbilities(c.playerID)
		if err != nil {
			return err
		}
		rt.reply(c, r.GameCode, "classAbilities", map[string]any{"abilities": defs})
		return nil
	})
}

func (rt *Router) chat(c *Client, payload json.RawMessage) error {
	var req chatReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("chat payload: %w", err)
	}
	return rt.withRoom(c, func(r *room.Room) error {
		return r.Chat(c.playerID, req.Message)
	})
}

// AttachRoom installs the outbound bridge for a room's bus, once.
func (rt *Router) AttachRoom(r *room.Room) {
	rt.mu.Lock()
	if rt.attached[r.GameCode] {
		rt.mu.Unlock()
		return
	}
	rt.attached[r.GameCode] = true
	rt.mu.Unlock()

	gameCode := r.GameCode
	for t, rte := range outboundRoutes {
		rte := rte
		r.Bus().On(t, func(e eventbus.Event) error {
			rt.deliver(gameCode, rte, e)
			return nil
		})
	}
	r.Bus().On(events.WarlockRevealed, func(e eventbus.Event) error {
		rt.deliverReveal(gameCode, e)
		return nil
	})
	r.Bus().On(events.GameError, func(e eventbus.Event) error {
		rt.deliverError(gameCode, e)
		return nil
	})
}

func (rt *Router) deliver(gameCode string, rte route, e eventbus.Event) {
	msg := Outbound{
		Type:      rte.name,
		Payload:   scrub(e.Payload),
		GameCode:  gameCode,
		Timestamp: e.Timestamp,
	}
	switch rte.kind {
	case routeToPlayer:
		playerID, _ := e.Payload["playerId"].(string)
		if playerID == "" {
			return
		}
		rt.hub.SendToPlayer(gameCode, playerID, msg)
	default:
		rt.hub.Broadcast(gameCode, msg)
	}
}

// deliverReveal keeps hidden-role intel private: a reveal goes only to
// the player who earned it, unless nobody is named.
func (rt *Router) deliverReveal(gameCode string, e eventbus.Event) {
	msg := Outbound{
		Type:      "warlockRevealed",
		Payload:   scrub(e.Payload),
		GameCode:  gameCode,
		Timestamp: e.Timestamp,
	}
	if revealedBy, _ := e.Payload["revealedBy"].(string); revealedBy != "" {
		rt.hub.SendToPlayer(gameCode, revealedBy, msg)
		return
	}
	rt.hub.Broadcast(gameCode, msg)
}

// deliverError addresses game.error to its player when one is named,
// otherwise the whole room.
func (rt *Router) deliverError(gameCode string, e eventbus.Event) {
	msg := Outbound{
		Type:      "gameError",
		Payload:   scrub(e.Payload),
		GameCode:  gameCode,
		Timestamp: e.Timestamp,
	}
	if playerID, _ := e.Payload["playerId"].(string); playerID != "" {
		rt.hub.SendToPlayer(gameCode, playerID, msg)
		return
	}
	rt.hub.Broadcast(gameCode, msg)
}

// scrub copies the payload so client serialization can never mutate
// bus history.
func scrub(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

func (rt *Router) reply(c *Client, gameCode, msgType string, payload map[string]any) {
	c.Send(Outbound{
		Type:      msgType,
		Payload:   payload,
		GameCode:  gameCode,
		Timestamp: time.Now().UTC(),
	})
}

func (rt *Router) sendError(c *Client, requestType string, err error) {
	payload := map[string]any{"error": err.Error()}
	if requestType != "" {
		payload["request"] = requestType
	}
	c.Send(Outbound{
		Type:      "gameError",
		Payload:   payload,
		GameCode:  c.gameCode,
		Timestamp: time.Now().UTC(),
	})
	rt.logger.Debug("inbound request failed",
		zap.String("client_id", c.ID),
		zap.String("request", requestType),
		zap.Error(err))
}
