package room

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/auth"
	"github.com/warlockgg/warlock-server/internal/catalog"
	"github.com/warlockgg/warlock-server/internal/config"
	"github.com/warlockgg/warlock-server/internal/game"
	"github.com/warlockgg/warlock-server/internal/observability"
	"github.com/warlockgg/warlock-server/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		ActionTimeout:      time.Minute,
		ReadyGrace:         50 * time.Millisecond,
		ReconnectGrace:     time.Minute,
		MinPlayers:         4,
		MaxPlayers:         8,
		HistorySize:        128,
		RateLimitWindow:    time.Minute,
		RateLimitMax:       100000,
		SlowEventThreshold: time.Second,
	}
}

func newTestRoom(t *testing.T, snaps store.SnapshotStore, passcodeHash string) *Room {
	t.Helper()
	if snaps == nil {
		snaps = store.NewMemory()
	}
	deps := Deps{
		Logger:    zap.NewNop(),
		Metrics:   observability.NewTestMetrics(),
		Config:    testConfig(),
		Catalog:   catalog.MustStatic(),
		Snapshots: snaps,
		Sessions:  auth.NewSessions("test-secret", time.Hour),
	}
	r, err := New(context.Background(), context.Background(), "4242", passcodeHash, deps, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(r.Stop)
	return r
}

// seatWarriors joins and equips n Human Warriors. The first id returned
// is the host.
func seatWarriors(t *testing.T, r *Room, n int) (ids, tokens []string) {
	t.Helper()
	for i := 0; i < n; i++ {
		id, token, err := r.Join(fmt.Sprintf("warrior-%d", i), "")
		if err != nil {
			t.Fatalf("Join %d: %v", i, err)
		}
		if err := r.SelectCharacter(id, "Human", "Warrior"); err != nil {
			t.Fatalf("SelectCharacter %d: %v", i, err)
		}
		ids = append(ids, id)
		tokens = append(tokens, token)
	}
	return ids, tokens
}

func findWarlock(t *testing.T, r *Room) string {
	t.Helper()
	for _, p := range r.Players() {
		if p.IsWarlock {
			return p.ID
		}
	}
	t.Fatal("no warlock assigned")
	return ""
}

func waitForPhase(t *testing.T, r *Room, want game.Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Phase() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("phase stuck at %s, want %s", r.Phase(), want)
}

func TestJoinAndLobbyRules(t *testing.T) {
	r := newTestRoom(t, nil, "")

	ids, _ := seatWarriors(t, r, 3)

	if _, _, err := r.Join("warrior-0", ""); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("duplicate name error = %v, want ErrNameTaken", err)
	}
	if r.NameAvailable("warrior-0") {
		t.Error("taken name reported available")
	}
	if !r.NameAvailable("fresh") {
		t.Error("fresh name reported taken")
	}

	if err := r.StartGame(ids[1]); !errors.Is(err, ErrNotHost) {
		t.Fatalf("non-host start error = %v, want ErrNotHost", err)
	}
	if err := r.StartGame(ids[0]); !errors.Is(err, ErrNotEnough) {
		t.Fatalf("start with 3 players error = %v, want ErrNotEnough", err)
	}

	id4, _, err := r.Join("warrior-3", "")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := r.StartGame(ids[0]); !errors.Is(err, ErrNotSelected) {
		t.Fatalf("start before selection error = %v, want ErrNotSelected", err)
	}
	if err := r.SelectCharacter(id4, "Dwarf", "Rogue"); !errors.Is(err, ErrBadSelection) {
		t.Fatalf("Dwarf/Rogue error = %v, want ErrBadSelection", err)
	}
	if err := r.SelectCharacter(id4, "Dwarf", "Priest"); err != nil {
		t.Fatalf("SelectCharacter: %v", err)
	}

	if err := r.StartGame(ids[0]); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if r.Phase() != game.PhaseAction || r.Round() != 1 {
		t.Fatalf("after start phase=%s round=%d, want action/1", r.Phase(), r.Round())
	}

	if _, _, err := r.Join("late", ""); err == nil {
		t.Error("join after start should fail")
	}
}

func TestStartGameAssignsRolesAndMonster(t *testing.T) {
	r := newTestRoom(t, nil, "")
	ids, _ := seatWarriors(t, r, 3)
	id4, _, err := r.Join("stonebeard", "")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := r.SelectCharacter(id4, "Dwarf", "Priest"); err != nil {
		t.Fatalf("SelectCharacter: %v", err)
	}
	if err := r.StartGame(ids[0]); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	warlocks := 0
	for _, p := range r.Players() {
		if p.IsWarlock {
			warlocks++
		}
	}
	if warlocks != 1 {
		t.Errorf("warlocks = %d, want 1 for 4 players", warlocks)
	}

	var monsterHP int
	var dwarf *game.Player
	_ = r.do(func() {
		monsterHP = r.monster.HP
		clone := *r.players[id4]
		dwarf = &clone
	})
	if monsterHP != 400 {
		t.Errorf("monster hp = %d, want 400 for 4 players", monsterHP)
	}
	if dwarf.MaxHP != 120 {
		t.Errorf("dwarf max hp = %d, want 120", dwarf.MaxHP)
	}
	if !dwarf.HasEffect(game.EffectStoneArmor) {
		t.Error("dwarf should start with stone armor")
	}
	for _, p := range r.Players() {
		if p.ID == id4 {
			continue
		}
		if p.MaxHP != 100 {
			t.Errorf("human max hp = %d, want 100", p.MaxHP)
		}
		if !p.HasUnlocked("slash") || p.HasUnlocked("shieldWall") {
			t.Errorf("player %s unlocks = %v, want level-1 only", p.Name, p.UnlockedAbilities)
		}
	}
}

func TestRoundResolvesWhenAllSubmit(t *testing.T) {
	r := newTestRoom(t, nil, "")
	ids, _ := seatWarriors(t, r, 4)
	if err := r.StartGame(ids[0]); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	// All four slash the monster. With four attackers on one target the
	// coordination bonus lifts each 20-damage slash to 35.
	for _, id := range ids {
		if err := r.SubmitAction(id, "slash", "monster", false, false); err != nil {
			t.Fatalf("SubmitAction %s: %v", id, err)
		}
	}

	if r.Phase() != game.PhaseResults {
		t.Fatalf("phase = %s after all submitted, want results", r.Phase())
	}

	var monsterHP, monsterAge int
	_ = r.do(func() {
		monsterHP = r.monster.HP
		monsterAge = r.monster.Age
	})
	if monsterHP != 400-4*35 {
		t.Errorf("monster hp = %d, want %d", monsterHP, 400-4*35)
	}
	if monsterAge != 1 {
		t.Errorf("monster age = %d, want 1", monsterAge)
	}

	// The monster struck back at its threat leader for its base 10.
	hit := 0
	for _, p := range r.Players() {
		if p.HP == 90 {
			hit++
		} else if p.HP != 100 {
			t.Errorf("player %s hp = %d, want 90 or 100", p.Name, p.HP)
		}
	}
	if hit != 1 {
		t.Errorf("players hit by monster = %d, want 1", hit)
	}
}

func TestFireballCooldownAfterResolution(t *testing.T) {
	r := newTestRoom(t, nil, "")
	ids, _ := seatWarriors(t, r, 3)
	pyro, _, err := r.Join("ember", "")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := r.SelectCharacter(pyro, "Human", "Pyromancer"); err != nil {
		t.Fatalf("SelectCharacter: %v", err)
	}
	if err := r.StartGame(ids[0]); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	for _, id := range ids {
		if err := r.SubmitAction(id, "slash", "monster", false, false); err != nil {
			t.Fatalf("SubmitAction: %v", err)
		}
	}
	if err := r.SubmitAction(pyro, "fireball", "monster", false, false); err != nil {
		t.Fatalf("SubmitAction fireball: %v", err)
	}

	if r.Phase() != game.PhaseResults {
		t.Fatalf("phase = %s, want results", r.Phase())
	}

	// Cooldown 2 survives the end-of-round tick intact.
	var cooldown int
	_ = r.do(func() { cooldown = r.players[pyro].AbilityCooldowns["fireball"] })
	if cooldown != 2 {
		t.Errorf("fireball cooldown = %d, want 2", cooldown)
	}
}

func TestNextReadyAllAdvancesRound(t *testing.T) {
	r := newTestRoom(t, nil, "")
	ids, _ := seatWarriors(t, r, 4)
	if err := r.StartGame(ids[0]); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	for _, id := range ids {
		if err := r.SubmitAction(id, "slash", "monster", false, false); err != nil {
			t.Fatalf("SubmitAction: %v", err)
		}
	}
	if r.Phase() != game.PhaseResults {
		t.Fatalf("phase = %s, want results", r.Phase())
	}

	if err := r.NextReady(ids[0]); err != nil {
		t.Fatalf("NextReady: %v", err)
	}
	if r.Phase() != game.PhaseResults {
		t.Fatal("one ready vote advanced the round")
	}
	for _, id := range ids[1:] {
		if err := r.NextReady(id); err != nil {
			t.Fatalf("NextReady: %v", err)
		}
	}

	if r.Phase() != game.PhaseAction || r.Round() != 2 {
		t.Fatalf("phase=%s round=%d after all ready, want action/2", r.Phase(), r.Round())
	}
	for _, p := range r.Players() {
		if p.HasSubmittedAction || p.IsReady {
			t.Errorf("player %s flags not reset for new round", p.Name)
		}
		if !p.HasUnlocked("shieldWall") {
			t.Errorf("player %s missing round-2 unlock", p.Name)
		}
	}
}

func TestMajorityReadyGraceAdvances(t *testing.T) {
	r := newTestRoom(t, nil, "")
	ids, _ := seatWarriors(t, r, 4)
	if err := r.StartGame(ids[0]); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	for _, id := range ids {
		if err := r.SubmitAction(id, "slash", "monster", false, false); err != nil {
			t.Fatalf("SubmitAction: %v", err)
		}
	}

	// Three of four flag ready: a strict majority arms the grace timer
	// and the holdout cannot stall the game.
	for _, id := range ids[:3] {
		if err := r.NextReady(id); err != nil {
			t.Fatalf("NextReady: %v", err)
		}
	}
	if r.Phase() != game.PhaseResults {
		t.Fatal("majority advanced immediately, want grace delay")
	}

	waitForPhase(t, r, game.PhaseAction)
	if r.Round() != 2 {
		t.Errorf("round = %d after grace, want 2", r.Round())
	}
}

func TestDisconnectAndResume(t *testing.T) {
	r := newTestRoom(t, nil, "")
	ids, tokens := seatWarriors(t, r, 4)
	if err := r.StartGame(ids[0]); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	p2 := ids[1]
	if err := r.BindConnection(p2, "conn-a"); err != nil {
		t.Fatalf("BindConnection: %v", err)
	}
	if err := r.SubmitAction(p2, "slash", "monster", false, false); err != nil {
		t.Fatalf("SubmitAction: %v", err)
	}
	if err := r.Disconnect(p2); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	playerID, state, err := r.Resume(tokens[1], "conn-b")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if playerID != p2 {
		t.Fatalf("resumed player = %s, want %s", playerID, p2)
	}
	if state == nil || state.You == nil {
		t.Fatal("resume returned no state")
	}
	if !state.You.HasSubmittedAction {
		t.Error("submission flag lost across reconnect")
	}
	if state.Phase != game.PhaseAction || state.Round != 1 {
		t.Errorf("state phase=%s round=%d, want action/1", state.Phase, state.Round)
	}
	if state.PendingAction == nil || state.PendingAction.ActionType != "slash" {
		t.Errorf("pending action = %+v, want the queued slash", state.PendingAction)
	}
	if !r.processor.HasPending(p2) {
		t.Error("queued command not rebuilt on reconnect")
	}

	// A token for another room is refused.
	other := newTestRoom(t, store.NewMemory(), "")
	otherToken, err := other.sessions.Issue("someone", "9999")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, _, err := r.Resume(otherToken, "conn-c"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("foreign token error = %v, want ErrInvalidToken", err)
	}

	// The round resolves with all four slashes landing: the reconnected
	// player's action counts toward coordination like everyone else's.
	for _, id := range []string{ids[0], ids[2], ids[3]} {
		if err := r.SubmitAction(id, "slash", "monster", false, false); err != nil {
			t.Fatalf("SubmitAction: %v", err)
		}
	}
	if r.Phase() != game.PhaseResults {
		t.Fatalf("phase = %s, want results", r.Phase())
	}
	var monsterHP int
	_ = r.do(func() { monsterHP = r.monster.HP })
	if monsterHP != 400-4*35 {
		t.Errorf("monster hp = %d, want %d", monsterHP, 400-4*35)
	}
}

func TestHoldoutRemovalAdvancesRound(t *testing.T) {
	snaps := store.NewMemory()
	cfg := testConfig()
	cfg.ReconnectGrace = 50 * time.Millisecond
	deps := Deps{
		Logger:    zap.NewNop(),
		Metrics:   observability.NewTestMetrics(),
		Config:    cfg,
		Catalog:   catalog.MustStatic(),
		Snapshots: snaps,
		Sessions:  auth.NewSessions("test-secret", time.Hour),
	}
	r, err := New(context.Background(), context.Background(), "4242", "", deps, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(r.Stop)

	ids, _ := seatWarriors(t, r, 4)
	if err := r.StartGame(ids[0]); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	for _, id := range ids {
		if err := r.SubmitAction(id, "slash", "monster", false, false); err != nil {
			t.Fatalf("SubmitAction: %v", err)
		}
	}
	if r.Phase() != game.PhaseResults {
		t.Fatalf("phase = %s, want results", r.Phase())
	}

	// Two flag ready, two vanish without voting. Once the grace window
	// removes the holdouts, the two remaining votes are everyone.
	for _, id := range ids[:2] {
		if err := r.NextReady(id); err != nil {
			t.Fatalf("NextReady: %v", err)
		}
	}
	for _, id := range ids[2:] {
		if err := r.Disconnect(id); err != nil {
			t.Fatalf("Disconnect: %v", err)
		}
	}

	waitForPhase(t, r, game.PhaseAction)
	if r.Round() != 2 {
		t.Errorf("round = %d after holdout removal, want 2", r.Round())
	}
	if len(r.Players()) != 2 {
		t.Errorf("players = %d after removal, want 2", len(r.Players()))
	}
}

func TestGoodVictoryEndsGame(t *testing.T) {
	r := newTestRoom(t, nil, "")
	ids, _ := seatWarriors(t, r, 4)
	if err := r.StartGame(ids[0]); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	warlock := findWarlock(t, r)

	// Three coordinated slashes (30 each) plus the monster's retaliation
	// against its only threat source finish the warlock in one round.
	if err := r.SubmitAction(warlock, "slash", "monster", false, false); err != nil {
		t.Fatalf("SubmitAction warlock: %v", err)
	}
	for _, id := range ids {
		if id == warlock {
			continue
		}
		if err := r.SubmitAction(id, "slash", warlock, false, false); err != nil {
			t.Fatalf("SubmitAction: %v", err)
		}
	}

	if r.Winner() != WinnerGood {
		t.Fatalf("winner = %q, want %q", r.Winner(), WinnerGood)
	}
	if r.Phase() != game.PhaseLobby {
		t.Errorf("phase = %s after game end, want lobby", r.Phase())
	}
	for _, p := range r.Players() {
		if p.ID == warlock && p.IsAlive {
			t.Error("warlock survived its own funeral")
		}
	}
	if len(r.resolver.Trophies()) == 0 {
		t.Error("no trophies awarded at game end")
	}
}

func TestPasscodeGate(t *testing.T) {
	hash, err := auth.HashPasscode("mellon")
	if err != nil {
		t.Fatalf("HashPasscode: %v", err)
	}
	r := newTestRoom(t, nil, hash)

	if _, _, err := r.Join("gandalf", "friend"); !errors.Is(err, auth.ErrWrongPasscode) {
		t.Fatalf("wrong passcode error = %v, want ErrWrongPasscode", err)
	}
	if _, _, err := r.Join("gandalf", "mellon"); err != nil {
		t.Fatalf("correct passcode rejected: %v", err)
	}
}

func TestWarmRestartFromSnapshot(t *testing.T) {
	snaps := store.NewMemory()
	r := newTestRoom(t, snaps, "")
	ids, _ := seatWarriors(t, r, 4)
	if err := r.StartGame(ids[0]); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	warlock := findWarlock(t, r)
	r.Stop()

	deps := Deps{
		Logger:    zap.NewNop(),
		Metrics:   observability.NewTestMetrics(),
		Config:    testConfig(),
		Catalog:   catalog.MustStatic(),
		Snapshots: snaps,
		Sessions:  auth.NewSessions("test-secret", time.Hour),
	}
	restored, err := New(context.Background(), context.Background(), "4242", "", deps, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	defer restored.Stop()

	if restored.Phase() != game.PhaseAction || restored.Round() != 1 {
		t.Fatalf("restored phase=%s round=%d, want action/1", restored.Phase(), restored.Round())
	}
	players := restored.Players()
	if len(players) != 4 {
		t.Fatalf("restored players = %d, want 4", len(players))
	}
	for _, p := range players {
		if p.ID == warlock && !p.IsWarlock {
			t.Error("warlock role lost across restart")
		}
		if p.ID != warlock && p.IsWarlock {
			t.Error("warlock role leaked to another player")
		}
	}
	var monsterHP string
	_ = restored.do(func() { monsterHP = fmt.Sprint(r.GameCode, ":", restored.monster.HP) })
	if monsterHP != "4242:400" {
		t.Errorf("restored monster = %s, want 4242:400", monsterHP)
	}

	// The restored room keeps playing.
	for _, p := range players {
		if err := restored.SubmitAction(p.ID, "slash", "monster", false, false); err != nil {
			t.Fatalf("SubmitAction after restore: %v", err)
		}
	}
	if restored.Phase() != game.PhaseResults {
		t.Errorf("restored room did not resolve, phase = %s", restored.Phase())
	}
}
