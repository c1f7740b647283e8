// Package trophy awards end-of-game trophies from accumulated player
// stats.
package trophy

import (
	"sort"

	"github.com/warlockgg/warlock-server/internal/game"
)

// Trophy is one end-of-game award.
type Trophy struct {
	PlayerID    string `json:"playerId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Award computes the trophy list. Each category goes to the top scorer;
// ties break on the lexically smallest player id so results are stable.
// Zero-score categories award nothing.
func Award(players map[string]*game.Player) []Trophy {
	categories := []struct {
		name, description string
		score             func(game.PlayerStats) int
	}{
		{"Butcher", "Most total damage dealt", func(s game.PlayerStats) int { return s.TotalDamageDealt }},
		{"Lifeline", "Most healing done", func(s game.PlayerStats) int { return s.TotalHealingDone }},
		{"Executioner", "Highest single hit", func(s game.PlayerStats) int { return s.HighestSingleHit }},
		{"Punching Bag", "Most damage taken", func(s game.PlayerStats) int { return s.DamageTaken }},
		{"Workhorse", "Most abilities used", func(s game.PlayerStats) int { return s.AbilitiesUsed }},
	}

	ids := make([]string, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var trophies []Trophy
	for _, cat := range categories {
		best, bestScore := "", 0
		for _, id := range ids {
			if score := cat.score(players[id].Stats); score > bestScore {
				best, bestScore = id, score
			}
		}
		if best != "" {
			trophies = append(trophies, Trophy{PlayerID: best, Name: cat.name, Description: cat.description})
		}
	}
	return trophies
}
