package game

// MonsterTargetID is the canonical target id for the monster in pending
// actions and transport payloads. The shorthand "monster" is normalized
// to this form on submit.
const MonsterTargetID = "__monster__"

// Monster is the shared enemy. Age increments each round and scales its
// damage; threat accumulates per attacker and decays each round, steering
// target selection.
type Monster struct {
	HP         int                `json:"hp"`
	MaxHP      int                `json:"maxHp"`
	BaseDamage int                `json:"baseDamage"`
	Age        int                `json:"age"`
	Threat     map[string]float64 `json:"threat"`
}

func NewMonster(hp, baseDamage int) *Monster {
	return &Monster{
		HP:         hp,
		MaxHP:      hp,
		BaseDamage: baseDamage,
		Threat:     make(map[string]float64),
	}
}

// Alive reports whether the monster still fights.
func (m *Monster) Alive() bool { return m.HP > 0 }

// Damage applies amount to the monster, clamping at zero, and returns the
// damage actually applied.
func (m *Monster) Damage(amount int) int {
	if !m.Alive() || amount <= 0 {
		return 0
	}
	if amount > m.HP {
		amount = m.HP
	}
	m.HP -= amount
	return amount
}

// Heal restores hp up to MaxHP, returning the amount applied.
func (m *Monster) Heal(amount int) int {
	if amount <= 0 {
		return 0
	}
	if m.HP+amount > m.MaxHP {
		amount = m.MaxHP - m.HP
	}
	m.HP += amount
	return amount
}

// AddThreat credits an attacker with threat proportional to damage dealt.
func (m *Monster) AddThreat(playerID string, amount float64) {
	if amount <= 0 {
		return
	}
	m.Threat[playerID] += amount
}

// AttackDamage is the monster's damage for the current round. Damage
// grows 25% per round of age.
func (m *Monster) AttackDamage() int {
	return m.BaseDamage + m.BaseDamage*m.Age/4
}

// AgeRound advances the monster one round: age increments and threat
// decays by the given factor (0..1). Entries decayed below 0.5 are
// dropped.
func (m *Monster) AgeRound(decay float64) {
	m.Age++
	for id, threat := range m.Threat {
		threat *= decay
		if threat < 0.5 {
			delete(m.Threat, id)
		} else {
			m.Threat[id] = threat
		}
	}
}

// TopThreat returns the player id with the highest threat, or "" when the
// table is empty. Ties break lexically so selection is deterministic.
func (m *Monster) TopThreat() string {
	best := ""
	bestScore := 0.0
	for id, score := range m.Threat {
		if score > bestScore || (score == bestScore && (best == "" || id < best)) {
			best = id
			bestScore = score
		}
	}
	return best
}
