package battle

import "slices"

// SkillInstance is a live activation of a skill inside a session
type SkillInstance struct {
	ID              string   `json:"id"`
	SkillID         string   `json:"skill_id"`
	OwnerID         string   `json:"owner_id"`
	Targets         []string `json:"targets"` // fixed at activation
	RemainingRounds int      `json:"remaining_rounds"`
	Phase           int      `json:"phase"`
	PhaseRounds     int      `json:"phase_rounds"` // rounds since activation or last transition
	CreatedRound    int      `json:"created_round"`
	DiceResults     []int    `json:"dice_results,omitempty"`
	Resolved        bool     `json:"resolved,omitempty"`
	GroupID         string   `json:"group_id,omitempty"`
	LastTick        int      `json:"last_tick,omitempty"`
}

// Involves reports whether the participant owns or is targeted by the instance
func (i *SkillInstance) Involves(participantID string) bool {
	return i.OwnerID == participantID || slices.Contains(i.Targets, participantID)
}

// Expired reports whether no rounds remain
func (i *SkillInstance) Expired() bool {
	return i.RemainingRounds <= 0
}

// DiceTotal sums the stored dice results
func (i *SkillInstance) DiceTotal() int {
	total := 0
	for _, v := range i.DiceResults {
		total += v
	}
	return total
}

// Clone returns a deep copy
func (i *SkillInstance) Clone() *SkillInstance {
	c := *i
	c.Targets = slices.Clone(i.Targets)
	c.DiceResults = slices.Clone(i.DiceResults)
	return &c
}
