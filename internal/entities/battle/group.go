package battle

import (
	"slices"
	"sort"
)

// Policy decides how damage received by one member spreads over a group
type Policy string

// Distribution policies
const (
	PolicyFullToAll      Policy = "full-to-all"     // every member takes the full amount
	PolicySplitEven      Policy = "split-even"      // amount divided, remainder to the lowest id
	PolicyPrimaryAbsorbs Policy = "primary-absorbs" // the primary takes everything
)

// Valid reports whether the policy is known
func (p Policy) Valid() bool {
	switch p {
	case PolicyFullToAll, PolicySplitEven, PolicyPrimaryAbsorbs:
		return true
	}
	return false
}

// MinGroupSize is the smallest membership a group keeps before it dissolves
const MinGroupSize = 2

// SharingGroup is a set of participants among whom effects are distributed
type SharingGroup struct {
	ID        string   `json:"id"`
	Members   []string `json:"members"` // sorted
	Policy    Policy   `json:"policy"`
	PrimaryID string   `json:"primary_id,omitempty"`
	FormedBy  string   `json:"formed_by,omitempty"` // skill instance id
	Global    bool     `json:"global,omitempty"`
}

// Has reports membership
func (g *SharingGroup) Has(id string) bool {
	_, found := slices.BinarySearch(g.Members, id)
	return found
}

// AppliesTo reports whether the group's policy governs damage coming from
// the given source instance. An empty source is damage without a skill.
// Groups not formed by a skill apply to everything.
func (g *SharingGroup) AppliesTo(sourceInstanceID string) bool {
	if g.Global || g.FormedBy == "" {
		return true
	}
	return sourceInstanceID != "" && g.FormedBy == sourceInstanceID
}

// SortMembers normalizes member order
func (g *SharingGroup) SortMembers() {
	sort.Strings(g.Members)
	g.Members = slices.Compact(g.Members)
}

// Clone returns a deep copy
func (g *SharingGroup) Clone() *SharingGroup {
	c := *g
	c.Members = slices.Clone(g.Members)
	return &c
}
