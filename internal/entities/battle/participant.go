// Package battle provides the data structures of a battle session: the
// participants, their sharing groups, skill definitions and live skill
// instances.
package battle

import "slices"

// Role is a participant role used by role based permission rules
type Role string

// Roles known to the engine. Rules may reference any other string as well.
const (
	RoleUser    Role = "user"
	RoleMonster Role = "monster"
	RoleAdmin   Role = "admin"
)

// EntityTypeParticipant is returned by Participant.GetType
const EntityTypeParticipant = "participant"

// Participant is a combatant in a battle session
type Participant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Roles   []Role `json:"roles,omitempty"`
	Alive   bool   `json:"alive"`
	HP      int    `json:"hp"`
	MaxHP   int    `json:"max_hp"`
	GroupID string `json:"group_id,omitempty"` // Sharing group, at most one
}

// GetID implements core.Entity
func (p *Participant) GetID() string {
	return p.ID
}

// GetType implements core.Entity
func (p *Participant) GetType() string {
	return EntityTypeParticipant
}

// HasRole reports whether the participant currently holds the role
func (p *Participant) HasRole(role Role) bool {
	return slices.Contains(p.Roles, role)
}

// Clone returns a deep copy
func (p *Participant) Clone() *Participant {
	c := *p
	c.Roles = slices.Clone(p.Roles)
	return &c
}
