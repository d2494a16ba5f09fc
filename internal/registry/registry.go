// Package registry manages the participants of a battle session: membership,
// hit points, liveness and sharing groups. Functions mutate the session in
// place and expect the caller to serialize access.
package registry

import (
	"slices"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

// HPChange describes one hit point mutation
type HPChange struct {
	ParticipantID string `json:"participant_id"`
	Before        int    `json:"before"`
	After         int    `json:"after"`
	Died          bool   `json:"died,omitempty"`
	Revived       bool   `json:"revived,omitempty"`
}

// Delta is the signed hit point change
func (c HPChange) Delta() int {
	return c.After - c.Before
}

// Removal lists what a participant removal cascaded into
type Removal struct {
	CancelledInstances []string `json:"cancelled_instances,omitempty"`
	DissolvedGroups    []string `json:"dissolved_groups,omitempty"`
}

// Add puts a participant into the session. A zero MaxHP takes the HP value
// and the participant starts alive unless its HP is zero.
func Add(s *battle.Session, p *battle.Participant) error {
	if p == nil {
		return errors.InvalidArgument("participant is required")
	}

	vb := errors.NewValidationBuilder()
	errors.ValidateRequired("id", p.ID, vb)
	errors.ValidateNonNegative("hp", p.HP, vb)
	errors.ValidateNonNegative("max_hp", p.MaxHP, vb)
	if err := vb.Build(); err != nil {
		return err
	}

	if _, exists := s.Participants[p.ID]; exists {
		return battle.DuplicateParticipant(p.ID)
	}

	added := p.Clone()
	if added.MaxHP == 0 {
		added.MaxHP = added.HP
	}
	if added.HP > added.MaxHP {
		added.HP = added.MaxHP
	}
	if added.Name == "" {
		added.Name = added.ID
	}
	added.Alive = added.HP > 0
	added.GroupID = ""
	s.Participants[added.ID] = added
	return nil
}

// Remove deletes a participant and cascades synchronously: it leaves its
// group, its owned instances are cancelled and it is dropped from every other
// instance's targets.
func Remove(s *battle.Session, id string) (*Removal, error) {
	if _, ok := s.Participants[id]; !ok {
		return nil, battle.ParticipantNotFound(id)
	}

	out := &Removal{}
	if dissolved := leaveGroup(s, id); dissolved != "" {
		out.DissolvedGroups = append(out.DissolvedGroups, dissolved)
	}

	for _, inst := range s.InstancesOwnedBy(id) {
		out.CancelledInstances = append(out.CancelledInstances, inst.ID)
		if dissolved := ReleaseInstance(s, inst); dissolved != "" {
			out.DissolvedGroups = append(out.DissolvedGroups, dissolved)
		}
	}

	for _, inst := range s.Instances {
		inst.Targets = slices.DeleteFunc(inst.Targets, func(t string) bool { return t == id })
	}

	delete(s.Participants, id)
	return out, nil
}

// ReleaseInstance drops an instance from the session and dissolves the group
// it formed. It returns the dissolved group id, if any.
func ReleaseInstance(s *battle.Session, inst *battle.SkillInstance) string {
	s.DropInstance(inst.ID)
	for gid, g := range s.Groups {
		if g.FormedBy == inst.ID {
			dissolve(s, gid)
			return gid
		}
	}
	return ""
}

// ApplyDamage lowers hit points, clamping at zero. Damage to a dead
// participant changes nothing.
func ApplyDamage(s *battle.Session, id string, amount int) (HPChange, error) {
	p, ok := s.Participants[id]
	if !ok {
		return HPChange{}, battle.ParticipantNotFound(id)
	}
	if amount < 0 {
		return HPChange{}, errors.InvalidArgumentf("damage must not be negative, got %d", amount)
	}

	change := HPChange{ParticipantID: id, Before: p.HP, After: p.HP}
	if !p.Alive {
		return change, nil
	}

	p.HP = max(p.HP-amount, 0)
	change.After = p.HP
	if p.HP == 0 {
		p.Alive = false
		change.Died = true
	}
	return change, nil
}

// Heal raises hit points up to MaxHP. Dead participants are not healed.
func Heal(s *battle.Session, id string, amount int) (HPChange, error) {
	p, ok := s.Participants[id]
	if !ok {
		return HPChange{}, battle.ParticipantNotFound(id)
	}
	if amount < 0 {
		return HPChange{}, errors.InvalidArgumentf("heal must not be negative, got %d", amount)
	}

	change := HPChange{ParticipantID: id, Before: p.HP, After: p.HP}
	if !p.Alive {
		return change, nil
	}
	p.HP = min(p.HP+amount, p.MaxHP)
	change.After = p.HP
	return change, nil
}

// Revive brings a dead participant back with hp hit points, at least 1.
// Reviving the living is a no-op.
func Revive(s *battle.Session, id string, hp int) (HPChange, error) {
	p, ok := s.Participants[id]
	if !ok {
		return HPChange{}, battle.ParticipantNotFound(id)
	}

	change := HPChange{ParticipantID: id, Before: p.HP, After: p.HP}
	if p.Alive {
		return change, nil
	}
	p.HP = min(max(hp, 1), max(p.MaxHP, 1))
	p.Alive = true
	change.After = p.HP
	change.Revived = true
	return change, nil
}

// IsAlive reports liveness
func IsAlive(s *battle.Session, id string) (bool, error) {
	p, ok := s.Participants[id]
	if !ok {
		return false, battle.ParticipantNotFound(id)
	}
	return p.Alive, nil
}

// AliveWithRole lists alive participants holding role, sorted by id
func AliveWithRole(s *battle.Session, role battle.Role) []string {
	return s.AliveIDs(role)
}
