package registry

import (
	"slices"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

// Link forms a sharing group. Every member must exist and must not already
// belong to a group.
func Link(s *battle.Session, g *battle.SharingGroup) error {
	if g == nil {
		return errors.InvalidArgument("group is required")
	}

	linked := g.Clone()
	linked.SortMembers()

	vb := errors.NewValidationBuilder()
	errors.ValidateRequired("id", linked.ID, vb)
	if len(linked.Members) < battle.MinGroupSize {
		vb.Fieldf("members", "a group needs at least %d members, got %d", battle.MinGroupSize, len(linked.Members))
	}
	if !linked.Policy.Valid() {
		vb.Fieldf("policy", "unknown policy %q", linked.Policy)
	}
	if linked.Policy == battle.PolicyPrimaryAbsorbs && !linked.Has(linked.PrimaryID) {
		vb.Field("primary_id", "must be a member")
	}
	if err := vb.Build(); err != nil {
		return err
	}

	if _, exists := s.Groups[linked.ID]; exists {
		return errors.AlreadyExistsf("sharing group %s already exists", linked.ID)
	}
	for _, id := range linked.Members {
		p, ok := s.Participants[id]
		if !ok {
			return battle.ParticipantNotFound(id)
		}
		if p.GroupID != "" {
			return errors.FailedPreconditionf("participant %s already belongs to group %s", id, p.GroupID).
				WithMeta("participant_id", id)
		}
	}

	for _, id := range linked.Members {
		s.Participants[id].GroupID = linked.ID
	}
	s.Groups[linked.ID] = linked
	return nil
}

// Dissolve removes a group and clears its members' membership
func Dissolve(s *battle.Session, groupID string) error {
	if _, ok := s.Groups[groupID]; !ok {
		return battle.GroupNotFound(groupID)
	}
	dissolve(s, groupID)
	return nil
}

func dissolve(s *battle.Session, groupID string) {
	g := s.Groups[groupID]
	for _, id := range g.Members {
		if p, ok := s.Participants[id]; ok && p.GroupID == groupID {
			p.GroupID = ""
		}
	}
	for _, inst := range s.Instances {
		if inst.GroupID == groupID {
			inst.GroupID = ""
		}
	}
	delete(s.Groups, groupID)
}

// leaveGroup takes a participant out of its group. Groups left with fewer
// than two members dissolve; the dissolved id is returned.
func leaveGroup(s *battle.Session, id string) string {
	p := s.Participants[id]
	if p.GroupID == "" {
		return ""
	}
	groupID := p.GroupID
	p.GroupID = ""

	g, ok := s.Groups[groupID]
	if !ok {
		return ""
	}
	g.Members = slices.DeleteFunc(g.Members, func(m string) bool { return m == id })
	if len(g.Members) < battle.MinGroupSize {
		dissolve(s, groupID)
		return groupID
	}
	if g.PrimaryID == id {
		g.PrimaryID = g.Members[0]
	}
	return ""
}
