package battle

import (
	"slices"
	"sort"
	"time"
)

// State is the round controller state of a session
type State string

// Session states
const (
	StateIdle            State = "idle"
	StateRoundInProgress State = "round_in_progress"
	StateResolving       State = "resolving"
)

// Session is one battle, scoped to a chat channel. It exclusively owns its
// participants, skill instances and sharing groups.
type Session struct {
	ID           string                   `json:"id"`
	ChannelID    string                   `json:"channel_id"`
	Round        int                      `json:"round"`
	State        State                    `json:"state"`
	Participants map[string]*Participant  `json:"participants"`
	Instances    []*SkillInstance         `json:"instances"` // activation order
	Groups       map[string]*SharingGroup `json:"groups"`
	Version      int64                    `json:"version"`
	SavedVersion int64                    `json:"saved_version"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// NewSession returns an idle session at round 1
func NewSession(id, channelID string, now time.Time) *Session {
	return &Session{
		ID:           id,
		ChannelID:    channelID,
		Round:        1,
		State:        StateIdle,
		Participants: make(map[string]*Participant),
		Groups:       make(map[string]*SharingGroup),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Touch records a mutation
func (s *Session) Touch(now time.Time) {
	s.Version++
	s.UpdatedAt = now
}

// Dirty reports whether there are mutations since the last save
func (s *Session) Dirty() bool {
	return s.Version != s.SavedVersion
}

// Participant looks up a participant by id
func (s *Session) Participant(id string) (*Participant, bool) {
	p, ok := s.Participants[id]
	return p, ok
}

// Roles returns the participant's current roles. It lets the session act as
// the live roster for permission checks.
func (s *Session) Roles(id string) ([]Role, bool) {
	p, ok := s.Participants[id]
	if !ok {
		return nil, false
	}
	return p.Roles, true
}

// ParticipantIDs returns every participant id, sorted
func (s *Session) ParticipantIDs() []string {
	ids := make([]string, 0, len(s.Participants))
	for id := range s.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AliveIDs returns alive participant ids holding role, sorted. An empty role
// matches everyone.
func (s *Session) AliveIDs(role Role) []string {
	var ids []string
	for id, p := range s.Participants {
		if !p.Alive {
			continue
		}
		if role != "" && !p.HasRole(role) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Instance looks up a skill instance by id
func (s *Session) Instance(id string) (*SkillInstance, bool) {
	for _, inst := range s.Instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return nil, false
}

// InstanceOfSkill returns the active instance of a skill, if any
func (s *Session) InstanceOfSkill(skillID string) (*SkillInstance, bool) {
	for _, inst := range s.Instances {
		if inst.SkillID == skillID {
			return inst, true
		}
	}
	return nil, false
}

// InstancesOwnedBy returns instances owned by the participant in activation order
func (s *Session) InstancesOwnedBy(ownerID string) []*SkillInstance {
	var out []*SkillInstance
	for _, inst := range s.Instances {
		if inst.OwnerID == ownerID {
			out = append(out, inst)
		}
	}
	return out
}

// DropInstance removes an instance from the session. It does not touch groups.
func (s *Session) DropInstance(id string) bool {
	idx := slices.IndexFunc(s.Instances, func(inst *SkillInstance) bool { return inst.ID == id })
	if idx < 0 {
		return false
	}
	s.Instances = slices.Delete(s.Instances, idx, idx+1)
	return true
}

// GroupOf returns the group the participant belongs to
func (s *Session) GroupOf(participantID string) (*SharingGroup, bool) {
	p, ok := s.Participants[participantID]
	if !ok || p.GroupID == "" {
		return nil, false
	}
	g, ok := s.Groups[p.GroupID]
	return g, ok
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	c := *s
	c.Participants = make(map[string]*Participant, len(s.Participants))
	for id, p := range s.Participants {
		c.Participants[id] = p.Clone()
	}
	c.Instances = make([]*SkillInstance, len(s.Instances))
	for i, inst := range s.Instances {
		c.Instances[i] = inst.Clone()
	}
	c.Groups = make(map[string]*SharingGroup, len(s.Groups))
	for id, g := range s.Groups {
		c.Groups[id] = g.Clone()
	}
	return &c
}
