// Package builders provides test data builders for creating test fixtures
package builders

import (
	"time"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
)

// DefaultTime is the creation time of built sessions unless At is used
var DefaultTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// SessionBuilder provides a fluent interface for building test sessions
type SessionBuilder struct {
	session *battle.Session
	mutated bool
	saved   bool
}

// NewSessionBuilder creates a new builder with an idle, empty session
func NewSessionBuilder() *SessionBuilder {
	return &SessionBuilder{
		session: battle.NewSession("sess_test", "chan_test", DefaultTime),
	}
}

// WithID sets the session ID
func (b *SessionBuilder) WithID(id string) *SessionBuilder {
	b.session.ID = id
	return b
}

// WithChannel sets the channel ID
func (b *SessionBuilder) WithChannel(channelID string) *SessionBuilder {
	b.session.ChannelID = channelID
	return b
}

// At sets the creation and update time
func (b *SessionBuilder) At(t time.Time) *SessionBuilder {
	b.session.CreatedAt = t
	b.session.UpdatedAt = t
	return b
}

// WithRound sets the current round
func (b *SessionBuilder) WithRound(round int) *SessionBuilder {
	b.session.Round = round
	return b
}

// InProgress opens the current round
func (b *SessionBuilder) InProgress() *SessionBuilder {
	b.session.State = battle.StateRoundInProgress
	return b
}

// WithParticipant adds a copy of p. Alive follows HP.
func (b *SessionBuilder) WithParticipant(p battle.Participant) *SessionBuilder {
	c := p.Clone()
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.MaxHP == 0 {
		c.MaxHP = c.HP
	}
	c.Alive = c.HP > 0
	b.session.Participants[c.ID] = c
	return b
}

// WithUser adds a living participant with the user role
func (b *SessionBuilder) WithUser(id string, hp int) *SessionBuilder {
	return b.WithParticipant(battle.Participant{ID: id, Roles: []battle.Role{battle.RoleUser}, HP: hp})
}

// WithMonster adds a living participant with the monster role
func (b *SessionBuilder) WithMonster(id string, hp int) *SessionBuilder {
	return b.WithParticipant(battle.Participant{ID: id, Roles: []battle.Role{battle.RoleMonster}, HP: hp})
}

// WithName renames an added participant
func (b *SessionBuilder) WithName(id, name string) *SessionBuilder {
	if p, ok := b.session.Participants[id]; ok {
		p.Name = name
	}
	return b
}

// Dead marks an added participant dead at zero HP
func (b *SessionBuilder) Dead(id string) *SessionBuilder {
	if p, ok := b.session.Participants[id]; ok {
		p.HP = 0
		p.Alive = false
	}
	return b
}

// WithInstance appends a copy of a skill instance
func (b *SessionBuilder) WithInstance(inst battle.SkillInstance) *SessionBuilder {
	b.session.Instances = append(b.session.Instances, inst.Clone())
	return b
}

// WithGroup adds a sharing group and points its members at it
func (b *SessionBuilder) WithGroup(g battle.SharingGroup) *SessionBuilder {
	c := g.Clone()
	c.SortMembers()
	b.session.Groups[c.ID] = c
	for _, id := range c.Members {
		if p, ok := b.session.Participants[id]; ok {
			p.GroupID = c.ID
		}
	}
	return b
}

// Mutated bumps the version once so the session reads as unsaved
func (b *SessionBuilder) Mutated() *SessionBuilder {
	b.mutated = true
	return b
}

// Saved marks the built session as persisted at its version
func (b *SessionBuilder) Saved() *SessionBuilder {
	b.saved = true
	return b
}

// Build returns the session
func (b *SessionBuilder) Build() *battle.Session {
	s := b.session.Clone()
	if b.mutated {
		s.Touch(s.UpdatedAt)
	}
	if b.saved {
		s.SavedVersion = s.Version
	}
	return s
}
