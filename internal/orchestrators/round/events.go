package round

import (
	"context"
	"log/slog"

	"github.com/KirkDiggler/rpg-toolkit/core"
	"github.com/KirkDiggler/rpg-toolkit/events"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/ledger"
	"github.com/KirkDiggler/rpg-skill-engine/internal/registry"
)

// Lifecycle events published on the event bus after a mutation commits
const (
	EventRoundStarted       = "round.started"
	EventRoundEnded         = "round.ended"
	EventSkillActivated     = "skill.activated"
	EventPhaseAdvanced      = "skill.phase_advanced"
	EventSkillResolved      = "skill.resolved"
	EventSkillExpired       = "skill.expired"
	EventSkillCancelled     = "skill.cancelled"
	EventParticipantDied    = "participant.died"
	EventParticipantRevived = "participant.revived"
	EventGroupDissolved     = "group.dissolved"
)

// Events lists every lifecycle event type
var Events = []string{
	EventRoundStarted,
	EventRoundEnded,
	EventSkillActivated,
	EventPhaseAdvanced,
	EventSkillResolved,
	EventSkillExpired,
	EventSkillCancelled,
	EventParticipantDied,
	EventParticipantRevived,
	EventGroupDissolved,
}

// Context keys set on every published event
const (
	ContextSessionID = "session_id"
)

// outbox collects events while the session lock is held
type outbox struct {
	sessionID string
	events    []events.Event
}

// add records an event. Participants are copied because the session keeps
// changing after the lock is released.
func (b *outbox) add(eventType string, source, target *battle.Participant, kv ...any) {
	ev := events.NewGameEvent(eventType, entity(source), entity(target))
	ev.Context().Set(ContextSessionID, b.sessionID)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			ev.Context().Set(key, kv[i+1])
		}
	}
	b.events = append(b.events, ev)
}

func entity(p *battle.Participant) core.Entity {
	if p == nil {
		return nil
	}
	return p.Clone()
}

func (b *outbox) transition(s *battle.Session, t *ledger.PhaseTransition) {
	if t == nil || !t.Changed {
		return
	}
	var owner *battle.Participant
	if inst, ok := s.Instance(t.InstanceID); ok {
		owner = s.Participants[inst.OwnerID]
	}
	b.add(EventPhaseAdvanced, owner, nil,
		"instance_id", t.InstanceID,
		"from", t.FromName,
		"to", t.ToName)
}

// firing records a resolved effect and returns who died from it
func (b *outbox) firing(s *battle.Session, f *ledger.Firing) []string {
	if f == nil {
		return nil
	}
	b.add(EventSkillResolved, s.Participants[f.OwnerID], nil,
		"instance_id", f.InstanceID,
		"skill_id", f.SkillID,
		"kind", string(f.Kind),
		"reason", string(f.Reason),
		"total", f.Plan.Total())
	return b.changes(s, f.Changes)
}

func (b *outbox) changes(s *battle.Session, changes []registry.HPChange) []string {
	var died []string
	for _, c := range changes {
		switch {
		case c.Died:
			died = append(died, c.ParticipantID)
			b.add(EventParticipantDied, nil, s.Participants[c.ParticipantID], "hp_before", c.Before)
		case c.Revived:
			b.add(EventParticipantRevived, nil, s.Participants[c.ParticipantID], "hp", c.After)
		}
	}
	return died
}

func (o *orchestrator) publish(ctx context.Context, out *outbox) {
	for _, ev := range out.events {
		if err := o.bus.Publish(ctx, ev); err != nil {
			slog.Warn("Failed to publish battle event",
				"session_id", out.sessionID,
				"event_type", ev.Type(),
				"error", err,
			)
		}
	}
}
