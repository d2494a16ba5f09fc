// Package damage computes how numeric effects spread over participants and
// sharing groups, and commits the result through the registry.
package damage

import (
	"sort"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	"github.com/KirkDiggler/rpg-skill-engine/internal/registry"
)

// Plan maps individual participant ids to amounts. Keys are never group
// labels.
type Plan map[string]int

// IDs returns the planned participant ids, sorted
func (p Plan) IDs() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Total sums the planned amounts
func (p Plan) Total() int {
	total := 0
	for _, v := range p {
		total += v
	}
	return total
}

// Resolve plans raw against the instance's fixed targets. A target in a group
// that applies to this instance spreads the amount per the group policy; any
// other alive target takes it directly. Dead participants never appear.
func Resolve(s *battle.Session, inst *battle.SkillInstance, raw int) (Plan, error) {
	if inst == nil {
		return nil, errors.InvalidArgument("instance is required")
	}
	if raw < 0 {
		return nil, errors.InvalidArgumentf("amount must not be negative, got %d", raw)
	}

	plan := Plan{}
	for _, targetID := range inst.Targets {
		p, ok := s.Participants[targetID]
		if !ok || !p.Alive {
			continue
		}
		spread(s, plan, p, inst.ID, raw)
	}
	return plan, nil
}

// Distribute plans damage that has no source instance, such as a monster
// attack. Only groups that apply to every source take part.
func Distribute(s *battle.Session, targetID string, raw int) (Plan, error) {
	if raw < 0 {
		return nil, errors.InvalidArgumentf("amount must not be negative, got %d", raw)
	}
	p, ok := s.Participants[targetID]
	if !ok {
		return nil, battle.ParticipantNotFound(targetID)
	}

	plan := Plan{}
	if p.Alive {
		spread(s, plan, p, "", raw)
	}
	return plan, nil
}

// Revival plans a revive for the instance's dead targets. Groups play no part.
func Revival(s *battle.Session, inst *battle.SkillInstance, hp int) Plan {
	plan := Plan{}
	for _, targetID := range inst.Targets {
		if p, ok := s.Participants[targetID]; ok && !p.Alive {
			plan[targetID] = hp
		}
	}
	return plan
}

func spread(s *battle.Session, plan Plan, target *battle.Participant, sourceID string, raw int) {
	g, ok := s.GroupOf(target.ID)
	if !ok || !g.AppliesTo(sourceID) {
		plan[target.ID] += raw
		return
	}

	alive := make([]string, 0, len(g.Members))
	for _, id := range g.Members {
		if m, ok := s.Participants[id]; ok && m.Alive {
			alive = append(alive, id)
		}
	}

	switch g.Policy {
	case battle.PolicyFullToAll:
		for _, id := range alive {
			plan[id] += raw
		}
	case battle.PolicySplitEven:
		share, rem := raw/len(alive), raw%len(alive)
		for _, id := range alive {
			plan[id] += share
		}
		// members are sorted, so alive[0] is the lowest id
		plan[alive[0]] += rem
	case battle.PolicyPrimaryAbsorbs:
		primary, ok := s.Participants[g.PrimaryID]
		if !ok || !primary.Alive {
			plan[target.ID] += raw
			return
		}
		for _, id := range alive {
			if _, seen := plan[id]; !seen {
				plan[id] = 0
			}
		}
		plan[primary.ID] += raw
	default:
		plan[target.ID] += raw
	}
}

// Commit applies a plan. Every id is checked before anything changes.
// Revive plans use the amount as the hit points to come back with.
func Commit(s *battle.Session, plan Plan, kind battle.EffectKind) ([]registry.HPChange, error) {
	ids := plan.IDs()
	for _, id := range ids {
		if _, ok := s.Participants[id]; !ok {
			return nil, battle.ParticipantNotFound(id)
		}
		if plan[id] < 0 {
			return nil, errors.InvalidArgumentf("planned amount for %s is negative", id)
		}
	}

	var apply func(*battle.Session, string, int) (registry.HPChange, error)
	switch kind {
	case battle.EffectDamage:
		apply = registry.ApplyDamage
	case battle.EffectHeal:
		apply = registry.Heal
	case battle.EffectRevive:
		apply = registry.Revive
	default:
		return nil, errors.InvalidArgumentf("unknown effect kind %q", kind)
	}

	changes := make([]registry.HPChange, 0, len(ids))
	for _, id := range ids {
		change, err := apply(s, id, plan[id])
		if err != nil {
			return changes, errors.Wrapf(err, "failed to commit %s to %s", kind, id)
		}
		changes = append(changes, change)
	}
	return changes, nil
}
