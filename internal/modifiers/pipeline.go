// Package modifiers rewrites raw dice results through the modifiers of
// active skill instances and stores rolls on instances that resolve from
// dice.
package modifiers

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/KirkDiggler/rpg-toolkit/dice"

	"github.com/KirkDiggler/rpg-skill-engine/internal/catalog"
	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	"github.com/KirkDiggler/rpg-skill-engine/internal/scripting"
)

// Note records one modifier step
type Note struct {
	InstanceID string              `json:"instance_id"`
	SkillID    string              `json:"skill_id"`
	Kind       battle.ModifierKind `json:"kind"`
	Before     int                 `json:"before"`
	After      int                 `json:"after"`
	Detail     string              `json:"detail,omitempty"`
}

// Result is a modified dice value
type Result struct {
	Raw      int      `json:"raw"`
	Value    int      `json:"value"`
	Notes    []Note   `json:"notes,omitempty"`
	Recorded []string `json:"recorded,omitempty"` // instances that stored the value
}

// Pipeline applies dice modifiers
type Pipeline interface {
	// Apply runs raw through every modifier that covers the actor, ordered by
	// skill priority then activation order, and records the final value.
	Apply(ctx context.Context, s *battle.Session, actorID string, raw int) (*Result, error)
}

// Config holds the dependencies for the pipeline
type Config struct {
	Catalog catalog.Catalog
	Roller  dice.Roller
	// Scripts is required only when the catalog has script modifiers
	Scripts scripting.Engine
}

// Validate validates the config
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()

	if c.Catalog == nil {
		vb.RequiredField("Catalog")
	}
	if c.Roller == nil {
		vb.RequiredField("Roller")
	}
	if c.Catalog != nil {
		for _, def := range c.Catalog.All() {
			for _, m := range def.Modifiers {
				if m.Kind != battle.ModifierScript {
					continue
				}
				if c.Scripts == nil {
					vb.Fieldf("Scripts", "required by script modifier on %s", def.ID)
					continue
				}
				if err := c.Scripts.Compile(m.Script); err != nil {
					vb.Fieldf("Scripts", "%s: %v", def.ID, err)
				}
			}
		}
	}

	return vb.Build()
}

type pipeline struct {
	catalog catalog.Catalog
	roller  dice.Roller
	scripts scripting.Engine
}

// New creates a modifier pipeline
func New(cfg *Config) (Pipeline, error) {
	if cfg == nil {
		return nil, errors.InvalidArgument("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid modifier config")
	}

	return &pipeline{
		catalog: cfg.Catalog,
		roller:  cfg.Roller,
		scripts: cfg.Scripts,
	}, nil
}

type step struct {
	order    int
	priority int
	inst     *battle.SkillInstance
	mod      battle.Modifier
}

func (p *pipeline) Apply(ctx context.Context, s *battle.Session, actorID string, raw int) (*Result, error) {
	actor, ok := s.Participants[actorID]
	if !ok {
		return nil, battle.ParticipantNotFound(actorID)
	}

	var steps []step
	for order, inst := range s.Instances {
		def, err := p.catalog.Get(inst.SkillID)
		if err != nil {
			return nil, err
		}
		for _, m := range def.Modifiers {
			if covers(m, inst, actor) {
				steps = append(steps, step{order: order, priority: def.Priority, inst: inst, mod: m})
			}
		}
	}
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].priority != steps[j].priority {
			return steps[i].priority < steps[j].priority
		}
		return steps[i].order < steps[j].order
	})

	out := &Result{Raw: raw, Value: raw}
	for _, st := range steps {
		before := out.Value
		after, detail, err := p.apply(ctx, s, st, before)
		if err != nil {
			return nil, errors.Wrapf(err, "modifier %s on %s failed", st.mod.Kind, st.inst.SkillID)
		}
		out.Value = after
		out.Notes = append(out.Notes, Note{
			InstanceID: st.inst.ID,
			SkillID:    st.inst.SkillID,
			Kind:       st.mod.Kind,
			Before:     before,
			After:      after,
			Detail:     detail,
		})
	}

	// Validation and scripts are done; recording cannot fail.
	for _, inst := range s.InstancesOwnedBy(actorID) {
		def, err := p.catalog.Get(inst.SkillID)
		if err != nil || !def.HasDiceEffect() || inst.Resolved {
			continue
		}
		inst.DiceResults = append(inst.DiceResults, out.Value)
		out.Recorded = append(out.Recorded, inst.ID)
	}

	return out, nil
}

func covers(m battle.Modifier, inst *battle.SkillInstance, actor *battle.Participant) bool {
	if !m.ActiveIn(inst.Phase) {
		return false
	}
	if m.Role != "" && !actor.HasRole(m.Role) {
		return false
	}
	switch m.Scope {
	case battle.ScopeOwner:
		return inst.OwnerID == actor.ID
	case battle.ScopeTargets:
		return slices.Contains(inst.Targets, actor.ID)
	case battle.ScopeEveryone:
		return true
	}
	return false
}

func (p *pipeline) apply(ctx context.Context, s *battle.Session, st step, v int) (int, string, error) {
	m := st.mod
	switch m.Kind {
	case battle.ModifierClamp:
		return min(max(v, m.Min), m.Max), "", nil
	case battle.ModifierAdd:
		return max(v+m.Amount, 0), "", nil
	case battle.ModifierFixed:
		return m.Value, "", nil
	case battle.ModifierChance:
		roll, err := p.roller.Roll(100)
		if err != nil {
			return 0, "", errors.Wrap(err, "failed to roll chance")
		}
		if roll <= m.Percent {
			return m.Success, fmt.Sprintf("d100=%d hit", roll), nil
		}
		return m.Failure, fmt.Sprintf("d100=%d miss", roll), nil
	case battle.ModifierScript:
		if p.scripts == nil {
			return 0, "", errors.Internal("no script engine configured")
		}
		got, err := p.scripts.Eval(ctx, m.Script, scripting.Vars{Value: v, Round: s.Round, Phase: st.inst.Phase})
		return got, "", err
	}
	return v, "", errors.InvalidArgumentf("unknown modifier kind %q", m.Kind)
}
