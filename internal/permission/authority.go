// Package permission decides which actors may invoke which skills.
package permission

import (
	"slices"

	"github.com/KirkDiggler/rpg-skill-engine/internal/catalog"
	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

// Roster is the live participant set. It is consulted on every check.
type Roster interface {
	Roles(participantID string) ([]battle.Role, bool)
}

// Authority answers permission checks
type Authority interface {
	// CanUse evaluates, in order: deny lists, allow lists, role predicates and
	// finally the owner-only default for skills with no granting rule.
	CanUse(roster Roster, actorID, skillID string) (bool, error)
}

// Config holds the dependencies for the authority
type Config struct {
	Catalog catalog.Catalog
	Rules   map[string][]Rule
}

// Validate validates the config
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()

	if c.Catalog == nil {
		vb.RequiredField("Catalog")
	} else {
		for skillID, rules := range c.Rules {
			if _, err := c.Catalog.Get(skillID); err != nil {
				vb.Fieldf("Rules", "rules reference unknown skill %q", skillID)
			}
			for _, r := range rules {
				if p, ok := r.(RolePredicate); ok && p.Fn == nil {
					vb.Fieldf("Rules", "role predicate %q on %s has no function", p.Name, skillID)
				}
			}
		}
	}

	return vb.Build()
}

type authority struct {
	catalog catalog.Catalog
	rules   map[string][]Rule
}

// New creates an authority. Rules are copied once and never reloaded.
func New(cfg *Config) (Authority, error) {
	if cfg == nil {
		return nil, errors.InvalidArgument("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid permission config")
	}

	rules := make(map[string][]Rule, len(cfg.Rules))
	for skillID, list := range cfg.Rules {
		rules[skillID] = slices.Clone(list)
	}

	return &authority{
		catalog: cfg.Catalog,
		rules:   rules,
	}, nil
}

func (a *authority) CanUse(roster Roster, actorID, skillID string) (bool, error) {
	def, err := a.catalog.Get(skillID)
	if err != nil {
		return false, err
	}
	if roster == nil {
		return false, errors.InvalidArgument("roster is required")
	}

	rules := a.rules[skillID]

	for _, r := range rules {
		if deny, ok := r.(DenyList); ok && slices.Contains(deny.Actors, actorID) {
			return false, nil
		}
	}

	roles, onRoster := roster.Roles(actorID)
	if !onRoster {
		return false, nil
	}

	granting := false
	for _, r := range rules {
		if allow, ok := r.(AllowList); ok {
			granting = true
			if slices.Contains(allow.Actors, actorID) {
				return true, nil
			}
		}
	}
	for _, r := range rules {
		if pred, ok := r.(RolePredicate); ok {
			granting = true
			if pred.Fn(roles) {
				return true, nil
			}
		}
	}
	if granting {
		return false, nil
	}

	// Owner-only default
	return actorID == def.Owner, nil
}
