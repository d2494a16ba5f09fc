package permission

import (
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

// Rule is one permission rule attached to a skill. The set of rule types is
// closed: AllowList, DenyList and RolePredicate.
type Rule interface {
	isRule()
}

// AllowList grants the skill to the listed actors while they are on the roster
type AllowList struct {
	Actors []string
}

// DenyList refuses the skill to the listed actors. It wins over every other rule.
type DenyList struct {
	Actors []string
}

// RolePredicate grants the skill when Fn accepts the actor's current roles
type RolePredicate struct {
	Name string
	Fn   func(roles []battle.Role) bool
}

func (AllowList) isRule()     {}
func (DenyList) isRule()      {}
func (RolePredicate) isRule() {}

// AnyRole builds a predicate matching actors that hold at least one of roles
func AnyRole(roles ...battle.Role) RolePredicate {
	want := slices.Clone(roles)
	names := make([]string, len(want))
	for i, r := range want {
		names[i] = string(r)
	}
	return RolePredicate{
		Name: "any_role(" + strings.Join(names, ",") + ")",
		Fn: func(have []battle.Role) bool {
			for _, r := range have {
				if slices.Contains(want, r) {
					return true
				}
			}
			return false
		},
	}
}

type ruleEntry struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
	Roles []string `yaml:"roles"`
}

type rulesFile struct {
	Rules map[string]ruleEntry `yaml:"rules"`
}

// ParseRules reads per skill rules from YAML:
//
//	rules:
//	  karon:
//	    allow: [karon]
//	    deny: [boss]
//	    roles: [admin]
func ParseRules(data []byte) (map[string][]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInvalidArgument, "failed to parse permission rules")
	}

	skillIDs := make([]string, 0, len(f.Rules))
	for id := range f.Rules {
		skillIDs = append(skillIDs, id)
	}
	sort.Strings(skillIDs)

	rules := make(map[string][]Rule, len(f.Rules))
	for _, skillID := range skillIDs {
		entry := f.Rules[skillID]
		var list []Rule
		if len(entry.Deny) > 0 {
			list = append(list, DenyList{Actors: entry.Deny})
		}
		if len(entry.Allow) > 0 {
			list = append(list, AllowList{Actors: entry.Allow})
		}
		if len(entry.Roles) > 0 {
			roles := make([]battle.Role, len(entry.Roles))
			for i, r := range entry.Roles {
				roles[i] = battle.Role(r)
			}
			list = append(list, AnyRole(roles...))
		}
		rules[skillID] = list
	}
	return rules, nil
}

// LoadRules reads per skill rules from a YAML file
func LoadRules(path string) (map[string][]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read permission rules %s", path)
	}
	return ParseRules(raw)
}
