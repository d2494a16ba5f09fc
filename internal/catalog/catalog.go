// Package catalog holds the immutable table of skill definitions.
package catalog

import (
	_ "embed"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

//go:embed defaults.yaml
var defaultCatalog []byte

// DefaultPhaseName names the implicit phase of a skill that declares none
const DefaultPhaseName = "active"

// Catalog is a read-only skill table. Safe for concurrent use without locking.
type Catalog interface {
	// Get returns the definition or an UnknownSkill error
	Get(skillID string) (*battle.SkillDefinition, error)
	// All returns every definition sorted by id
	All() []*battle.SkillDefinition
}

// Config holds the definitions a catalog is built from
type Config struct {
	Definitions []battle.SkillDefinition
}

// Validate checks the definitions
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()

	if len(c.Definitions) == 0 {
		vb.RequiredField("definitions")
	}

	seen := make(map[string]bool, len(c.Definitions))
	for i := range c.Definitions {
		def := &c.Definitions[i]
		if seen[def.ID] {
			vb.Fieldf("definitions", "duplicate skill id %q", def.ID)
		}
		seen[def.ID] = true
		validateDefinition(def, vb)
	}

	return vb.Build()
}

func validateDefinition(def *battle.SkillDefinition, vb *errors.ValidationBuilder) {
	field := "skill." + def.ID
	if def.ID == "" {
		field = "skill"
		vb.Field(field, "id is required")
	}
	if def.Name == "" {
		vb.Field(field, "name is required")
	}
	if !def.Arity.Valid() {
		vb.Fieldf(field, "unknown arity %q", def.Arity)
	}
	if def.Duration < 1 {
		vb.Fieldf(field, "duration must be at least 1, got %d", def.Duration)
	}
	for i, ph := range def.Phases {
		if ph.Name == "" {
			vb.Fieldf(field, "phase %d has no name", i)
		}
		if ph.MinRounds < 0 {
			vb.Fieldf(field, "phase %s min_rounds must not be negative", ph.Name)
		}
	}
	if def.Sharing != nil && !def.Sharing.Policy.Valid() {
		vb.Fieldf(field, "unknown sharing policy %q", def.Sharing.Policy)
	}
	if def.Sharing != nil && def.Arity == battle.AritySelf && !def.Sharing.IncludeOwner {
		vb.Field(field, "a self skill can only share when include_owner is set")
	}
	for i, m := range def.Modifiers {
		validateModifier(field, i, m, def, vb)
	}
	if def.Effect != nil {
		switch def.Effect.Kind {
		case battle.EffectDamage, battle.EffectHeal, battle.EffectRevive:
		default:
			vb.Fieldf(field, "unknown effect kind %q", def.Effect.Kind)
		}
		if def.Effect.Amount < 0 {
			vb.Field(field, "effect amount must not be negative")
		}
	}
}

func validateModifier(field string, i int, m battle.Modifier, def *battle.SkillDefinition, vb *errors.ValidationBuilder) {
	switch m.Scope {
	case battle.ScopeOwner, battle.ScopeTargets, battle.ScopeEveryone:
	default:
		vb.Fieldf(field, "modifier %d has unknown scope %q", i, m.Scope)
	}
	switch m.Kind {
	case battle.ModifierClamp:
		if m.Min > m.Max {
			vb.Fieldf(field, "modifier %d clamp min %d exceeds max %d", i, m.Min, m.Max)
		}
	case battle.ModifierChance:
		if m.Percent < 0 || m.Percent > 100 {
			vb.Fieldf(field, "modifier %d percent must be between 0 and 100", i)
		}
	case battle.ModifierScript:
		if m.Script == "" {
			vb.Fieldf(field, "modifier %d script is required", i)
		}
	case battle.ModifierAdd, battle.ModifierFixed:
	default:
		vb.Fieldf(field, "modifier %d has unknown kind %q", i, m.Kind)
	}
	for _, p := range m.Phases {
		if p < 0 || (len(def.Phases) > 0 && p >= len(def.Phases)) {
			vb.Fieldf(field, "modifier %d references phase %d out of range", i, p)
		}
	}
}

type catalog struct {
	defs   map[string]*battle.SkillDefinition
	sorted []*battle.SkillDefinition
}

// New validates and freezes the definitions
func New(cfg *Config) (Catalog, error) {
	if cfg == nil {
		return nil, errors.InvalidArgument("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid skill catalog")
	}

	c := &catalog{
		defs:   make(map[string]*battle.SkillDefinition, len(cfg.Definitions)),
		sorted: make([]*battle.SkillDefinition, 0, len(cfg.Definitions)),
	}
	for i := range cfg.Definitions {
		def := normalize(cfg.Definitions[i])
		c.defs[def.ID] = def
		c.sorted = append(c.sorted, def)
	}
	sort.Slice(c.sorted, func(i, j int) bool { return c.sorted[i].ID < c.sorted[j].ID })

	return c, nil
}

// normalize copies the definition and fills defaults so callers never share
// slices with the config.
func normalize(def battle.SkillDefinition) *battle.SkillDefinition {
	if def.Owner == "" {
		def.Owner = def.ID
	}
	if len(def.Phases) == 0 {
		def.Phases = []battle.Phase{{Name: DefaultPhaseName}}
	} else {
		def.Phases = append([]battle.Phase(nil), def.Phases...)
	}
	def.Modifiers = append([]battle.Modifier(nil), def.Modifiers...)
	if def.Sharing != nil {
		sharing := *def.Sharing
		def.Sharing = &sharing
	}
	if def.Effect != nil {
		effect := *def.Effect
		def.Effect = &effect
	}
	return &def
}

func (c *catalog) Get(skillID string) (*battle.SkillDefinition, error) {
	def, ok := c.defs[skillID]
	if !ok {
		return nil, battle.UnknownSkill(skillID)
	}
	return def, nil
}

func (c *catalog) All() []*battle.SkillDefinition {
	return append([]*battle.SkillDefinition(nil), c.sorted...)
}

type catalogFile struct {
	Skills []battle.SkillDefinition `yaml:"skills"`
}

// Parse builds a catalog from YAML
func Parse(data []byte) (Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInvalidArgument, "failed to parse skill catalog")
	}
	return New(&Config{Definitions: f.Skills})
}

// Load builds a catalog from a YAML file
func Load(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read skill catalog %s", path)
	}
	return Parse(raw)
}

// Default returns the built-in hero catalog
func Default() (Catalog, error) {
	return Parse(defaultCatalog)
}
