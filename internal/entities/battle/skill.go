package battle

import "slices"

// Arity constrains the target list of an activation
type Arity string

// Target arities
const (
	AritySelf   Arity = "self"   // no targets, or only the actor
	AritySingle Arity = "single" // exactly one target
	ArityGroup  Arity = "group"  // two or more targets
	ArityAll    Arity = "all"    // no explicit targets; every alive participant with TargetRole
)

// Valid reports whether the arity is known
func (a Arity) Valid() bool {
	switch a {
	case AritySelf, AritySingle, ArityGroup, ArityAll:
		return true
	}
	return false
}

// Phase is one stage of a skill's lifecycle
type Phase struct {
	Name      string `json:"name" yaml:"name"`
	MinRounds int    `json:"min_rounds" yaml:"min_rounds"`
	Blocking  bool   `json:"blocking,omitempty" yaml:"blocking"` // owner may not activate other skills
}

// SharingSpec describes the group a skill forms when activated
type SharingSpec struct {
	Policy       Policy `json:"policy" yaml:"policy"`
	Global       bool   `json:"global,omitempty" yaml:"global"`
	IncludeOwner bool   `json:"include_owner,omitempty" yaml:"include_owner"`
}

// ModifierKind selects how a modifier rewrites a dice value
type ModifierKind string

// Modifier kinds
const (
	ModifierClamp  ModifierKind = "clamp"
	ModifierAdd    ModifierKind = "add"
	ModifierChance ModifierKind = "chance"
	ModifierFixed  ModifierKind = "fixed"
	ModifierScript ModifierKind = "script"
)

// Scope selects which actors' dice a modifier touches
type Scope string

// Modifier scopes
const (
	ScopeOwner    Scope = "owner"
	ScopeTargets  Scope = "targets"
	ScopeEveryone Scope = "everyone"
)

// Modifier rewrites dice results while its instance is active
type Modifier struct {
	Kind  ModifierKind `json:"kind" yaml:"kind"`
	Scope Scope        `json:"scope" yaml:"scope"`
	Role  Role         `json:"role,omitempty" yaml:"role"` // optional actor role filter

	Min     int `json:"min,omitempty" yaml:"min"`
	Max     int `json:"max,omitempty" yaml:"max"`
	Amount  int `json:"amount,omitempty" yaml:"amount"`
	Percent int `json:"percent,omitempty" yaml:"percent"` // chance of Success
	Success int `json:"success,omitempty" yaml:"success"`
	Failure int `json:"failure,omitempty" yaml:"failure"`
	Value   int `json:"value,omitempty" yaml:"value"`

	Script string `json:"script,omitempty" yaml:"script"`
	Phases []int  `json:"phases,omitempty" yaml:"phases"` // empty means every phase
}

// ActiveIn reports whether the modifier applies in the given phase
func (m Modifier) ActiveIn(phase int) bool {
	return len(m.Phases) == 0 || slices.Contains(m.Phases, phase)
}

// EffectKind is the numeric effect a skill resolves with
type EffectKind string

// Effect kinds
const (
	EffectDamage EffectKind = "damage"
	EffectHeal   EffectKind = "heal"
	EffectRevive EffectKind = "revive"
)

// Effect is the numeric outcome of a skill
type Effect struct {
	Kind      EffectKind `json:"kind" yaml:"kind"`
	Amount    int        `json:"amount" yaml:"amount"`
	FromDice  bool       `json:"from_dice,omitempty" yaml:"from_dice"`   // add stored dice results
	Immediate bool       `json:"immediate,omitempty" yaml:"immediate"` // fires on activation
}

// SkillDefinition is the immutable description of a skill
type SkillDefinition struct {
	ID         string       `json:"id" yaml:"id"`
	Name       string       `json:"name" yaml:"name"`
	Owner      string       `json:"owner" yaml:"owner"`
	Permission string       `json:"permission,omitempty" yaml:"permission"`
	Phases     []Phase      `json:"phases" yaml:"phases"`
	Duration   int          `json:"duration" yaml:"duration"`
	Sharing    *SharingSpec `json:"sharing,omitempty" yaml:"sharing"`
	Arity      Arity        `json:"arity" yaml:"arity"`
	TargetRole Role         `json:"target_role,omitempty" yaml:"target_role"`
	Priority   int          `json:"priority,omitempty" yaml:"priority"`
	Modifiers  []Modifier   `json:"modifiers,omitempty" yaml:"modifiers"`
	Effect     *Effect      `json:"effect,omitempty" yaml:"effect"`
}

// TerminalPhase is the index of the last phase
func (d *SkillDefinition) TerminalPhase() int {
	if len(d.Phases) == 0 {
		return 0
	}
	return len(d.Phases) - 1
}

// MultiPhase reports whether the skill has more than one phase
func (d *SkillDefinition) MultiPhase() bool {
	return len(d.Phases) > 1
}

// Phase returns the phase at index i, or a zero phase when out of range
func (d *SkillDefinition) Phase(i int) Phase {
	if i < 0 || i >= len(d.Phases) {
		return Phase{}
	}
	return d.Phases[i]
}

// HasDiceEffect reports whether rolls should be stored on instances of this skill
func (d *SkillDefinition) HasDiceEffect() bool {
	return d.Effect != nil && d.Effect.FromDice
}
