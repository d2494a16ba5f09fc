// Package ledger tracks live skill instances within a session: activation,
// per round decrement, phase progression, expiry and cancellation.
package ledger

import (
	"slices"

	"github.com/KirkDiggler/rpg-skill-engine/internal/catalog"
	"github.com/KirkDiggler/rpg-skill-engine/internal/damage"
	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	"github.com/KirkDiggler/rpg-skill-engine/internal/permission"
	"github.com/KirkDiggler/rpg-skill-engine/internal/pkg/idgen"
	"github.com/KirkDiggler/rpg-skill-engine/internal/registry"
)

// FireReason says why an effect fired
type FireReason string

// Fire reasons
const (
	FireImmediate FireReason = "immediate"
	FireTerminal  FireReason = "terminal_phase"
	FireExpiry    FireReason = "expiry"
)

// Firing is a resolved skill effect
type Firing struct {
	InstanceID string              `json:"instance_id"`
	SkillID    string              `json:"skill_id"`
	OwnerID    string              `json:"owner_id"`
	Kind       battle.EffectKind   `json:"kind"`
	Reason     FireReason          `json:"reason"`
	Plan       damage.Plan         `json:"plan"`
	Changes    []registry.HPChange `json:"changes"`
}

// Activation is the result of a successful activate
type Activation struct {
	Instance *battle.SkillInstance `json:"instance"`
	Group    *battle.SharingGroup  `json:"group,omitempty"`
	Firing   *Firing               `json:"firing,omitempty"`
}

// PhaseTransition is the result of advancing an instance
type PhaseTransition struct {
	InstanceID string  `json:"instance_id"`
	From       int     `json:"from"`
	To         int     `json:"to"`
	FromName   string  `json:"from_name"`
	ToName     string  `json:"to_name"`
	Changed    bool    `json:"changed"`
	Terminal   bool    `json:"terminal"`
	Firing     *Firing `json:"firing,omitempty"`
}

// Expiry is an instance removed because its rounds ran out
type Expiry struct {
	InstanceID     string  `json:"instance_id"`
	SkillID        string  `json:"skill_id"`
	OwnerID        string  `json:"owner_id"`
	DissolvedGroup string  `json:"dissolved_group,omitempty"`
	Firing         *Firing `json:"firing,omitempty"`
}

// Cancellation is the result of cancelling an instance
type Cancellation struct {
	InstanceID     string `json:"instance_id"`
	DissolvedGroup string `json:"dissolved_group,omitempty"`
}

// Decrease is the result of the per round decrement
type Decrease struct {
	Ticked  int       `json:"ticked"`
	Expired []*Expiry `json:"expired,omitempty"`
}

// Ledger manages skill instances. Methods mutate the session in place and
// expect the caller to serialize access to it.
type Ledger interface {
	Activate(s *battle.Session, actorID, skillID string, targets []string) (*Activation, error)
	// Tick decrements every instance once per round. Calling it again in the
	// same round changes nothing.
	Tick(s *battle.Session) int
	// FinalizeExpired fires the pending effects of instances at zero and removes them
	FinalizeExpired(s *battle.Session) ([]*Expiry, error)
	// DecreaseRounds is Tick followed by FinalizeExpired
	DecreaseRounds(s *battle.Session) (*Decrease, error)
	// AdvancePhase moves to the next phase once the current phase's minimum
	// rounds have elapsed. A multi phase effect fires once its terminal phase
	// has been held for that phase's minimum. On the terminal phase the call
	// only fires a ready effect and is otherwise a no-op.
	AdvancePhase(s *battle.Session, instanceID string) (*PhaseTransition, error)
	// AdvanceReady advances, by one phase, every instance whose guard holds
	// and fires terminal effects that became ready
	AdvanceReady(s *battle.Session) ([]*PhaseTransition, error)
	ListActive(s *battle.Session, participantID string) ([]*battle.SkillInstance, error)
	Cancel(s *battle.Session, instanceID string) (*Cancellation, error)
}

// Config holds the dependencies for the ledger
type Config struct {
	Catalog     catalog.Catalog
	Authority   permission.Authority
	InstanceIDs idgen.Generator
	GroupIDs    idgen.Generator
	// OneSkillPerOwner limits each participant to one active skill
	OneSkillPerOwner bool
}

// Validate validates the config
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()

	if c.Catalog == nil {
		vb.RequiredField("Catalog")
	}
	if c.Authority == nil {
		vb.RequiredField("Authority")
	}
	if c.InstanceIDs == nil {
		vb.RequiredField("InstanceIDs")
	}
	if c.GroupIDs == nil {
		vb.RequiredField("GroupIDs")
	}

	return vb.Build()
}

type ledger struct {
	catalog          catalog.Catalog
	authority        permission.Authority
	instanceIDs      idgen.Generator
	groupIDs         idgen.Generator
	oneSkillPerOwner bool
}

// New creates a ledger
func New(cfg *Config) (Ledger, error) {
	if cfg == nil {
		return nil, errors.InvalidArgument("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid ledger config")
	}

	return &ledger{
		catalog:          cfg.Catalog,
		authority:        cfg.Authority,
		instanceIDs:      cfg.InstanceIDs,
		groupIDs:         cfg.GroupIDs,
		oneSkillPerOwner: cfg.OneSkillPerOwner,
	}, nil
}

func (l *ledger) Activate(s *battle.Session, actorID, skillID string, targets []string) (*Activation, error) {
	def, err := l.catalog.Get(skillID)
	if err != nil {
		return nil, err
	}

	allowed, err := l.authority.CanUse(s, actorID, skillID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, battle.PermissionDenied(actorID, skillID)
	}

	resolved, err := resolveTargets(s, def, actorID, targets)
	if err != nil {
		return nil, err
	}

	for _, inst := range s.InstancesOwnedBy(actorID) {
		instDef, err := l.catalog.Get(inst.SkillID)
		if err == nil && instDef.Phase(inst.Phase).Blocking {
			return nil, battle.ActorBlocked(actorID, inst.ID)
		}
	}
	if existing, ok := s.InstanceOfSkill(skillID); ok {
		return nil, battle.SkillAlreadyActive(skillID, existing.ID)
	}
	if l.oneSkillPerOwner {
		if owned := s.InstancesOwnedBy(actorID); len(owned) > 0 {
			return nil, battle.OwnerLimit(actorID, owned[0].ID)
		}
	}

	members, primary := groupMembers(def, actorID, resolved)
	for _, id := range members {
		if p := s.Participants[id]; p.GroupID != "" {
			return nil, errors.FailedPreconditionf("participant %s already belongs to group %s", id, p.GroupID).
				WithMeta("participant_id", id)
		}
	}

	// Validation is complete; nothing below can fail.
	inst := &battle.SkillInstance{
		ID:              l.instanceIDs.Generate(),
		SkillID:         def.ID,
		OwnerID:         actorID,
		Targets:         resolved,
		RemainingRounds: def.Duration,
		CreatedRound:    s.Round,
	}
	s.Instances = append(s.Instances, inst)

	out := &Activation{Instance: inst}
	if len(members) >= battle.MinGroupSize {
		group := &battle.SharingGroup{
			ID:        l.groupIDs.Generate(),
			Members:   members,
			Policy:    def.Sharing.Policy,
			PrimaryID: primary,
			FormedBy:  inst.ID,
			Global:    def.Sharing.Global,
		}
		if err := registry.Link(s, group); err != nil {
			s.DropInstance(inst.ID)
			return nil, errors.Wrapf(err, "failed to form group for %s", skillID)
		}
		inst.GroupID = group.ID
		out.Group = s.Groups[group.ID]
	}

	if def.Effect != nil && def.Effect.Immediate {
		firing, err := l.fire(s, def, inst, FireImmediate)
		if err != nil {
			return nil, err
		}
		out.Firing = firing
	}

	return out, nil
}

// resolveTargets checks the target list against the arity and expands all
// and self skills into concrete participant ids.
func resolveTargets(s *battle.Session, def *battle.SkillDefinition, actorID string, targets []string) ([]string, error) {
	unique := slices.Clone(targets)
	slices.Sort(unique)
	if len(slices.Compact(unique)) != len(targets) {
		return nil, battle.InvalidTargetArity(def.ID, def.Arity, len(targets))
	}

	var resolved []string
	switch def.Arity {
	case battle.AritySelf:
		if len(targets) > 1 || (len(targets) == 1 && targets[0] != actorID) {
			return nil, battle.InvalidTargetArity(def.ID, def.Arity, len(targets))
		}
		resolved = []string{actorID}
	case battle.AritySingle:
		if len(targets) != 1 {
			return nil, battle.InvalidTargetArity(def.ID, def.Arity, len(targets))
		}
		resolved = slices.Clone(targets)
	case battle.ArityGroup:
		if len(targets) < 2 {
			return nil, battle.InvalidTargetArity(def.ID, def.Arity, len(targets))
		}
		resolved = slices.Clone(targets)
	case battle.ArityAll:
		if len(targets) != 0 {
			return nil, battle.InvalidTargetArity(def.ID, def.Arity, len(targets))
		}
		resolved = s.AliveIDs(def.TargetRole)
	default:
		return nil, battle.InvalidTargetArity(def.ID, def.Arity, len(targets))
	}

	for _, id := range resolved {
		if _, ok := s.Participants[id]; !ok {
			return nil, battle.ParticipantNotFound(id)
		}
	}
	return resolved, nil
}

func groupMembers(def *battle.SkillDefinition, actorID string, targets []string) ([]string, string) {
	if def.Sharing == nil {
		return nil, ""
	}
	members := slices.Clone(targets)
	primary := ""
	if len(targets) > 0 {
		primary = targets[0]
	}
	if def.Sharing.IncludeOwner {
		members = append(members, actorID)
		primary = actorID
	}
	slices.Sort(members)
	members = slices.Compact(members)
	if len(members) < battle.MinGroupSize {
		return nil, ""
	}
	return members, primary
}

func (l *ledger) Tick(s *battle.Session) int {
	ticked := 0
	for _, inst := range s.Instances {
		if inst.LastTick >= s.Round {
			continue
		}
		inst.RemainingRounds = max(inst.RemainingRounds-1, 0)
		inst.PhaseRounds++
		inst.LastTick = s.Round
		ticked++
	}
	return ticked
}

func (l *ledger) FinalizeExpired(s *battle.Session) ([]*Expiry, error) {
	var expired []*Expiry
	for _, inst := range slices.Clone(s.Instances) {
		if !inst.Expired() {
			continue
		}

		exp := &Expiry{InstanceID: inst.ID, SkillID: inst.SkillID, OwnerID: inst.OwnerID}
		def, err := l.catalog.Get(inst.SkillID)
		if err != nil {
			return expired, err
		}
		// Multi phase skills only resolve by reaching their terminal phase.
		if def.Effect != nil && !inst.Resolved && !def.MultiPhase() {
			firing, err := l.fire(s, def, inst, FireExpiry)
			if err != nil {
				return expired, err
			}
			exp.Firing = firing
		}
		exp.DissolvedGroup = registry.ReleaseInstance(s, inst)
		expired = append(expired, exp)
	}
	return expired, nil
}

func (l *ledger) DecreaseRounds(s *battle.Session) (*Decrease, error) {
	out := &Decrease{Ticked: l.Tick(s)}
	expired, err := l.FinalizeExpired(s)
	out.Expired = expired
	return out, err
}

func (l *ledger) AdvancePhase(s *battle.Session, instanceID string) (*PhaseTransition, error) {
	inst, ok := s.Instance(instanceID)
	if !ok {
		return nil, battle.InstanceNotFound(instanceID)
	}
	def, err := l.catalog.Get(inst.SkillID)
	if err != nil {
		return nil, err
	}

	out := &PhaseTransition{
		InstanceID: inst.ID,
		From:       inst.Phase,
		To:         inst.Phase,
		FromName:   def.Phase(inst.Phase).Name,
		ToName:     def.Phase(inst.Phase).Name,
	}
	terminal := def.TerminalPhase()
	if inst.Phase >= terminal {
		out.Terminal = true
		firing, err := l.resolveTerminal(s, def, inst)
		if err != nil {
			return nil, err
		}
		out.Firing = firing
		return out, nil
	}

	required := def.Phase(inst.Phase).MinRounds
	if inst.PhaseRounds < required {
		return nil, battle.InvalidPhaseTransition(inst.ID, inst.Phase, inst.PhaseRounds, required)
	}

	inst.Phase++
	inst.PhaseRounds = 0
	out.To = inst.Phase
	out.ToName = def.Phase(inst.Phase).Name
	out.Changed = true
	out.Terminal = inst.Phase == terminal

	if out.Terminal {
		firing, err := l.resolveTerminal(s, def, inst)
		if err != nil {
			return nil, err
		}
		out.Firing = firing
	}
	return out, nil
}

// terminalReady reports whether a multi phase instance has held its terminal
// phase for that phase's minimum rounds and has not fired yet.
func terminalReady(def *battle.SkillDefinition, inst *battle.SkillInstance) bool {
	terminal := def.TerminalPhase()
	return def.MultiPhase() &&
		def.Effect != nil &&
		!inst.Resolved &&
		inst.Phase == terminal &&
		inst.PhaseRounds >= def.Phase(terminal).MinRounds
}

func (l *ledger) resolveTerminal(s *battle.Session, def *battle.SkillDefinition, inst *battle.SkillInstance) (*Firing, error) {
	if !terminalReady(def, inst) {
		return nil, nil
	}
	return l.fire(s, def, inst, FireTerminal)
}

func (l *ledger) AdvanceReady(s *battle.Session) ([]*PhaseTransition, error) {
	var transitions []*PhaseTransition
	for _, inst := range slices.Clone(s.Instances) {
		def, err := l.catalog.Get(inst.SkillID)
		if err != nil {
			return transitions, err
		}
		if inst.Phase >= def.TerminalPhase() {
			if !terminalReady(def, inst) {
				continue
			}
		} else if inst.PhaseRounds < def.Phase(inst.Phase).MinRounds {
			continue
		}
		t, err := l.AdvancePhase(s, inst.ID)
		if err != nil {
			return transitions, err
		}
		transitions = append(transitions, t)
	}
	return transitions, nil
}

func (l *ledger) ListActive(s *battle.Session, participantID string) ([]*battle.SkillInstance, error) {
	if _, ok := s.Participants[participantID]; !ok {
		return nil, battle.ParticipantNotFound(participantID)
	}

	var out []*battle.SkillInstance
	for _, inst := range s.Instances {
		if inst.Involves(participantID) {
			out = append(out, inst.Clone())
		}
	}
	return out, nil
}

func (l *ledger) Cancel(s *battle.Session, instanceID string) (*Cancellation, error) {
	inst, ok := s.Instance(instanceID)
	if !ok {
		return nil, battle.InstanceNotFound(instanceID)
	}
	return &Cancellation{
		InstanceID:     inst.ID,
		DissolvedGroup: registry.ReleaseInstance(s, inst),
	}, nil
}

// fire resolves the definition's effect against the instance's targets and
// commits it. The instance is marked resolved so it never fires twice.
func (l *ledger) fire(s *battle.Session, def *battle.SkillDefinition, inst *battle.SkillInstance, reason FireReason) (*Firing, error) {
	eff := def.Effect
	amount := eff.Amount
	if eff.FromDice {
		amount += inst.DiceTotal()
	}

	var plan damage.Plan
	if eff.Kind == battle.EffectRevive {
		plan = damage.Revival(s, inst, amount)
	} else {
		var err error
		plan, err = damage.Resolve(s, inst, amount)
		if err != nil {
			return nil, err
		}
	}

	changes, err := damage.Commit(s, plan, eff.Kind)
	if err != nil {
		return nil, err
	}
	inst.Resolved = true

	return &Firing{
		InstanceID: inst.ID,
		SkillID:    inst.SkillID,
		OwnerID:    inst.OwnerID,
		Kind:       eff.Kind,
		Reason:     reason,
		Plan:       plan,
		Changes:    changes,
	}, nil
}
