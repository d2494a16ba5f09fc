// Package round implements the round controller: it owns live battle
// sessions, serializes mutations per session and drives the ledger, damage
// engine and modifier pipeline through the idle, round in progress and
// resolving states.
package round

//go:generate mockgen -destination=mock/mock_service.go -package=roundmock github.com/KirkDiggler/rpg-skill-engine/internal/orchestrators/round Service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/KirkDiggler/rpg-toolkit/dice"
	"github.com/KirkDiggler/rpg-toolkit/events"

	"github.com/KirkDiggler/rpg-skill-engine/internal/damage"
	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	"github.com/KirkDiggler/rpg-skill-engine/internal/ledger"
	"github.com/KirkDiggler/rpg-skill-engine/internal/modifiers"
	"github.com/KirkDiggler/rpg-skill-engine/internal/pkg/clock"
	"github.com/KirkDiggler/rpg-skill-engine/internal/pkg/idgen"
	"github.com/KirkDiggler/rpg-skill-engine/internal/registry"
	battlestate "github.com/KirkDiggler/rpg-skill-engine/internal/repositories/battle_state"
	"github.com/KirkDiggler/rpg-skill-engine/internal/telemetry"
)

// Service defines the round controller operations
type Service interface {
	CreateSession(ctx context.Context, input *CreateSessionInput) (*CreateSessionOutput, error)
	Teardown(ctx context.Context, input *TeardownInput) (*TeardownOutput, error)
	GetSession(ctx context.Context, input *GetSessionInput) (*GetSessionOutput, error)

	// Roster maintenance is allowed in any state
	AddParticipant(ctx context.Context, input *AddParticipantInput) (*AddParticipantOutput, error)
	RemoveParticipant(ctx context.Context, input *RemoveParticipantInput) (*RemoveParticipantOutput, error)
	SetRoles(ctx context.Context, input *SetRolesInput) (*SetRolesOutput, error)
	LinkGroup(ctx context.Context, input *LinkGroupInput) (*LinkGroupOutput, error)
	DissolveGroup(ctx context.Context, input *DissolveGroupInput) (*DissolveGroupOutput, error)

	StartRound(ctx context.Context, input *StartRoundInput) (*StartRoundOutput, error)
	EndRound(ctx context.Context, input *EndRoundInput) (*EndRoundOutput, error)

	// These require a round in progress
	HandleEvent(ctx context.Context, input *HandleEventInput) (*HandleEventOutput, error)
	AdvancePhase(ctx context.Context, input *AdvancePhaseInput) (*AdvancePhaseOutput, error)
	CancelSkill(ctx context.Context, input *CancelSkillInput) (*CancelSkillOutput, error)
	ApplyDamage(ctx context.Context, input *ApplyDamageInput) (*ApplyDamageOutput, error)
	Heal(ctx context.Context, input *HealInput) (*HealOutput, error)
	RollDice(ctx context.Context, input *RollDiceInput) (*RollDiceOutput, error)

	// Read queries share the session lock
	ListActive(ctx context.Context, input *ListActiveInput) (*ListActiveOutput, error)
	IsAlive(ctx context.Context, input *IsAliveInput) (*IsAliveOutput, error)

	Save(ctx context.Context, input *SaveInput) (*SaveOutput, error)
	Load(ctx context.Context, input *LoadInput) (*LoadOutput, error)
	SaveDirty(ctx context.Context) (*SaveDirtyOutput, error)
	RunAutosave(ctx context.Context, interval time.Duration)
}

// Config holds the dependencies for the round controller
type Config struct {
	Ledger   ledger.Ledger
	Pipeline modifiers.Pipeline

	SessionIDs idgen.Generator
	// GroupIDs must be the generator the ledger uses so ids never collide
	GroupIDs idgen.Generator

	// Optional
	Repository battlestate.Repository
	Roller     dice.Roller
	EventBus   events.EventBus
	Observer   *telemetry.Observer
	Clock      clock.Clock
}

// Validate ensures all required dependencies are provided
func (c *Config) Validate() error {
	if c == nil {
		return errors.InvalidArgument("config cannot be nil")
	}
	vb := errors.NewValidationBuilder()

	if c.Ledger == nil {
		vb.RequiredField("Ledger")
	}
	if c.Pipeline == nil {
		vb.RequiredField("Pipeline")
	}
	if c.SessionIDs == nil {
		vb.RequiredField("SessionIDs")
	}
	if c.GroupIDs == nil {
		vb.RequiredField("GroupIDs")
	}

	return vb.Build()
}

// entry guards one live session. closed is set by teardown under the write
// lock; operations that acquire the lock afterwards see a missing session.
type entry struct {
	mu      sync.RWMutex
	session *battle.Session
	closed  bool
}

type orchestrator struct {
	ledger     ledger.Ledger
	pipeline   modifiers.Pipeline
	sessionIDs idgen.Generator
	groupIDs   idgen.Generator
	repo       battlestate.Repository
	roller     dice.Roller
	bus        events.EventBus
	observer   *telemetry.Observer
	clock      clock.Clock

	mu       sync.RWMutex
	sessions map[string]*entry
	channels map[string]string
}

// NewOrchestrator creates a round controller with the provided dependencies
func NewOrchestrator(cfg *Config) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	o := &orchestrator{
		ledger:     cfg.Ledger,
		pipeline:   cfg.Pipeline,
		sessionIDs: cfg.SessionIDs,
		groupIDs:   cfg.GroupIDs,
		repo:       cfg.Repository,
		roller:     cfg.Roller,
		bus:        cfg.EventBus,
		observer:   cfg.Observer,
		clock:      cfg.Clock,
		sessions:   make(map[string]*entry),
		channels:   make(map[string]string),
	}
	if o.roller == nil {
		o.roller = dice.DefaultRoller
	}
	if o.bus == nil {
		o.bus = events.NewBus()
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.observer == nil {
		o.observer = telemetry.NewObserver(telemetry.ObserverConfig{Clock: o.clock})
	}

	return o, nil
}

var _ Service = (*orchestrator)(nil)

func (o *orchestrator) lookup(sessionID string) (*entry, error) {
	if sessionID == "" {
		return nil, errors.InvalidArgument("session ID is required")
	}
	o.mu.RLock()
	e, ok := o.sessions[sessionID]
	o.mu.RUnlock()
	if !ok {
		return nil, battle.SessionNotFound(sessionID)
	}
	return e, nil
}

// mutate runs fn against a copy of the session under the write lock and
// swaps the copy in only when fn succeeds, so a failed operation leaves no
// trace. Events collected by fn are published after the lock is released.
func (o *orchestrator) mutate(ctx context.Context, op *telemetry.Operation, sessionID string, fn func(s *battle.Session, out *outbox) error) error {
	e, err := o.lookup(sessionID)
	if err != nil {
		return err
	}

	out := &outbox{sessionID: sessionID}
	err = func() error {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			return battle.SessionNotFound(sessionID)
		}

		work := e.session.Clone()
		if err := fn(work, out); err != nil {
			return err
		}
		work.Touch(o.clock.Now())
		e.session = work
		op.SetRound(work.Round)
		return nil
	}()
	if err != nil {
		return err
	}

	o.publish(ctx, out)
	return nil
}

// read runs fn under the read lock. fn must not modify the session.
func (o *orchestrator) read(op *telemetry.Operation, sessionID string, fn func(s *battle.Session) error) error {
	e, err := o.lookup(sessionID)
	if err != nil {
		return err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return battle.SessionNotFound(sessionID)
	}
	op.SetRound(e.session.Round)
	return fn(e.session)
}

func requireInProgress(s *battle.Session) error {
	if s.State != battle.StateRoundInProgress {
		return battle.SessionNotInProgress(s.ID, s.State)
	}
	return nil
}

// CreateSession opens a new battle bound to a channel
func (o *orchestrator) CreateSession(ctx context.Context, input *CreateSessionInput) (_ *CreateSessionOutput, err error) {
	ctx, op := o.observer.Start(ctx, "create_session", "")
	defer func() { op.End(ctx, err) }()

	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	if input.ChannelID == "" {
		return nil, errors.InvalidArgument("channel ID is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.channels[input.ChannelID]; ok {
		return nil, battle.SessionExists(input.ChannelID, existing)
	}

	s := battle.NewSession(o.sessionIDs.Generate(), input.ChannelID, o.clock.Now())
	o.sessions[s.ID] = &entry{session: s}
	o.channels[s.ChannelID] = s.ID

	slog.Info("Battle session created",
		"session_id", s.ID,
		"channel_id", s.ChannelID,
	)

	return &CreateSessionOutput{Session: s.Clone()}, nil
}

// Teardown waits for the in-flight mutation, then releases the session
func (o *orchestrator) Teardown(ctx context.Context, input *TeardownInput) (_ *TeardownOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "teardown", input.SessionID)
	defer func() { op.End(ctx, err) }()
	e, err := o.lookup(input.SessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, battle.SessionNotFound(input.SessionID)
	}
	e.closed = true
	final := e.session
	e.mu.Unlock()

	// a concurrent Load may already have replaced the entry and taken its channel
	o.mu.Lock()
	owned := o.sessions[final.ID] == e
	if owned {
		delete(o.sessions, final.ID)
		if o.channels[final.ChannelID] == final.ID {
			delete(o.channels, final.ChannelID)
		}
	}
	o.mu.Unlock()

	switch {
	case o.repo == nil:
	case input.Purge:
		_, err := o.repo.Delete(ctx, &battlestate.DeleteInput{SessionID: final.ID})
		if err != nil && !errors.IsNotFound(err) {
			return nil, errors.Wrap(err, "failed to purge session state")
		}
	case owned && final.ChannelID != "":
		// the snapshot stays for later loads but the channel is free again
		_, err := o.repo.ReleaseChannel(ctx, &battlestate.ReleaseChannelInput{
			ChannelID: final.ChannelID,
			SessionID: final.ID,
		})
		if err != nil {
			slog.Warn("Failed to release stored channel binding",
				"session_id", final.ID,
				"channel_id", final.ChannelID,
				"error", err,
			)
		}
	}

	slog.Info("Battle session torn down",
		"session_id", final.ID,
		"round", final.Round,
		"purged", input.Purge,
	)

	return &TeardownOutput{Round: final.Round}, nil
}

// GetSession returns a detached copy of a live session
func (o *orchestrator) GetSession(ctx context.Context, input *GetSessionInput) (_ *GetSessionOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}

	sessionID := input.SessionID
	if sessionID == "" && input.ChannelID != "" {
		o.mu.RLock()
		id, ok := o.channels[input.ChannelID]
		o.mu.RUnlock()
		if !ok {
			return nil, errors.NotFoundf("no session for channel %s", input.ChannelID).
				WithMeta("channel_id", input.ChannelID)
		}
		sessionID = id
	}

	ctx, op := o.observer.Start(ctx, "get_session", sessionID)
	defer func() { op.End(ctx, err) }()

	var snapshot *battle.Session
	err = o.read(op, sessionID, func(s *battle.Session) error {
		snapshot = s.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &GetSessionOutput{Session: snapshot}, nil
}

// AddParticipant adds a combatant to the roster
func (o *orchestrator) AddParticipant(ctx context.Context, input *AddParticipantInput) (_ *AddParticipantOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "add_participant", input.SessionID)
	defer func() { op.End(ctx, err) }()

	var added *battle.Participant
	err = o.mutate(ctx, op, input.SessionID, func(s *battle.Session, _ *outbox) error {
		p := input.Participant.Clone()
		if err := registry.Add(s, p); err != nil {
			return err
		}
		added = s.Participants[p.ID].Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Participant added",
		"session_id", input.SessionID,
		"participant_id", added.ID,
		"roles", added.Roles,
		"hp", added.HP,
	)

	return &AddParticipantOutput{Participant: added}, nil
}

// RemoveParticipant removes a combatant and cascades into groups and instances
func (o *orchestrator) RemoveParticipant(ctx context.Context, input *RemoveParticipantInput) (_ *RemoveParticipantOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "remove_participant", input.SessionID)
	defer func() { op.End(ctx, err) }()

	var removal *registry.Removal
	err = o.mutate(ctx, op, input.SessionID, func(s *battle.Session, out *outbox) error {
		r, err := registry.Remove(s, input.ParticipantID)
		if err != nil {
			return err
		}
		removal = r
		for _, id := range r.CancelledInstances {
			out.add(EventSkillCancelled, nil, nil, "instance_id", id)
		}
		for _, id := range r.DissolvedGroups {
			out.add(EventGroupDissolved, nil, nil, "group_id", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Participant removed",
		"session_id", input.SessionID,
		"participant_id", input.ParticipantID,
		"cancelled_instances", len(removal.CancelledInstances),
		"dissolved_groups", len(removal.DissolvedGroups),
	)

	return &RemoveParticipantOutput{Removal: removal}, nil
}

// SetRoles replaces a participant's roles. Permission checks read roles on
// every call, so the change applies to the next activation.
func (o *orchestrator) SetRoles(ctx context.Context, input *SetRolesInput) (_ *SetRolesOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "set_roles", input.SessionID)
	defer func() { op.End(ctx, err) }()

	var updated *battle.Participant
	err = o.mutate(ctx, op, input.SessionID, func(s *battle.Session, _ *outbox) error {
		p, ok := s.Participant(input.ParticipantID)
		if !ok {
			return battle.ParticipantNotFound(input.ParticipantID)
		}
		for _, r := range input.Roles {
			if r == "" {
				return errors.InvalidArgument("roles must not be empty strings")
			}
		}
		p.Roles = slices.Clone(input.Roles)
		updated = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &SetRolesOutput{Participant: updated}, nil
}

// LinkGroup forms a sharing group that is not bound to a skill
func (o *orchestrator) LinkGroup(ctx context.Context, input *LinkGroupInput) (_ *LinkGroupOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "link_group", input.SessionID)
	defer func() { op.End(ctx, err) }()

	var group *battle.SharingGroup
	err = o.mutate(ctx, op, input.SessionID, func(s *battle.Session, _ *outbox) error {
		g := &battle.SharingGroup{
			ID:        o.groupIDs.Generate(),
			Members:   slices.Clone(input.Members),
			Policy:    input.Policy,
			PrimaryID: input.PrimaryID,
			Global:    input.Global,
		}
		if err := registry.Link(s, g); err != nil {
			return err
		}
		group = s.Groups[g.ID].Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Sharing group linked",
		"session_id", input.SessionID,
		"group_id", group.ID,
		"members", group.Members,
		"policy", group.Policy,
	)

	return &LinkGroupOutput{Group: group}, nil
}

// DissolveGroup removes a sharing group
func (o *orchestrator) DissolveGroup(ctx context.Context, input *DissolveGroupInput) (_ *DissolveGroupOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "dissolve_group", input.SessionID)
	defer func() { op.End(ctx, err) }()

	err = o.mutate(ctx, op, input.SessionID, func(s *battle.Session, out *outbox) error {
		if err := registry.Dissolve(s, input.GroupID); err != nil {
			return err
		}
		out.add(EventGroupDissolved, nil, nil, "group_id", input.GroupID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &DissolveGroupOutput{}, nil
}

// StartRound moves an idle session into round in progress
func (o *orchestrator) StartRound(ctx context.Context, input *StartRoundInput) (_ *StartRoundOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "start_round", input.SessionID)
	defer func() { op.End(ctx, err) }()

	var round int
	err = o.mutate(ctx, op, input.SessionID, func(s *battle.Session, out *outbox) error {
		if s.State != battle.StateIdle {
			return errors.FailedPreconditionf("round %d is already in progress", s.Round).
				WithMeta("session_id", s.ID).
				WithMeta("state", string(s.State))
		}
		s.State = battle.StateRoundInProgress
		round = s.Round
		out.add(EventRoundStarted, nil, nil, "round", round)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Round started",
		"session_id", input.SessionID,
		"round", round,
	)

	return &StartRoundOutput{Round: round}, nil
}

// EndRound resolves the round: decrement durations, advance ready phases,
// finalize expired instances, then return to idle at the next round.
func (o *orchestrator) EndRound(ctx context.Context, input *EndRoundInput) (_ *EndRoundOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "end_round", input.SessionID)
	defer func() { op.End(ctx, err) }()

	result := &EndRoundOutput{}
	err = o.mutate(ctx, op, input.SessionID, func(s *battle.Session, out *outbox) error {
		if err := requireInProgress(s); err != nil {
			return err
		}
		s.State = battle.StateResolving
		result.Round = s.Round

		result.Ticked = o.ledger.Tick(s)

		transitions, err := o.ledger.AdvanceReady(s)
		if err != nil {
			return errors.Wrap(err, "failed to advance phases")
		}
		for _, t := range transitions {
			out.transition(s, t)
			result.Deaths = append(result.Deaths, out.firing(s, t.Firing)...)
		}
		result.Transitions = transitions

		expired, err := o.ledger.FinalizeExpired(s)
		if err != nil {
			return errors.Wrap(err, "failed to finalize expired skills")
		}
		for _, exp := range expired {
			result.Deaths = append(result.Deaths, out.firing(s, exp.Firing)...)
			out.add(EventSkillExpired, s.Participants[exp.OwnerID], nil,
				"instance_id", exp.InstanceID,
				"skill_id", exp.SkillID)
			if exp.DissolvedGroup != "" {
				out.add(EventGroupDissolved, nil, nil, "group_id", exp.DissolvedGroup)
			}
		}
		result.Expired = expired

		s.Round++
		s.State = battle.StateIdle
		out.add(EventRoundEnded, nil, nil, "round", result.Round)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Round resolved",
		"session_id", input.SessionID,
		"round", result.Round,
		"ticked", result.Ticked,
		"transitions", len(result.Transitions),
		"expired", len(result.Expired),
		"deaths", len(result.Deaths),
	)

	return result, nil
}

// HandleEvent applies an inbound chat event. A skill id activates the skill;
// a dice value runs through the modifier pipeline after activation.
func (o *orchestrator) HandleEvent(ctx context.Context, input *HandleEventInput) (_ *HandleEventOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "handle_event", input.SessionID)
	defer func() { op.End(ctx, err) }()
	op.SetActor(input.ActorID, input.SkillID)

	vb := errors.NewValidationBuilder()
	errors.ValidateRequired("actor_id", input.ActorID, vb)
	if input.SkillID == "" && input.Dice == nil {
		vb.Field("skill_id", "a skill or a dice result is required")
	}
	if input.Dice != nil && *input.Dice < 0 {
		vb.Field("dice", "must not be negative")
	}
	if err := vb.Build(); err != nil {
		return nil, err
	}

	outcome := &Outcome{Applied: map[string]int{}}
	err = o.mutate(ctx, op, input.SessionID, func(s *battle.Session, out *outbox) error {
		if err := requireInProgress(s); err != nil {
			return err
		}

		var instanceID string
		if input.SkillID != "" {
			act, err := o.ledger.Activate(s, input.ActorID, input.SkillID, input.TargetIDs)
			if err != nil {
				return err
			}
			instanceID = act.Instance.ID
			out.add(EventSkillActivated, s.Participants[input.ActorID], firstTarget(s, act.Instance),
				"instance_id", act.Instance.ID,
				"skill_id", act.Instance.SkillID)
			if act.Group != nil {
				outcome.Group = act.Group.Clone()
			}
			if act.Firing != nil {
				out.firing(s, act.Firing)
				for id, amount := range act.Firing.Plan {
					outcome.Applied[id] += amount
				}
			}
		}

		if input.Dice != nil {
			res, err := o.pipeline.Apply(ctx, s, input.ActorID, *input.Dice)
			if err != nil {
				return err
			}
			outcome.Dice = res
		}

		if inst, ok := s.Instance(instanceID); ok {
			outcome.Instance = inst.Clone()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Event handled",
		"session_id", input.SessionID,
		"actor_id", input.ActorID,
		"skill_id", input.SkillID,
		"applied", len(outcome.Applied),
	)

	return &HandleEventOutput{Outcome: outcome}, nil
}

// AdvancePhase moves one instance to its next phase
func (o *orchestrator) AdvancePhase(ctx context.Context, input *AdvancePhaseInput) (_ *AdvancePhaseOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "advance_phase", input.SessionID)
	defer func() { op.End(ctx, err) }()

	var transition *ledger.PhaseTransition
	err = o.mutate(ctx, op, input.SessionID, func(s *battle.Session, out *outbox) error {
		if err := requireInProgress(s); err != nil {
			return err
		}
		t, err := o.ledger.AdvancePhase(s, input.InstanceID)
		if err != nil {
			return err
		}
		out.transition(s, t)
		out.firing(s, t.Firing)
		transition = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &AdvancePhaseOutput{Transition: transition}, nil
}

// CancelSkill removes an instance without firing its effect
func (o *orchestrator) CancelSkill(ctx context.Context, input *CancelSkillInput) (_ *CancelSkillOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "cancel_skill", input.SessionID)
	defer func() { op.End(ctx, err) }()

	var cancellation *ledger.Cancellation
	err = o.mutate(ctx, op, input.SessionID, func(s *battle.Session, out *outbox) error {
		if err := requireInProgress(s); err != nil {
			return err
		}
		c, err := o.ledger.Cancel(s, input.InstanceID)
		if err != nil {
			return err
		}
		out.add(EventSkillCancelled, nil, nil, "instance_id", c.InstanceID)
		if c.DissolvedGroup != "" {
			out.add(EventGroupDissolved, nil, nil, "group_id", c.DissolvedGroup)
		}
		cancellation = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &CancelSkillOutput{Cancellation: cancellation}, nil
}

// ApplyDamage deals sourceless damage, spread through any group that
// applies to every source
func (o *orchestrator) ApplyDamage(ctx context.Context, input *ApplyDamageInput) (_ *ApplyDamageOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "apply_damage", input.SessionID)
	defer func() { op.End(ctx, err) }()

	result := &ApplyDamageOutput{}
	err = o.mutate(ctx, op, input.SessionID, func(s *battle.Session, out *outbox) error {
		plan, changes, err := o.commitDirect(s, out, input.ParticipantID, input.Amount, battle.EffectDamage)
		if err != nil {
			return err
		}
		result.Applied, result.Changes = plan, changes
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Damage applied",
		"session_id", input.SessionID,
		"participant_id", input.ParticipantID,
		"amount", input.Amount,
		"recipients", len(result.Applied),
	)

	return result, nil
}

// Heal restores hit points through the same distribution as damage
func (o *orchestrator) Heal(ctx context.Context, input *HealInput) (_ *HealOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "heal", input.SessionID)
	defer func() { op.End(ctx, err) }()

	result := &HealOutput{}
	err = o.mutate(ctx, op, input.SessionID, func(s *battle.Session, out *outbox) error {
		plan, changes, err := o.commitDirect(s, out, input.ParticipantID, input.Amount, battle.EffectHeal)
		if err != nil {
			return err
		}
		result.Applied, result.Changes = plan, changes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *orchestrator) commitDirect(s *battle.Session, out *outbox, targetID string, amount int, kind battle.EffectKind) (damage.Plan, []registry.HPChange, error) {
	if err := requireInProgress(s); err != nil {
		return nil, nil, err
	}
	plan, err := damage.Distribute(s, targetID, amount)
	if err != nil {
		return nil, nil, err
	}
	changes, err := damage.Commit(s, plan, kind)
	if err != nil {
		return nil, nil, err
	}
	out.changes(s, changes)
	return plan, changes, nil
}

// RollDice rolls for an actor and runs the value through the modifier pipeline
func (o *orchestrator) RollDice(ctx context.Context, input *RollDiceInput) (_ *RollDiceOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "roll_dice", input.SessionID)
	defer func() { op.End(ctx, err) }()
	if input.ActorID == "" {
		return nil, errors.InvalidArgument("actor ID is required")
	}
	op.SetActor(input.ActorID, "")

	result := &RollDiceOutput{}
	var raw int
	if input.Value != nil {
		raw = *input.Value
		result.Rolls = []int{raw}
	} else {
		notation := input.Notation
		if notation == "" {
			notation = modifiers.DefaultNotation
		}
		rolls, total, err := modifiers.Roll(o.roller, notation)
		if err != nil {
			return nil, err
		}
		raw, result.Rolls = total, rolls
	}

	err = o.mutate(ctx, op, input.SessionID, func(s *battle.Session, _ *outbox) error {
		if err := requireInProgress(s); err != nil {
			return err
		}
		res, err := o.pipeline.Apply(ctx, s, input.ActorID, raw)
		if err != nil {
			return err
		}
		result.Result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Dice rolled",
		"session_id", input.SessionID,
		"actor_id", input.ActorID,
		"raw", raw,
		"value", result.Result.Value,
	)

	return result, nil
}

// ListActive returns instances owned by or targeting a participant
func (o *orchestrator) ListActive(ctx context.Context, input *ListActiveInput) (_ *ListActiveOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "list_active", input.SessionID)
	defer func() { op.End(ctx, err) }()

	var instances []*battle.SkillInstance
	err = o.read(op, input.SessionID, func(s *battle.Session) error {
		list, err := o.ledger.ListActive(s, input.ParticipantID)
		instances = list
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ListActiveOutput{Instances: instances}, nil
}

// IsAlive reports a participant's liveness
func (o *orchestrator) IsAlive(ctx context.Context, input *IsAliveInput) (_ *IsAliveOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "is_alive", input.SessionID)
	defer func() { op.End(ctx, err) }()

	var alive bool
	err = o.read(op, input.SessionID, func(s *battle.Session) error {
		a, err := registry.IsAlive(s, input.ParticipantID)
		alive = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return &IsAliveOutput{Alive: alive}, nil
}

func firstTarget(s *battle.Session, inst *battle.SkillInstance) *battle.Participant {
	if len(inst.Targets) == 0 {
		return nil
	}
	return s.Participants[inst.Targets[0]]
}
