// Package v1alpha1 exposes the round controller as the skill engine gRPC
// service
package v1alpha1

import (
	"context"

	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	"github.com/KirkDiggler/rpg-skill-engine/internal/orchestrators/round"
)

// HandlerConfig holds dependencies for the skill engine handler
type HandlerConfig struct {
	RoundService round.Service
}

// Validate ensures all required dependencies are present
func (c *HandlerConfig) Validate() error {
	if c == nil {
		return errors.InvalidArgument("config cannot be nil")
	}
	if c.RoundService == nil {
		return errors.InvalidArgument("round service is required")
	}
	return nil
}

// Handler implements SkillEngineServer
type Handler struct {
	roundService round.Service
}

var _ SkillEngineServer = (*Handler)(nil)

// NewHandler creates a new skill engine handler
func NewHandler(cfg *HandlerConfig) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Handler{
		roundService: cfg.RoundService,
	}, nil
}

func required(pairs ...string) error {
	vb := errors.NewValidationBuilder()
	for i := 0; i+1 < len(pairs); i += 2 {
		errors.ValidateRequired(pairs[i], pairs[i+1], vb)
	}
	return vb.Build()
}

// CreateSession opens a battle in a channel
func (h *Handler) CreateSession(ctx context.Context, req *CreateSessionRequest) (*SessionResponse, error) {
	if err := required("channel_id", req.ChannelID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.CreateSession(ctx, &round.CreateSessionInput{
		ChannelID: req.ChannelID,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &SessionResponse{Session: out.Session}, nil
}

// GetSession returns a session by id or by channel
func (h *Handler) GetSession(ctx context.Context, req *GetSessionRequest) (*SessionResponse, error) {
	if req.SessionID == "" && req.ChannelID == "" {
		return nil, errors.ToGRPCError(errors.InvalidArgument("session_id or channel_id is required"))
	}

	out, err := h.roundService.GetSession(ctx, &round.GetSessionInput{
		SessionID: req.SessionID,
		ChannelID: req.ChannelID,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &SessionResponse{Session: out.Session}, nil
}

// Teardown ends a battle
func (h *Handler) Teardown(ctx context.Context, req *TeardownRequest) (*TeardownResponse, error) {
	if err := required("session_id", req.SessionID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.Teardown(ctx, &round.TeardownInput{
		SessionID: req.SessionID,
		Purge:     req.Purge,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &TeardownResponse{Round: out.Round}, nil
}

// AddParticipant adds a combatant to a session
func (h *Handler) AddParticipant(ctx context.Context, req *AddParticipantRequest) (*ParticipantResponse, error) {
	if err := required("session_id", req.SessionID, "participant.id", req.Participant.ID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.AddParticipant(ctx, &round.AddParticipantInput{
		SessionID:   req.SessionID,
		Participant: req.Participant,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &ParticipantResponse{Participant: out.Participant}, nil
}

// RemoveParticipant removes a combatant and everything they own
func (h *Handler) RemoveParticipant(ctx context.Context, req *ParticipantRequest) (*RemoveParticipantResponse, error) {
	if err := required("session_id", req.SessionID, "participant_id", req.ParticipantID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.RemoveParticipant(ctx, &round.RemoveParticipantInput{
		SessionID:     req.SessionID,
		ParticipantID: req.ParticipantID,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &RemoveParticipantResponse{Removal: out.Removal}, nil
}

// SetRoles replaces a participant's roles
func (h *Handler) SetRoles(ctx context.Context, req *SetRolesRequest) (*ParticipantResponse, error) {
	if err := required("session_id", req.SessionID, "participant_id", req.ParticipantID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.SetRoles(ctx, &round.SetRolesInput{
		SessionID:     req.SessionID,
		ParticipantID: req.ParticipantID,
		Roles:         req.Roles,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &ParticipantResponse{Participant: out.Participant}, nil
}

// StartRound opens the current round for actions
func (h *Handler) StartRound(ctx context.Context, req *SessionRequest) (*StartRoundResponse, error) {
	if err := required("session_id", req.SessionID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.StartRound(ctx, &round.StartRoundInput{SessionID: req.SessionID})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &StartRoundResponse{Round: out.Round}, nil
}

// EndRound resolves the current round
func (h *Handler) EndRound(ctx context.Context, req *SessionRequest) (*EndRoundResponse, error) {
	if err := required("session_id", req.SessionID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.EndRound(ctx, &round.EndRoundInput{SessionID: req.SessionID})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &EndRoundResponse{
		Round:       out.Round,
		Ticked:      out.Ticked,
		Transitions: out.Transitions,
		Expired:     out.Expired,
		Deaths:      out.Deaths,
	}, nil
}

// HandleEvent applies one chat event: a skill use, a dice report or both
func (h *Handler) HandleEvent(ctx context.Context, req *HandleEventRequest) (*HandleEventResponse, error) {
	if err := required("session_id", req.SessionID, "actor_id", req.ActorID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.HandleEvent(ctx, &round.HandleEventInput{
		SessionID: req.SessionID,
		ActorID:   req.ActorID,
		SkillID:   req.SkillID,
		TargetIDs: req.TargetIDs,
		Dice:      req.Dice,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &HandleEventResponse{Outcome: out.Outcome}, nil
}

// AdvancePhase moves a skill instance to its next phase
func (h *Handler) AdvancePhase(ctx context.Context, req *InstanceRequest) (*AdvancePhaseResponse, error) {
	if err := required("session_id", req.SessionID, "instance_id", req.InstanceID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.AdvancePhase(ctx, &round.AdvancePhaseInput{
		SessionID:  req.SessionID,
		InstanceID: req.InstanceID,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &AdvancePhaseResponse{Transition: out.Transition}, nil
}

// CancelSkill ends a skill instance without firing it
func (h *Handler) CancelSkill(ctx context.Context, req *InstanceRequest) (*CancelSkillResponse, error) {
	if err := required("session_id", req.SessionID, "instance_id", req.InstanceID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.CancelSkill(ctx, &round.CancelSkillInput{
		SessionID:  req.SessionID,
		InstanceID: req.InstanceID,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &CancelSkillResponse{Cancellation: out.Cancellation}, nil
}

// ApplyDamage deals damage outside any skill
func (h *Handler) ApplyDamage(ctx context.Context, req *HPRequest) (*HPResponse, error) {
	if err := required("session_id", req.SessionID, "participant_id", req.ParticipantID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.ApplyDamage(ctx, &round.ApplyDamageInput{
		SessionID:     req.SessionID,
		ParticipantID: req.ParticipantID,
		Amount:        req.Amount,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &HPResponse{Applied: out.Applied, Changes: out.Changes}, nil
}

// Heal restores hit points
func (h *Handler) Heal(ctx context.Context, req *HPRequest) (*HPResponse, error) {
	if err := required("session_id", req.SessionID, "participant_id", req.ParticipantID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.Heal(ctx, &round.HealInput{
		SessionID:     req.SessionID,
		ParticipantID: req.ParticipantID,
		Amount:        req.Amount,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &HPResponse{Applied: out.Applied, Changes: out.Changes}, nil
}

// RollDice rolls for an actor and applies their dice modifiers
func (h *Handler) RollDice(ctx context.Context, req *RollDiceRequest) (*RollDiceResponse, error) {
	if err := required("session_id", req.SessionID, "actor_id", req.ActorID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.RollDice(ctx, &round.RollDiceInput{
		SessionID: req.SessionID,
		ActorID:   req.ActorID,
		Notation:  req.Notation,
		Value:     req.Value,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &RollDiceResponse{Rolls: out.Rolls, Result: out.Result}, nil
}

// ListActive returns the instances a participant owns or is targeted by
func (h *Handler) ListActive(ctx context.Context, req *ParticipantRequest) (*ListActiveResponse, error) {
	if err := required("session_id", req.SessionID, "participant_id", req.ParticipantID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.ListActive(ctx, &round.ListActiveInput{
		SessionID:     req.SessionID,
		ParticipantID: req.ParticipantID,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &ListActiveResponse{Instances: out.Instances}, nil
}

// IsAlive reports whether a participant is alive
func (h *Handler) IsAlive(ctx context.Context, req *ParticipantRequest) (*IsAliveResponse, error) {
	if err := required("session_id", req.SessionID, "participant_id", req.ParticipantID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.IsAlive(ctx, &round.IsAliveInput{
		SessionID:     req.SessionID,
		ParticipantID: req.ParticipantID,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &IsAliveResponse{Alive: out.Alive}, nil
}

// SaveSession snapshots a session
func (h *Handler) SaveSession(ctx context.Context, req *SessionRequest) (*SaveSessionResponse, error) {
	if err := required("session_id", req.SessionID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.Save(ctx, &round.SaveInput{SessionID: req.SessionID})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &SaveSessionResponse{Version: out.Version, Blob: out.Blob}, nil
}

// LoadSession restores a session
func (h *Handler) LoadSession(ctx context.Context, req *LoadSessionRequest) (*SessionResponse, error) {
	if err := required("session_id", req.SessionID); err != nil {
		return nil, errors.ToGRPCError(err)
	}

	out, err := h.roundService.Load(ctx, &round.LoadInput{
		SessionID: req.SessionID,
		Blob:      req.Blob,
	})
	if err != nil {
		return nil, errors.ToGRPCError(err)
	}

	return &SessionResponse{Session: out.Session}, nil
}
