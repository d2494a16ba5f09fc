package v1alpha1

import (
	"github.com/KirkDiggler/rpg-skill-engine/internal/damage"
	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/ledger"
	"github.com/KirkDiggler/rpg-skill-engine/internal/modifiers"
	"github.com/KirkDiggler/rpg-skill-engine/internal/orchestrators/round"
	"github.com/KirkDiggler/rpg-skill-engine/internal/registry"
)

// CreateSessionRequest opens a battle in a channel
type CreateSessionRequest struct {
	ChannelID string `json:"channel_id"`
}

// GetSessionRequest selects a session by id or by channel
type GetSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

// SessionRequest selects a session
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// SessionResponse carries a session copy
type SessionResponse struct {
	Session *battle.Session `json:"session"`
}

// TeardownRequest ends a battle
type TeardownRequest struct {
	SessionID string `json:"session_id"`
	Purge     bool   `json:"purge,omitempty"`
}

// TeardownResponse reports the last round
type TeardownResponse struct {
	Round int `json:"round"`
}

// AddParticipantRequest adds a combatant
type AddParticipantRequest struct {
	SessionID   string             `json:"session_id"`
	Participant battle.Participant `json:"participant"`
}

// ParticipantRequest selects a participant
type ParticipantRequest struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
}

// ParticipantResponse carries a participant copy
type ParticipantResponse struct {
	Participant *battle.Participant `json:"participant"`
}

// RemoveParticipantResponse lists what the removal cascaded into
type RemoveParticipantResponse struct {
	Removal *registry.Removal `json:"removal"`
}

// SetRolesRequest replaces a participant's roles
type SetRolesRequest struct {
	SessionID     string        `json:"session_id"`
	ParticipantID string        `json:"participant_id"`
	Roles         []battle.Role `json:"roles"`
}

// StartRoundResponse reports the round that opened
type StartRoundResponse struct {
	Round int `json:"round"`
}

// EndRoundResponse summarizes round resolution
type EndRoundResponse struct {
	Round       int                       `json:"round"`
	Ticked      int                       `json:"ticked"`
	Transitions []*ledger.PhaseTransition `json:"transitions,omitempty"`
	Expired     []*ledger.Expiry          `json:"expired,omitempty"`
	Deaths      []string                  `json:"deaths,omitempty"`
}

// HandleEventRequest is one inbound chat event
type HandleEventRequest struct {
	SessionID string   `json:"session_id"`
	ActorID   string   `json:"actor_id"`
	SkillID   string   `json:"skill_id,omitempty"`
	TargetIDs []string `json:"target_ids,omitempty"`
	Dice      *int     `json:"dice,omitempty"`
}

// HandleEventResponse carries the outcome shown to the channel
type HandleEventResponse struct {
	Outcome *round.Outcome `json:"outcome"`
}

// InstanceRequest selects a skill instance
type InstanceRequest struct {
	SessionID  string `json:"session_id"`
	InstanceID string `json:"instance_id"`
}

// AdvancePhaseResponse carries the transition
type AdvancePhaseResponse struct {
	Transition *ledger.PhaseTransition `json:"transition"`
}

// CancelSkillResponse carries the cancellation
type CancelSkillResponse struct {
	Cancellation *ledger.Cancellation `json:"cancellation"`
}

// HPRequest deals damage to or heals a participant
type HPRequest struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Amount        int    `json:"amount"`
}

// HPResponse carries the distributed plan and the resulting changes
type HPResponse struct {
	Applied damage.Plan         `json:"applied"`
	Changes []registry.HPChange `json:"changes"`
}

// RollDiceRequest rolls for an actor, or reports a roll when Value is set
type RollDiceRequest struct {
	SessionID string `json:"session_id"`
	ActorID   string `json:"actor_id"`
	Notation  string `json:"notation,omitempty"`
	Value     *int   `json:"value,omitempty"`
}

// RollDiceResponse carries the dice and the modified value
type RollDiceResponse struct {
	Rolls  []int             `json:"rolls,omitempty"`
	Result *modifiers.Result `json:"result"`
}

// ListActiveResponse carries instance copies
type ListActiveResponse struct {
	Instances []*battle.SkillInstance `json:"instances"`
}

// IsAliveResponse reports liveness
type IsAliveResponse struct {
	Alive bool `json:"alive"`
}

// SaveSessionResponse carries the encoded snapshot
type SaveSessionResponse struct {
	Version int64  `json:"version"`
	Blob    []byte `json:"blob"`
}

// LoadSessionRequest restores a session from a blob, or from storage when
// Blob is empty
type LoadSessionRequest struct {
	SessionID string `json:"session_id"`
	Blob      []byte `json:"blob,omitempty"`
}
