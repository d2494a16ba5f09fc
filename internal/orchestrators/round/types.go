package round

import (
	"github.com/KirkDiggler/rpg-skill-engine/internal/damage"
	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/ledger"
	"github.com/KirkDiggler/rpg-skill-engine/internal/modifiers"
	"github.com/KirkDiggler/rpg-skill-engine/internal/registry"
)

// CreateSessionInput opens a battle in a channel
type CreateSessionInput struct {
	ChannelID string
}

// CreateSessionOutput returns the new session
type CreateSessionOutput struct {
	Session *battle.Session
}

// TeardownInput ends a battle. Purge also deletes the stored snapshot.
type TeardownInput struct {
	SessionID string
	Purge     bool
}

// TeardownOutput reports the final round
type TeardownOutput struct {
	Round int
}

// AddParticipantInput adds a combatant
type AddParticipantInput struct {
	SessionID   string
	Participant battle.Participant
}

// AddParticipantOutput returns the stored participant
type AddParticipantOutput struct {
	Participant *battle.Participant
}

// RemoveParticipantInput removes a combatant
type RemoveParticipantInput struct {
	SessionID     string
	ParticipantID string
}

// RemoveParticipantOutput lists the cascade
type RemoveParticipantOutput struct {
	Removal *registry.Removal
}

// SetRolesInput replaces a participant's roles
type SetRolesInput struct {
	SessionID     string
	ParticipantID string
	Roles         []battle.Role
}

// SetRolesOutput returns the updated participant
type SetRolesOutput struct {
	Participant *battle.Participant
}

// LinkGroupInput forms a sharing group outside any skill
type LinkGroupInput struct {
	SessionID string
	Members   []string
	Policy    battle.Policy
	PrimaryID string
	Global    bool
}

// LinkGroupOutput returns the group
type LinkGroupOutput struct {
	Group *battle.SharingGroup
}

// DissolveGroupInput removes a sharing group
type DissolveGroupInput struct {
	SessionID string
	GroupID   string
}

// DissolveGroupOutput is empty for now
type DissolveGroupOutput struct{}

// StartRoundInput opens the current round for actions
type StartRoundInput struct {
	SessionID string
}

// StartRoundOutput reports the round that started
type StartRoundOutput struct {
	Round int
}

// EndRoundInput resolves the current round
type EndRoundInput struct {
	SessionID string
}

// EndRoundOutput summarizes resolution
type EndRoundOutput struct {
	// Round is the round that was resolved; the session is now idle at Round+1
	Round       int
	Ticked      int
	Transitions []*ledger.PhaseTransition
	Expired     []*ledger.Expiry
	Deaths      []string
}

// HandleEventInput is the inbound chat event: use a skill, report a dice
// roll, or both. Dice is the raw roll before modifiers.
type HandleEventInput struct {
	SessionID string
	ActorID   string
	SkillID   string
	TargetIDs []string
	Dice      *int
}

// Outcome is what the transport shows the channel
type Outcome struct {
	// Applied maps participant id to the amount the event applied
	Applied  map[string]int        `json:"applied"`
	Instance *battle.SkillInstance `json:"instance_state,omitempty"`
	Group    *battle.SharingGroup  `json:"group,omitempty"`
	Dice     *modifiers.Result     `json:"dice,omitempty"`
}

// HandleEventOutput wraps the outcome
type HandleEventOutput struct {
	Outcome *Outcome
}

// AdvancePhaseInput moves an instance to its next phase
type AdvancePhaseInput struct {
	SessionID  string
	InstanceID string
}

// AdvancePhaseOutput returns the transition
type AdvancePhaseOutput struct {
	Transition *ledger.PhaseTransition
}

// CancelSkillInput ends an instance early without firing its effect
type CancelSkillInput struct {
	SessionID  string
	InstanceID string
}

// CancelSkillOutput returns the cancellation
type CancelSkillOutput struct {
	Cancellation *ledger.Cancellation
}

// ApplyDamageInput deals damage that has no source skill
type ApplyDamageInput struct {
	SessionID     string
	ParticipantID string
	Amount        int
}

// ApplyDamageOutput returns the distributed plan
type ApplyDamageOutput struct {
	Applied damage.Plan
	Changes []registry.HPChange
}

// HealInput restores hit points
type HealInput struct {
	SessionID     string
	ParticipantID string
	Amount        int
}

// HealOutput returns the distributed plan
type HealOutput struct {
	Applied damage.Plan
	Changes []registry.HPChange
}

// RollDiceInput rolls for an actor. A nil Value rolls Notation with the
// engine's roller.
type RollDiceInput struct {
	SessionID string
	ActorID   string
	Notation  string
	Value     *int
}

// RollDiceOutput returns the dice and the modified value
type RollDiceOutput struct {
	Rolls  []int
	Result *modifiers.Result
}

// ListActiveInput selects a participant
type ListActiveInput struct {
	SessionID     string
	ParticipantID string
}

// ListActiveOutput returns copies of the instances
type ListActiveOutput struct {
	Instances []*battle.SkillInstance
}

// IsAliveInput selects a participant
type IsAliveInput struct {
	SessionID     string
	ParticipantID string
}

// IsAliveOutput reports liveness
type IsAliveOutput struct {
	Alive bool
}

// GetSessionInput selects a session by id or channel
type GetSessionInput struct {
	SessionID string
	ChannelID string
}

// GetSessionOutput returns a detached copy
type GetSessionOutput struct {
	Session *battle.Session
}

// SaveInput selects a session to snapshot
type SaveInput struct {
	SessionID string
}

// SaveOutput returns the encoded snapshot
type SaveOutput struct {
	Blob    []byte
	Version int64
}

// LoadInput restores a session from a blob, or from the repository when
// Blob is empty
type LoadInput struct {
	SessionID string
	Blob      []byte
}

// LoadOutput returns the live session copy
type LoadOutput struct {
	Session *battle.Session
}

// SaveDirtyOutput reports an autosave pass
type SaveDirtyOutput struct {
	Saved  []string
	Failed map[string]error
}
