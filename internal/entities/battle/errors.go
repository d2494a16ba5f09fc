package battle

import (
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

// DuplicateParticipant reports an id that is already in the session
func DuplicateParticipant(id string) error {
	return errors.AlreadyExistsf("participant %s already exists", id).
		WithReason(errors.ReasonDuplicateParticipant).
		WithMeta("participant_id", id)
}

// ParticipantNotFound reports a missing participant
func ParticipantNotFound(id string) error {
	return errors.NotFoundf("participant %s not found", id).
		WithReason(errors.ReasonNotFound).
		WithMeta("participant_id", id)
}

// SessionNotFound reports a missing session
func SessionNotFound(id string) error {
	return errors.NotFoundf("session %s not found", id).
		WithReason(errors.ReasonNotFound).
		WithMeta("session_id", id)
}

// InstanceNotFound reports a missing skill instance
func InstanceNotFound(id string) error {
	return errors.NotFoundf("skill instance %s not found", id).
		WithReason(errors.ReasonNotFound).
		WithMeta("instance_id", id)
}

// GroupNotFound reports a missing sharing group
func GroupNotFound(id string) error {
	return errors.NotFoundf("sharing group %s not found", id).
		WithReason(errors.ReasonNotFound).
		WithMeta("group_id", id)
}

// UnknownSkill reports a skill id the catalog does not define
func UnknownSkill(id string) error {
	return errors.NotFoundf("unknown skill %s", id).
		WithReason(errors.ReasonUnknownSkill).
		WithMeta("skill_id", id)
}

// PermissionDenied reports an actor that may not use a skill
func PermissionDenied(actorID, skillID string) error {
	return errors.PermissionDeniedf("%s may not use %s", actorID, skillID).
		WithReason(errors.ReasonPermissionDenied).
		WithMetaMap(map[string]interface{}{
			"actor_id": actorID,
			"skill_id": skillID,
		})
}

// InvalidTargetArity reports a target list that does not fit the skill
func InvalidTargetArity(skillID string, arity Arity, got int) error {
	return errors.InvalidArgumentf("skill %s takes %s targets, got %d", skillID, arity, got).
		WithReason(errors.ReasonInvalidTargetArity).
		WithMetaMap(map[string]interface{}{
			"skill_id": skillID,
			"arity":    string(arity),
			"targets":  got,
		})
}

// InvalidPhaseTransition reports a phase guard that is not yet satisfied
func InvalidPhaseTransition(instanceID string, phase, elapsed, required int) error {
	return errors.FailedPreconditionf("instance %s phase %d needs %d rounds, %d elapsed",
		instanceID, phase, required, elapsed).
		WithReason(errors.ReasonInvalidPhaseTransition).
		WithMeta("instance_id", instanceID)
}

// SessionNotInProgress reports a mutation outside an active round
func SessionNotInProgress(sessionID string, state State) error {
	return errors.FailedPreconditionf("session %s is %s, not in a round", sessionID, state).
		WithReason(errors.ReasonSessionNotInProgress).
		WithMetaMap(map[string]interface{}{
			"session_id": sessionID,
			"state":      string(state),
		})
}

// SkillAlreadyActive reports a second activation of a skill in one session
func SkillAlreadyActive(skillID, instanceID string) error {
	return errors.AlreadyExistsf("skill %s is already active as %s", skillID, instanceID).
		WithReason(errors.ReasonSkillAlreadyActive).
		WithMeta("skill_id", skillID)
}

// OwnerLimit reports an owner that already has an active skill
func OwnerLimit(ownerID, instanceID string) error {
	return errors.AlreadyExistsf("%s already has active skill %s", ownerID, instanceID).
		WithReason(errors.ReasonOwnerLimit).
		WithMeta("owner_id", ownerID)
}

// ActorBlocked reports an actor held by a blocking phase
func ActorBlocked(actorID, instanceID string) error {
	return errors.FailedPreconditionf("%s is channeling %s", actorID, instanceID).
		WithReason(errors.ReasonActorBlocked).
		WithMeta("actor_id", actorID)
}

// SessionExists reports a channel that already has a live session
func SessionExists(channelID, sessionID string) error {
	return errors.AlreadyExistsf("channel %s already has session %s", channelID, sessionID).
		WithReason(errors.ReasonSessionExists).
		WithMeta("channel_id", channelID).
		WithMeta("session_id", sessionID)
}
