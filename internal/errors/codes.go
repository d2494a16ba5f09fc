package errors

// Code represents an error code
type Code string

// Error codes
const (
	CodeOK                 Code = "OK"
	CodeCanceled           Code = "CANCELED"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeDeadlineExceeded   Code = "DEADLINE_EXCEEDED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	CodeAborted            Code = "ABORTED"
	CodeUnimplemented      Code = "UNIMPLEMENTED"
	CodeInternal           Code = "INTERNAL"
	CodeUnavailable        Code = "UNAVAILABLE"
	CodeDataLoss           Code = "DATA_LOSS"
)

// String returns the string representation of the code
func (c Code) String() string {
	return string(c)
}

// Reason is a stable, machine readable discriminator carried next to a Code.
// Several engine failures share a code (an unknown skill and a missing
// participant are both NOT_FOUND) so callers branch on the reason.
type Reason string

// Engine reasons
const (
	ReasonNone                   Reason = ""
	ReasonDuplicateParticipant   Reason = "DUPLICATE_PARTICIPANT"
	ReasonNotFound               Reason = "NOT_FOUND"
	ReasonUnknownSkill           Reason = "UNKNOWN_SKILL"
	ReasonPermissionDenied       Reason = "PERMISSION_DENIED"
	ReasonInvalidTargetArity     Reason = "INVALID_TARGET_ARITY"
	ReasonInvalidPhaseTransition Reason = "INVALID_PHASE_TRANSITION"
	ReasonSessionNotInProgress   Reason = "SESSION_NOT_IN_PROGRESS"
	ReasonSkillAlreadyActive     Reason = "SKILL_ALREADY_ACTIVE"
	ReasonOwnerLimit             Reason = "OWNER_LIMIT"
	ReasonActorBlocked           Reason = "ACTOR_BLOCKED"
	ReasonSessionExists          Reason = "SESSION_EXISTS"
)

// String returns the string representation of the reason
func (r Reason) String() string {
	return string(r)
}
