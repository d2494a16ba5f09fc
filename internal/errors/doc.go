// Package errors carries the skill engine's structured errors.
//
// Every error has a Code, which maps onto a gRPC status code, and an
// optional Reason that names the engine failure precisely. Codes are coarse
// (NOT_FOUND covers both a missing participant and an unknown skill), so
// callers that need to branch use the reason:
//
//	if errors.HasReason(err, errors.ReasonUnknownSkill) {
//	    ...
//	}
//
// Wrapping keeps both the code and the reason:
//
//	if err := ledger.Activate(...); err != nil {
//	    return errors.Wrapf(err, "failed to activate %s", skillID)
//	}
//
// Across gRPC the reason and metadata are sent as an errdetails.ErrorInfo in
// the status details, and FromGRPCError restores them on the client side.
//
// Configuration and input structs validate with ValidationBuilder:
//
//	vb := errors.NewValidationBuilder()
//	errors.ValidateRequired("session_id", input.SessionID, vb)
//	if err := vb.Build(); err != nil {
//	    return err
//	}
package errors
