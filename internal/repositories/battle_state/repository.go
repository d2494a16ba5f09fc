// Package battlestate persists battle session snapshots keyed by session id,
// with a secondary index from chat channel to session.
package battlestate

//go:generate mockgen -destination=mock/mock_repository.go -package=battlestatemock github.com/KirkDiggler/rpg-skill-engine/internal/repositories/battle_state Repository

import (
	"context"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

// Repository defines the storage interface for battle sessions
type Repository interface {
	// Save stores the full session snapshot, replacing any previous one
	Save(ctx context.Context, input *SaveInput) (*SaveOutput, error)

	// Get loads a session by id
	Get(ctx context.Context, input *GetInput) (*GetOutput, error)

	// GetByChannel loads the session bound to a chat channel
	GetByChannel(ctx context.Context, input *GetByChannelInput) (*GetOutput, error)

	// Delete removes a session
	Delete(ctx context.Context, input *DeleteInput) (*DeleteOutput, error)

	// ReleaseChannel unbinds a channel from a session whose battle ended. The
	// snapshot stays stored. A channel bound to another session is left alone.
	ReleaseChannel(ctx context.Context, input *ReleaseChannelInput) (*ReleaseChannelOutput, error)

	// List returns the ids of all stored sessions, sorted
	List(ctx context.Context, input *ListInput) (*ListOutput, error)
}

// SaveInput contains the session to store
type SaveInput struct {
	Session *battle.Session
}

// SaveOutput reports the stored version
type SaveOutput struct {
	Version int64
}

// GetInput identifies a session
type GetInput struct {
	SessionID string
}

// GetByChannelInput identifies a session by its channel
type GetByChannelInput struct {
	ChannelID string
}

// GetOutput contains a decoded session
type GetOutput struct {
	Session *battle.Session
}

// DeleteInput identifies a session to remove
type DeleteInput struct {
	SessionID string
}

// DeleteOutput is empty for now
type DeleteOutput struct{}

// ReleaseChannelInput names the binding to drop
type ReleaseChannelInput struct {
	ChannelID string
	SessionID string
}

// ReleaseChannelOutput reports whether a binding was removed
type ReleaseChannelOutput struct {
	Released bool
}

// ListInput is empty for now
type ListInput struct{}

// ListOutput contains stored session ids
type ListOutput struct {
	SessionIDs []string
}

func validateSave(input *SaveInput) error {
	if input == nil || input.Session == nil {
		return errors.InvalidArgument("session is required")
	}
	if input.Session.ID == "" {
		return errors.InvalidArgument("session ID is required")
	}
	return nil
}

func validateGet(input *GetInput) error {
	if input == nil || input.SessionID == "" {
		return errors.InvalidArgument("session ID is required")
	}
	return nil
}

func validateGetByChannel(input *GetByChannelInput) error {
	if input == nil || input.ChannelID == "" {
		return errors.InvalidArgument("channel ID is required")
	}
	return nil
}

func validateReleaseChannel(input *ReleaseChannelInput) error {
	if input == nil {
		return errors.InvalidArgument("input is required")
	}
	vb := errors.NewValidationBuilder()
	errors.ValidateRequired("ChannelID", input.ChannelID, vb)
	errors.ValidateRequired("SessionID", input.SessionID, vb)
	return vb.Build()
}

func validateDelete(input *DeleteInput) error {
	if input == nil || input.SessionID == "" {
		return errors.InvalidArgument("session ID is required")
	}
	return nil
}
