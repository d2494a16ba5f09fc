package battlestate

import (
	"context"
	"log/slog"

	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

// MirrorConfig pairs a primary store with a backup
type MirrorConfig struct {
	Primary Repository
	Backup  Repository
	Logger  *slog.Logger
}

// Validate ensures both stores are set
func (c *MirrorConfig) Validate() error {
	if c == nil {
		return errors.InvalidArgument("config cannot be nil")
	}
	vb := errors.NewValidationBuilder()
	if c.Primary == nil {
		vb.RequiredField("Primary")
	}
	if c.Backup == nil {
		vb.RequiredField("Backup")
	}
	return vb.Build()
}

// mirrored writes through to both stores. The primary is authoritative;
// backup write failures are logged and reads fall back to the backup
// when the primary cannot answer.
type mirrored struct {
	primary Repository
	backup  Repository
	logger  *slog.Logger
}

// NewMirror creates a write-through mirrored repository
func NewMirror(cfg *MirrorConfig) (Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid mirror config")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &mirrored{primary: cfg.Primary, backup: cfg.Backup, logger: logger}, nil
}

var _ Repository = (*mirrored)(nil)

func (m *mirrored) Save(ctx context.Context, input *SaveInput) (*SaveOutput, error) {
	out, err := m.primary.Save(ctx, input)
	if err != nil {
		return nil, err
	}
	if _, err := m.backup.Save(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "Backup save failed",
			"session_id", input.Session.ID,
			"error", err)
	}
	return out, nil
}

func (m *mirrored) Get(ctx context.Context, input *GetInput) (*GetOutput, error) {
	out, err := m.primary.Get(ctx, input)
	if err == nil || errors.IsInvalidArgument(err) {
		return out, err
	}

	backupOut, backupErr := m.backup.Get(ctx, input)
	if backupErr != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "Session restored from backup",
		"session_id", input.SessionID,
		"primary_error", err)
	return backupOut, nil
}

func (m *mirrored) GetByChannel(ctx context.Context, input *GetByChannelInput) (*GetOutput, error) {
	out, err := m.primary.GetByChannel(ctx, input)
	if err == nil || errors.IsInvalidArgument(err) {
		return out, err
	}

	backupOut, backupErr := m.backup.GetByChannel(ctx, input)
	if backupErr != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "Session restored from backup",
		"channel_id", input.ChannelID,
		"primary_error", err)
	return backupOut, nil
}

// Delete succeeds when either store held the session
func (m *mirrored) Delete(ctx context.Context, input *DeleteInput) (*DeleteOutput, error) {
	_, primaryErr := m.primary.Delete(ctx, input)
	_, backupErr := m.backup.Delete(ctx, input)

	if primaryErr == nil || backupErr == nil {
		if backupErr != nil && !errors.IsNotFound(backupErr) {
			m.logger.WarnContext(ctx, "Backup delete failed",
				"session_id", input.SessionID,
				"error", backupErr)
		}
		return &DeleteOutput{}, nil
	}
	return nil, primaryErr
}

// ReleaseChannel releases on both stores; the primary decides the result
func (m *mirrored) ReleaseChannel(ctx context.Context, input *ReleaseChannelInput) (*ReleaseChannelOutput, error) {
	out, err := m.primary.ReleaseChannel(ctx, input)
	if _, backupErr := m.backup.ReleaseChannel(ctx, input); backupErr != nil {
		m.logger.WarnContext(ctx, "Backup channel release failed",
			"channel_id", input.ChannelID,
			"session_id", input.SessionID,
			"error", backupErr)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *mirrored) List(ctx context.Context, input *ListInput) (*ListOutput, error) {
	out, err := m.primary.List(ctx, input)
	if err == nil {
		return out, nil
	}
	m.logger.WarnContext(ctx, "Primary list failed, using backup", "error", err)
	return m.backup.List(ctx, input)
}
