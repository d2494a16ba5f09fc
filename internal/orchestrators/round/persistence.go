package round

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	battlestate "github.com/KirkDiggler/rpg-skill-engine/internal/repositories/battle_state"
)

// Save snapshots a session. The copy is taken under the read lock, encoding
// and the repository write happen unlocked, and the lock is taken again only
// to record the saved version.
func (o *orchestrator) Save(ctx context.Context, input *SaveInput) (_ *SaveOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "save", input.SessionID)
	defer func() { op.End(ctx, err) }()

	e, err := o.lookup(input.SessionID)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, battle.SessionNotFound(input.SessionID)
	}
	snapshot := e.session.Clone()
	e.mu.RUnlock()

	snapshot.SavedVersion = snapshot.Version
	blob, err := battle.Encode(snapshot)
	if err != nil {
		return nil, err
	}

	if o.repo != nil {
		if err := o.store(ctx, snapshot); err != nil {
			return nil, errors.Wrapf(err, "failed to save session %s", snapshot.ID)
		}
	}

	e.mu.Lock()
	if !e.closed && e.session.SavedVersion < snapshot.Version {
		e.session.SavedVersion = snapshot.Version
	}
	e.mu.Unlock()

	return &SaveOutput{Blob: blob, Version: snapshot.Version}, nil
}

// store writes a snapshot. When the live channel map says the channel is this
// session's, a stored binding to any other session is stale: it is released
// and the write retried once.
func (o *orchestrator) store(ctx context.Context, snapshot *battle.Session) error {
	_, err := o.repo.Save(ctx, &battlestate.SaveInput{Session: snapshot})
	if !errors.HasReason(err, errors.ReasonSessionExists) {
		return err
	}

	owner, _ := errors.GetMeta(err)["session_id"].(string)
	if owner == "" || owner == snapshot.ID {
		return err
	}
	o.mu.RLock()
	boundHere := o.channels[snapshot.ChannelID] == snapshot.ID
	o.mu.RUnlock()
	if !boundHere {
		return err
	}

	if _, releaseErr := o.repo.ReleaseChannel(ctx, &battlestate.ReleaseChannelInput{
		ChannelID: snapshot.ChannelID,
		SessionID: owner,
	}); releaseErr != nil {
		return releaseErr
	}
	slog.Info("Released stale channel binding",
		"channel_id", snapshot.ChannelID,
		"stale_session_id", owner,
		"session_id", snapshot.ID,
	)

	_, err = o.repo.Save(ctx, &battlestate.SaveInput{Session: snapshot})
	return err
}

// Load makes a stored session live. A session already live under the same id
// is replaced once its in-flight mutation completes, and its channel binding
// moves to the loaded snapshot's channel.
func (o *orchestrator) Load(ctx context.Context, input *LoadInput) (_ *LoadOutput, err error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	ctx, op := o.observer.Start(ctx, "load", input.SessionID)
	defer func() { op.End(ctx, err) }()

	var s *battle.Session
	switch {
	case len(input.Blob) > 0:
		s, err = battle.Decode(input.Blob)
		if err != nil {
			return nil, err
		}
		if input.SessionID != "" && s.ID != input.SessionID {
			return nil, errors.InvalidArgumentf("snapshot holds session %s, not %s", s.ID, input.SessionID)
		}
	case o.repo != nil:
		out, err := o.repo.Get(ctx, &battlestate.GetInput{SessionID: input.SessionID})
		if err != nil {
			return nil, err
		}
		s = out.Session
		s.SavedVersion = s.Version
	default:
		return nil, errors.FailedPrecondition("no blob given and no repository configured")
	}

	o.mu.Lock()
	if owner, ok := o.channels[s.ChannelID]; ok && owner != s.ID {
		o.mu.Unlock()
		return nil, battle.SessionExists(s.ChannelID, owner)
	}
	replaced, prevChannel := o.adopt(s)
	o.mu.Unlock()

	if o.repo != nil && prevChannel != "" && prevChannel != s.ChannelID {
		if _, err := o.repo.ReleaseChannel(ctx, &battlestate.ReleaseChannelInput{
			ChannelID: prevChannel,
			SessionID: s.ID,
		}); err != nil {
			slog.Warn("Failed to release stored channel binding",
				"session_id", s.ID,
				"channel_id", prevChannel,
				"error", err,
			)
		}
	}

	slog.Info("Battle session loaded",
		"session_id", s.ID,
		"channel_id", s.ChannelID,
		"round", s.Round,
		"replaced", replaced,
	)

	return &LoadOutput{Session: s.Clone()}, nil
}

// adopt makes s the live session for its id and binds its channel, returning
// whether a live entry was swapped and the channel it was bound to. An entry
// closed by a concurrent teardown is replaced with a fresh one. Must be called
// with o.mu held.
func (o *orchestrator) adopt(s *battle.Session) (bool, string) {
	replaced, prevChannel := false, ""
	e, ok := o.sessions[s.ID]
	if ok {
		e.mu.Lock()
		prevChannel = e.session.ChannelID
		if !e.closed {
			e.session = s
			replaced = true
		}
		e.mu.Unlock()
	}
	if !replaced {
		o.sessions[s.ID] = &entry{session: s}
	}

	if prevChannel != s.ChannelID && o.channels[prevChannel] == s.ID {
		delete(o.channels, prevChannel)
	}
	if s.ChannelID != "" {
		o.channels[s.ChannelID] = s.ID
	}
	return replaced, prevChannel
}

// SaveDirty saves every session with unsaved mutations
func (o *orchestrator) SaveDirty(ctx context.Context) (*SaveDirtyOutput, error) {
	if o.repo == nil {
		return nil, errors.FailedPrecondition("no repository configured")
	}

	o.mu.RLock()
	ids := make([]string, 0, len(o.sessions))
	for id, e := range o.sessions {
		e.mu.RLock()
		dirty := !e.closed && e.session.Dirty()
		e.mu.RUnlock()
		if dirty {
			ids = append(ids, id)
		}
	}
	o.mu.RUnlock()
	sort.Strings(ids)

	out := &SaveDirtyOutput{Failed: map[string]error{}}
	for _, id := range ids {
		if _, err := o.Save(ctx, &SaveInput{SessionID: id}); err != nil {
			out.Failed[id] = err
			continue
		}
		out.Saved = append(out.Saved, id)
	}
	return out, nil
}

// RunAutosave saves dirty sessions every interval until ctx is done, then
// makes a final pass with a fresh context
func (o *orchestrator) RunAutosave(ctx context.Context, interval time.Duration) {
	if o.repo == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			o.autosave(final)
			cancel()
			return
		case <-ticker.C:
			o.autosave(ctx)
		}
	}
}

func (o *orchestrator) autosave(ctx context.Context) {
	out, err := o.SaveDirty(ctx)
	if err != nil {
		slog.Warn("Autosave skipped", "error", err)
		return
	}
	for id, err := range out.Failed {
		slog.Error("Autosave failed",
			"session_id", id,
			"error", err,
		)
	}
	if len(out.Saved) > 0 {
		slog.Info("Autosave completed", "saved", len(out.Saved))
	}
}
