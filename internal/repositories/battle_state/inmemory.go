package battlestate

import (
	"context"
	"sort"
	"sync"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

// InMemoryRepository implements Repository on encoded snapshots held in a map
type InMemoryRepository struct {
	mu       sync.RWMutex
	store    map[string][]byte
	channels map[string]string
}

// NewInMemory creates a new in-memory repository
func NewInMemory() *InMemoryRepository {
	return &InMemoryRepository{
		store:    make(map[string][]byte),
		channels: make(map[string]string),
	}
}

var _ Repository = (*InMemoryRepository)(nil)

// Save stores a session
func (r *InMemoryRepository) Save(_ context.Context, input *SaveInput) (*SaveOutput, error) {
	if err := validateSave(input); err != nil {
		return nil, err
	}

	blob, err := battle.Encode(input.Session)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := input.Session
	if s.ChannelID != "" {
		if owner, ok := r.channels[s.ChannelID]; ok && owner != s.ID {
			return nil, battle.SessionExists(s.ChannelID, owner)
		}
		r.channels[s.ChannelID] = s.ID
	}
	r.store[s.ID] = blob

	return &SaveOutput{Version: s.Version}, nil
}

// Get retrieves a session by ID
func (r *InMemoryRepository) Get(_ context.Context, input *GetInput) (*GetOutput, error) {
	if err := validateGet(input); err != nil {
		return nil, err
	}

	r.mu.RLock()
	blob, exists := r.store[input.SessionID]
	r.mu.RUnlock()
	if !exists {
		return nil, battle.SessionNotFound(input.SessionID)
	}

	s, err := battle.Decode(blob)
	if err != nil {
		return nil, err
	}
	return &GetOutput{Session: s}, nil
}

// GetByChannel retrieves the session bound to a channel
func (r *InMemoryRepository) GetByChannel(ctx context.Context, input *GetByChannelInput) (*GetOutput, error) {
	if err := validateGetByChannel(input); err != nil {
		return nil, err
	}

	r.mu.RLock()
	id, ok := r.channels[input.ChannelID]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NotFoundf("no session for channel %s", input.ChannelID).
			WithMeta("channel_id", input.ChannelID)
	}
	return r.Get(ctx, &GetInput{SessionID: id})
}

// Delete removes a session
func (r *InMemoryRepository) Delete(_ context.Context, input *DeleteInput) (*DeleteOutput, error) {
	if err := validateDelete(input); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.store[input.SessionID]; !exists {
		return nil, battle.SessionNotFound(input.SessionID)
	}
	delete(r.store, input.SessionID)
	for ch, id := range r.channels {
		if id == input.SessionID {
			delete(r.channels, ch)
		}
	}

	return &DeleteOutput{}, nil
}

// ReleaseChannel drops the channel binding if it still points at the session
func (r *InMemoryRepository) ReleaseChannel(_ context.Context, input *ReleaseChannelInput) (*ReleaseChannelOutput, error) {
	if err := validateReleaseChannel(input); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channels[input.ChannelID] != input.SessionID {
		return &ReleaseChannelOutput{}, nil
	}
	delete(r.channels, input.ChannelID)
	return &ReleaseChannelOutput{Released: true}, nil
}

// List returns all stored session ids
func (r *InMemoryRepository) List(_ context.Context, _ *ListInput) (*ListOutput, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.store))
	for id := range r.store {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &ListOutput{SessionIDs: ids}, nil
}
