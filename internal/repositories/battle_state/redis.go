package battlestate

import (
	"context"
	"sort"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	redisclient "github.com/KirkDiggler/rpg-skill-engine/internal/redis"
)

const (
	// Key patterns: battle_session:{id}, battle_channel:{channel_id}
	sessionKeyPrefix = "battle_session:"
	channelKeyPrefix = "battle_channel:"
	sessionIndexKey  = "battle_sessions"
)

// releaseChannelScript deletes KEYS[1] only while it still holds ARGV[1]
var releaseChannelScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig holds the configuration for the Redis repository
type RedisConfig struct {
	Client redisclient.Client
	// TTL expires idle sessions. Zero keeps them until deleted.
	TTL time.Duration
}

// Validate ensures all required dependencies are provided
func (c *RedisConfig) Validate() error {
	if c == nil {
		return errors.InvalidArgument("config cannot be nil")
	}
	vb := errors.NewValidationBuilder()
	if c.Client == nil {
		vb.RequiredField("Client")
	}
	errors.ValidateNonNegative("TTL", int(c.TTL), vb)
	return vb.Build()
}

type redisRepository struct {
	client redisclient.Client
	ttl    time.Duration
}

// NewRedis creates a Redis backed repository
func NewRedis(cfg *RedisConfig) (Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid redis repository config")
	}

	return &redisRepository{
		client: cfg.Client,
		ttl:    cfg.TTL,
	}, nil
}

var _ Repository = (*redisRepository)(nil)

// Save writes the snapshot and its channel index in one transaction
func (r *redisRepository) Save(ctx context.Context, input *SaveInput) (*SaveOutput, error) {
	if err := validateSave(input); err != nil {
		return nil, err
	}
	s := input.Session

	if s.ChannelID != "" {
		owner, err := r.client.Get(ctx, channelKeyPrefix+s.ChannelID).Result()
		switch {
		case err == nil && owner != s.ID:
			return nil, battle.SessionExists(s.ChannelID, owner)
		case err != nil && err != redis.Nil:
			return nil, errors.Wrapf(err, "failed to read channel index from Redis")
		}
	}

	blob, err := battle.Encode(s)
	if err != nil {
		return nil, err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKeyPrefix+s.ID, blob, r.ttl)
		if s.ChannelID != "" {
			pipe.Set(ctx, channelKeyPrefix+s.ChannelID, s.ID, r.ttl)
		}
		pipe.SAdd(ctx, sessionIndexKey, s.ID)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to store session in Redis")
	}

	return &SaveOutput{Version: s.Version}, nil
}

// Get retrieves a session by id
func (r *redisRepository) Get(ctx context.Context, input *GetInput) (*GetOutput, error) {
	if err := validateGet(input); err != nil {
		return nil, err
	}

	blob, err := r.client.Get(ctx, sessionKeyPrefix+input.SessionID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, battle.SessionNotFound(input.SessionID)
		}
		return nil, errors.Wrapf(err, "failed to get session from Redis")
	}

	s, err := battle.Decode(blob)
	if err != nil {
		return nil, err
	}
	return &GetOutput{Session: s}, nil
}

// GetByChannel resolves the channel index and loads the session
func (r *redisRepository) GetByChannel(ctx context.Context, input *GetByChannelInput) (*GetOutput, error) {
	if err := validateGetByChannel(input); err != nil {
		return nil, err
	}

	id, err := r.client.Get(ctx, channelKeyPrefix+input.ChannelID).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.NotFoundf("no session for channel %s", input.ChannelID).
				WithMeta("channel_id", input.ChannelID)
		}
		return nil, errors.Wrapf(err, "failed to read channel index from Redis")
	}
	return r.Get(ctx, &GetInput{SessionID: id})
}

// Delete removes the snapshot, its channel index and its index entry
func (r *redisRepository) Delete(ctx context.Context, input *DeleteInput) (*DeleteOutput, error) {
	if err := validateDelete(input); err != nil {
		return nil, err
	}

	out, err := r.Get(ctx, &GetInput{SessionID: input.SessionID})
	if err != nil {
		return nil, err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKeyPrefix+input.SessionID)
		if out.Session.ChannelID != "" {
			pipe.Del(ctx, channelKeyPrefix+out.Session.ChannelID)
		}
		pipe.SRem(ctx, sessionIndexKey, input.SessionID)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to delete session from Redis")
	}

	return &DeleteOutput{}, nil
}

// ReleaseChannel compares and deletes the channel index in one script call
func (r *redisRepository) ReleaseChannel(ctx context.Context, input *ReleaseChannelInput) (*ReleaseChannelOutput, error) {
	if err := validateReleaseChannel(input); err != nil {
		return nil, err
	}

	n, err := releaseChannelScript.Run(ctx, r.client,
		[]string{channelKeyPrefix + input.ChannelID}, input.SessionID).Int()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to release channel %s in Redis", input.ChannelID)
	}

	return &ReleaseChannelOutput{Released: n > 0}, nil
}

// List returns ids whose snapshot still exists, pruning expired index entries
func (r *redisRepository) List(ctx context.Context, _ *ListInput) (*ListOutput, error) {
	members, err := r.client.SMembers(ctx, sessionIndexKey).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list sessions from Redis")
	}

	ids := make([]string, 0, len(members))
	for _, id := range members {
		n, err := r.client.Exists(ctx, sessionKeyPrefix+id).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to check session %s", id)
		}
		if n == 0 {
			_ = r.client.SRem(ctx, sessionIndexKey, id).Err()
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &ListOutput{SessionIDs: ids}, nil
}
