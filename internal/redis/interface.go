package redis

import (
	"github.com/redis/go-redis/v9"
)

// Client is the subset of go-redis the battle state store relies on.
// Any redis.UniversalClient satisfies it.
type Client interface {
	redis.Cmdable
	Close() error
}

var _ Client = (redis.UniversalClient)(nil)
