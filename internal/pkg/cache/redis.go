package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"tradewind/internal/logger"
)

// Redis adapts a redis client to the Cache interface. Failures degrade to
// cache misses; the providers re-fetch rather than error.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(addr string, db int, prefix string) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		prefix: prefix,
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warnf("cache: redis get %s failed: %v", key, err)
		}
		return nil, false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, r.prefix+key, val, ttl).Err(); err != nil {
		logger.Warnf("cache: redis set %s failed: %v", key, err)
	}
}

func (r *Redis) Close() error { return r.client.Close() }
