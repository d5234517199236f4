package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is a small read-through cache on top of Redis. A nil client is
// allowed and turns every lookup into a direct fetch.
type Store struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func New(rdb *redis.Client, logger *zap.Logger) *Store {
	return &Store{rdb: rdb, logger: logger}
}

// Lookup returns the cached value for key, or runs fetch and caches the
// result for ttl. Cache write failures are logged and ignored.
func (s *Store) Lookup(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (string, error)) (string, error) {
	if s == nil || s.rdb == nil {
		return fetch(ctx)
	}

	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		return val, nil
	}
	if err != redis.Nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	val, err = fetch(ctx)
	if err != nil {
		return "", err
	}

	if err := s.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return val, nil
}
