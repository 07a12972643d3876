// Package redisx builds the shared go-redis client from the environment.
package redisx

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/bizdash/libs/config"
)

// FromEnv returns nil when REDIS_ADDR is unset. Callers treat Redis as
// optional and fall back to in-process or database state.
func FromEnv() *redis.Client {
	addr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if addr == "" {
		return nil
	}
	db := config.Int("REDIS_DB", 0)
	if db < 0 {
		db = 0
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       db,
	})
}

func ReadyCheck(rdb redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
