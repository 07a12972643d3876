package assignment

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisCursor keeps the round robin position per tenant so every booking
// instance rotates through the same sequence. The booking_settings column is
// updated in the booking transaction as well and is used when Redis is
// unavailable.
type RedisCursor struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisCursor(rdb redis.Cmdable) *RedisCursor {
	return &RedisCursor{rdb: rdb, prefix: "rr"}
}

func (c *RedisCursor) key(tenantID string) string {
	return c.prefix + ":" + tenantID
}

// Load returns ok=false when no cursor has been stored yet.
func (c *RedisCursor) Load(ctx context.Context, tenantID string) (int, bool, error) {
	v, err := c.rdb.Get(ctx, c.key(tenantID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

func (c *RedisCursor) Store(ctx context.Context, tenantID string, next int) error {
	return c.rdb.Set(ctx, c.key(tenantID), next, 0).Err()
}
