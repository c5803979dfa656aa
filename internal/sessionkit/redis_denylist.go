package sessionkit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDenylistKeyPrefix = "session:denylist:"

// RedisDenylist stores denylisted access-token hashes in Redis, relying on
// key TTLs for natural expiry.
type RedisDenylist struct {
	client *redis.Client
}

// NewRedisDenylist constructs a Redis-backed denylist.
func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client}
}

// SupportsImmediateRevocation always reports true.
func (denylist *RedisDenylist) SupportsImmediateRevocation() bool { return true }

// Add records the hash with the remaining token lifetime as TTL.
func (denylist *RedisDenylist) Add(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if tokenHash == "" || ttl <= 0 {
		return nil
	}
	if err := denylist.client.Set(ctx, redisDenylistKeyPrefix+tokenHash, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("denylist.redis.add: %w", err)
	}
	return nil
}

// Contains reports whether the hash key still exists.
func (denylist *RedisDenylist) Contains(ctx context.Context, tokenHash string) (bool, error) {
	count, err := denylist.client.Exists(ctx, redisDenylistKeyPrefix+tokenHash).Result()
	if err != nil {
		return false, fmt.Errorf("denylist.redis.contains: %w", err)
	}
	return count > 0, nil
}
