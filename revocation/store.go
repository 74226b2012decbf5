// Package revocation is a Redis-backed, TTL-keyed denylist of token
// identifiers. It exists only to force-expire a token earlier than its
// natural expiry; entries evaporate on their own once the token would have
// expired anyway.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any underlying Redis failure.
var ErrRedisUnavailable = errors.New("revocation store unavailable")

const defaultPrefix = "blacklist:token"

// Store persists revocation entries keyed by token identifier.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a [Store] with the given key prefix. An empty prefix
// selects "blacklist:token".
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) key(tokenID string) string {
	return s.prefix + ":" + tokenID
}

// Revoke inserts a denylist entry with TTL equal to the token's remaining
// validity. Non-positive TTLs are a no-op.
func (s *Store) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked is an O(1) existence check. Callers on the request path treat
// an error as "not revoked" (fail open).
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Lift removes an entry before its TTL expires. Administrative use only.
func (s *Store) Lift(ctx context.Context, tokenID string) error {
	if err := s.redis.Del(ctx, s.key(tokenID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
