package clubauth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// resetLimiter bounds password-reset issuance per principal using a fixed
// Redis window. The INCR result of 1 marks the first request of a window and
// sets the expiry; later requests ride the existing TTL.
type resetLimiter struct {
	client redis.UniversalClient
	prefix string
	max    int
	window time.Duration
}

func newResetLimiter(client redis.UniversalClient, max int, window time.Duration) *resetLimiter {
	return &resetLimiter{
		client: client,
		prefix: "ratelimit:reset",
		max:    max,
		window: window,
	}
}

// Allow consumes one reset request for the principal. It returns false once
// the window budget is spent. Errors surface as ErrStoreUnavailable so the
// caller can decide whether issuance is worth failing.
func (l *resetLimiter) Allow(ctx context.Context, principalID string) (bool, error) {
	if l == nil || l.max <= 0 {
		return true, nil
	}
	key := l.prefix + ":" + principalID
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return count <= int64(l.max), nil
}
