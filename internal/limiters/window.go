// Package limiters provides the Redis-backed fixed-window counters and the
// cleanup lease used by the engine.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Window is a fixed-window counter keyed by caller-chosen identifiers.
// The first hit in a window starts the TTL; the count resets when it lapses.
type Window struct {
	redis  redis.UniversalClient
	prefix string
}

// NewWindow returns a Window writing keys under prefix.
func NewWindow(redisClient redis.UniversalClient, prefix string) *Window {
	return &Window{redis: redisClient, prefix: prefix}
}

// Hit increments the counter for key and returns the count within the current
// window.
func (w *Window) Hit(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	full := w.prefix + ":" + key

	count, err := w.redis.Incr(ctx, full).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: only the first hit starts the TTL.
	if count == 1 {
		if err := w.redis.Expire(ctx, full, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// Count returns the current counter for key without incrementing. A missing
// key reads as zero.
func (w *Window) Count(ctx context.Context, key string) (int64, error) {
	count, err := w.redis.Get(ctx, w.prefix+":"+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// Reset clears the counter for key.
func (w *Window) Reset(ctx context.Context, key string) error {
	if err := w.redis.Del(ctx, w.prefix+":"+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
