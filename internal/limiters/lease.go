package limiters

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease is a best-effort distributed mutex over a Redis key. It keeps
// concurrent instances from running the same periodic job at once; it is not
// a correctness lock.
type Lease struct {
	redis redis.UniversalClient
	key   string
	ttl   time.Duration
	token string
}

// NewLease returns a Lease over the given key. Token identifies this holder
// so only the acquiring instance can release early.
func NewLease(redisClient redis.UniversalClient, key, token string, ttl time.Duration) *Lease {
	return &Lease{redis: redisClient, key: key, ttl: ttl, token: token}
}

// TryAcquire attempts to take the lease. It returns false without error when
// another holder has it.
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.redis.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

// releaseScript deletes the lease only when this instance still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Release gives the lease up early. Expiry handles the crash case.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.redis, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
