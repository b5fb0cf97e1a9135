package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// resetLeaseKey guards the whole reset run; one lease per deployment.
const resetLeaseKey = "quota:reset:lease"

// LeaseStore hands out time-bounded run exclusivity. Acquire returns false
// when another holder is active; the TTL lets a crashed holder's lease
// self-expire.
type LeaseStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLeaseStore implements LeaseStore on a shared Redis, so overlapping
// runs are excluded across service instances, not just in-process.
type RedisLeaseStore struct {
	rdb   redis.Cmdable
	token string
}

// NewRedisLeaseStore creates a lease store with a per-instance holder token.
func NewRedisLeaseStore(rdb redis.Cmdable) *RedisLeaseStore {
	return &RedisLeaseStore{rdb: rdb, token: uuid.New().String()}
}

// Acquire takes the lease with SET NX; false means it is already held.
func (s *RedisLeaseStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	held, err := s.rdb.SetNX(ctx, key, s.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lease %s: %w", key, err)
	}
	return held, nil
}

// releaseScript deletes the lease only if this instance still holds it, so
// a holder whose lease expired cannot release a successor's lease.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release drops the lease if still held by this instance.
func (s *RedisLeaseStore) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{key}, s.token).Err(); err != nil {
		return fmt.Errorf("releasing lease %s: %w", key, err)
	}
	return nil
}
