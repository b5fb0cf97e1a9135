package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metergate-platform/metergate/internal/config"
)

const bucketKeyPrefix = "admit:"

// admitScript holds the whole fixed-window step — roll, check, increment —
// in one atomic EVAL so concurrent instances never race the counter past
// the limit. Returns {allowed, count, windowStartMs}.
var admitScript = redis.NewScript(`
local ws = tonumber(redis.call("HGET", KEYS[1], "ws"))
local count = tonumber(redis.call("HGET", KEYS[1], "c"))
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local consume = tonumber(ARGV[4])

if ws == nil or now - ws >= window then
	ws = now
	count = 0
end

local allowed = 0
if count < limit then
	allowed = 1
	if consume == 1 then
		count = count + 1
	end
end

redis.call("HSET", KEYS[1], "ws", ws)
redis.call("HSET", KEYS[1], "c", count)
redis.call("PEXPIRE", KEYS[1], window * 2)
return {allowed, count, ws}
`)

// RedisStore is a bucket Store backed by a shared Redis, giving every
// service instance the same counters.
type RedisStore struct {
	rdb    redis.Cmdable
	limits limits
}

// NewRedisStore creates a Redis-backed bucket store from the validated
// per-class budgets.
func NewRedisStore(rdb redis.Cmdable, cfg config.AdmissionConfig) (*RedisStore, error) {
	l, err := newLimits(cfg)
	if err != nil {
		return nil, err
	}
	return &RedisStore{rdb: rdb, limits: l}, nil
}

// TryAdmit consumes one slot in the actor's window if the limit allows.
func (s *RedisStore) TryAdmit(ctx context.Context, actorID string, class ActionClass, now time.Time) (Result, error) {
	return s.decide(ctx, actorID, class, now, true)
}

// Status reports the current window without consuming a slot.
func (s *RedisStore) Status(ctx context.Context, actorID string, class ActionClass, now time.Time) (Result, error) {
	return s.decide(ctx, actorID, class, now, false)
}

func (s *RedisStore) decide(ctx context.Context, actorID string, class ActionClass, now time.Time, consume bool) (Result, error) {
	cl, err := s.limits.resolve(class)
	if err != nil {
		return Result{}, err
	}

	key := bucketKeyPrefix + actorID + ":" + string(class)
	consumeArg := 0
	if consume {
		consumeArg = 1
	}

	raw, err := admitScript.Run(ctx, s.rdb, []string{key},
		now.UnixMilli(), cl.Window.Milliseconds(), cl.Limit, consumeArg).Result()
	if err != nil {
		return Result{}, fmt.Errorf("admission script for %s: %w", key, err)
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 3 {
		return Result{}, fmt.Errorf("admission script for %s: unexpected reply %v", key, raw)
	}
	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	windowStartMs, _ := vals[2].(int64)

	return Result{
		Allowed:   allowed == 1,
		Limit:     cl.Limit,
		Remaining: cl.Limit - int(count),
		ResetAt:   time.UnixMilli(windowStartMs).Add(cl.Window).UTC(),
	}, nil
}
