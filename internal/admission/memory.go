package admission

import (
	"context"
	"sync"
	"time"

	"github.com/metergate-platform/metergate/internal/config"
)

// bucket is one fixed window for a single (actor, class) key. Its own mutex
// keeps contention local to the key instead of serializing unrelated actors.
type bucket struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// MemoryStore is a process-local bucket Store. It only enforces per-instance
// limits; multi-instance deployments should use RedisStore for one shared
// counter source.
type MemoryStore struct {
	limits limits

	mu      sync.RWMutex
	buckets map[string]*bucket
}

// NewMemoryStore creates an in-memory bucket store from the validated
// per-class budgets.
func NewMemoryStore(cfg config.AdmissionConfig) (*MemoryStore, error) {
	l, err := newLimits(cfg)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		limits:  l,
		buckets: make(map[string]*bucket),
	}, nil
}

// TryAdmit consumes one slot in the actor's window if the limit allows.
func (s *MemoryStore) TryAdmit(ctx context.Context, actorID string, class ActionClass, now time.Time) (Result, error) {
	return s.decide(actorID, class, now, true)
}

// Status reports the current window without consuming a slot.
func (s *MemoryStore) Status(ctx context.Context, actorID string, class ActionClass, now time.Time) (Result, error) {
	return s.decide(actorID, class, now, false)
}

func (s *MemoryStore) decide(actorID string, class ActionClass, now time.Time, consume bool) (Result, error) {
	cl, err := s.limits.resolve(class)
	if err != nil {
		return Result{}, err
	}

	b := s.getBucket(actorID, class, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.windowStart) >= cl.Window {
		b.windowStart = now
		b.count = 0
	}

	res := Result{
		Limit:   cl.Limit,
		ResetAt: b.windowStart.Add(cl.Window),
	}

	if consume && b.count < cl.Limit {
		b.count++
		res.Allowed = true
	} else if !consume {
		res.Allowed = b.count < cl.Limit
	}
	res.Remaining = cl.Limit - b.count

	return res, nil
}

func (s *MemoryStore) getBucket(actorID string, class ActionClass, now time.Time) *bucket {
	key := actorID + ":" + string(class)

	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[key]; ok {
		return b
	}
	b = &bucket{windowStart: now}
	s.buckets[key] = b
	return b
}
