package counter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Interface guard
var _ Store = (*MemoryStore)(nil)

type memBucket struct {
	tokens float64
	last   time.Time
}

// MemoryStore is a single-process Store. SetNX is a conditional write under
// one mutex, so it stays atomic against concurrent callers in this process.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memBucket
	flags   map[string]time.Time
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*memBucket),
		flags:   make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithClock swaps the time source, used by tests to move time forward.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Take(_ context.Context, key string, capacity int, window time.Duration) (Decision, error) {
	if capacity <= 0 {
		return Decision{}, fmt.Errorf("counter: invalid capacity %d for %s", capacity, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok {
		b = &memBucket{tokens: float64(capacity), last: now}
		s.buckets[key] = b
	}

	tokens, allowed, wait := refill(b.tokens, b.last, now, capacity, window)
	b.tokens = tokens
	b.last = now

	return Decision{Allowed: allowed, Remaining: int(tokens), RetryAfter: wait}, nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.flags[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.flags[key] = now.Add(ttl)
	return true, nil
}
