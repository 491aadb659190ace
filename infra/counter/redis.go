package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Interface guard
var _ Store = (*RedisStore)(nil)

// takeScript is the atomic token bucket. State lives in one hash per key:
// tokens (float) and ts (unix ms of the last refill). Time comes from the
// server so every worker refills on the same clock.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end

local elapsed = now - ts
if elapsed < 0 then elapsed = 0 end
tokens = math.min(capacity, tokens + elapsed * capacity / window)

local allowed = 0
local retry = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  retry = math.ceil((1 - tokens) * window / capacity)
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('PEXPIRE', KEYS[1], window)
return {allowed, math.floor(tokens), retry}
`)

// RedisStore implements Store on a shared redis.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. All keys are namespaced with prefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) Take(ctx context.Context, key string, capacity int, window time.Duration) (Decision, error) {
	if capacity <= 0 {
		return Decision{}, fmt.Errorf("counter: invalid capacity %d for %s", capacity, key)
	}

	res, err := takeScript.Run(ctx, s.rdb, []string{s.prefix + key},
		capacity, window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("counter: take %s: %w", key, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("counter: take %s: unexpected reply %v", key, res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// SetNX maps to SET key 1 NX PX ttl, which is atomic on the server.
func (s *RedisStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("counter: setnx %s: %w", key, err)
	}
	return ok, nil
}

// Ping verifies connectivity at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
