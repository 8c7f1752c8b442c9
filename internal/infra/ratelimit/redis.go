package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chlumarket/internal/domain"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "chlu:ratelimit:"

// One key per subject and window; the key expires when its window closes.
var incrWindowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIREAT", KEYS[1], ARGV[1])
end
return hits
`)

// RedisLimiter shares counters between marketplace replicas.
type RedisLimiter struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisLimiter(client redis.UniversalClient, now func() time.Time) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, now: now}, nil
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, period time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return unlimited(limit), nil
	}
	index, ends := fixedWindow(r.now(), period)
	windowKey := fmt.Sprintf("%s%s:%d", redisKeyPrefix, key, index)
	hits, err := incrWindowScript.Run(ctx, r.client, []string{windowKey}, ends.UnixMilli()).Int64()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	return decide(limit, int(hits), ends), nil
}
