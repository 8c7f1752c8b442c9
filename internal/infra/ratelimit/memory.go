package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"chlumarket/internal/domain"
)

var ErrCapacityExceeded = errors.New("rate limiter capacity exceeded")

const defaultMaxKeys = 10000

type counter struct {
	window int64
	hits   int
	ends   time.Time
}

// MemoryLimiter keeps counters in process. It tracks at most MaxKeys
// subjects; closed windows are swept when that cap is reached.
type MemoryLimiter struct {
	mu       sync.Mutex
	now      func() time.Time
	counters map[string]*counter
	maxKeys  int
}

type MemoryLimiterConfig struct {
	Now     func() time.Time
	MaxKeys int
}

func NewMemoryLimiter(cfg MemoryLimiterConfig) *MemoryLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = defaultMaxKeys
	}
	return &MemoryLimiter{
		now:      cfg.Now,
		counters: make(map[string]*counter),
		maxKeys:  cfg.MaxKeys,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, period time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return unlimited(limit), nil
	}
	now := m.now()
	index, ends := fixedWindow(now, period)

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok {
		if len(m.counters) >= m.maxKeys {
			m.sweep(now)
		}
		if len(m.counters) >= m.maxKeys {
			return domain.RateLimitDecision{}, ErrCapacityExceeded
		}
		c = &counter{}
		m.counters[key] = c
	}
	if c.window != index {
		c.window, c.hits, c.ends = index, 0, ends
	}
	c.hits++
	return decide(limit, c.hits, c.ends), nil
}

func (m *MemoryLimiter) sweep(now time.Time) {
	for key, c := range m.counters {
		if !now.Before(c.ends) {
			delete(m.counters, key)
		}
	}
}
