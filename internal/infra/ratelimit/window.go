// Package ratelimit meters marketplace write traffic in fixed windows.
// Windows are aligned to multiples of the period since the Unix epoch, so
// the memory and Redis limiters and every replica agree on where a window
// starts and ends.
package ratelimit

import (
	"time"

	"chlumarket/internal/domain"
)

func fixedWindow(now time.Time, period time.Duration) (int64, time.Time) {
	if period <= 0 {
		period = time.Second
	}
	index := now.UnixNano() / int64(period)
	return index, time.Unix(0, (index+1)*int64(period))
}

func decide(limit, hits int, ends time.Time) domain.RateLimitDecision {
	remaining := limit - hits
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   hits <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   ends,
	}
}

func unlimited(limit int) domain.RateLimitDecision {
	return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}
}
