package middleware

import "time"

func (rl *RateLimiter) EvictIdle(before time.Time) int {
	return rl.evictIdle(before)
}
