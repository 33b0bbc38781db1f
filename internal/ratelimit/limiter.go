// Package ratelimit throttles RequestAuth per user id. Without it a bad
// actor could rotate a victim's passcode arbitrarily by flooding login
// requests. Token-bucket limiters are keyed by user id here rather than by
// client IP.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter hands out one token-bucket limiter per key, created lazily on
// first use.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// New builds a limiter allowing r events per second with burst b, per key.
func New(r rate.Limit, b int) *Limiter {
	return &Limiter{limiters: make(map[string]*rate.Limiter), r: r, b: b}
}

// NewPerMinute is a convenience constructor for the REQUEST_AUTH_RATE_PER_MINUTE
// configuration knob.
func NewPerMinute(perMinute int) *Limiter {
	if perMinute <= 0 {
		perMinute = 5
	}
	return New(rate.Limit(float64(perMinute)/60.0), perMinute)
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = lim
	}
	return lim
}

// Allow reports whether an event for key is permitted right now, consuming
// a token if so.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}
