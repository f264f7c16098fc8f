// Package resilience provides the in-process protections around the
// use-case call: a per-key sliding-window rate limiter and a circuit
// breaker. Both are deliberately process-local; when several workers run,
// each carries its own window and breaker.
package resilience

import (
	"sync"
	"time"
)

// Rule defines a rate limiting policy: the maximum number of requests
// allowed inside a rolling window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// limiterSweepEvery bounds how often Allow scans the whole map for keys
// whose window has emptied out.
const limiterSweepEvery = 1024

// RateLimiter tracks request timestamps per key inside a sliding window.
// Idle keys are swept periodically so the map stays bounded by the set of
// recently active users.
type RateLimiter struct {
	mu    sync.Mutex
	rule  Rule
	seen  map[string][]time.Time
	calls int
	now   func() time.Time
}

// NewRateLimiter creates a limiter with the given rule.
func NewRateLimiter(rule Rule) *RateLimiter {
	return &RateLimiter{
		rule: rule,
		seen: make(map[string][]time.Time),
		now:  time.Now,
	}
}

// Allow reports whether the key may proceed, counting this call against the
// window when it does.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.rule.Window)

	l.calls++
	if l.calls >= limiterSweepEvery {
		l.calls = 0
		l.evictIdle(cutoff)
	}

	stamps := l.seen[key]
	live := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	if len(live) >= l.rule.Limit {
		l.seen[key] = live
		return false
	}

	l.seen[key] = append(live, now)
	return true
}

// evictIdle drops keys whose newest stamp fell out of the window. Caller
// holds the lock.
func (l *RateLimiter) evictIdle(cutoff time.Time) {
	for key, stamps := range l.seen {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.seen, key)
		}
	}
}
