package httpapi

import (
	"sync"
	"time"
)

// rateLimiter is a sliding-window counter keyed by caller identity (IP,
// email). Keys whose window has emptied are dropped on the next sweep.
type rateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	max       int
	entries   map[string][]time.Time
	lastSweep time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		window:  window,
		max:     limit,
		entries: make(map[string][]time.Time),
	}
}

func newLoginLimiter() *rateLimiter {
	return newRateLimiter(10, 5*time.Minute)
}

// Allow records an attempt for key and reports whether it is within the
// limit. When it is not, retryAfter is the time until the oldest attempt
// leaves the window.
func (l *rateLimiter) Allow(key string, now time.Time) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	ts := prune(l.entries[key], cutoff)
	if len(ts) >= l.max {
		l.entries[key] = ts
		return false, ts[0].Sub(cutoff)
	}

	l.entries[key] = append(ts, now)
	return true, 0
}

func (l *rateLimiter) sweep(cutoff time.Time) {
	for k, ts := range l.entries {
		if ts = prune(ts, cutoff); len(ts) == 0 {
			delete(l.entries, k)
		} else {
			l.entries[k] = ts
		}
	}
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
