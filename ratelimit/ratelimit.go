// Package ratelimit provides the per-client request limiter the gateways
// consult before any command is dispatched.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter checks whether another request is allowed for the given key
// (typically a client IP). When the limit is exceeded it also reports how
// long the caller should wait before retrying.
type Limiter interface {
	Allow(key string) (allowed bool, retryAfter time.Duration)
}

// SlidingWindow is an in-memory sliding-window Limiter. State is
// process-local; the server runs as a single node.
type SlidingWindow struct {
	mu        sync.Mutex
	window    time.Duration
	max       int
	hits      map[string][]time.Time
	lastSweep time.Time

	now func() time.Time
}

// NewSlidingWindow creates a limiter allowing max requests per key within
// the given window.
func NewSlidingWindow(max int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records a request for key and reports whether it fits in the window.
// Rejected requests are not recorded, so a throttled client does not extend
// its own penalty.
func (l *SlidingWindow) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	l.sweep(now, cutoff)

	hits := l.hits[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.max {
		l.hits[key] = kept
		// The window frees a slot when the oldest hit ages out.
		return false, kept[0].Sub(cutoff)
	}

	l.hits[key] = append(kept, now)
	return true, 0
}

// sweep drops keys whose hits have all aged out, so the map stays bounded
// by the set of clients seen within one window. Runs at most once per
// window. Callers hold l.mu.
func (l *SlidingWindow) sweep(now, cutoff time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now

	for key, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}

// Reset drops all recorded hits for key.
func (l *SlidingWindow) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, key)
}
