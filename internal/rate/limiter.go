// Package rate enforces the fixed-window challenge-issuance budget per
// identifier (phone number, user id) in process memory.
package rate

import (
	"sync"
	"time"
)

type entry struct {
	count         int
	windowResetAt time.Time
}

// Limiter is a fixed-window counter keyed by identifier. Entries are created
// lazily on the first attempt in a window and cleared either lazily when a
// check observes an elapsed window or by Sweep.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	max     int
	window  time.Duration
}

// New creates a limiter allowing max attempts per window.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		entries: make(map[string]*entry),
		max:     max,
		window:  window,
	}
}

// IsLimited reports whether the key has exhausted its window budget at now.
// An elapsed window clears the entry as a side effect.
func (l *Limiter) IsLimited(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return false
	}
	if !now.Before(e.windowResetAt) {
		delete(l.entries, key)
		return false
	}
	return e.count >= l.max
}

// RecordAttempt charges one issuance attempt to the key, opening a fresh
// window if none is live. Called once per challenge-issuance attempt,
// independent of verification outcome.
func (l *Limiter) RecordAttempt(key string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.windowResetAt) {
		l.entries[key] = &entry{count: 1, windowResetAt: now.Add(l.window)}
		return
	}
	e.count++
}

// Sweep drops every entry whose window elapsed before now and returns the
// number dropped. Called by the background eviction task; purely an
// allocation bound, since elapsed entries are also cleared lazily.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for key, e := range l.entries {
		if !now.Before(e.windowResetAt) {
			delete(l.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of live entries.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
