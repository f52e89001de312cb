// Package cooldown suppresses repeated attendance writes for an identity
// seen again within a trailing window.
package cooldown

import "time"

// DefaultWindow is used when no window is configured.
const DefaultWindow = 10 * time.Second

// Tracker remembers when each identity last triggered a write. An identity
// with no entry, or whose entry is older than the window, is cold.
//
// A Tracker is owned by one recognition loop and is not safe for concurrent use.
type Tracker struct {
	window time.Duration
	last   map[string]time.Time
}

// New returns a Tracker with the given window. A negative window is treated as zero.
func New(window time.Duration) *Tracker {
	if window < 0 {
		window = 0
	}
	return &Tracker{window: window, last: make(map[string]time.Time)}
}

// Window returns the configured window.
func (t *Tracker) Window() time.Duration { return t.window }

// Ready reports whether identity is cold at now, without changing state.
// It is true on first sighting and when now-last > window.
func (t *Tracker) Ready(identity string, now time.Time) bool {
	last, ok := t.last[identity]
	if !ok {
		return true
	}
	return now.Sub(last) > t.window
}

// Commit warms identity at now. Callers commit only once the write it
// guarded has succeeded.
func (t *Tracker) Commit(identity string, now time.Time) {
	t.last[identity] = now
}

// ShouldRecord is Ready followed by Commit when ready.
func (t *Tracker) ShouldRecord(identity string, now time.Time) bool {
	if !t.Ready(identity, now) {
		return false
	}
	t.Commit(identity, now)
	return true
}

// Len is the number of identities seen during this run.
func (t *Tracker) Len() int { return len(t.last) }
