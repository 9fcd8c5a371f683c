// Package presence derives agent liveliness states and records the shared
// activity feed.
package presence

import (
	"sync"
	"time"
)

// Status is the derived liveliness of an agent.
type Status string

const (
	StatusActive Status = "active"
	StatusIdle   Status = "idle"
	StatusAway   Status = "away"
	StatusStuck  Status = "stuck"
)

const (
	activeWindow = 30 * time.Second
	idleWindow   = 5 * time.Minute

	// DefaultStuckThreshold is used when the config leaves stuckThreshold
	// unset.
	DefaultStuckThreshold = 900 * time.Second
)

// Derive computes the status from elapsed inactivity and whether the agent
// holds a claim or reservation. An agent with work in hand never goes "away";
// past the stuck threshold it is "stuck" instead.
func Derive(lastActivity time.Time, hasWork bool, stuckThreshold time.Duration, now time.Time) Status {
	if stuckThreshold <= 0 {
		stuckThreshold = DefaultStuckThreshold
	}
	elapsed := now.Sub(lastActivity)

	switch {
	case elapsed < activeWindow:
		return StatusActive
	case elapsed < idleWindow:
		return StatusIdle
	case elapsed < stuckThreshold:
		if hasWork {
			return StatusIdle
		}
		return StatusAway
	default:
		if hasWork {
			return StatusStuck
		}
		return StatusAway
	}
}

// StuckTracker debounces stuck notifications: one per (name, stuck-episode).
// Leaving the stuck state arms the next episode.
type StuckTracker struct {
	mu    sync.Mutex
	stuck map[string]bool
}

// NewStuckTracker creates an empty tracker.
func NewStuckTracker() *StuckTracker {
	return &StuckTracker{stuck: make(map[string]bool)}
}

// Observe records the latest status for name and reports whether a stuck
// notification should fire now.
func (t *StuckTracker) Observe(name string, status Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if status != StatusStuck {
		delete(t.stuck, name)
		return false
	}
	if t.stuck[name] {
		return false
	}
	t.stuck[name] = true
	return true
}
