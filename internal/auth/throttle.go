package auth

import (
	"sync"
	"time"
)

// ThrottleGuard tracks repeated failed login attempts per identity and
// enforces a cooldown. Implementations must be safe for concurrent use.
type ThrottleGuard interface {
	// RecordFailure notes a failed password check for the identity.
	RecordFailure(identity string)
	// Allow reports whether a login attempt may proceed. When blocked, the
	// returned duration is how long the caller must wait.
	Allow(identity string) (bool, time.Duration)
	// Reset clears the identity's failure history after a successful login.
	Reset(identity string)
}

// ThrottleConfig holds the sliding-window parameters.
type ThrottleConfig struct {
	MaxAttempts int
	Window      time.Duration
	Cooldown    time.Duration
}

// MemoryThrottleGuard is a mutex-protected in-memory ThrottleGuard.
//
// State is process-local: in a multi-instance deployment each instance keeps
// its own counters, which multiplies the effective attempt budget by the
// instance count. Such deployments must back this interface with a shared
// TTL-capable store instead.
type MemoryThrottleGuard struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	config   ThrottleConfig
	now      func() time.Time
}

// NewMemoryThrottleGuard creates a new in-memory throttle guard.
func NewMemoryThrottleGuard(config ThrottleConfig) *MemoryThrottleGuard {
	return &MemoryThrottleGuard{
		failures: make(map[string][]time.Time),
		config:   config,
		now:      time.Now,
	}
}

// SetClock overrides the guard's time source. Test use only.
func (g *MemoryThrottleGuard) SetClock(now func() time.Time) {
	g.now = now
}

func (g *MemoryThrottleGuard) RecordFailure(identity string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failures[identity] = append(g.prune(identity), g.now())
}

func (g *MemoryThrottleGuard) Allow(identity string) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	recent := g.prune(identity)

	// Once the cooldown measured from the oldest retained failure has
	// elapsed, that failure is evicted and the identity re-evaluated rather
	// than unconditionally reset.
	for len(recent) >= g.config.MaxAttempts {
		unblockAt := recent[0].Add(g.config.Cooldown)
		if now.Before(unblockAt) {
			g.failures[identity] = recent
			return false, unblockAt.Sub(now)
		}
		recent = recent[1:]
	}

	if len(recent) == 0 {
		delete(g.failures, identity)
	} else {
		g.failures[identity] = recent
	}
	return true, 0
}

func (g *MemoryThrottleGuard) Reset(identity string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.failures, identity)
}

// prune drops failures older than the sliding window. Caller holds the lock.
func (g *MemoryThrottleGuard) prune(identity string) []time.Time {
	cutoff := g.now().Add(-g.config.Window)
	kept := g.failures[identity][:0:0]
	for _, ts := range g.failures[identity] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
