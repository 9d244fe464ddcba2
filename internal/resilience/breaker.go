package resilience

import (
	"sync"
	"time"

	"trade-agent/internal/metrics"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a per-endpoint circuit breaker. Once failures exceed the
// threshold within the rolling window it opens and fails calls without a
// network attempt until the recovery timeout elapses, then admits exactly
// one trial call (half-open) whose outcome decides the next state.
type Breaker struct {
	endpoint string
	settings BreakerSettings

	mu       sync.Mutex
	state    breakerState
	failures []time.Time
	openedAt time.Time
	trialing bool

	now func() time.Time
}

func NewBreaker(endpoint string, settings BreakerSettings) *Breaker {
	return &Breaker{
		endpoint: endpoint,
		settings: settings,
		now:      time.Now,
	}
}

// Allow reports whether a call may proceed. In the open state it returns
// false until the recovery timeout elapses, then admits one trial call.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.settings.Recovery {
			return false
		}
		b.setState(stateHalfOpen)
		b.trialing = true
		return true
	case stateHalfOpen:
		// Only the one trial call may proceed.
		if b.trialing {
			return false
		}
		b.trialing = true
		return true
	}
	return false
}

// Success records a successful call and closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = b.failures[:0]
	b.trialing = false
	b.setState(stateClosed)
}

// Failure records a failed call: a failed trial reopens immediately, and in
// the closed state crossing the threshold within the window opens.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if b.state == stateHalfOpen {
		b.trialing = false
		b.openedAt = now
		b.setState(stateOpen)
		return
	}

	b.failures = append(b.failures, now)
	b.prune(now)

	if len(b.failures) >= b.settings.FailureThreshold {
		b.openedAt = now
		b.setState(stateOpen)
	}
}

func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.settings.Window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

func (b *Breaker) setState(s breakerState) {
	b.state = s
	metrics.BreakerState.WithLabelValues(b.endpoint).Set(float64(s))
}
