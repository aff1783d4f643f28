package reasoning

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return "Closed"
	}
}

const (
	rollingWindowSize = 20
	failureThreshold  = 5
	baseOpenCooldown  = 30 * time.Second
	maxOpenCooldown   = 300 * time.Second
)

// Breaker is the Closed/Open/Half-Open state machine guarding calls to the
// remote reasoning service. All transitions are serialized behind a single
// mutex. Open-state cooldown doubling is delegated to an exponential backoff
// policy rather than hand-rolled.
type Breaker struct {
	mu sync.Mutex

	state         BreakerState
	window        []bool // true = success, oldest first
	openUntil     time.Time
	probeInFlight bool

	cooldown *backoff.ExponentialBackOff
}

// NewBreaker returns a Breaker starting Closed.
func NewBreaker() *Breaker {
	return &Breaker{state: Closed, cooldown: newCooldownPolicy()}
}

// newCooldownPolicy returns the 30s-base, x2-multiplier, 300s-capped
// cooldown schedule used while the breaker stays Open.
func newCooldownPolicy() *backoff.ExponentialBackOff {
	p := backoff.NewExponentialBackOff()
	p.InitialInterval = baseOpenCooldown
	p.Multiplier = 2
	p.MaxInterval = maxOpenCooldown
	p.MaxElapsedTime = 0 // never give up retrying while Open
	p.RandomizationFactor = 0
	p.Reset()
	return p
}

// Allow reports whether a call may proceed now, transitioning Open -> Half-Open
// once the cooldown has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Now().Before(b.openUntil) {
			return false
		}
		b.state = HalfOpen
		b.probeInFlight = true
		return true
	case HalfOpen:
		// Only the probe that already claimed the slot may proceed; any
		// concurrent caller fails fast until the probe resolves.
		return false
	default:
		return false
	}
}

// RecordSuccess reports a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.state = Closed
		b.window = nil
		b.cooldown.Reset()
		b.probeInFlight = false
	case Closed:
		b.pushLocked(true)
	}
}

// RecordFailure reports a failed call outcome (HTTP 429/5xx, timeout, or
// schema violation).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.openLocked()
		b.probeInFlight = false
	case Closed:
		b.pushLocked(false)
		if b.failuresLocked() >= failureThreshold {
			b.cooldown.Reset()
			b.openLocked()
		}
	}
}

func (b *Breaker) pushLocked(success bool) {
	b.window = append(b.window, success)
	if len(b.window) > rollingWindowSize {
		b.window = b.window[len(b.window)-rollingWindowSize:]
	}
}

func (b *Breaker) failuresLocked() int {
	n := 0
	for _, ok := range b.window {
		if !ok {
			n++
		}
	}
	return n
}

// openLocked transitions to Open, advancing the cooldown policy one step
// (30s, 60s, 120s, ... capped at 300s).
func (b *Breaker) openLocked() {
	b.state = Open
	next := b.cooldown.NextBackOff()
	if next == backoff.Stop {
		next = maxOpenCooldown
	}
	b.openUntil = time.Now().Add(next)
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
