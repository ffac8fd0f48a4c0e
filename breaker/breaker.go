// Package breaker implements a three-state circuit breaker (CLOSED, OPEN,
// HALF_OPEN) guarding the outbox publisher's broker sends.
package breaker

import (
	"sync"
	"time"
)

// State is one of the breaker's three states.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

const failureThreshold = 5

// Clock abstracts time.Now so tests can control the OPEN→HALF_OPEN probe
// window deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Breaker tracks consecutive publish failures and gates whether a new
// attempt should be allowed through. Every state transition happens under
// a single mutex, so a caller never observes a torn read of
// (state, failures, openedAt).
type Breaker struct {
	openDuration time.Duration
	clock        Clock

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	halfOpenHit bool // a probe is already in flight in HALF_OPEN
}

// Option configures a Breaker at construction.
type Option func(*Breaker)

// WithClock overrides the default wall clock (for tests).
func WithClock(c Clock) Option {
	return func(b *Breaker) { b.clock = c }
}

// New constructs a Breaker that opens after 5 consecutive failures and
// probes again after openDuration.
func New(openDuration time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		openDuration: openDuration,
		clock:        systemClock{},
		state:        Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether the caller may attempt a publish right now. In
// OPEN state it transitions to HALF_OPEN once openDuration has elapsed,
// admitting exactly one probing caller until that probe resolves.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.halfOpenHit {
			return false
		}
		b.halfOpenHit = true
		return true
	case Open:
		if b.clock.Now().Sub(b.openedAt) >= b.openDuration {
			b.state = HalfOpen
			b.halfOpenHit = true
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess closes the breaker. A single success in HALF_OPEN is
// enough to fully recover.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.halfOpenHit = false
}

// RecordFailure increments the consecutive-failure count and opens the
// breaker once the threshold is reached, or immediately re-opens it if the
// HALF_OPEN probe itself failed.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.open()
		return
	}

	b.failures++
	if b.failures >= failureThreshold {
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = Open
	b.openedAt = b.clock.Now()
	b.failures = 0
	b.halfOpenHit = false
}

// CurrentState returns the breaker's state, for metrics export.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
