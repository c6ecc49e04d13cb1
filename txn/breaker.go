package txn

import (
	"fmt"
	"sync"
	"time"
)

// Breaker defaults.
const (
	DefaultBreakerThreshold = 5
	DefaultBreakerWindow    = 30 * time.Second
)

// BreakerState describes the circuit breaker's position.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker refuses attempts after a run of consecutive failures until a
// recovery window elapses, then resets the counter and allows a single probe.
// A failed probe reopens immediately; a success closes the breaker.
type Breaker struct {
	threshold int
	window    time.Duration

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
}

// NewBreaker builds a breaker that opens after threshold consecutive failures
// and cools down for window before probing again. Zero or negative arguments
// select the defaults.
func NewBreaker(threshold int, window time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if window <= 0 {
		window = DefaultBreakerWindow
	}
	return &Breaker{threshold: threshold, window: window}
}

// Allow reports whether an attempt may proceed. During the cool-down it
// returns ErrBreakerOpen with the remaining wait.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return nil
	}
	elapsed := time.Since(b.lastFailure)
	if elapsed >= b.window {
		b.state = BreakerHalfOpen
		b.failures = 0
		return nil
	}
	return fmt.Errorf("%w: retry in %s", ErrBreakerOpen, (b.window - elapsed).Round(time.Millisecond))
}

// RecordSuccess closes the breaker and clears the failure run.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}

// RecordFailure extends the failure run, opening the breaker at the threshold
// or on a failed half-open probe.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.state = BreakerOpen
	}
}

// State returns the breaker's current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
