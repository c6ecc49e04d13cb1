package txn

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(2, time.Hour)

	if err := b.Allow(); err != nil {
		t.Fatalf("Allow on a fresh breaker: %v", err)
	}
	b.RecordFailure()
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow below threshold: %v", err)
	}
	b.RecordFailure()

	if b.State() != BreakerOpen {
		t.Fatalf("state = %s after %d failures, want open", b.State(), 2)
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Allow while open = %v, want ErrBreakerOpen", err)
	}
}

func TestBreakerRecoveryWindow(t *testing.T) {
	b := NewBreaker(1, 20*time.Millisecond)

	b.RecordFailure()
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Allow inside window = %v, want ErrBreakerOpen", err)
	}

	time.Sleep(30 * time.Millisecond)

	// Window elapsed: one probe is allowed.
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow after window: %v", err)
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %s, want half_open", b.State())
	}

	// A failed probe reopens immediately.
	b.RecordFailure()
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Allow after failed probe = %v, want ErrBreakerOpen", err)
	}

	time.Sleep(30 * time.Millisecond)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow after second window: %v", err)
	}
	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatalf("state = %s after success, want closed", b.State())
	}
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b := NewBreaker(3, time.Hour)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != BreakerClosed {
		t.Fatalf("state = %s, want closed; the run was interrupted by a success", b.State())
	}
}
