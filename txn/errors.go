package txn

import "errors"

// ErrNotActive is returned when an operation is attempted on a transaction
// that has already reached a terminal status.
var ErrNotActive = errors.New("transaction is not active")

// ErrCapacityExceeded is returned by Registry.Begin when the configured
// maximum number of concurrent transactions has been reached.
var ErrCapacityExceeded = errors.New("transaction registry at capacity")

// ErrTimeout is returned when a transaction's elapsed time exceeds its
// configured timeout. The check is lazy: it happens on the next call, never
// preemptively.
var ErrTimeout = errors.New("transaction timeout exceeded")

// ErrBreakerOpen is returned while the circuit breaker is cooling down.
var ErrBreakerOpen = errors.New("circuit breaker open")

// ErrSavepointNotFound is returned for operations naming an unknown savepoint.
var ErrSavepointNotFound = errors.New("savepoint not found")

// ErrSavepointExists is returned when a savepoint name is already in use
// within the same transaction.
var ErrSavepointExists = errors.New("savepoint already exists")

// FailureReason is the recorded classification of the last statement failure
// observed by a transaction.
type FailureReason string

const (
	ReasonNone       FailureReason = ""
	ReasonDeadlock   FailureReason = "deadlock"
	ReasonTimeout    FailureReason = "timeout"
	ReasonConstraint FailureReason = "constraint_violation"
	ReasonUnknown    FailureReason = "unknown"
)
