// Package txn implements logical transactions over stores that auto-commit
// every statement. A Transaction tracks lifecycle status, savepoints, and a
// bounded statement history; the Registry bounds how many may run at once;
// the Coordinator adds commit/rollback framing and retry with backoff for
// transient contention.
//
// Commit and Rollback are bookkeeping against such stores: they mark the
// outcome but cannot undo statements that already executed. Callers needing
// multi-statement atomicity must use savepoints explicitly.
package txn

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratumdb/stratum/database"
)

// Status is a transaction lifecycle state. Active is the only non-terminal
// state; transitions never leave a terminal state.
type Status string

const (
	StatusActive     Status = "active"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
	StatusFailed     Status = "failed"
	StatusDeadlocked Status = "deadlocked"
	StatusTimeout    Status = "timeout"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool { return s != StatusActive }

// Metrics is a point-in-time snapshot of a transaction's bookkeeping.
type Metrics struct {
	ID             string
	Status         Status
	Isolation      database.IsolationLevel
	StartedAt      time.Time
	EndedAt        time.Time
	Duration       time.Duration
	QueryCount     int
	RollbackReason string
	FailureReason  FailureReason
	RetryAttempts  int
}

type savepoint struct {
	queryCount int
	seq        int
}

// Transaction wraps an executor handle for the lifetime of one logical unit
// of work. Statements execute strictly in call order with no buffering; the
// timeout is enforced lazily, on the next call after it elapses.
type Transaction struct {
	id   string
	exec database.Executor
	opts Options
	log  *slog.Logger

	mu             sync.Mutex
	status         Status
	queryCount     int
	startedAt      time.Time
	endedAt        time.Time
	savepoints     map[string]savepoint
	savepointSeq   int
	history        *queryRing
	failure        FailureReason
	rollbackReason string
}

func newTransaction(exec database.Executor, opts Options, log *slog.Logger) *Transaction {
	return &Transaction{
		id:         "tx_" + uuid.NewString(),
		exec:       exec,
		opts:       opts,
		log:        log,
		status:     StatusActive,
		startedAt:  time.Now(),
		savepoints: make(map[string]savepoint),
		history:    newQueryRing(opts.HistorySize),
	}
}

// ID returns the transaction's opaque identifier.
func (t *Transaction) ID() string { return t.id }

// Query executes a statement and returns its rows.
func (t *Transaction) Query(ctx context.Context, query string, args ...any) (*database.QueryResult, error) {
	execOpts, err := t.beforeStatement()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := t.exec.Query(ctx, query, args, execOpts)
	t.afterStatement(query, start, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// QueryFirst executes a statement and returns at most one row, with a flag
// reporting whether a row was present.
func (t *Transaction) QueryFirst(ctx context.Context, query string, args ...any) (database.Row, bool, error) {
	execOpts, err := t.beforeStatement()
	if err != nil {
		return nil, false, err
	}
	start := time.Now()
	row, found, err := t.exec.QueryFirst(ctx, query, args, execOpts)
	t.afterStatement(query, start, err)
	if err != nil {
		return nil, false, err
	}
	return row, found, nil
}

// Exec executes a statement that returns no rows.
func (t *Transaction) Exec(ctx context.Context, query string, args ...any) (database.ExecResult, error) {
	execOpts, err := t.beforeStatement()
	if err != nil {
		return database.ExecResult{}, err
	}
	start := time.Now()
	result, err := t.exec.Exec(ctx, query, args, execOpts)
	t.afterStatement(query, start, err)
	if err != nil {
		return database.ExecResult{}, err
	}
	return result, nil
}

// beforeStatement validates that the transaction can accept work and returns
// the per-statement execution budget. Retries are always zero here: retrying
// inside an active transaction would silently duplicate side effects.
func (t *Transaction) beforeStatement() (database.ExecOptions, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusActive {
		return database.ExecOptions{}, fmt.Errorf("%w (status %s)", ErrNotActive, t.status)
	}

	remaining := t.opts.Timeout - time.Since(t.startedAt)
	if remaining <= 0 {
		t.transitionLocked(StatusTimeout, ReasonTimeout)
		return database.ExecOptions{}, fmt.Errorf("%w: %s ran past its %s limit", ErrTimeout, t.id, t.opts.Timeout)
	}

	return database.ExecOptions{Timeout: remaining}, nil
}

// afterStatement records the statement in the history and classifies any
// failure. Deadlock and timeout kinds are terminal; constraint violations are
// recorded without ending the transaction so the caller can recover through a
// savepoint; everything else fails the transaction.
func (t *Transaction) afterStatement(query string, start time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := QueryRecord{SQL: query, At: start, Duration: time.Since(start)}
	if err != nil {
		rec.Err = err.Error()
	}
	t.history.push(rec)

	if err == nil {
		t.queryCount++
		return
	}

	switch database.KindOf(err) {
	case database.KindDeadlock, database.KindLockWait:
		t.transitionLocked(StatusDeadlocked, ReasonDeadlock)
	case database.KindTimeout:
		t.transitionLocked(StatusTimeout, ReasonTimeout)
	case database.KindConstraint:
		t.failure = ReasonConstraint
	default:
		t.transitionLocked(StatusFailed, ReasonUnknown)
	}
}

func (t *Transaction) transitionLocked(status Status, reason FailureReason) {
	if t.status != StatusActive {
		return
	}
	t.status = status
	t.failure = reason
	t.endedAt = time.Now()
	t.log.Debug("transaction ended",
		"id", t.id, "status", status, "reason", reason, "queries", t.queryCount)
}

var savepointNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CreateSavepoint issues a savepoint and records it under name. An empty name
// gets a generated sequential one, which is returned. A failure here is
// reported but does not end the transaction.
func (t *Transaction) CreateSavepoint(ctx context.Context, name string) (string, error) {
	t.mu.Lock()
	if t.status != StatusActive {
		t.mu.Unlock()
		return "", fmt.Errorf("%w (status %s)", ErrNotActive, t.status)
	}
	if name == "" {
		for i := t.savepointSeq + 1; ; i++ {
			candidate := fmt.Sprintf("sp_%d", i)
			if _, taken := t.savepoints[candidate]; !taken {
				name = candidate
				break
			}
		}
	}
	if !savepointNameRe.MatchString(name) {
		t.mu.Unlock()
		return "", fmt.Errorf("invalid savepoint name %q", name)
	}
	if _, ok := t.savepoints[name]; ok {
		t.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrSavepointExists, name)
	}
	stmt := t.exec.Dialect().SavepointSQL(name)
	t.mu.Unlock()

	if _, err := t.exec.Exec(ctx, stmt, nil, database.ExecOptions{}); err != nil {
		t.log.Warn("savepoint creation failed", "id", t.id, "savepoint", name, "error", err)
		return "", err
	}

	t.mu.Lock()
	t.savepointSeq++
	t.savepoints[name] = savepoint{queryCount: t.queryCount, seq: t.savepointSeq}
	t.mu.Unlock()
	return name, nil
}

// RollbackToSavepoint returns the store to the named savepoint and discards
// every savepoint created after it.
func (t *Transaction) RollbackToSavepoint(ctx context.Context, name string) error {
	t.mu.Lock()
	if t.status != StatusActive {
		t.mu.Unlock()
		return fmt.Errorf("%w (status %s)", ErrNotActive, t.status)
	}
	target, ok := t.savepoints[name]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSavepointNotFound, name)
	}
	stmt := t.exec.Dialect().RollbackToSavepointSQL(name)
	t.mu.Unlock()

	if _, err := t.exec.Exec(ctx, stmt, nil, database.ExecOptions{}); err != nil {
		return err
	}

	t.mu.Lock()
	for other, sp := range t.savepoints {
		if sp.seq > target.seq {
			delete(t.savepoints, other)
		}
	}
	t.mu.Unlock()
	return nil
}

// ReleaseSavepoint releases the named savepoint and forgets it.
func (t *Transaction) ReleaseSavepoint(ctx context.Context, name string) error {
	t.mu.Lock()
	if t.status != StatusActive {
		t.mu.Unlock()
		return fmt.Errorf("%w (status %s)", ErrNotActive, t.status)
	}
	if _, ok := t.savepoints[name]; !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSavepointNotFound, name)
	}
	stmt := t.exec.Dialect().ReleaseSavepointSQL(name)
	t.mu.Unlock()

	if _, err := t.exec.Exec(ctx, stmt, nil, database.ExecOptions{}); err != nil {
		return err
	}

	t.mu.Lock()
	delete(t.savepoints, name)
	t.mu.Unlock()
	return nil
}

// Commit marks the transaction successful. The store already committed each
// statement; this is the only sanctioned way to record success.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusActive {
		return fmt.Errorf("%w (status %s)", ErrNotActive, t.status)
	}
	t.status = StatusCommitted
	t.endedAt = time.Now()
	t.log.Debug("transaction committed", "id", t.id, "queries", t.queryCount)
	return nil
}

// Rollback marks the transaction abandoned with an optional reason. It does
// not undo executed statements; see the package comment.
func (t *Transaction) Rollback(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusActive {
		return fmt.Errorf("%w (status %s)", ErrNotActive, t.status)
	}
	t.status = StatusRolledBack
	t.rollbackReason = reason
	t.endedAt = time.Now()
	t.log.Debug("transaction rolled back", "id", t.id, "reason", reason)
	return nil
}

// Status returns the current lifecycle state.
func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Duration is the wall time from start to end, or to now while active.
func (t *Transaction) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.durationLocked()
}

func (t *Transaction) durationLocked() time.Duration {
	if !t.endedAt.IsZero() {
		return t.endedAt.Sub(t.startedAt)
	}
	return time.Since(t.startedAt)
}

// Remaining is the time left before the timeout, zero once elapsed or ended.
func (t *Transaction) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusActive {
		return 0
	}
	remaining := t.opts.Timeout - time.Since(t.startedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Savepoints returns the active savepoint names in creation order.
func (t *Transaction) Savepoints() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.savepoints))
	for name := range t.savepoints {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return t.savepoints[names[i]].seq < t.savepoints[names[j]].seq
	})
	return names
}

// Options returns the configuration the transaction was created with.
func (t *Transaction) Options() Options { return t.opts }

// History returns a snapshot of the bounded statement history, oldest first.
func (t *Transaction) History() []QueryRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.snapshot()
}

// Metrics returns a snapshot of the transaction's bookkeeping.
func (t *Transaction) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Metrics{
		ID:             t.id,
		Status:         t.status,
		Isolation:      t.opts.Isolation,
		StartedAt:      t.startedAt,
		EndedAt:        t.endedAt,
		Duration:       t.durationLocked(),
		QueryCount:     t.queryCount,
		RollbackReason: t.rollbackReason,
		FailureReason:  t.failure,
		RetryAttempts:  t.opts.RetryAttempts,
	}
}

// expired reports whether an active transaction has outlived its timeout.
func (t *Transaction) expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status == StatusActive && time.Since(t.startedAt) > t.opts.Timeout
}
