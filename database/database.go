// Package database defines the statement-execution contract shared by the
// transaction engine and the migration runner, together with the structured
// error classification drivers report at that boundary.
//
// Drivers live in the postgres, sqlite, and libsql subpackages. All of them
// return *Error values from statement execution so callers can branch on
// ErrorKind instead of scraping message text.
package database

import (
	"context"
	"errors"
	"strings"
	"time"
)

// IsolationLevel is the standard SQL isolation level carried on a transaction
// and forwarded to backends that support a session-level setting.
type IsolationLevel string

const (
	ReadUncommitted IsolationLevel = "READ UNCOMMITTED"
	ReadCommitted   IsolationLevel = "READ COMMITTED"
	RepeatableRead  IsolationLevel = "REPEATABLE READ"
	Serializable    IsolationLevel = "SERIALIZABLE"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// QueryResult holds the materialized rows of one statement.
type QueryResult struct {
	Columns []string
	Rows    []Row
}

// ExecResult reports the outcome of a statement that returns no rows.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// ExecOptions bounds a single statement execution. A zero Timeout means no
// deadline beyond the caller's context. Retries applies only to failures in
// the recoverable contention class; data errors are never retried here.
type ExecOptions struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// Executor executes one SQL statement at a time against a backing store that
// auto-commits per statement. Implementations must be safe for concurrent use.
type Executor interface {
	// Query executes a statement and materializes every returned row.
	Query(ctx context.Context, query string, args []any, opts ExecOptions) (*QueryResult, error)

	// QueryFirst executes a statement and returns at most one row. The bool
	// reports whether a row was present.
	QueryFirst(ctx context.Context, query string, args []any, opts ExecOptions) (Row, bool, error)

	// Exec executes a statement that returns no rows.
	Exec(ctx context.Context, query string, args []any, opts ExecOptions) (ExecResult, error)

	// Dialect describes the SQL grammar of the backing store.
	Dialect() Dialect

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// Dialect supplies the backend-specific SQL the engine needs to issue itself.
// Savepoint names are validated by the caller before they reach the dialect.
type Dialect interface {
	Name() string
	SavepointSQL(name string) string
	RollbackToSavepointSQL(name string) string
	ReleaseSavepointSQL(name string) string

	// IsolationSQL returns the statement that applies the given isolation
	// level for the session, or false when the backend has no such setting.
	IsolationSQL(level IsolationLevel) (string, bool)

	// Placeholder returns the bind-parameter marker for the i-th
	// (1-based) statement argument.
	Placeholder(i int) string
}

// StandardDialect implements the savepoint grammar shared by every supported
// backend. Drivers embed it and override what differs.
type StandardDialect struct {
	DialectName string
}

func (d StandardDialect) Name() string { return d.DialectName }

func (d StandardDialect) SavepointSQL(name string) string {
	return "SAVEPOINT " + name
}

func (d StandardDialect) RollbackToSavepointSQL(name string) string {
	return "ROLLBACK TO SAVEPOINT " + name
}

func (d StandardDialect) ReleaseSavepointSQL(name string) string {
	return "RELEASE SAVEPOINT " + name
}

func (d StandardDialect) IsolationSQL(IsolationLevel) (string, bool) {
	return "", false
}

func (d StandardDialect) Placeholder(int) string { return "?" }

// ErrorKind classifies a statement failure at the driver boundary.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindDeadlock
	KindLockWait
	KindTimeout
	KindConstraint
	KindReadOnly
	KindSyntax
)

func (k ErrorKind) String() string {
	switch k {
	case KindDeadlock:
		return "deadlock"
	case KindLockWait:
		return "lock_wait"
	case KindTimeout:
		return "timeout"
	case KindConstraint:
		return "constraint_violation"
	case KindReadOnly:
		return "read_only"
	case KindSyntax:
		return "syntax"
	default:
		return "unknown"
	}
}

// Error is the classified failure drivers return from statement execution.
// Code carries the backend's own identifier (SQLSTATE, SQLite result code)
// when one exists.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return e.Kind.String() + " (" + e.Code + "): " + e.Message
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from err, falling back to message
// heuristics for errors that did not originate in a driver.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage maps free-text error messages onto the closest kind. It is
// the fallback for backends that expose no structured codes; drivers with
// real codes never rely on it.
func ClassifyMessage(msg string) ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "deadlock"):
		return KindDeadlock
	case strings.Contains(m, "lock wait"),
		strings.Contains(m, "database is locked"),
		strings.Contains(m, "database table is locked"),
		strings.Contains(m, "could not obtain lock"):
		return KindLockWait
	case strings.Contains(m, "timeout"),
		strings.Contains(m, "timed out"),
		strings.Contains(m, "canceling statement due to"):
		return KindTimeout
	case strings.Contains(m, "constraint"),
		strings.Contains(m, "duplicate key"),
		strings.Contains(m, "unique violation"):
		return KindConstraint
	case strings.Contains(m, "readonly"),
		strings.Contains(m, "read-only"):
		return KindReadOnly
	default:
		return KindUnknown
	}
}

// Classify wraps err as an *Error using context state and message heuristics.
// Drivers call their structured classifier first and fall back to this.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	kind := KindUnknown
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	} else {
		kind = ClassifyMessage(err.Error())
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// Retryable reports whether err belongs to the recoverable contention class
// (deadlock, lock wait, timeout). Everything else, constraint violations in
// particular, must not be retried against an auto-commit store.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindDeadlock, KindLockWait, KindTimeout:
		return true
	}
	return false
}
