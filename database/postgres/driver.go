// Package postgres provides the PostgreSQL statement executor backed by lib/pq.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/stratumdb/stratum/database"
)

// Dialect is the PostgreSQL SQL grammar. Isolation is applied with a
// session-level SET so it survives the per-statement auto-commit.
type Dialect struct {
	database.StandardDialect
}

// NewDialect returns the PostgreSQL dialect.
func NewDialect() Dialect {
	return Dialect{database.StandardDialect{DialectName: "postgres"}}
}

func (Dialect) IsolationSQL(level database.IsolationLevel) (string, bool) {
	if level == "" {
		return "", false
	}
	return "SET SESSION CHARACTERISTICS AS TRANSACTION ISOLATION LEVEL " + string(level), true
}

func (Dialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

// Open connects to a PostgreSQL database by URL or connection string.
func Open(url string) (*database.SQLExecutor, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	return database.NewSQLExecutor(db, NewDialect(), classify), nil
}

// classify maps SQLSTATE codes onto the shared error kinds. See
// https://www.postgresql.org/docs/current/errcodes-appendix.html.
func classify(err error) *database.Error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return database.Classify(err)
	}

	code := string(pqErr.Code)
	kind := database.KindUnknown
	switch {
	case code == "40P01": // deadlock_detected
		kind = database.KindDeadlock
	case code == "40001": // serialization_failure, retryable like a deadlock
		kind = database.KindDeadlock
	case code == "55P03": // lock_not_available
		kind = database.KindLockWait
	case code == "57014": // query_canceled (statement_timeout)
		kind = database.KindTimeout
	case code == "25006": // read_only_sql_transaction
		kind = database.KindReadOnly
	case strings.HasPrefix(code, "23"): // integrity_constraint_violation class
		kind = database.KindConstraint
	case strings.HasPrefix(code, "42"): // syntax_error_or_access_rule_violation class
		kind = database.KindSyntax
	}

	return &database.Error{Kind: kind, Code: code, Message: pqErr.Message, Err: err}
}
