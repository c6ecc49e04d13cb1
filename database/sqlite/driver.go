// Package sqlite provides the SQLite statement executor backed by
// modernc.org/sqlite (CGo-free).
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"modernc.org/sqlite"

	"github.com/stratumdb/stratum/database"
)

// NewDialect returns the SQLite dialect. SQLite has no session isolation
// statement, so the level stays advisory.
func NewDialect() database.StandardDialect {
	return database.StandardDialect{DialectName: "sqlite"}
}

// Open opens a SQLite database from a file path, a sqlite:// URL, or
// ":memory:". WAL, foreign keys, and a busy timeout are enabled through DSN
// pragmas.
func Open(path string) (*database.SQLExecutor, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Serialize access through one connection; concurrent writers otherwise
	// trip SQLITE_BUSY far more often than the busy timeout can absorb.
	db.SetMaxOpenConns(1)
	return database.NewSQLExecutor(db, NewDialect(), classify), nil
}

// DSN normalizes a path or URL into a modernc DSN carrying the pragmas the
// engine depends on. A caller-supplied file: DSN with parameters is passed
// through untouched.
func DSN(path string) string {
	path = strings.TrimPrefix(path, "sqlite://")

	if path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"
	}
	if strings.HasPrefix(path, "file:") {
		if strings.Contains(path, "?") {
			return path
		}
		path = strings.TrimPrefix(path, "file:")
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)
}

// Primary result codes, https://sqlite.org/rescode.html.
const (
	codeError      = 1
	codeBusy       = 5
	codeLocked     = 6
	codeReadonly   = 8
	codeInterrupt  = 9
	codeConstraint = 19
)

func classify(err error) *database.Error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return database.Classify(err)
	}

	code := se.Code()
	kind := database.KindUnknown
	switch code & 0xff {
	case codeBusy, codeLocked:
		kind = database.KindLockWait
	case codeReadonly:
		kind = database.KindReadOnly
	case codeInterrupt:
		kind = database.KindTimeout
	case codeConstraint:
		kind = database.KindConstraint
	case codeError:
		if strings.Contains(se.Error(), "syntax error") {
			kind = database.KindSyntax
		}
	}
	if kind == database.KindUnknown {
		kind = database.ClassifyMessage(se.Error())
	}

	return &database.Error{Kind: kind, Code: strconv.Itoa(code), Message: se.Error(), Err: err}
}
