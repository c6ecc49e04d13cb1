package sqlparse

import (
	"fmt"
	"strings"
)

// LockMode represents PostgreSQL table lock modes.
// See: https://www.postgresql.org/docs/current/explicit-locking.html
type LockMode int

const (
	// LockAccessShare is acquired by plain SELECT queries.
	// Conflicts only with ACCESS EXCLUSIVE.
	LockAccessShare LockMode = iota

	// LockRowShare is acquired by SELECT FOR UPDATE/FOR SHARE.
	LockRowShare

	// LockRowExclusive is acquired by INSERT, UPDATE and DELETE.
	LockRowExclusive

	// LockShareUpdateExclusive is acquired by VACUUM and CREATE INDEX
	// CONCURRENTLY. Allows concurrent reads and writes.
	LockShareUpdateExclusive

	// LockShare is acquired by CREATE INDEX (non-concurrent).
	// Blocks writes but allows reads.
	LockShare

	// LockShareRowExclusive is rarely taken by standard DDL.
	LockShareRowExclusive

	// LockExclusive is rarely taken by standard DDL.
	LockExclusive

	// LockAccessExclusive is acquired by most DDL (ALTER TABLE,
	// DROP TABLE, TRUNCATE) and blocks all reads and writes.
	LockAccessExclusive
)

// String returns the human-readable name of the lock mode.
func (l LockMode) String() string {
	switch l {
	case LockAccessShare:
		return "ACCESS SHARE"
	case LockRowShare:
		return "ROW SHARE"
	case LockRowExclusive:
		return "ROW EXCLUSIVE"
	case LockShareUpdateExclusive:
		return "SHARE UPDATE EXCLUSIVE"
	case LockShare:
		return "SHARE"
	case LockShareRowExclusive:
		return "SHARE ROW EXCLUSIVE"
	case LockExclusive:
		return "EXCLUSIVE"
	case LockAccessExclusive:
		return "ACCESS EXCLUSIVE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// BlocksReads reports whether this lock mode blocks SELECT queries.
func (l LockMode) BlocksReads() bool {
	return l == LockAccessExclusive
}

// BlocksWrites reports whether this lock mode blocks INSERT/UPDATE/DELETE.
func (l LockMode) BlocksWrites() bool {
	// SHARE and above block writes
	return l >= LockShare
}

// Impact categorizes how disruptive a lock mode is to live traffic.
type Impact int

const (
	ImpactNone   Impact = iota // normal operations, no blocking
	ImpactLow                  // minimal blocking (CONCURRENTLY operations)
	ImpactMedium               // blocks writes, allows reads
	ImpactHigh                 // blocks everything
)

// String returns the human-readable impact level.
func (i Impact) String() string {
	switch i {
	case ImpactNone:
		return "NONE"
	case ImpactLow:
		return "LOW"
	case ImpactMedium:
		return "MEDIUM"
	case ImpactHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// Level returns the impact categorization for the lock mode.
func (l LockMode) Level() Impact {
	switch l {
	case LockAccessShare, LockRowShare, LockRowExclusive:
		return ImpactNone
	case LockShareUpdateExclusive:
		return ImpactLow
	case LockShare:
		return ImpactMedium
	default:
		return ImpactHigh
	}
}

// LockAdvisory describes the lock a statement acquires and what that
// lock blocks while the statement runs.
type LockAdvisory struct {
	SQL          string
	Line         int
	Mode         LockMode
	BlocksReads  bool
	BlocksWrites bool
	Impact       Impact
	Explanation  string
}

// AnalyzeLocks returns one advisory per executable statement in sql.
func AnalyzeLocks(sql string) []LockAdvisory {
	stmts := Executable(sql)
	advisories := make([]LockAdvisory, 0, len(stmts))
	for _, stmt := range stmts {
		mode := DetectLockMode(stmt.SQL)
		advisories = append(advisories, LockAdvisory{
			SQL:          stmt.SQL,
			Line:         stmt.Line,
			Mode:         mode,
			BlocksReads:  mode.BlocksReads(),
			BlocksWrites: mode.BlocksWrites(),
			Impact:       mode.Level(),
			Explanation:  explainLock(strings.ToUpper(stmt.SQL), mode),
		})
	}
	return advisories
}

// DetectLockMode returns the lock mode a single SQL statement acquires.
func DetectLockMode(sql string) LockMode {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return LockAccessShare
	}
	upper := strings.ToUpper(trimmed)

	if strings.HasPrefix(upper, "CREATE INDEX") || strings.HasPrefix(upper, "CREATE UNIQUE INDEX") {
		if strings.Contains(upper, "CONCURRENTLY") {
			return LockShareUpdateExclusive
		}
		return LockShare
	}

	if strings.HasPrefix(upper, "ALTER TABLE") {
		// VALIDATE CONSTRAINT runs at a lower lock mode than the rest
		// of the ALTER TABLE family.
		if strings.Contains(upper, "VALIDATE CONSTRAINT") {
			return LockShareUpdateExclusive
		}
		return LockAccessExclusive
	}

	if strings.HasPrefix(upper, "DROP TABLE") ||
		strings.HasPrefix(upper, "DROP INDEX") ||
		strings.HasPrefix(upper, "TRUNCATE") {
		return LockAccessExclusive
	}

	// The created table does not exist yet, so nothing is locked.
	if strings.HasPrefix(upper, "CREATE TABLE") {
		return LockAccessShare
	}

	if strings.HasPrefix(upper, "INSERT") ||
		strings.HasPrefix(upper, "UPDATE") ||
		strings.HasPrefix(upper, "DELETE") {
		return LockRowExclusive
	}

	if strings.HasPrefix(upper, "SELECT") {
		return LockAccessShare
	}

	// Unknown statements assume the highest lock.
	return LockAccessExclusive
}

func explainLock(upper string, mode LockMode) string {
	switch mode {
	case LockAccessExclusive:
		switch {
		case strings.Contains(upper, "DROP COLUMN"):
			return "DROP COLUMN changes the table structure under an exclusive lock"
		case strings.Contains(upper, "ADD COLUMN") && strings.Contains(upper, "DEFAULT"):
			return "ADD COLUMN with DEFAULT may rewrite the entire table"
		case strings.Contains(upper, "ADD CONSTRAINT") && !strings.Contains(upper, "NOT VALID"):
			return "ADD CONSTRAINT scans all existing rows while holding the lock"
		case strings.HasPrefix(upper, "ALTER TABLE"):
			return "ALTER TABLE requires exclusive access to change the table structure"
		case strings.HasPrefix(upper, "DROP TABLE"):
			return "DROP TABLE requires exclusive access to remove the table"
		case strings.HasPrefix(upper, "TRUNCATE"):
			return "TRUNCATE requires exclusive access to delete all rows"
		}
		return "This operation requires exclusive table access"

	case LockShare:
		return "Blocks writes while the index builds, reads continue"

	case LockShareUpdateExclusive:
		return "Allows concurrent reads and writes"

	case LockRowExclusive:
		return "Normal DML locking"

	default:
		return "Read-only operation"
	}
}
