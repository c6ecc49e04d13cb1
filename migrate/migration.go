// Package migrate plans and runs schema migrations. A planner orders the
// pending set by dependencies and surfaces advisory warnings; a runner
// executes or rolls back migrations, individually or as one transactional
// batch, recording outcomes in a Store.
package migrate

import (
	"strings"
	"time"
)

// Migration is one versioned schema change, loaded once per run and
// immutable from then on.
type Migration struct {
	// ID combines version and name, e.g. "0002_add_users_index".
	ID string `json:"id"`

	// Version orders and uniquely identifies the migration. Dependencies
	// refer to versions.
	Version string `json:"version"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// SQL is the forward body. RollbackSQL is the reverse body and may be
	// empty, in which case the migration cannot be rolled back.
	SQL         string `json:"-"`
	RollbackSQL string `json:"-"`

	// DependsOn lists versions that must be applied before this one.
	DependsOn []string `json:"depends_on,omitempty"`

	// Checksum is "sha256:" plus the hex digest of the forward body.
	Checksum string `json:"checksum,omitempty"`

	// Source is the file the migration was loaded from, when any.
	Source string `json:"source,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// CanRollback reports whether a reverse body exists.
func (m *Migration) CanRollback() bool {
	return strings.TrimSpace(m.RollbackSQL) != ""
}

// Status is the ledger state of one migration.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// Record is one row of the migration ledger.
type Record struct {
	Version    string    `json:"version"`
	Name       string    `json:"name"`
	Checksum   string    `json:"checksum"`
	Status     Status    `json:"status"`
	AppliedAt  time.Time `json:"applied_at"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}
