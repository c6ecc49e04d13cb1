package migrate

import (
	"context"
	"time"
)

// Store is the durable ledger of applied migrations. Implementations:
// SQLStore persists in the target database itself, FileStore in a local
// JSON file, MemStore in memory for tests.
type Store interface {
	// Initialize prepares the ledger (creates the table or file). Safe to
	// call repeatedly.
	Initialize(ctx context.Context) error

	// AppliedMigrations returns every ledger record, ordered by version.
	AppliedMigrations(ctx context.Context) ([]Record, error)

	// RecordMigration writes a completed forward run.
	RecordMigration(ctx context.Context, m *Migration, took time.Duration) error

	// RecordRollback marks the migration's record rolled back.
	RecordRollback(ctx context.Context, m *Migration, took time.Duration) error

	// UpdateStatus sets the status (and optional error message) of the
	// record for version, creating a stub record when none exists.
	UpdateStatus(ctx context.Context, version string, status Status, errMsg string) error

	// Cleanup drops failed records and running records left behind by a
	// crash, so the affected migrations become pending again.
	Cleanup(ctx context.Context) error
}
