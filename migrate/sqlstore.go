package migrate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stratumdb/stratum/database"
)

// DefaultTable is the ledger table SQLStore creates in the target database.
const DefaultTable = "stratum_migrations"

// SQLStore keeps the migration ledger in the target database itself, so
// schema and ledger travel together. The table name must be a plain SQL
// identifier; it is interpolated, not bound.
type SQLStore struct {
	exec  database.Executor
	table string
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore returns a ledger stored in table on exec. An empty table
// name selects DefaultTable.
func NewSQLStore(exec database.Executor, table string) *SQLStore {
	if table == "" {
		table = DefaultTable
	}
	return &SQLStore{exec: exec, table: table}
}

func (s *SQLStore) Initialize(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	version TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	applied_at TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT ''
)`, s.table)
	if _, err := s.exec.Exec(ctx, stmt, nil, database.ExecOptions{}); err != nil {
		return fmt.Errorf("failed to initialize migration ledger: %w", err)
	}
	return nil
}

func (s *SQLStore) AppliedMigrations(ctx context.Context) ([]Record, error) {
	stmt := fmt.Sprintf(
		"SELECT version, name, checksum, status, applied_at, duration_ms, error FROM %s ORDER BY version",
		s.table)
	result, err := s.exec.Query(ctx, stmt, nil, database.ExecOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read migration ledger: %w", err)
	}

	records := make([]Record, 0, len(result.Rows))
	for _, row := range result.Rows {
		rec := Record{
			Version:    asString(row["version"]),
			Name:       asString(row["name"]),
			Checksum:   asString(row["checksum"]),
			Status:     Status(asString(row["status"])),
			DurationMS: asInt64(row["duration_ms"]),
			Error:      asString(row["error"]),
		}
		if raw := asString(row["applied_at"]); raw != "" {
			if at, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
				rec.AppliedAt = at
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *SQLStore) RecordMigration(ctx context.Context, m *Migration, took time.Duration) error {
	err := s.upsert(ctx, Record{
		Version:    m.Version,
		Name:       m.Name,
		Checksum:   m.Checksum,
		Status:     StatusCompleted,
		AppliedAt:  time.Now(),
		DurationMS: took.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
	}
	return nil
}

func (s *SQLStore) RecordRollback(ctx context.Context, m *Migration, took time.Duration) error {
	d := s.exec.Dialect()
	stmt := fmt.Sprintf("UPDATE %s SET status = %s, duration_ms = %s, error = '' WHERE version = %s",
		s.table, d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))
	args := []any{string(StatusRolledBack), took.Milliseconds(), m.Version}

	result, err := s.exec.Exec(ctx, stmt, args, database.ExecOptions{})
	if err != nil {
		return fmt.Errorf("failed to record rollback of %s: %w", m.Version, err)
	}
	if result.RowsAffected == 0 {
		// No ledger row for this version; write one so the rollback is
		// still visible.
		return s.upsert(ctx, Record{
			Version:    m.Version,
			Name:       m.Name,
			Checksum:   m.Checksum,
			Status:     StatusRolledBack,
			DurationMS: took.Milliseconds(),
		})
	}
	return nil
}

func (s *SQLStore) UpdateStatus(ctx context.Context, version string, status Status, errMsg string) error {
	d := s.exec.Dialect()
	stmt := fmt.Sprintf("UPDATE %s SET status = %s, error = %s WHERE version = %s",
		s.table, d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))
	args := []any{string(status), errMsg, version}

	result, err := s.exec.Exec(ctx, stmt, args, database.ExecOptions{})
	if err != nil {
		return fmt.Errorf("failed to update status of %s: %w", version, err)
	}
	if result.RowsAffected == 0 {
		return s.upsert(ctx, Record{Version: version, Status: status, Error: errMsg})
	}
	return nil
}

func (s *SQLStore) Cleanup(ctx context.Context) error {
	d := s.exec.Dialect()
	stmt := fmt.Sprintf("DELETE FROM %s WHERE status = %s OR status = %s",
		s.table, d.Placeholder(1), d.Placeholder(2))
	args := []any{string(StatusFailed), string(StatusRunning)}

	if _, err := s.exec.Exec(ctx, stmt, args, database.ExecOptions{}); err != nil {
		return fmt.Errorf("failed to clean migration ledger: %w", err)
	}
	return nil
}

func (s *SQLStore) upsert(ctx context.Context, rec Record) error {
	d := s.exec.Dialect()
	stmt := fmt.Sprintf(`INSERT INTO %s (version, name, checksum, status, applied_at, duration_ms, error)
VALUES (%s, %s, %s, %s, %s, %s, %s)
ON CONFLICT (version) DO UPDATE SET
	name = excluded.name,
	checksum = excluded.checksum,
	status = excluded.status,
	applied_at = excluded.applied_at,
	duration_ms = excluded.duration_ms,
	error = excluded.error`,
		s.table,
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4),
		d.Placeholder(5), d.Placeholder(6), d.Placeholder(7))

	appliedAt := ""
	if !rec.AppliedAt.IsZero() {
		appliedAt = rec.AppliedAt.Format(time.RFC3339Nano)
	}
	args := []any{rec.Version, rec.Name, rec.Checksum, string(rec.Status), appliedAt, rec.DurationMS, rec.Error}

	_, err := s.exec.Exec(ctx, stmt, args, database.ExecOptions{})
	return err
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	}
	return 0
}
