package migrate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stratumdb/stratum/database"
	"github.com/stratumdb/stratum/txn"
)

// fakeExecutor records every statement and lets tests script failures.
type fakeExecutor struct {
	dialect database.Dialect

	mu     sync.Mutex
	stmts  []string
	errFor func(query string) error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{dialect: database.StandardDialect{DialectName: "fake"}}
}

func (f *fakeExecutor) record(query string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stmts = append(f.stmts, query)
	if f.errFor != nil {
		return f.errFor(query)
	}
	return nil
}

func (f *fakeExecutor) Query(ctx context.Context, query string, args []any, opts database.ExecOptions) (*database.QueryResult, error) {
	if err := f.record(query); err != nil {
		return nil, err
	}
	return &database.QueryResult{}, nil
}

func (f *fakeExecutor) QueryFirst(ctx context.Context, query string, args []any, opts database.ExecOptions) (database.Row, bool, error) {
	if err := f.record(query); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

func (f *fakeExecutor) Exec(ctx context.Context, query string, args []any, opts database.ExecOptions) (database.ExecResult, error) {
	if err := f.record(query); err != nil {
		return database.ExecResult{}, err
	}
	return database.ExecResult{RowsAffected: 1}, nil
}

func (f *fakeExecutor) Dialect() database.Dialect { return f.dialect }

func (f *fakeExecutor) Ping(ctx context.Context) error { return nil }

func (f *fakeExecutor) Close() error { return nil }

func (f *fakeExecutor) statements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.stmts))
	copy(out, f.stmts)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(t *testing.T, hooks *Hooks) (*Runner, *fakeExecutor, *MemStore) {
	t.Helper()
	exec := newFakeExecutor()
	store := NewMemStore()
	return NewRunner(exec, store, nil, hooks, testLogger()), exec, store
}

func newBatchRunner(t *testing.T, hooks *Hooks) (*Runner, *fakeExecutor, *MemStore) {
	t.Helper()
	exec := newFakeExecutor()
	store := NewMemStore()
	coord := txn.NewCoordinator(txn.NewRegistry(0, testLogger()), nil, testLogger())
	return NewRunner(exec, store, coord, hooks, testLogger()), exec, store
}

func mustRecords(t *testing.T, store Store) []Record {
	t.Helper()
	records, err := store.AppliedMigrations(context.Background())
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	return records
}

func TestRunMigrationAppliesStatements(t *testing.T) {
	runner, exec, store := newTestRunner(t, nil)
	m := &Migration{
		ID: "0.1.0_users", Version: "0.1.0", Name: "users",
		SQL: "CREATE TABLE users (id TEXT);\nCREATE TABLE sessions (id TEXT);",
	}

	res := runner.RunMigration(context.Background(), m, Options{})
	if res.Err != nil {
		t.Fatalf("RunMigration failed: %v", res.Err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, res.Status)
	}
	if res.Statements != 2 {
		t.Errorf("expected 2 statements, got %d", res.Statements)
	}
	if stmts := exec.statements(); len(stmts) != 2 {
		t.Errorf("expected 2 executed statements, got %v", stmts)
	}

	records := mustRecords(t, store)
	if len(records) != 1 || records[0].Status != StatusCompleted {
		t.Fatalf("expected one completed record, got %+v", records)
	}
	if records[0].Version != "0.1.0" {
		t.Errorf("expected record for 0.1.0, got %s", records[0].Version)
	}
}

func TestRunMigrationRecordsFailure(t *testing.T) {
	runner, exec, store := newTestRunner(t, nil)
	exec.errFor = func(query string) error {
		if strings.Contains(query, "sessions") {
			return errors.New("relation already exists")
		}
		return nil
	}
	m := &Migration{
		ID: "0.1.0_users", Version: "0.1.0", Name: "users",
		SQL: "CREATE TABLE users (id TEXT);\nCREATE TABLE sessions (id TEXT);",
	}

	res := runner.RunMigration(context.Background(), m, Options{})
	if res.Err == nil {
		t.Fatal("expected failure, got nil error")
	}
	if !strings.Contains(res.Err.Error(), "statement at line 2") {
		t.Errorf("expected line 2 in error, got %q", res.Err.Error())
	}
	if res.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, res.Status)
	}

	records := mustRecords(t, store)
	if len(records) != 1 || records[0].Status != StatusFailed {
		t.Fatalf("expected one failed record, got %+v", records)
	}
	if !strings.Contains(records[0].Error, "already exists") {
		t.Errorf("expected cause in record error, got %q", records[0].Error)
	}
}

func TestRunMigrationDryRun(t *testing.T) {
	runner, exec, store := newTestRunner(t, nil)
	m := &Migration{
		ID: "0.1.0_users", Version: "0.1.0", Name: "users",
		SQL: "CREATE TABLE users (id TEXT);\nCREATE TABLE sessions (id TEXT);",
	}

	res := runner.RunMigration(context.Background(), m, Options{DryRun: true})
	if res.Err != nil {
		t.Fatalf("dry run failed: %v", res.Err)
	}
	if !res.DryRun || res.Status != StatusCompleted {
		t.Errorf("expected dry-run completed result, got %+v", res)
	}
	if res.Statements != 2 {
		t.Errorf("expected 2 counted statements, got %d", res.Statements)
	}
	if stmts := exec.statements(); len(stmts) != 0 {
		t.Errorf("expected no executed statements, got %v", stmts)
	}
	if records := mustRecords(t, store); len(records) != 0 {
		t.Errorf("expected no records after dry run, got %+v", records)
	}
}

func TestRunMigrationDestructiveGate(t *testing.T) {
	m := &Migration{
		ID: "0.2.0_cleanup", Version: "0.2.0", Name: "cleanup",
		SQL: "DROP TABLE old_events;",
	}

	t.Run("blocked without force", func(t *testing.T) {
		runner, exec, _ := newTestRunner(t, nil)
		res := runner.RunMigration(context.Background(), m, Options{})
		if !errors.Is(res.Err, ErrDestructiveBlocked) {
			t.Fatalf("expected ErrDestructiveBlocked, got %v", res.Err)
		}
		if stmts := exec.statements(); len(stmts) != 0 {
			t.Errorf("expected no executed statements, got %v", stmts)
		}
	})

	t.Run("runs with force", func(t *testing.T) {
		runner, exec, _ := newTestRunner(t, nil)
		res := runner.RunMigration(context.Background(), m, Options{Force: true})
		if res.Err != nil {
			t.Fatalf("forced run failed: %v", res.Err)
		}
		if res.Status != StatusCompleted {
			t.Errorf("expected status %s, got %s", StatusCompleted, res.Status)
		}
		if stmts := exec.statements(); len(stmts) != 1 {
			t.Errorf("expected 1 executed statement, got %v", stmts)
		}
	})
}

func TestRunMigrationBeforeHookAborts(t *testing.T) {
	hooks := NewHooks()
	hooks.On(BeforeMigration, func(ctx context.Context, m *Migration) error {
		return errors.New("backup not ready")
	})
	runner, exec, store := newTestRunner(t, hooks)

	res := runner.RunMigration(context.Background(), planMigration("0.1.0"), Options{})
	if res.Err == nil || !strings.Contains(res.Err.Error(), "before_migration hook") {
		t.Fatalf("expected before hook error, got %v", res.Err)
	}
	if stmts := exec.statements(); len(stmts) != 0 {
		t.Errorf("expected no executed statements, got %v", stmts)
	}
	// A failing before hook aborts ahead of any store write.
	if records := mustRecords(t, store); len(records) != 0 {
		t.Errorf("expected no records, got %+v", records)
	}
}

func TestRunMigrationAfterHookFailureIsNotFatal(t *testing.T) {
	hooks := NewHooks()
	hooks.On(AfterMigration, func(ctx context.Context, m *Migration) error {
		return errors.New("notification failed")
	})
	runner, _, store := newTestRunner(t, hooks)

	res := runner.RunMigration(context.Background(), planMigration("0.1.0"), Options{})
	if res.Err != nil {
		t.Fatalf("expected success despite after hook, got %v", res.Err)
	}
	records := mustRecords(t, store)
	if len(records) != 1 || records[0].Status != StatusCompleted {
		t.Fatalf("expected one completed record, got %+v", records)
	}
}

func TestRollbackMigration(t *testing.T) {
	runner, exec, store := newTestRunner(t, nil)
	m := planMigration("0.1.0")

	// The reverse body drops a table; no force needed on the rollback path.
	res := runner.RollbackMigration(context.Background(), m, Options{})
	if res.Err != nil {
		t.Fatalf("RollbackMigration failed: %v", res.Err)
	}
	if res.Status != StatusRolledBack {
		t.Errorf("expected status %s, got %s", StatusRolledBack, res.Status)
	}
	if stmts := exec.statements(); len(stmts) != 1 || !strings.HasPrefix(stmts[0], "DROP TABLE") {
		t.Errorf("expected the reverse body to run, got %v", stmts)
	}
	records := mustRecords(t, store)
	if len(records) != 1 || records[0].Status != StatusRolledBack {
		t.Fatalf("expected one rolled-back record, got %+v", records)
	}
}

func TestRollbackMigrationWithoutReverseBody(t *testing.T) {
	hookCalls := 0
	hooks := NewHooks()
	hooks.On(BeforeRollback, func(ctx context.Context, m *Migration) error {
		hookCalls++
		return nil
	})
	runner, exec, store := newTestRunner(t, hooks)
	m := &Migration{ID: "0.1.0_users", Version: "0.1.0", SQL: "CREATE TABLE users (id TEXT);"}

	res := runner.RollbackMigration(context.Background(), m, Options{})
	if !errors.Is(res.Err, ErrRollbackUnavailable) {
		t.Fatalf("expected ErrRollbackUnavailable, got %v", res.Err)
	}
	if hookCalls != 0 {
		t.Errorf("expected no hook calls, got %d", hookCalls)
	}
	if stmts := exec.statements(); len(stmts) != 0 {
		t.Errorf("expected no executed statements, got %v", stmts)
	}
	if records := mustRecords(t, store); len(records) != 0 {
		t.Errorf("expected no records, got %+v", records)
	}
}

func TestRunMigrationsStopsOnFailure(t *testing.T) {
	tests := []struct {
		name            string
		continueOnError bool
		wantResults     int
	}{
		{"stops at the first failure", false, 2},
		{"continue on error runs the rest", true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, exec, _ := newTestRunner(t, nil)
			exec.errFor = func(query string) error {
				if strings.Contains(query, "t_0_2_0") {
					return errors.New("disk full")
				}
				return nil
			}
			list := []*Migration{planMigration("0.1.0"), planMigration("0.2.0"), planMigration("0.3.0")}

			results, err := runner.RunMigrations(context.Background(), list, Options{ContinueOnError: tt.continueOnError})
			if err != nil {
				t.Fatalf("RunMigrations returned error: %v", err)
			}
			if len(results) != tt.wantResults {
				t.Fatalf("expected %d results, got %d", tt.wantResults, len(results))
			}
			if results[1].Status != StatusFailed {
				t.Errorf("expected second migration failed, got %s", results[1].Status)
			}
		})
	}
}

func TestRunMigrationsBatch(t *testing.T) {
	runner, exec, store := newBatchRunner(t, nil)
	list := []*Migration{planMigration("0.1.0"), planMigration("0.2.0")}

	results, err := runner.RunMigrations(context.Background(), list, Options{Batch: true})
	if err != nil {
		t.Fatalf("batch run failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if res.Status != StatusCompleted {
			t.Errorf("expected %s completed, got %s", res.Migration.Version, res.Status)
		}
	}
	if stmts := exec.statements(); len(stmts) != 2 {
		t.Errorf("expected 2 executed statements, got %v", stmts)
	}
	records := mustRecords(t, store)
	if len(records) != 2 {
		t.Fatalf("expected 2 records after commit, got %+v", records)
	}
}

func TestRunMigrationsBatchFailureRecordsNothing(t *testing.T) {
	runner, exec, store := newBatchRunner(t, nil)
	exec.errFor = func(query string) error {
		if strings.Contains(query, "t_0_2_0") {
			return errors.New("syntax error")
		}
		return nil
	}
	list := []*Migration{planMigration("0.1.0"), planMigration("0.2.0")}

	results, err := runner.RunMigrations(context.Background(), list, Options{Batch: true})
	if err == nil {
		t.Fatal("expected batch error, got nil")
	}
	if !strings.Contains(err.Error(), "migration 0.2.0") {
		t.Errorf("expected failing migration in error, got %q", err.Error())
	}
	if len(results) != 2 || results[1].Status != StatusFailed {
		t.Fatalf("expected failed second result, got %+v", results)
	}
	// The unit rolled back, so the ledger must show no partial application.
	if records := mustRecords(t, store); len(records) != 0 {
		t.Errorf("expected no records after failed batch, got %+v", records)
	}
}

func TestRollbackMigrationsReverseOrder(t *testing.T) {
	runner, exec, _ := newTestRunner(t, nil)
	list := []*Migration{planMigration("0.1.0"), planMigration("0.2.0"), planMigration("0.3.0")}

	results, err := runner.RollbackMigrations(context.Background(), list, Options{})
	if err != nil {
		t.Fatalf("RollbackMigrations failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	wantOrder := []string{"0.3.0", "0.2.0", "0.1.0"}
	for i, want := range wantOrder {
		if results[i].Migration.Version != want {
			t.Errorf("position %d: expected %s, got %s", i, want, results[i].Migration.Version)
		}
	}
	stmts := exec.statements()
	if len(stmts) != 3 || !strings.Contains(stmts[0], "t_0_3_0") || !strings.Contains(stmts[2], "t_0_1_0") {
		t.Errorf("expected reverse statement order, got %v", stmts)
	}
}

func TestRunnerPlanTreatsFailedAsPending(t *testing.T) {
	ctx := context.Background()
	runner, _, store := newTestRunner(t, nil)

	if err := store.RecordMigration(ctx, planMigration("0.1.0"), 0); err != nil {
		t.Fatalf("RecordMigration: %v", err)
	}
	if err := store.UpdateStatus(ctx, "0.2.0", StatusFailed, "disk full"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	all := []*Migration{planMigration("0.1.0"), planMigration("0.2.0"), planMigration("0.3.0")}
	plan, err := runner.Plan(ctx, all)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	got := plan.Versions()
	want := []string{"0.2.0", "0.3.0"}
	if len(got) != len(want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
