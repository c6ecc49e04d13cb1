package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func storeImplementations(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"memory": func() Store { return NewMemStore() },
		"file": func() Store {
			return NewFileStore(filepath.Join(t.TempDir(), DefaultLedgerFile))
		},
	}
}

func TestStoreRecordLifecycle(t *testing.T) {
	for name, makeStore := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := makeStore()
			if err := store.Initialize(ctx); err != nil {
				t.Fatalf("Initialize: %v", err)
			}

			m := planMigration("0.1.0")
			if err := store.RecordMigration(ctx, m, 120*time.Millisecond); err != nil {
				t.Fatalf("RecordMigration: %v", err)
			}

			records, err := store.AppliedMigrations(ctx)
			if err != nil {
				t.Fatalf("AppliedMigrations: %v", err)
			}
			if len(records) != 1 {
				t.Fatalf("expected 1 record, got %d", len(records))
			}
			rec := records[0]
			if rec.Version != "0.1.0" || rec.Status != StatusCompleted {
				t.Errorf("unexpected record: %+v", rec)
			}
			if rec.Checksum != m.Checksum {
				t.Errorf("expected checksum %s, got %s", m.Checksum, rec.Checksum)
			}
			if rec.DurationMS != 120 {
				t.Errorf("expected 120ms duration, got %d", rec.DurationMS)
			}
			if rec.AppliedAt.IsZero() {
				t.Error("expected applied time to be set")
			}

			if err := store.RecordRollback(ctx, m, 30*time.Millisecond); err != nil {
				t.Fatalf("RecordRollback: %v", err)
			}
			records, _ = store.AppliedMigrations(ctx)
			if records[0].Status != StatusRolledBack {
				t.Errorf("expected rolled_back, got %s", records[0].Status)
			}
		})
	}
}

func TestStoreUpdateStatus(t *testing.T) {
	for name, makeStore := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := makeStore()

			if err := store.UpdateStatus(ctx, "0.1.0", StatusRunning, ""); err != nil {
				t.Fatalf("UpdateStatus running: %v", err)
			}
			if err := store.UpdateStatus(ctx, "0.1.0", StatusFailed, "disk full"); err != nil {
				t.Fatalf("UpdateStatus failed: %v", err)
			}

			records, err := store.AppliedMigrations(ctx)
			if err != nil {
				t.Fatalf("AppliedMigrations: %v", err)
			}
			if len(records) != 1 || records[0].Status != StatusFailed {
				t.Fatalf("expected one failed record, got %+v", records)
			}
			if records[0].Error != "disk full" {
				t.Errorf("expected error message preserved, got %q", records[0].Error)
			}
		})
	}
}

func TestStoreCleanup(t *testing.T) {
	for name, makeStore := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := makeStore()

			if err := store.RecordMigration(ctx, planMigration("0.1.0"), 0); err != nil {
				t.Fatalf("RecordMigration: %v", err)
			}
			if err := store.UpdateStatus(ctx, "0.2.0", StatusFailed, "boom"); err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}
			if err := store.UpdateStatus(ctx, "0.3.0", StatusRunning, ""); err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}

			if err := store.Cleanup(ctx); err != nil {
				t.Fatalf("Cleanup: %v", err)
			}

			records, err := store.AppliedMigrations(ctx)
			if err != nil {
				t.Fatalf("AppliedMigrations: %v", err)
			}
			if len(records) != 1 || records[0].Version != "0.1.0" {
				t.Fatalf("expected only the completed record to survive, got %+v", records)
			}
		})
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), DefaultLedgerFile)

	first := NewFileStore(path)
	if err := first.RecordMigration(ctx, planMigration("0.1.0"), time.Second); err != nil {
		t.Fatalf("RecordMigration: %v", err)
	}

	second := NewFileStore(path)
	records, err := second.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(records) != 1 || records[0].Version != "0.1.0" || records[0].Status != StatusCompleted {
		t.Fatalf("expected persisted record, got %+v", records)
	}
}

func TestFileStoreInitializeCreatesLedger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", DefaultLedgerFile)

	store := NewFileStore(path)
	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected ledger file on disk: %v", err)
	}
	if !strings.Contains(string(data), `"version": "1"`) {
		t.Errorf("expected format version in ledger, got %s", data)
	}

	// A second Initialize must not truncate an existing ledger.
	if err := store.RecordMigration(ctx, planMigration("0.1.0"), 0); err != nil {
		t.Fatalf("RecordMigration: %v", err)
	}
	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("Initialize again: %v", err)
	}
	records, _ := store.AppliedMigrations(ctx)
	if len(records) != 1 {
		t.Fatalf("expected record to survive re-initialize, got %+v", records)
	}
}

func TestFileStoreRejectsCorruptLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultLedgerFile)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt ledger: %v", err)
	}

	store := NewFileStore(path)
	_, err := store.AppliedMigrations(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to parse ledger") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
