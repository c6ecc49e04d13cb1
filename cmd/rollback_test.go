package cmd

import (
	"testing"

	"github.com/stratumdb/stratum/migrate"
)

func TestRollbackCommand(t *testing.T) {
	if rollbackCmd == nil {
		t.Fatal("rollbackCmd should not be nil")
	}

	for _, name := range []string{"steps", "yes", "dry-run"} {
		if rollbackCmd.Flags().Lookup(name) == nil {
			t.Errorf("expected flag %q to be registered", name)
		}
	}
}

func TestSelectRollbackTargets(t *testing.T) {
	records := []migrate.Record{
		{Version: "0001", Status: migrate.StatusCompleted},
		{Version: "0002", Status: migrate.StatusRolledBack},
		{Version: "0003", Status: migrate.StatusCompleted},
		{Version: "0004", Status: migrate.StatusFailed},
		{Version: "0005", Status: migrate.StatusCompleted},
	}

	tests := []struct {
		name  string
		steps int
		want  []string
	}{
		{"one step takes the newest", 1, []string{"0005"}},
		{"two steps", 2, []string{"0003", "0005"}},
		{"steps beyond applied count takes everything", 10, []string{"0001", "0003", "0005"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectRollbackTargets(records, tt.steps)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d target(s), got %d", len(tt.want), len(got))
			}
			for i, rec := range got {
				if rec.Version != tt.want[i] {
					t.Errorf("target %d: expected version %s, got %s", i, tt.want[i], rec.Version)
				}
			}
		})
	}
}

func TestSelectRollbackTargetsEmpty(t *testing.T) {
	records := []migrate.Record{
		{Version: "0001", Status: migrate.StatusRolledBack},
	}
	if got := selectRollbackTargets(records, 1); len(got) != 0 {
		t.Errorf("expected no targets when nothing is applied, got %d", len(got))
	}
}
