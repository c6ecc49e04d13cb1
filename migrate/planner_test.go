package migrate

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func planMigration(version string, deps ...string) *Migration {
	table := "t_" + strings.ReplaceAll(version, ".", "_")
	return &Migration{
		ID:          version + "_test",
		Version:     version,
		Name:        "test",
		SQL:         "CREATE TABLE " + table + " (id TEXT);",
		RollbackSQL: "DROP TABLE " + table + ";",
		DependsOn:   deps,
	}
}

func TestBuildPlanOrder(t *testing.T) {
	tests := []struct {
		name  string
		input []*Migration
		want  []string
	}{
		{
			name: "chain resolves dependencies first",
			input: []*Migration{
				planMigration("0.3.0", "0.2.0"),
				planMigration("0.1.0"),
				planMigration("0.2.0", "0.1.0"),
			},
			want: []string{"0.1.0", "0.2.0", "0.3.0"},
		},
		{
			name: "independent migrations keep input order",
			input: []*Migration{
				planMigration("0.2.0"),
				planMigration("0.1.0"),
			},
			want: []string{"0.2.0", "0.1.0"},
		},
		{
			name: "diamond emits shared dependency once",
			input: []*Migration{
				planMigration("0.4.0", "0.2.0", "0.3.0"),
				planMigration("0.2.0", "0.1.0"),
				planMigration("0.3.0", "0.1.0"),
				planMigration("0.1.0"),
			},
			want: []string{"0.1.0", "0.2.0", "0.3.0", "0.4.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := BuildPlan(tt.input, nil)
			if err != nil {
				t.Fatalf("BuildPlan failed: %v", err)
			}
			got := plan.Versions()
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d migrations in order, got %d: %v", len(tt.want), len(got), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("position %d: expected %s, got %s", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestBuildPlanRecordsDependencies(t *testing.T) {
	plan, err := BuildPlan([]*Migration{
		planMigration("0.1.0"),
		planMigration("0.2.0", "0.1.0"),
	}, nil)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	deps, ok := plan.Dependencies["0.2.0"]
	if !ok || len(deps) != 1 || deps[0] != "0.1.0" {
		t.Errorf("expected dependencies [0.1.0] for 0.2.0, got %v", deps)
	}
	if _, ok := plan.Dependencies["0.1.0"]; ok {
		t.Error("expected no dependency entry for migration without dependencies")
	}
	if plan.EstimatedTime <= 0 {
		t.Errorf("expected positive estimated time, got %v", plan.EstimatedTime)
	}
}

func TestBuildPlanSkipsApplied(t *testing.T) {
	plan, err := BuildPlan([]*Migration{
		planMigration("0.1.0"),
		planMigration("0.2.0", "0.1.0"),
	}, map[string]bool{"0.1.0": true})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if len(plan.Issues) != 0 {
		t.Fatalf("expected no issues when dependency is applied, got %v", plan.Issues)
	}
	got := plan.Versions()
	if len(got) != 1 || got[0] != "0.2.0" {
		t.Errorf("expected order [0.2.0], got %v", got)
	}
}

func TestBuildPlanCircularDependency(t *testing.T) {
	_, err := BuildPlan([]*Migration{
		planMigration("0.1.0", "0.2.0"),
		planMigration("0.2.0", "0.1.0"),
	}, nil)
	if !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("expected ErrCircularDependency, got %v", err)
	}
	if !strings.Contains(err.Error(), "0.1.0 -> 0.2.0 -> 0.1.0") {
		t.Errorf("expected cycle path in error, got %q", err.Error())
	}
}

func TestBuildPlanDependencyMissing(t *testing.T) {
	plan, err := BuildPlan([]*Migration{
		planMigration("0.1.0"),
		planMigration("0.2.0", "9.9.9"),
		planMigration("0.3.0", "0.2.0"),
	}, nil)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	got := plan.Versions()
	if len(got) != 1 || got[0] != "0.1.0" {
		t.Fatalf("expected only 0.1.0 in order, got %v", got)
	}

	if len(plan.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %d: %v", len(plan.Issues), plan.Issues)
	}
	first := plan.Issues[0]
	if first.Code != "dependency_missing" || first.Version != "0.2.0" || first.Dependency != "9.9.9" {
		t.Errorf("unexpected first issue: %+v", first)
	}
	if !strings.Contains(first.Message, "unknown version 9.9.9") {
		t.Errorf("expected unknown-version message, got %q", first.Message)
	}
	// 0.3.0 is excluded because its dependency was excluded.
	second := plan.Issues[1]
	if second.Version != "0.3.0" || second.Dependency != "0.2.0" {
		t.Errorf("unexpected cascade issue: %+v", second)
	}
	if !strings.Contains(second.Message, "cannot run") {
		t.Errorf("expected cascade message, got %q", second.Message)
	}
}

func TestBuildPlanDuplicateVersion(t *testing.T) {
	_, err := BuildPlan([]*Migration{
		planMigration("0.1.0"),
		planMigration("0.1.0"),
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "duplicate migration version 0.1.0") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestBuildPlanWarnings(t *testing.T) {
	tests := []struct {
		name string
		m    *Migration
		want string
	}{
		{
			name: "missing rollback",
			m: &Migration{
				ID: "0.1.0_x", Version: "0.1.0",
				SQL: "CREATE TABLE t (id TEXT);",
			},
			want: "has no rollback SQL",
		},
		{
			name: "large body",
			m: &Migration{
				ID: "0.1.0_x", Version: "0.1.0",
				SQL:         strings.Repeat("-- filler\n", 6000) + "CREATE TABLE t (id TEXT);",
				RollbackSQL: "DROP TABLE t;",
			},
			want: "consider splitting",
		},
		{
			name: "destructive statement",
			m: &Migration{
				ID: "0.1.0_x", Version: "0.1.0",
				SQL:         "DROP TABLE old_events;",
				RollbackSQL: "SELECT 1;",
			},
			want: "permanently deletes all data",
		},
		{
			name: "exclusive lock",
			m: &Migration{
				ID: "0.1.0_x", Version: "0.1.0",
				SQL:         "ALTER TABLE users ADD COLUMN age INT DEFAULT 0;",
				RollbackSQL: "ALTER TABLE users DROP COLUMN age;",
			},
			want: "acquires ACCESS EXCLUSIVE, blocks reads and writes",
		},
		{
			name: "index build blocks writes",
			m: &Migration{
				ID: "0.1.0_x", Version: "0.1.0",
				SQL:         "CREATE INDEX idx_users_email ON users (email);",
				RollbackSQL: "DROP INDEX idx_users_email;",
			},
			want: "acquires SHARE, blocks writes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := BuildPlan([]*Migration{tt.m}, nil)
			if err != nil {
				t.Fatalf("BuildPlan failed: %v", err)
			}
			for _, w := range plan.Warnings {
				if strings.Contains(w, tt.want) {
					return
				}
			}
			t.Errorf("expected warning containing %q, got %v", tt.want, plan.Warnings)
		})
	}
}

func TestEstimateDuration(t *testing.T) {
	tests := []struct {
		name    string
		bodyLen int
		want    time.Duration
	}{
		{"empty body pays the base cost", 0, 500 * time.Millisecond},
		{"long body adds per-chunk cost", 1000, 510 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migration{SQL: strings.Repeat("x", tt.bodyLen)}
			if got := EstimateDuration(m); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
