package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/migrate"
)

var (
	rollbackSteps  int
	rollbackYes    bool
	rollbackDryRun bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the most recently applied migrations",
	Long: `Roll back the last N applied migrations, newest first, running each
migration's rollback body in its own transaction. A migration without a
rollback body stops the command before anything runs.`,
	Example: `  stratum rollback
  stratum rollback --steps 3
  stratum rollback --env staging --yes`,
	Run: runRollback,
}

func init() {
	rollbackCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "Number of migrations to roll back")
	rollbackCmd.Flags().BoolVar(&rollbackYes, "yes", false, "Skip the confirmation prompt")
	rollbackCmd.Flags().BoolVar(&rollbackDryRun, "dry-run", false, "Print rollback statements without executing")
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) {
	if rollbackSteps < 1 {
		log.Fatalf("--steps must be at least 1, got %d", rollbackSteps)
	}
	ctx := context.Background()

	cfg, env, err := resolveEnvironment()
	if err != nil {
		log.Fatalf("Failed to resolve environment: %v", err)
	}
	exec, err := connect(ctx, env)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = exec.Close() }()

	store := newStore(exec, cfg, env)
	if err := store.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize migration ledger: %v", err)
	}
	records, err := store.AppliedMigrations(ctx)
	if err != nil {
		log.Fatalf("Failed to read migration ledger: %v", err)
	}
	migrations, err := migrate.LoadDir(env.MigrationsPath)
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}

	targets := selectRollbackTargets(records, rollbackSteps)
	if len(targets) == 0 {
		fmt.Println("Nothing to roll back.")
		return
	}

	byVersion := make(map[string]*migrate.Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	// Resolve every target before touching the database, so a missing file
	// or missing rollback body cannot interrupt a half-finished run.
	list := make([]*migrate.Migration, 0, len(targets))
	for _, rec := range targets {
		m, ok := byVersion[rec.Version]
		if !ok {
			log.Fatalf("Migration %s is applied but its file is missing from %s", rec.Version, env.MigrationsPath)
		}
		if !m.CanRollback() {
			log.Fatalf("Migration %s has no rollback body", m.ID)
		}
		list = append(list, m)
	}

	fmt.Printf("Environment: %s (%s)\n\n", env.Name, displayURL(env.URL))
	for i := len(list) - 1; i >= 0; i-- {
		fmt.Printf("%d. %s\n", len(list)-i, list[i].ID)
	}
	fmt.Println()

	if !rollbackYes && !rollbackDryRun {
		if !confirm(fmt.Sprintf("Roll back %d migration(s) on %q?", len(list), env.Name)) {
			fmt.Println("Cancelled.")
			return
		}
	}

	runner := newRunner(exec, store)
	results, err := runner.RollbackMigrations(ctx, list, migrate.Options{DryRun: rollbackDryRun})
	ok := printResults(results)
	if err != nil {
		log.Fatalf("Rollback failed: %v", err)
	}
	if !ok {
		os.Exit(1)
	}
}

// selectRollbackTargets picks the last N completed records, oldest first.
// The runner walks the returned slice in reverse.
func selectRollbackTargets(records []migrate.Record, steps int) []migrate.Record {
	var completed []migrate.Record
	for _, rec := range records {
		if rec.Status == migrate.StatusCompleted {
			completed = append(completed, rec)
		}
	}
	if steps < len(completed) {
		completed = completed[len(completed)-steps:]
	}
	return completed
}
