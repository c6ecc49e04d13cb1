package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/internal/config"
	"github.com/stratumdb/stratum/migrate"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Long: `Show every known migration with its ledger state: applied, pending, or
failed. Applied migrations whose files changed afterwards are flagged, since
the recorded checksum no longer matches the file.`,
	Run: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
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

	printStatus(env, records, migrations)
}

func printStatus(env *config.ResolvedEnvironment, records []migrate.Record, migrations []*migrate.Migration) {
	fmt.Printf("Environment: %s (%s)\n\n", env.Name, displayURL(env.URL))

	if len(records) == 0 && len(migrations) == 0 {
		fmt.Println("No migrations found.")
		return
	}

	ledger := make(map[string]migrate.Record, len(records))
	for _, rec := range records {
		ledger[rec.Version] = rec
	}
	known := make(map[string]bool, len(migrations))

	appliedCount, pendingCount := 0, 0
	for _, m := range migrations {
		known[m.Version] = true
		rec, ok := ledger[m.Version]
		if ok && rec.Status == migrate.StatusCompleted {
			appliedCount++
			fmt.Printf("  %s  %s  %s\n", green("applied"), m.ID,
				faint(fmt.Sprintf("%s, %dms", rec.AppliedAt.Format("2006-01-02 15:04:05"), rec.DurationMS)))
			continue
		}
		pendingCount++
		fmt.Printf("  %s  %s\n", yellow("pending"), m.ID)
		if ok && rec.Status == migrate.StatusFailed && rec.Error != "" {
			fmt.Printf("           %s\n", red("last attempt failed: "+rec.Error))
		}
	}

	// Ledger rows whose migration file is gone.
	for _, rec := range records {
		if known[rec.Version] {
			continue
		}
		fmt.Printf("  %s  %s_%s  %s\n", red("no file"), rec.Version, rec.Name, faint(string(rec.Status)))
	}

	for _, msg := range checksumDrift(records, migrations) {
		fmt.Printf("\n%s %s\n", yellow("⚠"), msg)
	}

	fmt.Printf("\n%d applied, %d pending\n", appliedCount, pendingCount)
}

// checksumDrift reports applied migrations whose file content no longer
// matches what the ledger recorded at apply time.
func checksumDrift(records []migrate.Record, migrations []*migrate.Migration) []string {
	byVersion := make(map[string]*migrate.Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	var drift []string
	for _, rec := range records {
		if rec.Status != migrate.StatusCompleted || rec.Checksum == "" {
			continue
		}
		m, ok := byVersion[rec.Version]
		if !ok {
			continue
		}
		if m.Checksum != rec.Checksum {
			drift = append(drift,
				fmt.Sprintf("migration %s changed on disk after it was applied (checksum mismatch)", rec.Version))
		}
	}
	return drift
}
