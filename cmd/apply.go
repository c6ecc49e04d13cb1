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
	applyDryRun bool
	applyForce  bool
	applyBatch  bool
	applyYes    bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply pending migrations",
	Long: `Apply every pending migration in dependency order. Each migration runs in
its own transaction and is recorded in the ledger; --batch wraps the whole
set in a single transaction instead, so a failure rolls everything back.

Destructive statements (DROP TABLE, TRUNCATE, DELETE without WHERE) abort
the run unless --force is given.`,
	Example: `  stratum apply
  stratum apply --dry-run
  stratum apply --env staging --batch --yes`,
	Run: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Validate and print statements without executing")
	applyCmd.Flags().BoolVar(&applyForce, "force", false, "Run migrations containing destructive statements")
	applyCmd.Flags().BoolVar(&applyBatch, "batch", false, "Run all migrations in one transaction")
	applyCmd.Flags().BoolVar(&applyYes, "yes", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) {
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
	migrations, err := migrate.LoadDir(env.MigrationsPath)
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}

	runner := newRunner(exec, store)
	plan, err := runner.Plan(ctx, migrations)
	if err != nil {
		log.Fatalf("Failed to plan: %v", err)
	}
	if len(plan.Issues) > 0 {
		for _, issue := range plan.Issues {
			fmt.Fprintf(os.Stderr, "%s %s\n", red("✗"), issue.Message)
		}
		log.Fatalf("Refusing to apply: %d migration(s) failed validation", len(plan.Issues))
	}
	if len(plan.Order) == 0 {
		fmt.Println("Nothing to apply.")
		return
	}

	fmt.Printf("Environment: %s (%s)\n\n", env.Name, displayURL(env.URL))
	for i, m := range plan.Order {
		fmt.Printf("%d. %s\n", i+1, m.ID)
	}
	for _, w := range plan.Warnings {
		fmt.Printf("%s %s\n", yellow("⚠"), w)
	}
	fmt.Println()

	if !applyYes && !applyDryRun {
		if !confirm(fmt.Sprintf("Apply %d migration(s) to %q?", len(plan.Order), env.Name)) {
			fmt.Println("Cancelled.")
			return
		}
	}

	opts := migrate.Options{
		DryRun: applyDryRun,
		Force:  applyForce,
		Batch:  applyBatch,
	}
	results, err := runner.RunMigrations(ctx, plan.Order, opts)
	ok := printResults(results)
	if err != nil {
		log.Fatalf("Batch failed and was rolled back: %v", err)
	}
	if !ok {
		os.Exit(1)
	}
}
