package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/internal/config"
	"github.com/stratumdb/stratum/migrate"
)

var planJSON bool

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the pending migrations in execution order",
	Long: `Compute the order pending migrations would run in, honoring declared
dependencies, and surface warnings for destructive statements, heavy locks,
and missing rollback bodies. Nothing is executed.`,
	Example: `  stratum plan
  stratum plan --env staging --json`,
	Run: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Print the plan as JSON")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) {
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

	if planJSON {
		out, err := json.MarshalIndent(buildPlanOutput(env.Name, plan), "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode plan: %v", err)
		}
		fmt.Println(string(out))
	} else {
		printPlan(env, plan)
	}

	if len(plan.Issues) > 0 {
		os.Exit(1)
	}
}

type planOutput struct {
	Environment string          `json:"environment"`
	Order       []planEntry     `json:"order"`
	Warnings    []string        `json:"warnings,omitempty"`
	Issues      []migrate.Issue `json:"issues,omitempty"`
	EstimatedMS int64           `json:"estimated_ms"`
}

type planEntry struct {
	Version   string   `json:"version"`
	Name      string   `json:"name"`
	DependsOn []string `json:"depends_on,omitempty"`
	Checksum  string   `json:"checksum"`
}

func buildPlanOutput(envName string, plan *migrate.Plan) planOutput {
	out := planOutput{
		Environment: envName,
		Order:       make([]planEntry, 0, len(plan.Order)),
		Warnings:    plan.Warnings,
		Issues:      plan.Issues,
		EstimatedMS: plan.EstimatedTime.Milliseconds(),
	}
	for _, m := range plan.Order {
		out.Order = append(out.Order, planEntry{
			Version:   m.Version,
			Name:      m.Name,
			DependsOn: m.DependsOn,
			Checksum:  m.Checksum,
		})
	}
	return out
}

func printPlan(env *config.ResolvedEnvironment, plan *migrate.Plan) {
	fmt.Printf("Environment: %s (%s)\n\n", env.Name, displayURL(env.URL))

	if len(plan.Order) == 0 && len(plan.Issues) == 0 {
		fmt.Println("No pending migrations.")
		return
	}

	for i, m := range plan.Order {
		line := fmt.Sprintf("%d. %s", i+1, m.ID)
		if len(m.DependsOn) > 0 {
			line += faint(fmt.Sprintf(" (after %s)", strings.Join(m.DependsOn, ", ")))
		}
		fmt.Println(line)
	}

	for _, w := range plan.Warnings {
		fmt.Printf("%s %s\n", yellow("⚠"), w)
	}
	for _, issue := range plan.Issues {
		fmt.Printf("%s %s\n", red("✗"), issue.Message)
	}

	if len(plan.Order) > 0 {
		fmt.Printf("\n%d migration(s) pending, estimated %s\n",
			len(plan.Order), plan.EstimatedTime.Round(time.Millisecond))
	}
}
