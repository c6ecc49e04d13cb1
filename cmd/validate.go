package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/internal/sqlparse"
	"github.com/stratumdb/stratum/migrate"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Validate migration files without touching a database",
	Long: `Load every migration in the directory and report what a review should
see: manifest errors, destructive statements, heavy lock acquisition, and
missing rollback bodies. Manifest errors fail the command; the rest are
advisory.

With no directory argument, the configured environment's migrations
directory is validated.`,
	Example: `  stratum validate
  stratum validate ./migrations`,
	Args: cobra.MaximumNArgs(1),
	Run:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) {
	var dir string
	if len(args) > 0 {
		dir = args[0]
	} else {
		_, env, err := resolveEnvironment()
		if err != nil {
			log.Fatalf("Failed to resolve environment: %v", err)
		}
		dir = env.MigrationsPath
	}

	migrations, err := migrate.LoadDir(dir)
	if err != nil {
		log.Fatalf("Validation failed: %v", err)
	}
	if len(migrations) == 0 {
		fmt.Printf("No migrations in %s.\n", dir)
		return
	}

	total := 0
	for _, m := range migrations {
		findings := reviewMigration(m)
		if len(findings) == 0 {
			continue
		}
		fmt.Printf("%s:\n", m.ID)
		for _, f := range findings {
			switch f.severity {
			case "warn":
				fmt.Printf("  %s %s\n", yellow("⚠"), f.message)
			default:
				fmt.Printf("  %s\n", faint(f.message))
			}
			total++
		}
	}

	if total == 0 {
		fmt.Printf("%s %d migration(s) validated, no findings.\n", green("✓"), len(migrations))
	} else {
		fmt.Printf("\n%d migration(s) validated, %d finding(s).\n", len(migrations), total)
	}
}

type reviewFinding struct {
	severity string // "warn" or "note"
	message  string
}

// reviewMigration inspects one migration's SQL for statements a reviewer
// should look at before it reaches production.
func reviewMigration(m *migrate.Migration) []reviewFinding {
	var findings []reviewFinding

	for _, f := range sqlparse.Destructive(m.SQL) {
		findings = append(findings, reviewFinding{
			severity: "warn",
			message:  fmt.Sprintf("line %d: %s", f.Line, f.Message),
		})
	}
	for _, adv := range sqlparse.AnalyzeLocks(m.SQL) {
		if adv.Impact < sqlparse.ImpactMedium {
			continue
		}
		blocks := "blocks writes"
		if adv.BlocksReads {
			blocks = "blocks reads and writes"
		}
		findings = append(findings, reviewFinding{
			severity: "warn",
			message:  fmt.Sprintf("line %d: acquires %s, %s", adv.Line, adv.Mode, blocks),
		})
	}
	if !m.CanRollback() {
		findings = append(findings, reviewFinding{
			severity: "note",
			message:  "no rollback body",
		})
	}
	return findings
}
