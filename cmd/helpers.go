package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/stratumdb/stratum/database"
	"github.com/stratumdb/stratum/database/libsql"
	"github.com/stratumdb/stratum/database/postgres"
	"github.com/stratumdb/stratum/database/sqlite"
	"github.com/stratumdb/stratum/internal/config"
	"github.com/stratumdb/stratum/migrate"
	"github.com/stratumdb/stratum/txn"
)

const connectTimeout = 10 * time.Second

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// resolveEnvironment loads stratum.toml and resolves the environment selected
// with --env. Running without a config file is allowed (it resolves to a
// local SQLite database), but gets a hint about stratum init.
func resolveEnvironment() (*config.Config, *config.ResolvedEnvironment, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, nil, err
	}
	env, err := config.ResolveEnvironment(cfg, rootEnv)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Path() == "" {
		fmt.Fprintf(os.Stderr, "%s\n", faint(`No stratum.toml found, using `+displayURL(env.URL)+`. Run "stratum init" to set up a project.`))
	}
	return cfg, env, nil
}

// driverKind reports which driver a database URL routes to. Anything that is
// not a postgres or libsql URL is treated as a SQLite path; the sqlite driver
// itself normalizes sqlite:// and file: forms.
func driverKind(rawURL string) string {
	switch {
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(rawURL, "libsql://"):
		return "libsql"
	default:
		return "sqlite"
	}
}

// openExecutor connects to rawURL with the driver its scheme selects.
func openExecutor(rawURL string) (*database.SQLExecutor, error) {
	switch driverKind(rawURL) {
	case "postgres":
		return postgres.Open(rawURL)
	case "libsql":
		return libsql.Open(rawURL)
	default:
		return sqlite.Open(rawURL)
	}
}

// connect opens the environment's database and verifies it is reachable.
func connect(ctx context.Context, env *config.ResolvedEnvironment) (*database.SQLExecutor, error) {
	exec, err := openExecutor(env.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", displayURL(env.URL), err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := exec.Ping(pingCtx); err != nil {
		_ = exec.Close()
		return nil, fmt.Errorf("failed to reach %s: %w", displayURL(env.URL), err)
	}
	return exec, nil
}

// newStore picks the ledger implementation for the environment. A
// history_table value naming a .json file selects the file ledger, anchored
// at the config directory; anything else is a table in the target database.
func newStore(exec database.Executor, cfg *config.Config, env *config.ResolvedEnvironment) migrate.Store {
	if strings.HasSuffix(env.HistoryTable, ".json") {
		path := env.HistoryTable
		if !filepath.IsAbs(path) && cfg.Dir() != "" {
			path = filepath.Join(cfg.Dir(), path)
		}
		return migrate.NewFileStore(path)
	}
	return migrate.NewSQLStore(exec, env.HistoryTable)
}

// newRunner wires a runner with a transaction coordinator for batch mode and
// hooks that trace migration boundaries at debug level.
func newRunner(exec database.Executor, store migrate.Store) *migrate.Runner {
	registry := txn.NewRegistry(txn.DefaultMaxConcurrent, logger)
	coord := txn.NewCoordinator(registry, nil, logger)

	hooks := migrate.NewHooks()
	hooks.On(migrate.BeforeMigration, func(ctx context.Context, m *migrate.Migration) error {
		logger.Debug("starting migration", "migration", m.ID, "source", m.Source)
		return nil
	})
	hooks.On(migrate.BeforeRollback, func(ctx context.Context, m *migrate.Migration) error {
		logger.Debug("starting rollback", "migration", m.ID)
		return nil
	})

	return migrate.NewRunner(exec, store, coord, hooks, logger)
}

// displayURL redacts the password from a connection URL for output. SQLite
// paths pass through unchanged.
func displayURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.User == nil {
		return raw
	}
	return u.Redacted()
}

// confirm prompts on stdin and reports whether the user answered yes.
func confirm(prompt string) bool {
	fmt.Printf("%s (yes/no): ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "yes" || answer == "y"
}

// printResults writes one line per migration result and reports whether all
// of them succeeded.
func printResults(results []*migrate.Result) bool {
	ok := true
	for _, res := range results {
		prefix := ""
		if res.DryRun {
			prefix = faint("(dry run) ")
		}
		switch {
		case res.Err != nil:
			ok = false
			fmt.Printf("%s %s%s: %v\n", red("✗"), prefix, res.Migration.ID, res.Err)
		case res.Status == migrate.StatusRolledBack:
			fmt.Printf("%s %s%s rolled back (%d statements, %s)\n",
				green("✓"), prefix, res.Migration.ID, res.Statements, res.Duration.Round(time.Millisecond))
		default:
			fmt.Printf("%s %s%s applied (%d statements, %s)\n",
				green("✓"), prefix, res.Migration.ID, res.Statements, res.Duration.Round(time.Millisecond))
		}
	}
	return ok
}
