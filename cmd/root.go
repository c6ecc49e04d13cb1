// Package cmd implements the stratum command tree.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stratum",
	Short: "Stratum manages transactions and schema migrations for auto-commit SQL stores",
	Long: `Stratum manages transactions and schema migrations for relational stores
that auto-commit per statement (PostgreSQL, SQLite, libSQL/Turso).

Configuration lives in stratum.toml, discovered by walking up from the
working directory. Connection URLs belong in .env.<environment> files next
to it; run "stratum init" to set both up.`,
}

var (
	rootEnv     string
	rootVerbose bool
)

// logger is handed to the engine constructors. Engine internals log at
// Debug, so the default Warn level keeps command output clean.
var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootEnv, "env", "e", "", "Environment from stratum.toml (default: default_environment)")
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if rootVerbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	rootCmd.Version = getVersion()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
