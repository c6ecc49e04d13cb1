package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/internal/config"
	"github.com/stratumdb/stratum/internal/wizard"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up stratum.toml, environment files, and the migrations directory",
	Long: `Set up a project interactively, or without prompts using --yes.

The wizard configures one or more environments and writes stratum.toml,
.env.<name> credential files, .gitignore entries, and the migrations
directory. Re-running against an existing project adds environments without
discarding what is already configured.`,
	Example: `  # Interactive setup
  stratum init

  # One local SQLite environment, no prompts
  stratum init --yes

  # One environment from a connection URL
  stratum init --yes --name production --url postgresql://app@db.internal:5432/app`,
	Run: runInit,
}

var (
	initYes  bool
	initName string
	initURL  string
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initYes, "yes", false, "Skip the wizard and accept defaults")
	initCmd.Flags().StringVar(&initName, "name", "local", "Environment name when using --yes")
	initCmd.Flags().StringVar(&initURL, "url", "", "Database URL when using --yes (default: a local SQLite file)")
}

func runInit(cmd *cobra.Command, args []string) {
	var err error
	if initYes {
		err = nonInteractiveInit(initName, initURL)
	} else {
		err = wizard.Run()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// nonInteractiveInit builds one environment from flags and writes the same
// files the wizard would. Unreachable databases are a warning, not a failure:
// the environment being configured may not be reachable from this machine.
func nonInteractiveInit(name, rawURL string) error {
	env, err := environmentFromURL(name, rawURL)
	if err != nil {
		return err
	}
	if err := wizard.ValidateEnvironmentName(env.Name); err != nil {
		return err
	}

	// SQLite files are created by the generation step itself, so only
	// network databases get a reachability probe.
	if env.Driver != "sqlite" {
		if err := wizard.CheckConnection(env); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", yellow("warning:"), err)
		}
	}

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	result, err := wizard.GenerateFiles([]wizard.EnvironmentInput{env}, cfg.Path())
	if err != nil {
		return err
	}
	printInitResult(result)
	return nil
}

// environmentFromURL maps a connection URL onto wizard input. An empty URL
// means a local SQLite file with the default name.
func environmentFromURL(name, rawURL string) (wizard.EnvironmentInput, error) {
	switch {
	case rawURL == "":
		return wizard.EnvironmentInput{Name: name, Driver: "sqlite", FilePath: "stratum.db"}, nil

	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		env, err := wizard.ParsePostgresURL(rawURL)
		if err != nil {
			return wizard.EnvironmentInput{}, err
		}
		env.Name = name
		return env, nil

	case strings.HasPrefix(rawURL, "libsql://"):
		env := wizard.EnvironmentInput{Name: name, Driver: "libsql", URL: rawURL}
		// An embedded authToken moves to its own field so it lands in
		// LIBSQL_AUTH_TOKEN rather than staying inside the URL.
		if u, err := url.Parse(rawURL); err == nil {
			query := u.Query()
			if token := query.Get("authToken"); token != "" {
				query.Del("authToken")
				u.RawQuery = query.Encode()
				env.URL = u.String()
				env.AuthToken = token
			}
		}
		return env, nil

	default:
		return wizard.EnvironmentInput{Name: name, Driver: "sqlite", FilePath: rawURL}, nil
	}
}

func printInitResult(result *wizard.InitResult) {
	action := "Updated"
	if result.ConfigCreated {
		action = "Created"
	}
	fmt.Printf("%s %s %s\n", green("✓"), action, result.ConfigPath)
	for _, f := range result.EnvFiles {
		fmt.Printf("%s Wrote %s\n", green("✓"), f)
	}
	if result.MigrationsDirCreated {
		fmt.Printf("%s Created %s/\n", green("✓"), result.MigrationsDir)
	}
	if result.GitignoreUpdated {
		fmt.Printf("%s Updated .gitignore\n", green("✓"))
	}
	fmt.Println()
	fmt.Println(`Next: write your first migration, then run "stratum plan".`)
}
