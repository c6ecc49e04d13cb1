package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultEnvironmentName = "local"
	defaultDatabaseURL     = "stratum.db"
	defaultMigrationsPath  = "migrations"
)

// ResolvedEnvironment is a named environment reduced to concrete values:
// stratum.toml settings overlaid with the environment's dotenv file, with
// ${VAR} references expanded from the process environment.
type ResolvedEnvironment struct {
	Name           string
	URL            string
	MigrationsPath string
	HistoryTable   string
	DotenvPath     string
	FromConfig     bool
	FromDotenv     bool
}

// ResolveEnvironment produces the concrete settings for the named
// environment. An empty name falls back to the config's default_environment,
// then to "local". URL precedence: DATABASE_URL from .env.<name>, then a
// driver-specific dotenv variable, then the environment's url from
// stratum.toml, then the top-level url, then the default local database.
func ResolveEnvironment(cfg *Config, name string) (*ResolvedEnvironment, error) {
	envName := strings.TrimSpace(name)
	if envName == "" {
		if cfg != nil && cfg.DefaultEnvironment != "" {
			envName = cfg.DefaultEnvironment
		} else {
			envName = defaultEnvironmentName
		}
	}

	var (
		envConfig EnvironmentConfig
		envExists bool
	)
	if cfg != nil && cfg.Environments != nil {
		if ec, ok := cfg.Environments[envName]; ok {
			envConfig = ec
			envExists = true
		}
	}

	resolved := &ResolvedEnvironment{
		Name:       envName,
		FromConfig: envExists,
	}

	var configDir string
	if cfg != nil {
		configDir = cfg.Dir()
		if envConfig.URL == "" {
			envConfig.URL = cfg.URL
		}
		if envConfig.MigrationsPath == "" {
			envConfig.MigrationsPath = cfg.MigrationsPath
		}
		if envConfig.HistoryTable == "" {
			envConfig.HistoryTable = cfg.HistoryTable
		}
	}
	baseDir := configDir
	if baseDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			baseDir = cwd
		}
	}

	resolved.URL = envConfig.URL
	resolved.MigrationsPath = envConfig.MigrationsPath
	resolved.HistoryTable = envConfig.HistoryTable
	resolved.DotenvPath = filepath.Join(baseDir, ".env."+envName)

	if info, err := os.Stat(resolved.DotenvPath); err == nil && !info.IsDir() {
		values, err := godotenv.Read(resolved.DotenvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", resolved.DotenvPath, err)
		}
		resolved.FromDotenv = true
		applyDotenv(resolved, values)
	} else if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to access %s: %w", resolved.DotenvPath, err)
	}

	if cfg != nil && len(cfg.Environments) > 0 && !envExists && !resolved.FromDotenv {
		return nil, fmt.Errorf("environment %q not defined in %s and %s not found",
			envName, FileName, resolved.DotenvPath)
	}

	resolved.URL = expandVars(resolved.URL)
	if resolved.URL == "" {
		resolved.URL = defaultDatabaseURL
	}
	if resolved.MigrationsPath == "" {
		resolved.MigrationsPath = defaultMigrationsPath
	}
	// Anchored at the config file, not the working directory, so relative
	// paths mean the same thing from any subdirectory.
	resolved.MigrationsPath = resolveRelative(resolved.MigrationsPath, configDir)

	return resolved, nil
}

// applyDotenv overlays dotenv values. DATABASE_URL always wins; the
// driver-specific variables only fill a URL nothing else provided.
func applyDotenv(resolved *ResolvedEnvironment, values map[string]string) {
	if v := values["DATABASE_URL"]; v != "" {
		resolved.URL = v
	}
	if resolved.URL == "" {
		if v := values["POSTGRES_URL"]; v != "" {
			resolved.URL = v
		}
	}
	if resolved.URL == "" {
		if v := values["SQLITE_DB_PATH"]; v != "" {
			resolved.URL = v
		}
	}
	if resolved.URL == "" {
		if v := values["LIBSQL_URL"]; v != "" {
			if token := values["LIBSQL_AUTH_TOKEN"]; token != "" {
				resolved.URL = fmt.Sprintf("%s?authToken=%s", v, token)
			} else {
				resolved.URL = v
			}
		}
	}
	if v := values["MIGRATIONS_PATH"]; v != "" {
		resolved.MigrationsPath = v
	}
	if v := values["HISTORY_TABLE"]; v != "" {
		resolved.HistoryTable = v
	}
}

var varRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandVars substitutes ${VAR} references from the process environment.
// Bare $VAR is left alone so URL passwords containing $ survive.
func expandVars(s string) string {
	return varRe.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// resolveRelative anchors a relative path at the config directory so
// commands work from any subdirectory.
func resolveRelative(path, baseDir string) string {
	if path == "" || baseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
