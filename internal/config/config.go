// Package config loads stratum.toml and resolves the environment a command
// runs against. Discovery walks up from the working directory and stops at a
// project boundary, so commands behave the same from any subdirectory of a
// project.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the configuration file Stratum looks for.
const FileName = "stratum.toml"

// EnvironmentConfig is one named environment in stratum.toml.
type EnvironmentConfig struct {
	URL            string `toml:"url"`
	Description    string `toml:"description"`
	MigrationsPath string `toml:"migrations_path"`
	HistoryTable   string `toml:"history_table"`
}

// Config is the parsed stratum.toml together with where it was found. The
// top-level url, migrations_path, and history_table act as fallbacks for
// environments that do not set their own.
type Config struct {
	DefaultEnvironment string                       `toml:"default_environment"`
	URL                string                       `toml:"url"`
	MigrationsPath     string                       `toml:"migrations_path"`
	HistoryTable       string                       `toml:"history_table"`
	Environments       map[string]EnvironmentConfig `toml:"environments"`

	path string
}

// Path returns the location stratum.toml was loaded from, empty when no file
// was found.
func (c *Config) Path() string { return c.path }

// Dir returns the directory holding stratum.toml, empty when no file was
// found.
func (c *Config) Dir() string {
	if c.path == "" {
		return ""
	}
	return filepath.Dir(c.path)
}

// Load finds and parses stratum.toml, starting at startDir (the working
// directory when empty) and walking up until a project boundary. A missing
// file is not an error: the zero config is returned with an empty Path.
func Load(startDir string) (*Config, error) {
	dir := startDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = cwd
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			var cfg Config
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			cfg.path = path
			return &cfg, nil
		}

		if isProjectRoot(dir) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return &Config{}, nil
}

// isProjectRoot reports whether dir carries a project marker the walk must
// not cross.
func isProjectRoot(dir string) bool {
	for _, marker := range []string{".git", "go.mod", "package.json"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}
