package wizard

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stratumdb/stratum/database"
	"github.com/stratumdb/stratum/database/libsql"
	"github.com/stratumdb/stratum/database/postgres"
	"github.com/stratumdb/stratum/database/sqlite"
)

// connectTimeout bounds the reachability check; a wedged network must not
// hang the setup flow.
const connectTimeout = 5 * time.Second

// ValidateEnvironmentName checks a name for use as a stratum.toml section and
// in .env.<name> file names.
func ValidateEnvironmentName(name string) error {
	if name == "" {
		return fmt.Errorf("environment name cannot be empty")
	}
	for _, ch := range name {
		ok := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-'
		if !ok {
			return fmt.Errorf("environment name must contain only letters, numbers, underscores, and hyphens")
		}
	}
	return nil
}

// ValidatePort checks a TCP port string.
func ValidatePort(port string) error {
	if port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// ValidateConnectionString checks that a connection string matches the
// driver's expected shape.
func ValidateConnectionString(connStr, driver string) error {
	if connStr == "" {
		return fmt.Errorf("connection string cannot be empty")
	}
	switch driver {
	case "postgres":
		if !strings.HasPrefix(connStr, "postgres://") && !strings.HasPrefix(connStr, "postgresql://") {
			return fmt.Errorf("PostgreSQL URLs start with postgres:// or postgresql://")
		}
	case "sqlite":
		if !strings.HasPrefix(connStr, "sqlite://") && !strings.HasPrefix(connStr, "./") &&
			!strings.HasPrefix(connStr, "/") && !strings.Contains(connStr, ".db") {
			return fmt.Errorf("SQLite expects a sqlite:// URL or a file path")
		}
	case "libsql":
		if !strings.HasPrefix(connStr, "libsql://") {
			return fmt.Errorf("libSQL URLs start with libsql://")
		}
		if connStr == "libsql://" {
			return fmt.Errorf("libSQL URL is missing a host")
		}
	}
	return nil
}

// CheckConnection opens the environment's database and pings it.
func CheckConnection(env EnvironmentInput) error {
	exec, err := openEnvironment(env)
	if err != nil {
		return err
	}
	defer func() { _ = exec.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := exec.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	return nil
}

func openEnvironment(env EnvironmentInput) (*database.SQLExecutor, error) {
	switch env.Driver {
	case "postgres":
		return postgres.Open(PostgresURL(env))
	case "sqlite":
		return sqlite.Open(SQLitePath(env))
	case "libsql":
		return libsql.Open(LibSQLURL(env))
	default:
		return nil, fmt.Errorf("unsupported driver: %s", env.Driver)
	}
}

// PostgresURL builds the connection URL for a PostgreSQL environment. Local
// hosts default to sslmode=disable, everything else to require.
func PostgresURL(env EnvironmentInput) string {
	sslMode := env.SSLMode
	if sslMode == "" {
		if isLocalHost(env.Host) {
			sslMode = "disable"
		} else {
			sslMode = "require"
		}
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		env.User, env.Password, env.Host, env.Port, env.Database, sslMode)
}

func isLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// SQLitePath returns the database file path, defaulting to stratum.db.
func SQLitePath(env EnvironmentInput) string {
	if env.FilePath == "" {
		return "stratum.db"
	}
	return env.FilePath
}

// LibSQLURL appends the auth token to the database URL when one is set.
func LibSQLURL(env EnvironmentInput) string {
	if env.AuthToken != "" {
		return fmt.Sprintf("%s?authToken=%s", env.URL, env.AuthToken)
	}
	return env.URL
}

// ParsePostgresURL splits a postgres:// or postgresql:// URL into environment
// fields, auto-detecting sslmode the same way PostgresURL does.
func ParsePostgresURL(connStr string) (EnvironmentInput, error) {
	env := EnvironmentInput{Driver: "postgres"}

	if !strings.HasPrefix(connStr, "postgres://") && !strings.HasPrefix(connStr, "postgresql://") {
		return env, fmt.Errorf("connection string must start with postgres:// or postgresql://")
	}

	u, err := url.Parse(connStr)
	if err != nil {
		return env, fmt.Errorf("invalid connection string: %w", err)
	}

	if u.User != nil {
		env.User = u.User.Username()
		if password, ok := u.User.Password(); ok {
			env.Password = password
		}
	}
	env.Host = u.Hostname()
	env.Port = u.Port()
	if env.Port == "" {
		env.Port = "5432"
	}
	env.Database = strings.TrimPrefix(u.Path, "/")

	if sslMode := u.Query().Get("sslmode"); sslMode != "" {
		env.SSLMode = sslMode
	} else if isLocalHost(env.Host) {
		env.SSLMode = "disable"
	} else {
		env.SSLMode = "require"
	}

	if env.Host == "" {
		return env, fmt.Errorf("connection string missing host")
	}
	if env.Database == "" {
		return env, fmt.Errorf("connection string missing database name")
	}
	if env.User == "" {
		return env, fmt.Errorf("connection string missing user")
	}
	return env, nil
}
