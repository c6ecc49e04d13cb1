// Package libsql provides the statement executor for libsql:// (Turso)
// databases. The remote protocol surfaces no structured error codes, so
// classification falls back to message heuristics.
package libsql

import (
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/stratumdb/stratum/database"
)

// NewDialect returns the libSQL dialect. The server speaks SQLite's grammar.
func NewDialect() database.StandardDialect {
	return database.StandardDialect{DialectName: "libsql"}
}

// Open connects to a libsql:// URL. Auth tokens ride on the URL query string.
func Open(url string) (*database.SQLExecutor, error) {
	db, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}
	return database.NewSQLExecutor(db, NewDialect(), nil), nil
}
