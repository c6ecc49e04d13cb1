package migrate

import "errors"

// ErrCircularDependency means the pending set contains a dependency cycle,
// so no valid execution order exists. Fatal to planning.
var ErrCircularDependency = errors.New("circular dependency between migrations")

// ErrRollbackUnavailable means a rollback was requested for a migration
// that has no reverse SQL.
var ErrRollbackUnavailable = errors.New("migration has no rollback SQL")

// ErrDestructiveBlocked means a statement matched the destructive-operation
// set and force was not given.
var ErrDestructiveBlocked = errors.New("destructive operation blocked")
