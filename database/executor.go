package database

import (
	"context"
	"database/sql"
	"time"
)

// SQLExecutor adapts a database/sql handle to the Executor contract. Driver
// packages construct it with their own dialect and error classifier.
type SQLExecutor struct {
	db       *sql.DB
	dialect  Dialect
	classify func(error) *Error
}

// NewSQLExecutor wraps db. classify may be nil, in which case the generic
// message-based classifier is used.
func NewSQLExecutor(db *sql.DB, dialect Dialect, classify func(error) *Error) *SQLExecutor {
	if classify == nil {
		classify = Classify
	}
	return &SQLExecutor{db: db, dialect: dialect, classify: classify}
}

// DB exposes the underlying handle for callers that need pool settings.
func (e *SQLExecutor) DB() *sql.DB { return e.db }

func (e *SQLExecutor) Dialect() Dialect { return e.dialect }

func (e *SQLExecutor) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return e.classify(err)
	}
	return nil
}

func (e *SQLExecutor) Close() error { return e.db.Close() }

func (e *SQLExecutor) Query(ctx context.Context, query string, args []any, opts ExecOptions) (*QueryResult, error) {
	var result *QueryResult
	err := e.withRetry(ctx, opts, func(execCtx context.Context) error {
		rows, err := e.db.QueryContext(execCtx, query, args...)
		if err != nil {
			return e.classify(err)
		}
		defer func() { _ = rows.Close() }()

		result, err = scanRows(rows)
		if err != nil {
			return e.classify(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *SQLExecutor) QueryFirst(ctx context.Context, query string, args []any, opts ExecOptions) (Row, bool, error) {
	result, err := e.Query(ctx, query, args, opts)
	if err != nil {
		return nil, false, err
	}
	if len(result.Rows) == 0 {
		return nil, false, nil
	}
	return result.Rows[0], true, nil
}

func (e *SQLExecutor) Exec(ctx context.Context, query string, args []any, opts ExecOptions) (ExecResult, error) {
	var result ExecResult
	err := e.withRetry(ctx, opts, func(execCtx context.Context) error {
		res, err := e.db.ExecContext(execCtx, query, args...)
		if err != nil {
			return e.classify(err)
		}
		// Not every driver supports these; a failure means zero, not an error.
		if n, err := res.RowsAffected(); err == nil {
			result.RowsAffected = n
		}
		if id, err := res.LastInsertId(); err == nil {
			result.LastInsertID = id
		}
		return nil
	})
	if err != nil {
		return ExecResult{}, err
	}
	return result, nil
}

// withRetry runs fn under the per-statement timeout and repeats it for
// recoverable failures when opts.Retries is positive.
func (e *SQLExecutor) withRetry(ctx context.Context, opts ExecOptions, fn func(context.Context) error) error {
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		execCtx := ctx
		var cancel context.CancelFunc
		if opts.Timeout > 0 {
			execCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		}
		lastErr = fn(execCtx)
		if cancel != nil {
			cancel()
		}

		if lastErr == nil || attempt >= opts.Retries || !Retryable(lastErr) {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}
}

func scanRows(rows *sql.Rows) (*QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Columns: cols, Rows: []Row{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
