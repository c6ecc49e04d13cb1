package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stratumdb/stratum/database"
	"github.com/stratumdb/stratum/internal/sqlparse"
	"github.com/stratumdb/stratum/txn"
)

// Options configures one runner invocation.
type Options struct {
	// DryRun logs what would execute without touching the database or
	// the store.
	DryRun bool

	// Force lets statements matching the destructive-operation set run.
	Force bool

	// Batch wraps the whole list in one transactional unit of work: any
	// failure rolls the unit back and nothing is recorded.
	Batch bool

	// ContinueOnError keeps running the remaining migrations after a
	// failure. The default stops at the first one.
	ContinueOnError bool

	// Timeout bounds each statement in individual mode, or the whole
	// unit of work in batch mode (where the transaction default applies
	// when zero).
	Timeout time.Duration

	// Retries and RetryDelay configure per-statement retry in individual
	// mode. Statements inside a batch never retry.
	Retries    int
	RetryDelay time.Duration
}

// Result describes the outcome of one migration run or rollback. In
// dry-run mode Status is what the operation would have produced.
type Result struct {
	Migration  *Migration
	Status     Status
	Duration   time.Duration
	Statements int
	Err        error
	DryRun     bool
}

// execFunc runs one SQL statement.
type execFunc func(ctx context.Context, stmt string) error

// Runner executes and rolls back migrations, recording outcomes in the
// store. It orchestrates only: statement execution belongs to the
// executor, durability to the store.
type Runner struct {
	exec  database.Executor
	store Store
	coord *txn.Coordinator
	hooks *Hooks
	log   *slog.Logger
}

// NewRunner wires a runner. coord is needed only for batch mode; hooks
// may be nil.
func NewRunner(exec database.Executor, store Store, coord *txn.Coordinator, hooks *Hooks, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{exec: exec, store: store, coord: coord, hooks: hooks, log: log}
}

// Plan computes the execution plan for all against the store's applied
// set. Only completed records count as applied; failed and rolled-back
// versions become pending again.
func (r *Runner) Plan(ctx context.Context, all []*Migration) (*Plan, error) {
	records, err := r.store.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.Status == StatusCompleted {
			applied[rec.Version] = true
		}
	}
	return BuildPlan(all, applied)
}

// RunMigration applies one migration. Failures land in the result, not in
// a returned error: the store records RUNNING while statements execute and
// COMPLETED or FAILED afterwards. A failing before hook aborts before any
// store write. Dry-run performs every step except execution and store
// writes.
func (r *Runner) RunMigration(ctx context.Context, m *Migration, opts Options) *Result {
	res := &Result{Migration: m, DryRun: opts.DryRun}
	start := time.Now()

	if err := r.hooks.Fire(ctx, BeforeMigration, m); err != nil {
		return r.fail(ctx, res, start, fmt.Errorf("before_migration hook: %w", err), false)
	}

	if !opts.DryRun {
		if err := r.store.UpdateStatus(ctx, m.Version, StatusRunning, ""); err != nil {
			return r.fail(ctx, res, start, fmt.Errorf("failed to mark %s running: %w", m.Version, err), false)
		}
	}

	if err := r.applyStatements(ctx, m.SQL, opts, r.directExec(opts), res, true); err != nil {
		return r.fail(ctx, res, start, err, !opts.DryRun)
	}

	res.Duration = time.Since(start)
	res.Status = StatusCompleted
	if opts.DryRun {
		r.log.Info("dry run complete", "migration", m.ID, "statements", res.Statements)
		return res
	}

	if err := r.store.RecordMigration(ctx, m, res.Duration); err != nil {
		return r.fail(ctx, res, start, fmt.Errorf("failed to record %s: %w", m.Version, err), false)
	}
	if err := r.hooks.Fire(ctx, AfterMigration, m); err != nil {
		r.log.Warn("after_migration hook failed", "migration", m.ID, "error", err)
	}
	r.log.Info("migration applied", "migration", m.ID, "statements", res.Statements, "took", res.Duration)
	return res
}

// RollbackMigration applies the reverse body. It fails before any hook or
// store write when no reverse body exists. The destructive-operation gate
// does not apply here: reverting a CREATE TABLE legitimately drops it.
func (r *Runner) RollbackMigration(ctx context.Context, m *Migration, opts Options) *Result {
	res := &Result{Migration: m, DryRun: opts.DryRun}
	start := time.Now()

	if !m.CanRollback() {
		res.Err = fmt.Errorf("%w: %s", ErrRollbackUnavailable, m.ID)
		res.Status = StatusFailed
		return res
	}

	if err := r.hooks.Fire(ctx, BeforeRollback, m); err != nil {
		return r.fail(ctx, res, start, fmt.Errorf("before_rollback hook: %w", err), false)
	}

	if !opts.DryRun {
		if err := r.store.UpdateStatus(ctx, m.Version, StatusRunning, ""); err != nil {
			return r.fail(ctx, res, start, fmt.Errorf("failed to mark %s running: %w", m.Version, err), false)
		}
	}

	if err := r.applyStatements(ctx, m.RollbackSQL, opts, r.directExec(opts), res, false); err != nil {
		return r.fail(ctx, res, start, err, !opts.DryRun)
	}

	res.Duration = time.Since(start)
	res.Status = StatusRolledBack
	if opts.DryRun {
		r.log.Info("dry run complete", "migration", m.ID, "statements", res.Statements)
		return res
	}

	if err := r.store.RecordRollback(ctx, m, res.Duration); err != nil {
		return r.fail(ctx, res, start, fmt.Errorf("failed to record rollback of %s: %w", m.Version, err), false)
	}
	if err := r.hooks.Fire(ctx, AfterRollback, m); err != nil {
		r.log.Warn("after_rollback hook failed", "migration", m.ID, "error", err)
	}
	r.log.Info("migration rolled back", "migration", m.ID, "took", res.Duration)
	return res
}

// RunMigrations applies list in the given order. Individual failures land
// in the results, stopping unless ContinueOnError; the returned error is
// non-nil only in batch mode, where any failure aborts and rolls back the
// whole unit with nothing recorded.
func (r *Runner) RunMigrations(ctx context.Context, list []*Migration, opts Options) ([]*Result, error) {
	if opts.Batch && !opts.DryRun {
		return r.runBatch(ctx, list, opts)
	}

	results := make([]*Result, 0, len(list))
	for _, m := range list {
		res := r.RunMigration(ctx, m, opts)
		results = append(results, res)
		if res.Err != nil && !opts.ContinueOnError {
			break
		}
	}
	return results, nil
}

// RollbackMigrations rolls list back in reverse order, stopping at the
// first failure unless ContinueOnError.
func (r *Runner) RollbackMigrations(ctx context.Context, list []*Migration, opts Options) ([]*Result, error) {
	results := make([]*Result, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		res := r.RollbackMigration(ctx, list[i], opts)
		results = append(results, res)
		if res.Err != nil && !opts.ContinueOnError {
			break
		}
	}
	return results, nil
}

// runBatch executes every migration inside one transactional unit of work.
// Ledger entries are written only after the unit commits, so a failed
// batch records no partial application.
func (r *Runner) runBatch(ctx context.Context, list []*Migration, opts Options) ([]*Result, error) {
	if r.coord == nil {
		return nil, fmt.Errorf("batch mode requires a transaction coordinator")
	}

	var results []*Result
	err := r.coord.WithTransaction(ctx, r.exec, txn.Options{Timeout: opts.Timeout}, func(ctx context.Context, tx *txn.Transaction) error {
		results = results[:0]
		for _, m := range list {
			res := &Result{Migration: m}
			start := time.Now()

			if err := r.hooks.Fire(ctx, BeforeMigration, m); err != nil {
				res.Err = fmt.Errorf("before_migration hook: %w", err)
				res.Status = StatusFailed
				results = append(results, res)
				return res.Err
			}

			err := r.applyStatements(ctx, m.SQL, opts, func(ctx context.Context, stmt string) error {
				_, execErr := tx.Exec(ctx, stmt)
				return execErr
			}, res, true)
			res.Duration = time.Since(start)
			if err != nil {
				res.Err = err
				res.Status = StatusFailed
				results = append(results, res)
				return fmt.Errorf("migration %s: %w", m.ID, err)
			}

			res.Status = StatusCompleted
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return results, err
	}

	// The unit committed; only now does the ledger change.
	for _, res := range results {
		if err := r.store.RecordMigration(ctx, res.Migration, res.Duration); err != nil {
			r.log.Error("failed to record batch migration", "migration", res.Migration.ID, "error", err)
			return results, fmt.Errorf("batch applied but recording %s failed: %w", res.Migration.Version, err)
		}
		if err := r.hooks.Fire(ctx, AfterMigration, res.Migration); err != nil {
			r.log.Warn("after_migration hook failed", "migration", res.Migration.ID, "error", err)
		}
	}
	r.log.Info("batch applied", "migrations", len(results))
	return results, nil
}

// applyStatements splits body and feeds each statement to run. With gate
// set, any destructive finding blocks the whole body unless Force. Dry-run
// logs and counts statements instead of executing them.
func (r *Runner) applyStatements(ctx context.Context, body string, opts Options, run execFunc, res *Result, gate bool) error {
	if gate && !opts.Force {
		if findings := sqlparse.Destructive(body); len(findings) > 0 {
			return fmt.Errorf("%w: %s (use force to run anyway)", ErrDestructiveBlocked, findings[0].Message)
		}
	}

	for _, stmt := range sqlparse.Executable(body) {
		if opts.DryRun {
			r.log.Info("would execute", "line", stmt.Line, "sql", stmt.SQL)
			res.Statements++
			continue
		}
		if err := run(ctx, stmt.SQL); err != nil {
			return fmt.Errorf("statement at line %d failed: %w", stmt.Line, err)
		}
		res.Statements++
	}
	return nil
}

// directExec executes statements straight through the executor with the
// configured per-statement budget.
func (r *Runner) directExec(opts Options) execFunc {
	return func(ctx context.Context, stmt string) error {
		_, err := r.exec.Exec(ctx, stmt, nil, database.ExecOptions{
			Timeout:    opts.Timeout,
			Retries:    opts.Retries,
			RetryDelay: opts.RetryDelay,
		})
		return err
	}
}

// fail finalizes res as a failure, recording FAILED in the store when
// record is set.
func (r *Runner) fail(ctx context.Context, res *Result, start time.Time, err error, record bool) *Result {
	res.Err = err
	res.Status = StatusFailed
	res.Duration = time.Since(start)
	if record {
		if uerr := r.store.UpdateStatus(ctx, res.Migration.Version, StatusFailed, err.Error()); uerr != nil {
			r.log.Error("failed to record failure", "migration", res.Migration.ID, "error", uerr)
		}
	}
	r.log.Error("migration failed", "migration", res.Migration.ID, "error", err)
	return res
}
