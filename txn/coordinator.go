package txn

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"github.com/stratumdb/stratum/database"
)

// WorkFunc is one transactional unit of work. Returning an error rolls the
// transaction back; returning nil commits it.
type WorkFunc func(ctx context.Context, tx *Transaction) error

// Coordinator frames units of work with commit/rollback semantics. The
// retryable entry point re-runs work on transient contention failures with
// exponential backoff; an optional circuit breaker gates those re-runs.
type Coordinator struct {
	registry *Registry
	breaker  *Breaker
	log      *slog.Logger
}

// NewCoordinator wires a coordinator to its registry. breaker may be nil to
// disable gating.
func NewCoordinator(registry *Registry, breaker *Breaker, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{registry: registry, breaker: breaker, log: log}
}

// WithTransaction runs work exactly once inside a fresh transaction: commit
// on success, rollback (with the error text as reason) on failure, and
// removal from the registry in every case. The work's original error is
// returned unchanged after rollback.
func (c *Coordinator) WithTransaction(ctx context.Context, exec database.Executor, opts Options, work WorkFunc) error {
	tx, err := c.registry.Begin(ctx, exec, opts)
	if err != nil {
		return err
	}
	defer c.registry.Remove(tx.ID())

	if err := work(ctx, tx); err != nil {
		// The transaction may already be terminal (deadlocked, timed out);
		// ErrNotActive here is expected, anything else is worth a log line.
		if rbErr := tx.Rollback(err.Error()); rbErr != nil && !errors.Is(rbErr, ErrNotActive) {
			c.log.Warn("rollback after failed work", "id", tx.ID(), "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// WithRetryableTransaction repeats WithTransaction up to opts.RetryAttempts
// additional times, but only for failures in the recoverable contention class
// (deadlock, lock wait, timeout). Anything else returns immediately: retrying
// a data error against an auto-commit store would duplicate side effects.
// Sleeps between attempts follow RetryDelay * 2^attempt with no jitter. The
// last error is returned unmodified once attempts are exhausted.
func (c *Coordinator) WithRetryableTransaction(ctx context.Context, exec database.Executor, opts Options, work WorkFunc) error {
	opts = opts.withDefaults()

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = opts.RetryDelay
	schedule.Multiplier = 2
	schedule.RandomizationFactor = 0
	schedule.MaxElapsedTime = 0 // the attempt count is the only bound

	attempt := 0
	operation := func() error {
		if c.breaker != nil {
			if err := c.breaker.Allow(); err != nil {
				return backoff.Permanent(err)
			}
		}

		err := c.WithTransaction(ctx, exec, opts, work)

		if c.breaker != nil {
			if err != nil {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		if err == nil {
			return nil
		}
		if !database.Retryable(err) {
			return backoff.Permanent(err)
		}
		attempt++
		c.log.Debug("retrying after recoverable failure", "attempt", attempt, "error", err)
		return err
	}

	return backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(schedule, uint64(opts.RetryAttempts)), ctx))
}
