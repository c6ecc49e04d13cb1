package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stratumdb/stratum/database"
)

// DefaultMaxConcurrent is the registry bound applied when none is configured.
const DefaultMaxConcurrent = 100

// Registry is a bounded set of live transactions keyed by id. It is the one
// structure mutated by concurrent callers and is safe for concurrent use; the
// bound is the system's only admission control, so creation at capacity fails
// immediately instead of queueing.
type Registry struct {
	max int
	log *slog.Logger

	mu   sync.Mutex
	txns map[string]*Transaction
}

// NewRegistry constructs a registry holding at most maxConcurrent live
// transactions (DefaultMaxConcurrent when zero or negative).
func NewRegistry(maxConcurrent int, log *slog.Logger) *Registry {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		max:  maxConcurrent,
		log:  log,
		txns: make(map[string]*Transaction),
	}
}

// Begin constructs a transaction over exec and registers it, failing fast
// with ErrCapacityExceeded at the bound. Option warnings are logged, never
// fatal. Where the dialect supports it, the isolation level is applied
// best-effort.
func (r *Registry) Begin(ctx context.Context, exec database.Executor, opts Options) (*Transaction, error) {
	opts = opts.withDefaults()
	for _, warning := range opts.Validate() {
		r.log.Warn("transaction options: " + warning)
	}

	r.mu.Lock()
	if len(r.txns) >= r.max {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w (%d active)", ErrCapacityExceeded, r.max)
	}
	tx := newTransaction(exec, opts, r.log)
	r.txns[tx.id] = tx
	r.mu.Unlock()

	if stmt, ok := exec.Dialect().IsolationSQL(opts.Isolation); ok {
		if _, err := exec.Exec(ctx, stmt, nil, database.ExecOptions{}); err != nil {
			r.log.Warn("could not apply isolation level",
				"id", tx.id, "isolation", opts.Isolation, "error", err)
		}
	}

	r.log.Debug("transaction started",
		"id", tx.id, "isolation", opts.Isolation, "timeout", opts.Timeout, "read_only", opts.ReadOnly)
	return tx, nil
}

// Get returns the live transaction with the given id.
func (r *Registry) Get(id string) (*Transaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txns[id]
	return tx, ok
}

// Remove drops the transaction from the registry, reporting whether it was
// present. Callers remove a transaction only after it reaches a terminal
// state.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.txns[id]; !ok {
		return false
	}
	delete(r.txns, id)
	return true
}

// Active returns the number of registered transactions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txns)
}

// Cleanup sweeps out every transaction that is terminal or has outlived its
// own timeout, returning the count removed. Intended to be driven by an
// external scheduler.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, tx := range r.txns {
		if tx.Status().Terminal() || tx.expired() {
			delete(r.txns, id)
			removed++
		}
	}
	if removed > 0 {
		r.log.Debug("registry cleanup", "removed", removed, "active", len(r.txns))
	}
	return removed
}

// RollbackAll rolls back every still-active transaction concurrently and
// clears the registry. Individual failures are logged, not propagated; used
// for coordinated shutdown.
func (r *Registry) RollbackAll(reason string) {
	r.mu.Lock()
	txns := make([]*Transaction, 0, len(r.txns))
	for _, tx := range r.txns {
		txns = append(txns, tx)
	}
	r.txns = make(map[string]*Transaction)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, tx := range txns {
		tx := tx
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tx.Rollback(reason); err != nil && !errors.Is(err, ErrNotActive) {
				r.log.Error("rollback failed during shutdown", "id", tx.ID(), "error", err)
			}
		}()
	}
	wg.Wait()

	if len(txns) > 0 {
		r.log.Info("rolled back all transactions", "count", len(txns), "reason", reason)
	}
}
