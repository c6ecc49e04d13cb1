package migrate

import (
	"context"
	"sync"
)

// HookEvent is a runner lifecycle event a callback can subscribe to.
type HookEvent int

const (
	BeforeMigration HookEvent = iota
	AfterMigration
	BeforeRollback
	AfterRollback
)

func (e HookEvent) String() string {
	switch e {
	case BeforeMigration:
		return "before_migration"
	case AfterMigration:
		return "after_migration"
	case BeforeRollback:
		return "before_rollback"
	case AfterRollback:
		return "after_rollback"
	default:
		return "unknown"
	}
}

// Critical reports whether a failing callback aborts the surrounding
// operation. Failures on non-critical events are logged and ignored.
func (e HookEvent) Critical() bool {
	return e == BeforeMigration || e == BeforeRollback
}

// HookFunc is a lifecycle callback. Returning an error from a critical
// event aborts the operation before any store mutation.
type HookFunc func(ctx context.Context, m *Migration) error

// Hooks is a registry of lifecycle callbacks, invoked in subscription
// order. The zero value is not usable; construct with NewHooks. A nil
// *Hooks fires nothing.
type Hooks struct {
	mu  sync.Mutex
	fns map[HookEvent][]HookFunc
}

// NewHooks returns an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{fns: make(map[HookEvent][]HookFunc)}
}

// On subscribes fn to event.
func (h *Hooks) On(event HookEvent, fn HookFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns[event] = append(h.fns[event], fn)
}

// Fire invokes event's callbacks in subscription order, stopping at the
// first error, which is returned.
func (h *Hooks) Fire(ctx context.Context, event HookEvent, m *Migration) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	fns := h.fns[event]
	h.mu.Unlock()

	for _, fn := range fns {
		if err := fn(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
