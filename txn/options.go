package txn

import (
	"fmt"
	"time"

	"github.com/stratumdb/stratum/database"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
	DefaultHistorySize   = 50
)

// Options configures a single transaction. The zero value means defaults: a
// 30s timeout, READ COMMITTED, 3 retry attempts with a 1s initial delay, and
// a 50-entry statement history.
type Options struct {
	Isolation     database.IsolationLevel
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	ReadOnly      bool
	HistorySize   int
}

func (o Options) withDefaults() Options {
	if o.Isolation == "" {
		o.Isolation = database.ReadCommitted
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	return o
}

// Validate reports warning-class misconfigurations. Warnings never block
// transaction creation; the registry logs them.
func (o Options) Validate() []string {
	o = o.withDefaults()
	var warnings []string
	if o.Isolation == database.Serializable && o.Timeout > time.Minute {
		warnings = append(warnings, fmt.Sprintf(
			"SERIALIZABLE isolation with a %s timeout holds strict locks for a long window and invites deadlocks; keep the timeout at or below 60s", o.Timeout))
	}
	if o.ReadOnly && o.RetryAttempts > DefaultRetryAttempts {
		warnings = append(warnings, fmt.Sprintf(
			"read-only work rarely hits contention; %d retry attempts is likely misconfigured", o.RetryAttempts))
	}
	return warnings
}
