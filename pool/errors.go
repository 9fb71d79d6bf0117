package pool

import (
	"context"
	"time"
)

// PoolExhaustedError is returned by Lease when the pool has an explicit
// max-wait configured (SetMaxWait) and that duration elapses before a
// connection becomes available. Per spec.md 7, it is only ever signalled
// under that condition; a pool with no max-wait blocks indefinitely instead,
// surfacing the caller's own context cancellation if any.
type PoolExhaustedError struct {
	Waited time.Duration
}

func (e *PoolExhaustedError) Error() string {
	return "pool: exhausted, no connection available after " + e.Waited.String()
}

func (e *PoolExhaustedError) Unwrap() error { return context.DeadlineExceeded }
