// Package batch implements BatchScheduler from spec.md 4.7: coalesces
// individual point lookups of the form `SELECT ... WHERE key = ANY($1)`
// into one multi-key fetch per SQL template, flushed on a timer sized from
// timing.Estimator's per-SQL cost estimate, or once a queue reaches its
// maximum size.
//
// Unlike microbatch.Batcher, which runs its own goroutine and channel-pair
// protocol per batcher, Scheduler drives its flush timers through the
// reactor's PostDelayed so batching participates in the same single-writer
// event loop as everything else in this module — a PendingLookup arriving
// and a timer firing are always handled on the loop thread, never racing
// each other.
package batch
