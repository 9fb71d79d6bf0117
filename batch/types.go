package batch

import "github.com/jcailloux/relais-core/reactor"

// PendingLookup is one point lookup waiting to be folded into its
// template's next multi-key fetch.
type PendingLookup struct {
	Key       string
	resolve   func(any, error)
	cancelled bool
	done      chan struct{}
}

func newPendingLookup(key string) *PendingLookup {
	return &PendingLookup{Key: key, done: make(chan struct{})}
}

// Executor issues one multi-key fetch for sql carrying the ordered
// distinct keys collected from a flushed queue, per spec.md 4.7. It
// returns a Task so an implementation backed by backendconn's Connection
// settles its result from the same loop-thread readiness callbacks as
// everything else in this module — never a blocking call.
type Executor func(sql string, keys []string) *reactor.Task[map[string]any]
