package batch

import (
	"context"
	"time"

	"github.com/jcailloux/relais-core/reactor"
	"github.com/jcailloux/relais-core/timing"
	"github.com/joeycumines/logiface"
)

const (
	minHold       = 50 * time.Microsecond
	maxHold       = 2 * time.Millisecond
	bootstrapHold = 200 * time.Microsecond
	maxBatch      = 256
)

// queue is one SQL template's pending batch: a FIFO of PendingLookup plus
// the timer that will flush it if nothing else does first.
type queue struct {
	sql          string
	pending      []*PendingLookup
	headEstimate time.Duration
	timerID      reactor.TimerId
	hasTimer     bool
}

// Scheduler is BatchScheduler from spec.md 4.7. All queue mutation happens
// on rt's loop thread — Lookup's body, like every reactor.Task body in
// this module, is only ever invoked there, so two lookups arriving
// "concurrently" are simply serialized in arrival order.
type Scheduler struct {
	rt   *reactor.Context
	est  *timing.Estimator
	exec Executor
	log  *logiface.Logger[logiface.Event]

	queues map[string]*queue
}

// New returns a Scheduler that sizes flush deadlines from est and issues
// flushed batches through exec.
func New(rt *reactor.Context, est *timing.Estimator, exec Executor, log *logiface.Logger[logiface.Event]) *Scheduler {
	return &Scheduler{rt: rt, est: est, exec: exec, log: log, queues: make(map[string]*queue)}
}

// Lookup schedules a point lookup for key under sql's template, coalescing
// it with any other pending lookups for the same template.
func (s *Scheduler) Lookup(sql, key string) *reactor.Task[any] {
	return reactor.New(func(ctx context.Context, rt *reactor.Context, resolve func(any, error)) {
		pl := newPendingLookup(key)
		pl.resolve = resolve
		s.enqueue(sql, pl)
		watchCancellation(ctx, rt, pl.done, func() { pl.cancelled = true })
	})
}

func (s *Scheduler) enqueue(sql string, pl *PendingLookup) {
	estimate := s.est.GetRequestTime(sql)

	q, ok := s.queues[sql]
	if ok && !timing.CanMergePG(q.headEstimate, estimate) {
		// the template's cost has drifted too far from what this queue was
		// opened against to share its flush deadline — flush what's there
		// and start over, per spec.md 4.7's merge-eligibility check.
		s.flush(q)
		q, ok = nil, false
	}
	if !ok {
		q = &queue{sql: sql, headEstimate: estimate}
		s.queues[sql] = q
		s.armTimer(q)
	}

	q.pending = append(q.pending, pl)
	if len(q.pending) >= maxBatch {
		s.flush(q)
	}
}

func (s *Scheduler) armTimer(q *queue) {
	deadline := s.flushDeadline(q.sql)
	q.timerID = s.rt.PostDelayed(deadline, func() {
		if cur, ok := s.queues[q.sql]; ok && cur == q {
			s.flush(q)
		}
	})
	q.hasTimer = true
}

func (s *Scheduler) flushDeadline(sql string) time.Duration {
	if s.est.IsSQLBootstrapping(sql) {
		return bootstrapHold
	}
	d := s.est.GetRequestTime(sql)
	if d < minHold {
		return minHold
	}
	if d > maxHold {
		return maxHold
	}
	return d
}

// flush retires q (removing it from the active queue map) and, if it has
// any lookups, issues its multi-key fetch.
func (s *Scheduler) flush(q *queue) {
	if cur, ok := s.queues[q.sql]; ok && cur == q {
		delete(s.queues, q.sql)
	}
	if q.hasTimer {
		s.rt.CancelTimer(q.timerID)
	}
	if len(q.pending) == 0 {
		return
	}
	s.issue(q)
}

func (s *Scheduler) issue(q *queue) {
	keys := dedupOrdered(q.pending)
	pending := q.pending
	sql := q.sql
	start := time.Now()
	s.exec(sql, keys).Run(context.Background(), s.rt, func(results map[string]any, err error) {
		totalNs := time.Since(start).Nanoseconds()
		s.complete(pending, sql, keys, results, err, totalNs)
	})
}

func (s *Scheduler) complete(pending []*PendingLookup, sql string, keys []string, results map[string]any, err error, totalNs int64) {
	if err == nil {
		s.est.UpdateSQLTimingPerKey(sql, len(keys), totalNs)
	} else {
		logEvent(s.log, "batch: multi-key fetch failed: "+err.Error())
	}
	for _, pl := range pending {
		switch {
		case pl.cancelled:
			s.finish(pl, nil, &CancelledError{})
		case err != nil:
			s.finish(pl, nil, err)
		default:
			if v, found := results[pl.Key]; found {
				s.finish(pl, v, nil)
			} else {
				s.finish(pl, nil, ErrNotFound)
			}
		}
	}
}

func (s *Scheduler) finish(pl *PendingLookup, v any, err error) {
	defer close(pl.done)
	if pl.resolve != nil {
		pl.resolve(v, err)
	}
}
