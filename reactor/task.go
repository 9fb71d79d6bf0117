package reactor

import (
	"context"
	"sync"
)

// Body is the lazy unit of work a Task runs. It must call resolve exactly
// once, either synchronously (before Body returns) or later from a watch
// callback or timer fired on the same Context — never from any other
// goroutine. Body observes cancellation through ctx; spec.md 4.2 requires
// that cancellation is cooperative, so Body decides where to check ctx.Err()
// between suspension points.
type Body[T any] func(ctx context.Context, rt *Context, resolve func(T, error))

// future is a settle-once, fan-out result cell: every awaiter that
// subscribes before settlement is queued and notified together; every
// awaiter that subscribes after settlement is notified immediately with the
// same stored result. Grounded on eventloop's promise type (State, Result,
// ToChannel, Resolve/Reject, subscriber fan-out under a mutex), generalized
// to a typed value plus error instead of a single dynamic Result.
type future[T any] struct {
	mu   sync.Mutex
	done bool
	val  T
	err  error
	subs []func(T, error)
}

func (f *future[T]) subscribe(fn func(T, error)) {
	f.mu.Lock()
	if f.done {
		v, e := f.val, f.err
		f.mu.Unlock()
		fn(v, e)
		return
	}
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
}

// settle is a no-op on every call after the first, matching spec.md 4.2's
// "resumed at most once" guarantee for a Task's continuation.
func (f *future[T]) settle(v T, err error) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return
	}
	f.done = true
	f.val, f.err = v, err
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()
	for _, sub := range subs {
		sub(v, err)
	}
}

// Task is a lazy, one-shot cooperative computation: it starts suspended and
// its Body does not run until the task is started, by Run, Detach, or
// Await. Starting a Task more than once is harmless — only the first start
// has any effect — but a Task is meant to be started exactly once; sharing
// one Task across independent call sites to fan out a single result is the
// Cache package's single-flight producer pattern, not a general Task
// feature.
type Task[T any] struct {
	body Body[T]
	fut  *future[T]

	mu      sync.Mutex
	started bool
}

// New builds a Task from its body. The body does not run until the Task is
// started.
func New[T any](body Body[T]) *Task[T] {
	return &Task[T]{body: body, fut: &future[T]{}}
}

// Done returns an already-settled Task, for call sites that need to return
// a Task-shaped result without suspending (e.g. a cache hit).
func Done[T any](v T, err error) *Task[T] {
	t := &Task[T]{fut: &future[T]{}}
	t.started = true
	t.fut.settle(v, err)
	return t
}

func (t *Task[T]) start(ctx context.Context, rt *Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	body := t.body
	t.mu.Unlock()

	if body == nil {
		return
	}

	_ = rt.Post(func() {
		if err := ctx.Err(); err != nil {
			t.fut.settle(zero[T](), err)
			return
		}
		body(ctx, rt, t.fut.settle)
	})
}

// Run starts the task (if not already started) and invokes fn exactly once
// with its result. fn always runs on rt's loop thread.
func (t *Task[T]) Run(ctx context.Context, rt *Context, fn func(T, error)) {
	t.start(ctx, rt)
	t.fut.subscribe(fn)
}

// Detach starts the task without waiting for its result. Errors from a
// detached task are otherwise silent; callers that care about the outcome
// should log inside Body or use Run/Await instead.
func (t *Task[T]) Detach(ctx context.Context, rt *Context) {
	t.start(ctx, rt)
}

// Await starts the task and blocks the calling goroutine until it
// completes or ctx is done, whichever comes first. Await must not be
// called from rt's loop thread — a task's body can only ever be run by the
// loop picking it up off the posted-work queue, so blocking the loop
// thread waiting for it would deadlock.
func (t *Task[T]) Await(ctx context.Context, rt *Context) (T, error) {
	if rt.isLoopThread() {
		return zero[T](), ErrReentrantRun
	}
	type outcome struct {
		v T
		e error
	}
	ch := make(chan outcome, 1)
	t.Run(ctx, rt, func(v T, e error) {
		select {
		case ch <- outcome{v, e}:
		default:
		}
	})
	select {
	case o := <-ch:
		return o.v, o.e
	case <-ctx.Done():
		return zero[T](), ctx.Err()
	}
}

func zero[T any]() T {
	var z T
	return z
}
