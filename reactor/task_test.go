package reactor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskRunResolvesOnce(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	var starts atomic.Int32
	task := New(func(ctx context.Context, rt *Context, resolve func(int, error)) {
		starts.Add(1)
		resolve(42, nil)
	})

	var calls atomic.Int32
	done := make(chan struct{}, 2)
	task.Run(context.Background(), rt, func(v int, err error) {
		require.NoError(t, err)
		require.Equal(t, 42, v)
		calls.Add(1)
		done <- struct{}{}
	})
	task.Run(context.Background(), rt, func(v int, err error) {
		require.NoError(t, err)
		require.Equal(t, 42, v)
		calls.Add(1)
		done <- struct{}{}
	})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("subscriber never notified")
		}
	}

	require.Equal(t, int32(1), starts.Load(), "body must run exactly once regardless of subscriber count")
	require.Equal(t, int32(2), calls.Load())
}

func TestTaskAwaitBlocksUntilSettled(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	task := New(func(ctx context.Context, rt *Context, resolve func(string, error)) {
		rt.PostDelayed(10*time.Millisecond, func() { resolve("done", nil) })
	})

	v, err := task.Await(context.Background(), rt)
	require.NoError(t, err)
	require.Equal(t, "done", v)
}

func TestTaskAwaitPropagatesContextCancellation(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	never := New(func(ctx context.Context, rt *Context, resolve func(int, error)) {
		// Never resolves on its own; relies on ctx cancellation.
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := never.Await(ctx, rt)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTaskBodySeesCancelledContextBeforeStarting(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var started atomic.Bool
	task := New(func(ctx context.Context, rt *Context, resolve func(int, error)) {
		started.Store(true)
		resolve(1, nil)
	})

	v, err := runSync(t, task, ctx, rt)
	require.Zero(t, v)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, started.Load(), "body must not run once its context is already cancelled")
}

func TestDoneTaskIsAlreadySettled(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	task := Done(7, errors.New("boom"))
	v, err := runSync(t, task, context.Background(), rt)
	require.Equal(t, 7, v)
	require.EqualError(t, err, "boom")
}

// runSync subscribes to a task's result and waits for it, without the
// loop-thread restriction Await imposes — usable from the test goroutine
// regardless of whether it happens to be the reactor's own goroutine.
func runSync[T any](t *testing.T, task *Task[T], ctx context.Context, rt *Context) (T, error) {
	t.Helper()
	type outcome struct {
		v T
		e error
	}
	ch := make(chan outcome, 1)
	task.Run(ctx, rt, func(v T, e error) { ch <- outcome{v, e} })
	select {
	case o := <-ch:
		return o.v, o.e
	case <-time.After(time.Second):
		t.Fatal("task never settled")
		var zero T
		return zero, nil
	}
}
