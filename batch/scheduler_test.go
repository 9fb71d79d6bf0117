package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jcailloux/relais-core/reactor"
	"github.com/jcailloux/relais-core/timing"
	"github.com/stretchr/testify/require"
)

func startReactor(t *testing.T) (*reactor.Context, func()) {
	t.Helper()
	rt, err := reactor.New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- rt.Run(ctx) }()

	stop := func() {
		rt.Stop()
		cancel()
		select {
		case <-runErr:
		case <-time.After(time.Second):
			t.Fatal("reactor did not stop in time")
		}
		_ = rt.Close()
	}
	return rt, stop
}

// recordingExecutor counts how many times it was invoked and with which
// key sets, and answers every key k with "val:"+k (leaving the key
// "missing" out of the result) unless told to fail.
type recordingExecutor struct {
	mu    sync.Mutex
	calls [][]string
	fail  error
}

func (r *recordingExecutor) exec(sql string, keys []string) *reactor.Task[map[string]any] {
	r.mu.Lock()
	cp := append([]string(nil), keys...)
	r.calls = append(r.calls, cp)
	fail := r.fail
	r.mu.Unlock()

	return reactor.New(func(ctx context.Context, rt *reactor.Context, resolve func(map[string]any, error)) {
		if fail != nil {
			resolve(nil, fail)
			return
		}
		results := make(map[string]any, len(keys))
		for _, k := range keys {
			if k == "missing" {
				continue
			}
			results[k] = "val:" + k
		}
		resolve(results, nil)
	})
}

func (r *recordingExecutor) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestSchedulerCoalescesConcurrentLookupsIntoOneCall(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	exec := &recordingExecutor{}
	est := timing.New()
	s := New(rt, est, exec.exec, nil)

	const sql = "select val from t where key = any($1)"
	var wg sync.WaitGroup
	results := make([]any, 5)
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.Lookup(sql, "k"+string(rune('0'+i))).Await(context.Background(), rt)
			results[i] = v
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "val:k"+string(rune('0'+i)), results[i])
	}
	require.Equal(t, 1, exec.callCount())
}

func TestSchedulerFlushesImmediatelyAtMaxBatch(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	exec := &recordingExecutor{}
	est := timing.New()
	s := New(rt, est, exec.exec, nil)

	const sql = "select val from t where key = any($1)"
	done := make(chan error, maxBatch)
	for i := 0; i < maxBatch; i++ {
		go func(i int) {
			_, err := s.Lookup(sql, "key").Await(context.Background(), rt)
			done <- err
		}(i)
	}
	for i := 0; i < maxBatch; i++ {
		require.NoError(t, <-done)
	}
	require.Equal(t, 1, exec.callCount())
}

func TestSchedulerFlushesOnTimerWhenBelowMaxBatch(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	exec := &recordingExecutor{}
	est := timing.New()
	s := New(rt, est, exec.exec, nil)

	const sql = "select val from t where key = any($1)"
	v, err := s.Lookup(sql, "only").Await(context.Background(), rt)
	require.NoError(t, err)
	require.Equal(t, "val:only", v)
	require.Equal(t, 1, exec.callCount())
}

func TestSchedulerMissingKeyCompletesWithErrNotFound(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	exec := &recordingExecutor{}
	est := timing.New()
	s := New(rt, est, exec.exec, nil)

	const sql = "select val from t where key = any($1)"
	_, err := s.Lookup(sql, "missing").Await(context.Background(), rt)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSchedulerPropagatesExecutorError(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	boom := require.AnError
	exec := &recordingExecutor{fail: boom}
	est := timing.New()
	s := New(rt, est, exec.exec, nil)

	const sql = "select val from t where key = any($1)"
	_, err := s.Lookup(sql, "k").Await(context.Background(), rt)
	require.ErrorIs(t, err, boom)
}

func TestSchedulerCancelledLookupCompletesWithCancelledError(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	exec := &recordingExecutor{}
	est := timing.New()
	s := New(rt, est, exec.exec, nil)

	const sql = "select pg_sleep(1)"
	for i := 0; i < 20; i++ {
		est.UpdateSQLTimingPerKey(sql, 1, int64(time.Second))
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := s.Lookup(sql, "k")
	task.Run(ctx, rt, func(v any, err error) {})
	cancel()

	// give the cancellation watcher a moment to mark the lookup well before
	// the max-hold-clamped flush timer fires and drains it.
	time.Sleep(50 * time.Millisecond)

	_, err := task.Await(context.Background(), rt)
	require.Error(t, err)
	var cancelled *CancelledError
	require.ErrorAs(t, err, &cancelled)
}

func TestSchedulerUsesBootstrapHoldBeforeFirstSample(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	exec := &recordingExecutor{}
	est := timing.New()
	s := New(rt, est, exec.exec, nil)

	const sql = "select val from t where key = any($1)"
	require.Equal(t, bootstrapHold, s.flushDeadline(sql))
}

func TestSchedulerClampsFlushDeadlineToMinAndMaxHold(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	exec := &recordingExecutor{}
	est := timing.New()
	s := New(rt, est, exec.exec, nil)

	const fastSQL = "select 1"
	const slowSQL = "select pg_sleep(1)"

	for i := 0; i < 20; i++ {
		est.UpdateSQLTimingPerKey(fastSQL, 1, int64(time.Microsecond))
		est.UpdateSQLTimingPerKey(slowSQL, 1, int64(time.Second))
	}

	require.Equal(t, minHold, s.flushDeadline(fastSQL))
	require.Equal(t, maxHold, s.flushDeadline(slowSQL))
}

func TestSchedulerDedupOrderedDropsDuplicateKeysFromExecutorCall(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	exec := &recordingExecutor{}
	est := timing.New()
	s := New(rt, est, exec.exec, nil)

	const sql = "select val from t where key = any($1)"
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Lookup(sql, "dup").Await(context.Background(), rt)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, exec.callCount())
	exec.mu.Lock()
	require.Equal(t, []string{"dup"}, exec.calls[0])
	exec.mu.Unlock()
}
