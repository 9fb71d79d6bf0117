// Package reactor implements the single-owner, readiness-based I/O context
// that every other package in this module suspends and resumes on: a
// reactor (fds, timers, cross-thread wake-ups) plus a lazy Task[T]
// abstraction for stackless cooperative composition of I/O steps.
//
// The design follows the teacher event loop's shape (self-pipe wake-up,
// epoll readiness poller, a min-heap of timers, atomic CAS state machine)
// trimmed to the surface spec.md 4.1 and 4.2 actually require: this reactor
// has no microtask ring, no JS-style promise registry and no fast-path mode
// switch, because nothing in this module needs them.
package reactor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Context is the reactor: the single owning goroutine that calls Run (or
// repeatedly calls RunOnce/RunUntil) is the "loop thread" for every
// invariant in spec.md section 5. All other goroutines may only reach the
// reactor through Post, PostDelayed, CancelTimer, AddWatch, UpdateWatch,
// RemoveWatch and Stop.
type Context struct {
	state *atomicState

	queueMu sync.Mutex
	queue   []func()

	timers       *timerSet
	pendingMu    sync.Mutex
	pendingTimer map[TimerId]*pendingTimerState

	poller *epollPoller
	wake   *wakeFD

	loopGoroutine loopThreadID

	doneCh chan struct{}

	fatalMu  sync.Mutex
	fatalErr *FatalLoopError
}

type pendingTimerState struct {
	cancelled bool
}

// New creates a reactor. The poller and wake primitive are initialized
// eagerly so AddWatch/Post are usable before Run is ever called.
func New() (*Context, error) {
	poller, err := newEpollPoller()
	if err != nil {
		return nil, err
	}
	wake, err := newWakeFD()
	if err != nil {
		_ = poller.close()
		return nil, err
	}

	c := &Context{
		state:        newAtomicState(stateIdle),
		timers:       newTimerSet(),
		pendingTimer: make(map[TimerId]*pendingTimerState),
		poller:       poller,
		wake:         wake,
		doneCh:       make(chan struct{}),
	}

	// a panicking watch callback is routed through the same fatal-loop-exit
	// path as a panicking posted/timer callback, per recordFatal below.
	poller.onPanic = c.recordFatal

	if err := poller.add(wake.fd, InterestRead, func(Interest) { wake.drain() }); err != nil {
		_ = wake.close()
		_ = poller.close()
		return nil, err
	}

	return c, nil
}

// Post schedules fn to run on the loop thread. Safe from any goroutine.
// Callbacks posted from the loop thread itself run in FIFO order relative
// to each other, per spec.md 4.1.
func (c *Context) Post(fn func()) error {
	if c.state.Load() == stateStopped {
		return ErrStopped
	}
	c.queueMu.Lock()
	c.queue = append(c.queue, fn)
	c.queueMu.Unlock()
	_ = c.wake.signal()
	return nil
}

// PostDelayed schedules fn to run once, at least after d has elapsed. The
// returned TimerId remains valid (and cancellable) until fn has fired or
// CancelTimer is called, per spec.md 4.1. Safe from any goroutine: the
// cancellation flag is recorded immediately, the heap insertion itself is
// marshalled onto the loop thread via Post.
func (c *Context) PostDelayed(d time.Duration, fn func()) TimerId {
	c.pendingMu.Lock()
	id := c.timers.nextID + 1
	c.timers.nextID = id
	c.pendingTimer[id] = &pendingTimerState{}
	c.pendingMu.Unlock()

	when := time.Now().Add(d)
	_ = c.Post(func() {
		c.pendingMu.Lock()
		st, ok := c.pendingTimer[id]
		if ok && st.cancelled {
			delete(c.pendingTimer, id)
			c.pendingMu.Unlock()
			return
		}
		c.pendingMu.Unlock()
		c.timers.insert(id, when, fn)
	})
	return id
}

// CancelTimer prevents a not-yet-fired timer from running. Returns true if
// the timer was found and had not already fired. Safe from any goroutine.
func (c *Context) CancelTimer(id TimerId) bool {
	c.pendingMu.Lock()
	st, ok := c.pendingTimer[id]
	if ok && st.cancelled {
		ok = false
	} else if ok {
		st.cancelled = true
	}
	c.pendingMu.Unlock()
	if !ok {
		return false
	}
	_ = c.Post(func() {
		c.timers.cancel(id)
		c.pendingMu.Lock()
		delete(c.pendingTimer, id)
		c.pendingMu.Unlock()
	})
	return true
}

// AddWatch registers fd for readiness notification. cb runs on the loop
// thread whenever the poller reports any of the requested Interest.
func (c *Context) AddWatch(fd int, interest Interest, cb func(Interest)) (WatchHandle, error) {
	wrapped := cb
	if cb != nil {
		wrapped = func(i Interest) {
			c.loopGoroutine.claim()
			defer c.loopGoroutine.release()
			cb(i)
		}
	}
	if err := c.poller.add(fd, interest, wrapped); err != nil {
		return WatchHandle{}, err
	}
	return WatchHandle{fd: fd}, nil
}

// UpdateWatch changes the interest set for an existing watch.
func (c *Context) UpdateWatch(h WatchHandle, interest Interest) error {
	return c.poller.update(h.fd, interest)
}

// RemoveWatch unregisters a watch.
func (c *Context) RemoveWatch(h WatchHandle) error {
	return c.poller.remove(h.fd)
}

// Run drives the reactor until Stop is called or ctx is cancelled. It must
// not be called from the loop thread (i.e. from within a Task body or a
// watch/timer callback).
func (c *Context) Run(ctx context.Context) error {
	if c.isLoopThread() {
		return ErrReentrantRun
	}
	if !c.state.CAS(stateIdle, stateRunning) {
		return ErrAlreadyRunning
	}
	defer close(c.doneCh)

	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.wake.signal()
		case <-ctxDone:
		}
	}()
	defer close(ctxDone)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		if c.state.Load() == stateStopping {
			c.drain()
			c.state.Store(stateStopped)
			return nil
		}
		select {
		case <-ctx.Done():
			c.drain()
			c.state.Store(stateStopped)
			return ctx.Err()
		default:
		}
		c.tick(defaultMaxWaitMs)
		if err := c.loadFatal(); err != nil {
			c.state.Store(stateStopped)
			return err
		}
	}
}

// RunOnce performs a single reactor iteration: drain the posted-callback
// queue, fire due timers, block in the poller for at most timeoutMs (a
// negative value blocks until a timer, watch, or wake-up), then fire any
// timers that became due while polling.
func (c *Context) RunOnce(timeoutMs int) error {
	c.tick(timeoutMs)
	if err := c.loadFatal(); err != nil {
		c.state.Store(stateStopped)
		return err
	}
	return nil
}

// RunUntil repeatedly calls RunOnce until predicate returns true or Stop is
// called.
func (c *Context) RunUntil(predicate func() bool) error {
	for !predicate() {
		if c.state.Load() == stateStopping || c.state.Load() == stateStopped {
			return nil
		}
		if err := c.RunOnce(defaultMaxWaitMs); err != nil {
			return err
		}
	}
	return nil
}

// Stop requests the reactor to terminate. Idempotent: calling it more than
// once, or after the loop has already exited, is a no-op.
func (c *Context) Stop() {
	for {
		cur := c.state.Load()
		if cur == stateStopping || cur == stateStopped {
			return
		}
		if cur == stateIdle {
			c.state.Store(stateStopped)
			return
		}
		if c.state.CAS(cur, stateStopping) {
			_ = c.wake.signal()
			return
		}
	}
}

// Close releases the poller and wake primitives. Call after Run returns.
func (c *Context) Close() error {
	err1 := c.poller.close()
	err2 := c.wake.close()
	if err1 != nil {
		return err1
	}
	return err2
}

const defaultMaxWaitMs = 10_000

func (c *Context) tick(capMs int) {
	c.loopGoroutine.claim()
	c.drainQueue()
	c.runDueTimers()
	c.loopGoroutine.release()

	// the flag stays clear while blocked in the poller; watch callbacks
	// claim it themselves (see AddWatch).
	timeout := c.computeTimeout(capMs)
	_ = c.poller.poll(timeout)

	c.loopGoroutine.claim()
	defer c.loopGoroutine.release()
	c.drainQueue()
	c.runDueTimers()
}

func (c *Context) drain() {
	// Drain queue and due timers repeatedly until both are empty; mirrors
	// the teacher loop's multi-pass shutdown drain, simplified since this
	// reactor has no microtask ring to interleave.
	for {
		before := c.queueLen() + c.timers.len()
		c.drainQueue()
		c.runDueTimers()
		after := c.queueLen() + c.timers.len()
		if before == 0 && after == 0 {
			return
		}
		if after == 0 {
			return
		}
	}
}

func (c *Context) queueLen() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queue)
}

func (c *Context) drainQueue() {
	c.queueMu.Lock()
	q := c.queue
	c.queue = nil
	c.queueMu.Unlock()
	for _, fn := range q {
		if c.safeRun(fn) {
			// a fatal error is already recorded; stop running further
			// callbacks from this tick, Run/RunOnce will exit the loop.
			return
		}
	}
}

func (c *Context) runDueTimers() {
	now := time.Now()
	for _, e := range c.timers.popExpired(now) {
		c.pendingMu.Lock()
		delete(c.pendingTimer, e.id)
		c.pendingMu.Unlock()
		if c.safeRun(e.fn) {
			return
		}
	}
}

func (c *Context) computeTimeout(capMs int) int {
	timeoutMs := capMs
	if when, ok := c.timers.nextDeadline(); ok {
		d := when.Sub(time.Now())
		if d < 0 {
			d = 0
		}
		ms := int(d / time.Millisecond)
		if d%time.Millisecond != 0 {
			ms++
		}
		if timeoutMs < 0 || ms < timeoutMs {
			timeoutMs = ms
		}
	}
	return timeoutMs
}

// safeRun runs fn, recovering any panic into a fatal loop error instead of
// letting it unwind the loop goroutine. It reports whether fn panicked, so
// callers can stop processing the rest of their batch: once a fatal error is
// recorded, spec.md 141 requires the loop to exit rather than keep ticking.
func (c *Context) safeRun(fn func()) (panicked bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			c.recordFatal(r)
			panicked = true
		}
	}()
	fn()
	return false
}

// recordFatal converts a recovered panic value into a *FatalLoopError and
// stores it, first-wins. Also used as poller.onPanic, so a panicking watch
// callback terminates the loop the same way a panicking timer or posted
// callback does.
func (c *Context) recordFatal(r any) {
	c.fatalMu.Lock()
	defer c.fatalMu.Unlock()
	if c.fatalErr != nil {
		return
	}
	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("%v", r)
	}
	c.fatalErr = &FatalLoopError{Cause: cause}
}

// loadFatal returns the recorded fatal error, if any.
func (c *Context) loadFatal() *FatalLoopError {
	c.fatalMu.Lock()
	defer c.fatalMu.Unlock()
	return c.fatalErr
}

// isLoopThread reports whether the calling goroutine is the one currently
// executing Run.
func (c *Context) isLoopThread() bool {
	return c.loopGoroutine.isCurrent()
}
