package reactor

import "sync/atomic"

// loopThreadID is a simple reentrancy guard: true for the duration of a
// single tick (the window in which posted callbacks, due timers and watch
// callbacks actually execute). It exists only to catch the realistic misuse
// of calling Run from within one of those callbacks; a genuinely separate
// goroutine calling Run concurrently while this one is blocked in the
// poller is rejected instead by the state CAS in Run (ErrAlreadyRunning).
type loopThreadID struct {
	inTick atomic.Bool
}

func (l *loopThreadID) claim() {
	l.inTick.Store(true)
}

func (l *loopThreadID) release() {
	l.inTick.Store(false)
}

func (l *loopThreadID) isCurrent() bool {
	return l.inTick.Load()
}
