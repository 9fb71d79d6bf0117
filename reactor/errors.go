package reactor

import "errors"

// Sentinel errors for IoContext and Task lifecycle, in the teacher event
// loop's style (errors.go): plain sentinels for payload-free conditions,
// typed wrapped errors (see FatalLoopError) where a cause needs to travel.
var (
	// ErrAlreadyRunning is returned by Run when the context is already running.
	ErrAlreadyRunning = errors.New("reactor: context is already running")

	// ErrStopped is returned by operations attempted after Stop has fully
	// drained the loop.
	ErrStopped = errors.New("reactor: context is stopped")

	// ErrReentrantRun is returned when Run is invoked from the loop thread itself.
	ErrReentrantRun = errors.New("reactor: cannot call Run from within the loop")

	// ErrUnsupportedFD is returned by AddWatch when the file descriptor is
	// already registered. An error from epoll itself is returned as is.
	ErrUnsupportedFD = errors.New("reactor: file descriptor unsupported by poller")

	// ErrUnknownWatch is returned by UpdateWatch/RemoveWatch for a handle
	// that is not currently registered.
	ErrUnknownWatch = errors.New("reactor: watch handle not registered")

	// ErrUnknownTimer names the condition of a timer id that already fired
	// or was already cancelled. CancelTimer reports that condition with a
	// false result rather than returning this error.
	ErrUnknownTimer = errors.New("reactor: timer id not found")

	// ErrCancelled marks a Task that completed via cooperative cancellation.
	ErrCancelled = errors.New("reactor: task cancelled")
)

// FatalLoopError wraps a panic or unrecoverable poller error that forces the
// loop to exit. Unwrap exposes the underlying cause for errors.Is/As, in the
// same spirit as the teacher's PanicError.Unwrap.
type FatalLoopError struct {
	Cause error
}

func (e *FatalLoopError) Error() string {
	return "reactor: fatal loop error: " + e.Cause.Error()
}

func (e *FatalLoopError) Unwrap() error {
	return e.Cause
}
