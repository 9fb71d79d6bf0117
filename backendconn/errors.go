package backendconn

import "errors"

// Sentinel and typed errors for Connection, in the teacher event loop's
// style (eventloop/errors.go): plain sentinels for payload-free conditions,
// typed wrapped errors where a cause needs to travel through errors.Is/As.
// This is spec.md 7's error taxonomy as it applies at the Connection layer.
var (
	// ErrConnectionNotReady is returned by Connect when the Connection has
	// already been dialed (it is no longer Disconnected). Operations
	// submitted before the Connection is Ready are queued, not rejected.
	ErrConnectionNotReady = errors.New("backendconn: connection not ready")

	// ErrConnectionClosed is returned by operations on a Connection that has
	// already transitioned to Closed.
	ErrConnectionClosed = errors.New("backendconn: connection closed")

	// errPeerClosed marks a zero-byte read, meaning the peer closed its
	// write side (or the whole connection) in an orderly way.
	errPeerClosed = errors.New("backendconn: peer closed connection")
)

// ConnectionLostError marks a transient transport failure (I/O timeout,
// peer reset). Per spec.md 7, callers retry via the Pool rather than the
// Connection itself.
type ConnectionLostError struct {
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause == nil {
		return "backendconn: connection lost"
	}
	return "backendconn: connection lost: " + e.Cause.Error()
}

func (e *ConnectionLostError) Unwrap() error { return e.Cause }

// BackendError is an application-level error from the backend itself (a SQL
// constraint violation, a rejected Redis AUTH). It does not tear down the
// Connection, but it is not wrapped in a successful result either:
// PGConnection resolves the failed op's Task with a BackendError as its
// error and an empty PgResult. RedisConnection.Exec does not produce one —
// a Redis error reply (e.g. WRONGTYPE) comes back as an error-kind
// resp.Value with a nil error; only a failed AUTH handshake becomes a
// BackendError.
type BackendError struct {
	// Message is the backend-supplied error text.
	Message string
	// Fields carries PG's ErrorResponse field codes (e.g. 'C' sqlstate,
	// 'M' message), empty for Redis where the reply is a single string.
	Fields map[byte]string
}

func (e *BackendError) Error() string { return "backendconn: backend error: " + e.Message }

// CancelledError marks an operation whose caller cancelled its Task before
// (or during) the operation, per spec.md 8's "a cancelled Task never
// resumes past its next suspension point".
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause == nil {
		return "backendconn: operation cancelled"
	}
	return "backendconn: operation cancelled: " + e.Cause.Error()
}

func (e *CancelledError) Unwrap() error { return e.Cause }

// TimeoutError marks a deadline exceeded while awaiting a reply.
type TimeoutError struct {
	Cause error
}

func (e *TimeoutError) Error() string {
	if e.Cause == nil {
		return "backendconn: operation timed out"
	}
	return "backendconn: operation timed out: " + e.Cause.Error()
}

func (e *TimeoutError) Unwrap() error { return e.Cause }
