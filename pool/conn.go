package pool

import (
	"github.com/jcailloux/relais-core/backendconn"
	"github.com/jcailloux/relais-core/reactor"
)

// Conn is the subset of backendconn.PGConnection / backendconn.RedisConnection
// that Pool needs: enough to dial, inspect lifecycle state, and tear down.
// Pool never reaches for protocol-specific methods, so either connection
// type satisfies it without an adapter.
type Conn interface {
	State() backendconn.ConnState
	Connect() *reactor.Task[struct{}]
	Close()
}

// Factory produces a fresh, StateDisconnected Conn bound to one backend
// address. Pool calls it once per slot at construction and again each time
// a slot needs to be replaced after an unrecoverable error — a
// backendconn.Connection can't be redialed past Closed, so reconnection
// always starts from a brand new instance.
type Factory[C Conn] func() C

// healthy reports whether a connection is fit to be leased: connected and
// not in the process of tearing down. Busy still counts as healthy — PG and
// Redis connections each serialize their own operation queue internally, so
// leasing a busy connection just means the new op waits behind the current
// one, same as it would on any other Ready connection.
func healthy(c Conn) bool {
	switch c.State() {
	case backendconn.StateReady, backendconn.StateBusy:
		return true
	default:
		return false
	}
}
