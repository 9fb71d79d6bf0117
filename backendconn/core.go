package backendconn

import (
	"github.com/jcailloux/relais-core/reactor"
)

// core is the socket and state-machine plumbing shared by PGConnection and
// RedisConnection: one fd, one read scratch buffer, one pending-write
// buffer, and the reactor wiring to drive both without blocking the loop
// thread. It owns everything in spec.md 4.4 that doesn't depend on which
// wire protocol is in play; the PG- and Redis-specific framing lives in
// pgconn.go and redisconn.go.
type core struct {
	rt    *reactor.Context
	host  string
	port  int
	fd    int
	watch reactor.WatchHandle
	state *atomicConnState

	readBuf  []byte
	writeBuf []byte

	// onConnected runs once the TCP handshake completes (spec.md's
	// Connecting->Handshaking transition). It returns nothing; a handshake
	// that goes wrong later aborts the connection through fail.
	onConnected func()
	// onReadable runs whenever new bytes have been appended to readBuf; it
	// is expected to feed a protocol decoder and must not block.
	onReadable func(data []byte)
	// onFailed runs once, when the connection transitions to Closing for
	// any reason — I/O error, protocol error, or an explicit Close.
	onFailed func(err error)
}

func newCore(rt *reactor.Context, host string, port int) *core {
	return &core{
		rt:      rt,
		host:    host,
		port:    port,
		fd:      -1,
		state:   newAtomicConnState(StateDisconnected),
		readBuf: make([]byte, 64*1024),
	}
}

// dial starts a non-blocking TCP connect and arranges for onConnected to
// run on the loop thread once it completes.
func (c *core) dial() error {
	if !c.state.CAS(StateDisconnected, StateConnecting) {
		return ErrConnectionNotReady
	}
	fd, connected, err := dialNonBlocking(c.host, c.port)
	if err != nil {
		c.state.Store(StateClosed)
		return err
	}
	c.fd = fd
	if connected {
		c.finishConnect()
		return nil
	}
	watch, err := c.rt.AddWatch(fd, reactor.InterestWrite, c.onConnectWritable)
	if err != nil {
		_ = closeFD(fd)
		c.state.Store(StateClosed)
		return err
	}
	c.watch = watch
	return nil
}

func (c *core) onConnectWritable(reactor.Interest) {
	if err := checkConnectError(c.fd); err != nil {
		c.fail(&ConnectionLostError{Cause: err})
		return
	}
	c.finishConnect()
}

func (c *core) finishConnect() {
	c.state.Store(StateHandshaking)
	// UpdateWatch only changes the interest mask on an existing entry, not
	// its callback, and onConnectWritable was only ever registered for the
	// connecting phase (or never registered at all, if connect completed
	// inline) — either way the steady-state callback needs (re)installing.
	if c.watch != (reactor.WatchHandle{}) {
		_ = c.rt.RemoveWatch(c.watch)
	}
	watch, err := c.rt.AddWatch(c.fd, reactor.InterestRead, c.onSocketEvent)
	if err != nil {
		c.fail(&ConnectionLostError{Cause: err})
		return
	}
	c.watch = watch
	if c.onConnected != nil {
		c.onConnected()
	}
}

// onSocketEvent is the single callback registered for the connected fd; it
// dispatches on whichever readiness bits fired, since the poller delivers
// one callback per fd rather than one per interest.
func (c *core) onSocketEvent(interest reactor.Interest) {
	if interest&reactor.InterestWrite != 0 {
		c.onWritable()
		if c.state.Load() == StateClosed {
			return
		}
	}
	if interest&reactor.InterestRead != 0 {
		c.onSocketReadable()
	}
}

func (c *core) onSocketReadable() {
	n, err := readFD(c.fd, c.readBuf)
	if err != nil {
		if isWouldBlock(err) {
			return
		}
		c.fail(&ConnectionLostError{Cause: err})
		return
	}
	if n == 0 {
		c.fail(&ConnectionLostError{Cause: errPeerClosed})
		return
	}
	if c.onReadable != nil {
		c.onReadable(c.readBuf[:n])
	}
}

// send queues bytes for write, writing as much as the socket accepts
// immediately and buffering the remainder for the next write-readiness
// notification. Order is preserved: a later send appends after any bytes
// still pending from an earlier one.
func (c *core) send(data []byte) {
	if len(c.writeBuf) > 0 {
		c.writeBuf = append(c.writeBuf, data...)
		return
	}
	n, err := writeFD(c.fd, data)
	if err != nil {
		if isWouldBlock(err) {
			c.writeBuf = append(c.writeBuf, data...)
			c.armWritable()
			return
		}
		c.fail(&ConnectionLostError{Cause: err})
		return
	}
	if n < len(data) {
		c.writeBuf = append(c.writeBuf, data[n:]...)
		c.armWritable()
	}
}

func (c *core) armWritable() {
	_ = c.rt.UpdateWatch(c.watch, reactor.InterestRead|reactor.InterestWrite)
}

func (c *core) onWritable() {
	if len(c.writeBuf) == 0 {
		return
	}
	n, err := writeFD(c.fd, c.writeBuf)
	if err != nil {
		if isWouldBlock(err) {
			return
		}
		c.fail(&ConnectionLostError{Cause: err})
		return
	}
	c.writeBuf = c.writeBuf[n:]
	if len(c.writeBuf) == 0 {
		_ = c.rt.UpdateWatch(c.watch, reactor.InterestRead)
	}
}

// fail transitions the connection to Closing/Closed and invokes onFailed
// exactly once, per spec.md 4.4's "any state -> Closing on unrecoverable
// error".
func (c *core) fail(err error) {
	prev := c.state.Load()
	if prev == StateClosing || prev == StateClosed {
		return
	}
	c.state.Store(StateClosing)
	if c.fd >= 0 {
		_ = c.rt.RemoveWatch(c.watch)
		_ = closeFD(c.fd)
		c.fd = -1
	}
	c.state.Store(StateClosed)
	if c.onFailed != nil {
		c.onFailed(err)
	}
}

func (c *core) close() {
	c.fail(&ConnectionLostError{Cause: ErrConnectionClosed})
}
