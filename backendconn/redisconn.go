package backendconn

import (
	"context"
	"sync"

	"github.com/jcailloux/relais-core/reactor"
	"github.com/jcailloux/relais-core/wire/resp"
	"github.com/joeycumines/logiface"
)

type redisOp struct {
	wire      []byte
	sent      bool
	internal  bool // AUTH handshake op, never exposed through Exec's Task
	resolve   func(resp.Value, error)
	cancelled bool
	done      chan struct{}
}

func newRedisOp() *redisOp { return &redisOp{done: make(chan struct{})} }

// RedisConnection is a Connection<Redis> per spec.md 4.4: RESP2 pipelining
// permitted, replies consumed strictly in submission order (the protocol's
// only ordering guarantee), no handshake unless AUTH is configured.
type RedisConnection struct {
	core     *core
	dec      resp.Decoder
	password string
	log      *logiface.Logger[logiface.Event]

	mu             sync.Mutex
	queue          []*redisOp
	connectResolve func(struct{}, error)
}

// NewRedisConnection constructs a connection bound to rt's reactor. password
// may be empty, in which case the connection skips straight to Ready after
// the TCP handshake, per spec.md 4.4.
func NewRedisConnection(rt *reactor.Context, host string, port int, password string, log *logiface.Logger[logiface.Event]) *RedisConnection {
	c := &RedisConnection{core: newCore(rt, host, port), password: password, log: log}
	c.core.onConnected = c.onTCPConnected
	c.core.onReadable = c.onBytes
	c.core.onFailed = c.onFailed
	return c
}

// State reports the connection's current lifecycle state.
func (c *RedisConnection) State() ConnState { return c.core.state.Load() }

// Connect dials the backend. The returned Task settles once the connection
// reaches Ready (immediately after TCP connect, or after a successful AUTH
// reply) or fails.
func (c *RedisConnection) Connect() *reactor.Task[struct{}] {
	return reactor.New(func(ctx context.Context, rt *reactor.Context, resolve func(struct{}, error)) {
		c.mu.Lock()
		c.connectResolve = resolve
		c.mu.Unlock()
		if err := c.core.dial(); err != nil {
			c.mu.Lock()
			r := c.connectResolve
			c.connectResolve = nil
			c.mu.Unlock()
			if r != nil {
				r(struct{}{}, err)
			}
		}
	})
}

func (c *RedisConnection) onTCPConnected() {
	if c.password == "" {
		c.core.state.Store(StateReady)
		c.settleConnect(nil)
		c.dispatchPending()
		return
	}
	c.core.state.Store(StateHandshaking)
	op := newRedisOp()
	op.internal = true
	op.wire = resp.EncodeCommandStrings("AUTH", c.password)
	op.resolve = func(v resp.Value, err error) {
		if err == nil && v.IsError() {
			err = &BackendError{Message: v.Str}
		}
		if err != nil {
			c.settleConnect(err)
			c.core.fail(err)
			return
		}
		c.core.state.Store(StateReady)
		c.settleConnect(nil)
		c.dispatchPending()
	}
	c.mu.Lock()
	c.queue = append(c.queue, op)
	c.mu.Unlock()
	c.core.send(op.wire)
	op.sent = true
}

func (c *RedisConnection) settleConnect(err error) {
	c.mu.Lock()
	r := c.connectResolve
	c.connectResolve = nil
	c.mu.Unlock()
	if r != nil {
		r(struct{}{}, err)
	}
}

func (c *RedisConnection) onBytes(data []byte) {
	c.dec.Feed(data)
	for {
		v, ok, err := c.dec.Next()
		if err != nil {
			c.core.fail(err)
			return
		}
		if !ok {
			return
		}
		c.mu.Lock()
		var op *redisOp
		if len(c.queue) > 0 {
			op = c.queue[0]
			c.queue = c.queue[1:]
		}
		empty := len(c.queue) == 0
		c.mu.Unlock()
		if empty {
			c.core.state.Store(StateReady)
		}
		if op == nil {
			continue
		}
		c.completeOp(op, v, nil)
	}
}

func (c *RedisConnection) completeOp(op *redisOp, v resp.Value, err error) {
	defer close(op.done)
	if op.cancelled && err == nil {
		err = &CancelledError{}
	}
	if op.resolve != nil {
		op.resolve(v, err)
	}
}

func (c *RedisConnection) onFailed(err error) {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()
	c.settleConnect(err)
	for _, op := range pending {
		c.completeOp(op, resp.Value{}, err)
	}
	logEvent(c.log, "redis connection failed: "+errString(err))
}

// Exec submits a pipelined RESP2 command — spec.md 4.4's Connection.exec.
func (c *RedisConnection) Exec(args ...string) *reactor.Task[resp.Value] {
	return reactor.New(func(ctx context.Context, rt *reactor.Context, resolve func(resp.Value, error)) {
		op := newRedisOp()
		op.resolve = resolve
		op.wire = resp.EncodeCommandStrings(args...)
		if c.core.state.Load() == StateClosed {
			c.completeOp(op, resp.Value{}, &ConnectionLostError{Cause: ErrConnectionClosed})
			return
		}
		c.mu.Lock()
		c.queue = append(c.queue, op)
		ready := c.core.state.Load() == StateReady || c.core.state.Load() == StateBusy
		c.mu.Unlock()
		if ready {
			c.core.state.Store(StateBusy)
			c.core.send(op.wire)
			op.sent = true
		}
		watchCancellation(ctx, rt, op.done, func() { op.cancelled = true })
	})
}

// dispatchPending writes every queued-but-unsent op's wire bytes, in order,
// once the connection becomes Ready — covers ops submitted while still
// Connecting/Handshaking.
func (c *RedisConnection) dispatchPending() {
	c.mu.Lock()
	var toSend [][]byte
	for _, op := range c.queue {
		if !op.sent {
			toSend = append(toSend, op.wire)
			op.sent = true
		}
	}
	if len(toSend) > 0 {
		c.core.state.Store(StateBusy)
	}
	c.mu.Unlock()
	for _, w := range toSend {
		c.core.send(w)
	}
}

// Close tears the connection down immediately.
func (c *RedisConnection) Close() { c.core.close() }
