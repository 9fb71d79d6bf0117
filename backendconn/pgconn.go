package backendconn

import (
	"context"
	"sync"

	"github.com/jcailloux/relais-core/reactor"
	"github.com/jcailloux/relais-core/wire/pg"
	"github.com/joeycumines/logiface"
)

// PgResult is the decoded outcome of one PG exec/exec_prepared call.
type PgResult struct {
	Fields []pg.FieldDescriptor
	Rows   [][]any
	Tag    string
}

type pgOpKind int

const (
	pgOpExec pgOpKind = iota
	pgOpPrepare
	pgOpExecPrepared
)

// pgOp is one queued extended-query sequence: wire holds the already-built
// message bytes (so cancellation before dispatch never has to re-encode),
// and fields/rows/tag accumulate as the decoder reports RowDescription,
// DataRow and CommandComplete events for this op specifically.
type pgOp struct {
	kind        pgOpKind
	wire        []byte
	resolve     func(PgResult, error)
	resolveVoid func(error)
	cancelled   bool
	fields      []pg.FieldDescriptor
	rows        [][]any
	tag         string
	done        chan struct{}
}

func newPgOp(kind pgOpKind) *pgOp {
	return &pgOp{kind: kind, done: make(chan struct{})}
}

// PGConnection is a Connection<PG> per spec.md 4.4: one socket, one PG
// extended-query decoder, and a FIFO queue of operations serialized onto the
// wire one at a time (PG allows only one in-flight extended-query sequence
// per connection).
type PGConnection struct {
	core *core
	dec  pg.Decoder
	user string
	db   string
	log  *logiface.Logger[logiface.Event]

	mu             sync.Mutex
	queue          []*pgOp
	connectResolve func(struct{}, error)
}

// NewPGConnection constructs a connection bound to rt's reactor, left in
// StateDisconnected until Connect is called. log may be nil, per SPEC_FULL
// 10.1's default-to-no-op-when-nil rule.
func NewPGConnection(rt *reactor.Context, host string, port int, user, database string, log *logiface.Logger[logiface.Event]) *PGConnection {
	c := &PGConnection{core: newCore(rt, host, port), user: user, db: database, log: log}
	c.core.onConnected = c.onTCPConnected
	c.core.onReadable = c.onBytes
	c.core.onFailed = c.onFailed
	return c
}

// State reports the connection's current lifecycle state.
func (c *PGConnection) State() ConnState { return c.core.state.Load() }

// Connect dials the backend. The returned Task settles once the connection
// reaches Ready (after startup and the first ReadyForQuery) or fails.
func (c *PGConnection) Connect() *reactor.Task[struct{}] {
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

func (c *PGConnection) onTCPConnected() {
	c.core.send(pg.StartupMessage(c.user, c.db))
	logEvent(c.log, "pg connection: tcp established, sent startup message")
}

func (c *PGConnection) onBytes(data []byte) {
	c.dec.Feed(data)
	for {
		ev, ok, err := c.dec.Next()
		if err != nil {
			c.core.fail(err)
			return
		}
		if !ok {
			return
		}
		c.handleEvent(ev)
	}
}

func (c *PGConnection) handleEvent(ev pg.Event) {
	switch ev.Kind {
	case pg.EventAuthenticationOK, pg.EventParameterStatus, pg.EventBackendKeyData:
		// handshake bookkeeping the relay doesn't act on.
	case pg.EventAuthenticationUnsupported:
		c.core.fail(&ConnectionLostError{Cause: errUnsupportedAuth})
	case pg.EventReadyForQuery:
		c.onReadyForQuery()
	case pg.EventRowDescription:
		c.withFrontOp(func(op *pgOp) { op.fields = ev.Fields })
	case pg.EventDataRow:
		c.withFrontOp(func(op *pgOp) {
			row := make([]any, len(ev.Row))
			for i, col := range ev.Row {
				v, err := pg.DecodeColumnValue(col)
				if err == nil {
					row[i] = v
				}
			}
			op.rows = append(op.rows, row)
		})
	case pg.EventCommandComplete:
		c.withFrontOp(func(op *pgOp) { op.tag = ev.Tag })
	case pg.EventParseComplete:
		c.withFrontOp(func(op *pgOp) {
			if op.kind == pgOpPrepare && op.resolveVoid != nil {
				op.resolveVoid(nil)
				op.resolveVoid = nil
			}
		})
	case pg.EventError:
		c.withFrontOp(func(op *pgOp) {
			c.dequeueFront(op)
			c.completeOp(op, &BackendError{Message: ev.Info['M'], Fields: ev.Info})
		})
	case pg.EventNotice:
		logEvent(c.log, "pg notice: "+ev.Info['M'])
	}
}

func (c *PGConnection) onReadyForQuery() {
	c.mu.Lock()
	if c.core.state.Load() == StateHandshaking {
		c.core.state.Store(StateReady)
		r := c.connectResolve
		c.connectResolve = nil
		c.mu.Unlock()
		if r != nil {
			r(struct{}{}, nil)
		}
		c.dispatchNext()
		return
	}
	var op *pgOp
	if len(c.queue) > 0 {
		op = c.queue[0]
		c.queue = c.queue[1:]
	}
	c.core.state.Store(StateReady)
	c.mu.Unlock()

	if op != nil {
		c.completeOp(op, nil)
	}
	c.dispatchNext()
}

// withFrontOp runs fn against the currently in-flight op, if any, without
// dequeuing it — used for events that accumulate onto an op still awaiting
// its terminating CommandComplete/ReadyForQuery.
func (c *PGConnection) withFrontOp(fn func(op *pgOp)) {
	c.mu.Lock()
	var op *pgOp
	if len(c.queue) > 0 {
		op = c.queue[0]
	}
	c.mu.Unlock()
	if op != nil {
		fn(op)
	}
}

// dequeueFront removes op from the head of the queue if it's still there;
// an ErrorResponse aborts the current extended-query sequence without a
// CommandComplete, so the normal ReadyForQuery dequeue path never runs for
// this op.
func (c *PGConnection) dequeueFront(op *pgOp) {
	c.mu.Lock()
	if len(c.queue) > 0 && c.queue[0] == op {
		c.queue = c.queue[1:]
	}
	c.mu.Unlock()
}

func (c *PGConnection) completeOp(op *pgOp, opErr error) {
	defer close(op.done)
	if op.cancelled && opErr == nil {
		opErr = &CancelledError{}
	}
	switch op.kind {
	case pgOpPrepare:
		if op.resolveVoid != nil {
			op.resolveVoid(opErr)
		}
	default:
		if op.resolve != nil {
			op.resolve(PgResult{Fields: op.fields, Rows: op.rows, Tag: op.tag}, opErr)
		}
	}
}

func (c *PGConnection) onFailed(err error) {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	connectResolve := c.connectResolve
	c.connectResolve = nil
	c.mu.Unlock()

	if connectResolve != nil {
		connectResolve(struct{}{}, err)
	}
	for _, op := range pending {
		c.completeOp(op, err)
	}
	logEvent(c.log, "pg connection failed: "+errString(err))
}

// Exec runs a one-shot parameterized query — spec.md 4.4's Connection.exec.
func (c *PGConnection) Exec(sql string, params []pg.Param) *reactor.Task[PgResult] {
	return reactor.New(func(ctx context.Context, rt *reactor.Context, resolve func(PgResult, error)) {
		op := newPgOp(pgOpExec)
		op.resolve = resolve
		c.enqueue(op, pg.Exec(sql, params))
		watchCancellation(ctx, rt, op.done, func() { op.cancelled = true })
	})
}

// Prepare defines a named statement — spec.md 4.4's Connection.prepare.
func (c *PGConnection) Prepare(name, sql string) *reactor.Task[struct{}] {
	return reactor.New(func(ctx context.Context, rt *reactor.Context, resolve func(struct{}, error)) {
		op := newPgOp(pgOpPrepare)
		op.resolveVoid = func(err error) { resolve(struct{}{}, err) }
		c.enqueue(op, pg.Prepare(name, sql))
		watchCancellation(ctx, rt, op.done, func() { op.cancelled = true })
	})
}

// ExecPrepared invokes an already-prepared statement — spec.md 4.4's
// Connection.exec_prepared.
func (c *PGConnection) ExecPrepared(name string, params []pg.Param) *reactor.Task[PgResult] {
	return reactor.New(func(ctx context.Context, rt *reactor.Context, resolve func(PgResult, error)) {
		op := newPgOp(pgOpExecPrepared)
		op.resolve = resolve
		c.enqueue(op, pg.ExecPrepared(name, params))
		watchCancellation(ctx, rt, op.done, func() { op.cancelled = true })
	})
}

func (c *PGConnection) enqueue(op *pgOp, wire []byte) {
	op.wire = wire
	if c.core.state.Load() == StateClosed {
		c.completeOp(op, &ConnectionLostError{Cause: ErrConnectionClosed})
		return
	}
	c.mu.Lock()
	c.queue = append(c.queue, op)
	dispatch := len(c.queue) == 1 && c.core.state.Load() == StateReady
	c.mu.Unlock()
	if dispatch {
		c.dispatchNext()
	}
}

func (c *PGConnection) dispatchNext() {
	c.mu.Lock()
	if len(c.queue) == 0 || c.core.state.Load() != StateReady {
		c.mu.Unlock()
		return
	}
	op := c.queue[0]
	c.core.state.Store(StateBusy)
	c.mu.Unlock()
	c.core.send(op.wire)
}

// Close tears the connection down immediately; any queued op completes with
// ErrConnectionClosed-flavored ConnectionLostError.
func (c *PGConnection) Close() { c.core.close() }

var errUnsupportedAuth = connError("backendconn: pg server requires an unsupported authentication method")

type connError string

func (e connError) Error() string { return string(e) }
