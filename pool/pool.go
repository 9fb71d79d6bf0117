package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jcailloux/relais-core/backendconn"
	"github.com/jcailloux/relais-core/reactor"
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// slot holds one pool member. Its conn is swapped out wholesale on
// reconnect, since a backendconn.Connection that has reached StateClosed
// can never be redialed — Factory always hands back a fresh instance.
type slot[C Conn] struct {
	mu           sync.Mutex
	conn         C
	reconnecting bool
}

// Lease is a connection on loan from a Pool. Callers must call Release
// exactly once, passing the error (if any) the connection reported, so the
// pool can tell a healthy return from one that needs reconnection.
type Lease[C Conn] struct {
	Conn C
	slot *slot[C]
	pool *Pool[C]
}

// Release returns the lease to the pool. err should be the error (if any)
// observed while using Conn — a *backendconn.ConnectionLostError in
// particular triggers background reconnection of this slot.
func (l *Lease[C]) Release(err error) { l.pool.release(l.slot, err) }

// Pool is Pool<Backend> per spec.md 4.5: a fixed-size, eagerly-created set
// of connections leased round-robin, skipping unhealthy members, with
// waiters queued FIFO when none are healthy and background reconnection
// with jittered exponential backoff.
type Pool[C Conn] struct {
	rt      *reactor.Context
	factory Factory[C]
	log     *logiface.Logger[logiface.Event]

	slots   []*slot[C]
	counter uint64

	mu      sync.Mutex
	waiters []chan struct{}

	// maxWait, if set via SetMaxWait, bounds how long Lease waits for a
	// healthy slot before failing with a *PoolExhaustedError instead of
	// blocking indefinitely. Zero means unbounded.
	maxWait atomic.Int64

	// reconnectLimiter caps the aggregate rate of reconnect attempts across
	// every slot in the pool, as a backstop above each slot's own
	// exponential backoff for the case where many connections fail at once
	// (e.g. the backend itself bounced).
	reconnectLimiter *catrate.Limiter
}

// Create dials size connections eagerly via factory and returns once every
// one has either reached Ready or failed (a failed slot starts out
// unhealthy and is picked up by the normal reconnect path). Per spec.md
// 4.5's `create(io, host, port, size) -> Task<Pool>`.
func Create[C Conn](rt *reactor.Context, factory Factory[C], size int, log *logiface.Logger[logiface.Event]) *reactor.Task[*Pool[C]] {
	return reactor.New(func(ctx context.Context, rt *reactor.Context, resolve func(*Pool[C], error)) {
		if size <= 0 {
			resolve(nil, fmt.Errorf("pool: size must be positive, got %d", size))
			return
		}
		p := &Pool[C]{
			rt:      rt,
			factory: factory,
			log:     log,
			slots:   make([]*slot[C], size),
			reconnectLimiter: catrate.NewLimiter(map[time.Duration]int{
				time.Second: 20,
				time.Minute: 200,
			}),
		}

		var wg sync.WaitGroup
		wg.Add(size)
		for i := range p.slots {
			c := factory()
			s := &slot[C]{conn: c}
			p.slots[i] = s
			c.Connect().Run(ctx, rt, func(_ struct{}, err error) {
				if err != nil {
					logEvent(log, "pool: initial connect failed: "+err.Error())
					p.scheduleReconnect(s)
				}
				wg.Done()
			})
		}
		go func() {
			wg.Wait()
			_ = rt.Post(func() { resolve(p, nil) })
		}()
	})
}

// SetMaxWait bounds how long Lease will queue a caller before failing with
// a *PoolExhaustedError, per spec.md 7's "only signalled if pool has an
// explicit max-wait". Zero (the default) waits indefinitely.
func (p *Pool[C]) SetMaxWait(d time.Duration) { p.maxWait.Store(int64(d)) }

// Lease acquires a healthy connection, round-robin, skipping unhealthy
// slots. If none are healthy it waits FIFO until one becomes Ready again,
// the Task's context is cancelled, or (if SetMaxWait was called) the
// configured max-wait elapses.
func (p *Pool[C]) Lease() *reactor.Task[*Lease[C]] {
	return reactor.New(func(ctx context.Context, rt *reactor.Context, resolve func(*Lease[C], error)) {
		if d := time.Duration(p.maxWait.Load()); d > 0 {
			boundedCtx, cancel := context.WithTimeout(ctx, d)
			p.awaitLease(boundedCtx, func(l *Lease[C], err error) {
				cancel()
				if errors.Is(err, context.DeadlineExceeded) {
					var zero *Lease[C]
					resolve(zero, &PoolExhaustedError{Waited: d})
					return
				}
				resolve(l, err)
			})
			return
		}
		p.awaitLease(ctx, resolve)
	})
}

func (p *Pool[C]) awaitLease(ctx context.Context, resolve func(*Lease[C], error)) {
	if l, ok := p.tryLease(); ok {
		resolve(l, nil)
		return
	}
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()
	go func() {
		select {
		case <-ch:
			p.awaitLease(ctx, resolve)
		case <-ctx.Done():
			var zero *Lease[C]
			resolve(zero, ctx.Err())
		}
	}()
}

func (p *Pool[C]) tryLease() (*Lease[C], bool) {
	n := len(p.slots)
	start := int(atomic.AddUint64(&p.counter, 1)-1) % n
	for i := 0; i < n; i++ {
		s := p.slots[(start+i)%n]
		s.mu.Lock()
		c := s.conn
		ok := healthy(c)
		s.mu.Unlock()
		if ok {
			return &Lease[C]{Conn: c, slot: s, pool: p}, true
		}
	}
	return nil, false
}

func (p *Pool[C]) release(s *slot[C], err error) {
	s.mu.Lock()
	stillHealthy := healthy(s.conn)
	s.mu.Unlock()

	// a backend-level error (BackendError) completes successfully and
	// doesn't condemn the connection, per spec.md 4.4; only a connection
	// actually gone unhealthy (or reporting ConnectionLost) triggers repair.
	if stillHealthy && !isConnectionLost(err) {
		return
	}
	p.scheduleReconnect(s)
}

func (p *Pool[C]) wakeOneWaiter() {
	p.mu.Lock()
	if len(p.waiters) == 0 {
		p.mu.Unlock()
		return
	}
	ch := p.waiters[0]
	p.waiters = p.waiters[1:]
	p.mu.Unlock()
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (p *Pool[C]) scheduleReconnect(s *slot[C]) {
	s.mu.Lock()
	if s.reconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	s.mu.Unlock()

	go p.reconnectLoop(s)
}

func (p *Pool[C]) reconnectLoop(s *slot[C]) {
	for attempt := 0; ; attempt++ {
		if next, ok := p.reconnectLimiter.Allow(p); !ok {
			time.Sleep(time.Until(next))
			attempt--
			continue
		}
		delay := nextBackoff(attempt)
		time.Sleep(delay)

		c := p.factory()
		_, err := c.Connect().Await(context.Background(), p.rt)
		if err != nil {
			logEvent(p.log, "pool: reconnect attempt failed: "+err.Error())
			continue
		}

		s.mu.Lock()
		s.conn = c
		s.reconnecting = false
		s.mu.Unlock()
		logEvent(p.log, "pool: slot reconnected")
		p.wakeOneWaiter()
		return
	}
}

// Size is the fixed number of slots in the pool.
func (p *Pool[C]) Size() int { return len(p.slots) }

// Empty reports whether no slot currently holds a healthy connection.
func (p *Pool[C]) Empty() bool { return p.HealthyCount() == 0 }

// HealthyCount reports how many slots currently hold a healthy connection.
func (p *Pool[C]) HealthyCount() int {
	n := 0
	for _, s := range p.slots {
		s.mu.Lock()
		if healthy(s.conn) {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Close tears down every connection in the pool.
func (p *Pool[C]) Close() {
	for _, s := range p.slots {
		s.mu.Lock()
		s.conn.Close()
		s.mu.Unlock()
	}
}

func isConnectionLost(err error) bool {
	var lost *backendconn.ConnectionLostError
	return errors.As(err, &lost)
}
