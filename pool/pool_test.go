package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jcailloux/relais-core/backendconn"
	"github.com/jcailloux/relais-core/reactor"
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

// pingServer answers every "PING" with "+PONG\r\n" forever, standing in for
// a healthy Redis backend.
func pingServer(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				buf := make([]byte, 256)
				for {
					n, err := conn.Read(buf)
					if err != nil || n == 0 {
						return
					}
					_, _ = conn.Write([]byte("+PONG\r\n"))
				}
			}(conn)
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

// deadServer accepts and immediately closes every connection, standing in
// for a backend that is down.
func deadServer(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestPoolCreateWaitsForEverySlot(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	host, port := pingServer(t)
	factory := func() *backendconn.RedisConnection {
		return backendconn.NewRedisConnection(rt, host, port, "", nil)
	}

	p, err := Create[*backendconn.RedisConnection](rt, factory, 3, nil).Await(context.Background(), rt)
	require.NoError(t, err)
	require.Equal(t, 3, p.Size())
	require.Equal(t, 3, p.HealthyCount())
}

func TestPoolLeaseSkipsUnhealthySlot(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	healthyHost, healthyPort := pingServer(t)
	deadHost, deadPort := deadServer(t)

	i := 0
	factory := func() *backendconn.RedisConnection {
		i++
		if i == 1 {
			return backendconn.NewRedisConnection(rt, deadHost, deadPort, "", nil)
		}
		return backendconn.NewRedisConnection(rt, healthyHost, healthyPort, "", nil)
	}

	p, err := Create[*backendconn.RedisConnection](rt, factory, 2, nil).Await(context.Background(), rt)
	require.NoError(t, err)
	require.Equal(t, 1, p.HealthyCount())

	for n := 0; n < 5; n++ {
		lease, err := p.Lease().Await(context.Background(), rt)
		require.NoError(t, err)
		v, err := lease.Conn.Exec("PING").Await(context.Background(), rt)
		require.NoError(t, err)
		require.Equal(t, "PONG", v.Str)
		lease.Release(nil)
	}
}

func TestPoolReleaseWithConnectionLostTriggersReconnect(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	host, port := pingServer(t)
	factory := func() *backendconn.RedisConnection {
		return backendconn.NewRedisConnection(rt, host, port, "", nil)
	}

	p, err := Create[*backendconn.RedisConnection](rt, factory, 1, nil).Await(context.Background(), rt)
	require.NoError(t, err)

	lease, err := p.Lease().Await(context.Background(), rt)
	require.NoError(t, err)
	lease.Release(&backendconn.ConnectionLostError{})

	require.Eventually(t, func() bool {
		return p.HealthyCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPoolLeaseWaitsWhenAllUnhealthyUntilContextDone(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	deadHost, deadPort := deadServer(t)
	factory := func() *backendconn.RedisConnection {
		return backendconn.NewRedisConnection(rt, deadHost, deadPort, "", nil)
	}

	p, err := Create[*backendconn.RedisConnection](rt, factory, 1, nil).Await(context.Background(), rt)
	require.NoError(t, err)
	require.Equal(t, 0, p.HealthyCount())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Lease().Await(ctx, rt)
	require.Error(t, err)
}

func TestPoolLeaseReturnsPoolExhaustedAfterMaxWait(t *testing.T) {
	rt, stop := startReactor(t)
	defer stop()

	deadHost, deadPort := deadServer(t)
	factory := func() *backendconn.RedisConnection {
		return backendconn.NewRedisConnection(rt, deadHost, deadPort, "", nil)
	}

	p, err := Create[*backendconn.RedisConnection](rt, factory, 1, nil).Await(context.Background(), rt)
	require.NoError(t, err)
	require.Equal(t, 0, p.HealthyCount())

	p.SetMaxWait(30 * time.Millisecond)
	_, err = p.Lease().Await(context.Background(), rt)
	require.Error(t, err)
	var exhausted *PoolExhaustedError
	require.ErrorAs(t, err, &exhausted)
}
