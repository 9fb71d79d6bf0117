package backendconn

import (
	"context"
	"net"
	"testing"

	"github.com/jcailloux/relais-core/wire/pg"
	"github.com/stretchr/testify/require"
)

// canned PG backend replies, built with the local framing helpers below
// (type byte plus big-endian length, as wire/pg frames messages) so the
// fixtures stay byte-exact to the real wire format.
func pgAuthOKAndReady() []byte {
	var buf []byte
	buf = append(buf, rawMessage('R', []byte{0, 0, 0, 0})...)
	buf = append(buf, rawMessage('Z', []byte{'I'})...)
	return buf
}

func pgExecReply() []byte {
	var rowDesc []byte
	rowDesc = pgInt16(rowDesc, 1)
	rowDesc = append(rowDesc, []byte("n")...)
	rowDesc = append(rowDesc, 0)
	rowDesc = pgInt32(rowDesc, 0)
	rowDesc = pgInt16(rowDesc, 0)
	rowDesc = pgInt32(rowDesc, pg.OIDInt4)
	rowDesc = pgInt16(rowDesc, 4)
	rowDesc = pgInt32(rowDesc, -1)
	rowDesc = pgInt16(rowDesc, 1)

	var row []byte
	row = pgInt16(row, 1)
	row = pgInt32(row, 4)
	row = pgInt32(row, 1)

	var buf []byte
	buf = append(buf, rawMessage('1', nil)...) // ParseComplete
	buf = append(buf, rawMessage('2', nil)...) // BindComplete
	buf = append(buf, rawMessage('T', rowDesc)...)
	buf = append(buf, rawMessage('D', row)...)
	buf = append(buf, rawMessage('C', append([]byte("SELECT 1"), 0))...)
	buf = append(buf, rawMessage('Z', []byte{'I'})...)
	return buf
}

func rawMessage(typ byte, body []byte) []byte {
	buf := []byte{typ, 0, 0, 0, 0}
	buf = append(buf, body...)
	length := len(body) + 4
	buf[1] = byte(length >> 24)
	buf[2] = byte(length >> 16)
	buf[3] = byte(length >> 8)
	buf[4] = byte(length)
	return buf
}

func pgInt16(buf []byte, v int16) []byte { return append(buf, byte(v>>8), byte(v)) }
func pgInt32(buf []byte, v int32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func TestPGConnectionConnectAndExec(t *testing.T) {
	host, port := fakeServer(t, func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 4096)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		if _, err := conn.Write(pgAuthOKAndReady()); err != nil {
			return
		}
		if _, err := conn.Read(buf); err != nil {
			return
		}
		_, _ = conn.Write(pgExecReply())
	})

	rt, stop := startReactor(t)
	defer stop()

	c := NewPGConnection(rt, host, port, "svc", "relais", nil)
	_, err := c.Connect().Await(context.Background(), rt)
	require.NoError(t, err)
	require.Equal(t, StateReady, c.State())

	res, err := c.Exec("select 1", nil).Await(context.Background(), rt)
	require.NoError(t, err)
	require.Equal(t, "SELECT 1", res.Tag)
	require.Len(t, res.Rows, 1)
	require.Equal(t, int32(1), res.Rows[0][0])
}

func TestPGConnectionBackendErrorSurfacesAsBackendError(t *testing.T) {
	host, port := fakeServer(t, func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 4096)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		if _, err := conn.Write(pgAuthOKAndReady()); err != nil {
			return
		}
		if _, err := conn.Read(buf); err != nil {
			return
		}
		var body []byte
		body = append(body, 'S')
		body = append(body, []byte("ERROR")...)
		body = append(body, 0)
		body = append(body, 'M')
		body = append(body, []byte("syntax error")...)
		body = append(body, 0)
		body = append(body, 0)
		var out []byte
		out = append(out, rawMessage('E', body)...)
		out = append(out, rawMessage('Z', []byte{'I'})...)
		_, _ = conn.Write(out)
	})

	rt, stop := startReactor(t)
	defer stop()

	c := NewPGConnection(rt, host, port, "svc", "relais", nil)
	_, err := c.Connect().Await(context.Background(), rt)
	require.NoError(t, err)

	_, err = c.Exec("select bogus", nil).Await(context.Background(), rt)
	require.Error(t, err)
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Equal(t, "syntax error", backendErr.Message)
}

func TestPGConnectionCloseFailsQueuedOpWithConnectionLost(t *testing.T) {
	// The fake server completes the handshake but never answers the query,
	// so the Exec stays queued until Close tears the connection down.
	host, port := fakeServer(t, func(conn net.Conn) {
		buf := make([]byte, 4096)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		if _, err := conn.Write(pgAuthOKAndReady()); err != nil {
			return
		}
		if _, err := conn.Read(buf); err != nil {
			return
		}
		select {}
	})

	rt, stop := startReactor(t)
	defer stop()

	c := NewPGConnection(rt, host, port, "svc", "relais", nil)
	_, err := c.Connect().Await(context.Background(), rt)
	require.NoError(t, err)

	task := c.Exec("select 1", nil)
	c.Close()

	_, err = task.Await(context.Background(), rt)
	require.Error(t, err)
	var lost *ConnectionLostError
	require.ErrorAs(t, err, &lost)
	require.ErrorIs(t, lost, ErrConnectionClosed)
}
