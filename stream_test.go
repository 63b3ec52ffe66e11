package main

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (client, server *net.TCPConn) {
	t.Helper()
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *net.TCPConn, 1)
	go func() {
		c, err := ln.AcceptTCP()
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- c
	}()

	client, err = net.DialTCP("tcp", nil, ln.Addr().(*net.TCPAddr))
	require.NoError(t, err)
	server = <-accepted
	require.NotNil(t, server)

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func readWithin(t *testing.T, c net.Conn, n int) ([]byte, error) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, n)
	_, err := io.ReadFull(c, buf)
	return buf, err
}

func TestWriter_UnbufferedFlushes(t *testing.T) {
	peer, local := tcpPair(t)
	_, w := splitConn(local, true)

	_, err := w.Write([]byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, 4, w.buf.Buffered(), "buffered writer should hold the bytes")

	raw, err := w.Unbuffered()
	require.NoError(t, err)
	require.NotNil(t, raw)
	defer raw.Close()

	got, err := readWithin(t, peer, 4)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))

	again, err := w.Unbuffered()
	assert.ErrorIs(t, err, errHandleConsumed)
	assert.Nil(t, again)
	assert.NoError(t, again.Close(), "closing a nil handle is a no-op")
	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, errHandleConsumed)
}

func TestWriter_Unbuffered(t *testing.T) {
	peer, local := tcpPair(t)
	_, w := splitConn(local, false)
	assert.Nil(t, w.buf)

	_, err := w.Write([]byte("pong"))
	require.NoError(t, err)
	got, err := readWithin(t, peer, 4)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(got))
	assert.NoError(t, w.Flush())
}

func TestReader_UnbufferedKeepsPending(t *testing.T) {
	_, local := tcpPair(t)
	r, w := splitConn(local, false)
	defer w.Close()

	data := []byte{0, 0, 0, 2, 0, 0, 0, 3, 0xaa, 0xbb}
	r.buf = bufio.NewReader(bytes.NewReader(data))

	value, err := scanOdd(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), value)

	raw, pending, err := r.Unbuffered()
	require.NoError(t, err)
	defer raw.Close()
	assert.Equal(t, []byte{0xaa, 0xbb}, pending)

	_, _, err = r.Unbuffered()
	assert.ErrorIs(t, err, errHandleConsumed)
	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, errHandleConsumed)
}

func TestSplitConn_SharedOwnership(t *testing.T) {
	peer, local := tcpPair(t)
	r, w := splitConn(local, false)

	// Releasing the read half must not close the socket under the writer.
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err := w.Write([]byte("live"))
	require.NoError(t, err)
	got, err := readWithin(t, peer, 4)
	require.NoError(t, err)
	assert.Equal(t, "live", string(got))

	raw, err := w.Unbuffered()
	require.NoError(t, err)
	require.NoError(t, raw.Close())
	require.NoError(t, raw.Close(), "second close of a handle is a no-op")

	_, err = local.Write([]byte("x"))
	assert.ErrorIs(t, err, net.ErrClosed, "socket should close with its last handle")

	_, err = readWithin(t, peer, 1)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRawConn_HalfClose(t *testing.T) {
	peer, local := tcpPair(t)
	r, w := splitConn(local, false)
	rraw, _, err := r.Unbuffered()
	require.NoError(t, err)
	wraw, err := w.Unbuffered()
	require.NoError(t, err)
	defer rraw.Close()
	defer wraw.Close()

	require.NoError(t, wraw.CloseWrite())
	_, err = readWithin(t, peer, 1)
	assert.ErrorIs(t, err, io.EOF, "peer should see end of stream after shutdown write")

	// The read direction stays open.
	_, err = peer.Write([]byte("late"))
	require.NoError(t, err)
	got, err := readWithin(t, local, 4)
	require.NoError(t, err)
	assert.Equal(t, "late", string(got))

	if runtime.GOOS == "linux" {
		require.NoError(t, rraw.CloseRead())
		_, err = readWithin(t, local, 1)
		assert.ErrorIs(t, err, io.EOF, "reads after shutdown read see end of stream")
	}
}
