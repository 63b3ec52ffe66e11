package main

import (
	"bufio"
	"errors"
	"net"
	"sync/atomic"
	"syscall"
)

const bufferSize = 8 << 10

var errHandleConsumed = errors.New("stream handle already converted to raw connection")

// tcpConn is the subset of *net.TCPConn the stream halves rely on. Half-close
// and socket options must reach the kernel socket directly.
type tcpConn interface {
	net.Conn
	syscall.Conn
	CloseRead() error
	CloseWrite() error
}

// sharedConn is the socket behind a pair of halves. The socket is closed once
// every half holding a reference has been released.
type sharedConn struct {
	conn tcpConn
	refs atomic.Int32
}

func (s *sharedConn) release() error {
	if s.refs.Add(-1) == 0 {
		return s.conn.Close()
	}
	return nil
}

// RawConn is one unbuffered handle on a shared socket. Shutting down a
// direction is visible to the other handle only through the socket itself;
// Close releases this handle and closes the socket when it was the last one.
type RawConn struct {
	s        *sharedConn
	released atomic.Bool
}

func (c *RawConn) Read(p []byte) (int, error)  { return c.s.conn.Read(p) }
func (c *RawConn) Write(p []byte) (int, error) { return c.s.conn.Write(p) }

// CloseWrite half-closes the sending direction (shutdown(SHUT_WR)).
func (c *RawConn) CloseWrite() error { return c.s.conn.CloseWrite() }

// CloseRead half-closes the receiving direction (shutdown(SHUT_RD)).
func (c *RawConn) CloseRead() error { return c.s.conn.CloseRead() }

// Shutdown shuts down both directions (shutdown(SHUT_RDWR)) without
// releasing the descriptor.
func (c *RawConn) Shutdown() error { return shutdownBoth(c.s.conn) }

// Close releases the handle. Calling it more than once, or on a nil handle,
// is a no-op.
func (c *RawConn) Close() error {
	if c == nil || !c.released.CompareAndSwap(false, true) {
		return nil
	}
	return c.s.release()
}

// Reader is the read half of a split connection, optionally buffered.
type Reader struct {
	raw *RawConn
	buf *bufio.Reader
}

func (r *Reader) Read(p []byte) (int, error) {
	switch {
	case r.raw == nil:
		return 0, errHandleConsumed
	case r.buf != nil:
		return r.buf.Read(p)
	default:
		return r.raw.Read(p)
	}
}

// Unbuffered consumes r and returns its raw handle together with any bytes
// the buffer had already pulled off the socket but not handed out.
func (r *Reader) Unbuffered() (*RawConn, []byte, error) {
	if r.raw == nil {
		return nil, nil, errHandleConsumed
	}
	raw := r.raw
	var pending []byte
	if r.buf != nil && r.buf.Buffered() > 0 {
		peeked, _ := r.buf.Peek(r.buf.Buffered())
		pending = append([]byte(nil), peeked...)
	}
	r.raw, r.buf = nil, nil
	return raw, pending, nil
}

// Close releases the read half unless it was already converted.
func (r *Reader) Close() error {
	if r.raw == nil {
		return nil
	}
	raw := r.raw
	r.raw, r.buf = nil, nil
	return raw.Close()
}

// Writer is the write half of a split connection, optionally buffered.
type Writer struct {
	raw *RawConn
	buf *bufio.Writer
}

func (w *Writer) Write(p []byte) (int, error) {
	switch {
	case w.raw == nil:
		return 0, errHandleConsumed
	case w.buf != nil:
		return w.buf.Write(p)
	default:
		return w.raw.Write(p)
	}
}

// Flush pushes buffered bytes to the socket. It is a no-op when unbuffered.
func (w *Writer) Flush() error {
	if w.raw == nil {
		return errHandleConsumed
	}
	if w.buf == nil {
		return nil
	}
	return w.buf.Flush()
}

// Unbuffered flushes and consumes w, returning its raw handle. The handle is
// returned even when the flush fails so the caller can still release it.
func (w *Writer) Unbuffered() (*RawConn, error) {
	if w.raw == nil {
		return nil, errHandleConsumed
	}
	raw := w.raw
	var err error
	if w.buf != nil {
		err = w.buf.Flush()
	}
	w.raw, w.buf = nil, nil
	return raw, err
}

// Close releases the write half unless it was already converted. Buffered
// bytes that were never flushed are discarded.
func (w *Writer) Close() error {
	if w.raw == nil {
		return nil
	}
	raw := w.raw
	w.raw, w.buf = nil, nil
	return raw.Close()
}

// splitConn takes ownership of conn and returns independent read and write
// halves over it. The socket closes when both halves have been released.
func splitConn(conn tcpConn, buffered bool) (*Reader, *Writer) {
	s := &sharedConn{conn: conn}
	s.refs.Store(2)
	r := &Reader{raw: &RawConn{s: s}}
	w := &Writer{raw: &RawConn{s: s}}
	if buffered {
		r.buf = bufio.NewReaderSize(r.raw, bufferSize)
		w.buf = bufio.NewWriterSize(w.raw, bufferSize)
	}
	return r, w
}
