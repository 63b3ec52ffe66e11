//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package main

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// control runs fn against the descriptor behind conn and returns the first
// error from either the descriptor access or fn.
func control(c syscall.RawConn, fn func(fd int) error) error {
	var opErr error
	if err := c.Control(func(fd uintptr) {
		opErr = fn(int(fd))
	}); err != nil {
		return err
	}
	return opErr
}

func rawControl(conn syscall.Conn, fn func(fd int) error) error {
	c, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	return control(c, fn)
}

// setLinger enables SO_LINGER with d truncated to whole seconds. A zero
// linger makes close(2) reset the connection instead of sending FIN.
func setLinger(conn syscall.Conn, d time.Duration) error {
	l := unix.Linger{Onoff: 1, Linger: int32(d / time.Second)}
	return rawControl(conn, func(fd int) error {
		return unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &l)
	})
}

// reuseAddrControl is a net.Dialer Control hook enabling SO_REUSEADDR and
// SO_REUSEPORT before the socket is bound.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return control(c, func(fd int) error {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return err
		}
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
}

func shutdownBoth(conn tcpConn) error {
	return rawControl(conn, func(fd int) error {
		return unix.Shutdown(fd, unix.SHUT_RDWR)
	})
}
