//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package main

import (
	"errors"
	"net"
	"syscall"
	"time"
)

func setLinger(conn syscall.Conn, d time.Duration) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return errors.New("linger requires a TCP connection")
	}
	return tc.SetLinger(int(d / time.Second))
}

// reuseAddrControl is a no-op where SO_REUSEPORT is unavailable.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}

func shutdownBoth(conn tcpConn) error {
	return errors.Join(conn.CloseRead(), conn.CloseWrite())
}
