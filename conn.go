package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

const frameSize = 4

type conn struct {
	server     *Server
	cfg        ServerConfig
	rwc        tcpConn
	remoteAddr string
}

// connReport is what one handled connection produced.
type connReport struct {
	Value   uint32
	Drained int64
}

// serve runs one connection through scan, echo and teardown. The socket is
// released on every path out of here.
func (c *conn) serve() (report connReport, err error) {
	if c.server != nil {
		c.server.trackConn(c, true)
		defer c.server.trackConn(c, false)
	}
	log := logrus.WithFields(logrus.Fields{
		"function": "serve",
		"remote":   c.remoteAddr,
		"mode":     c.cfg.Mode.String(),
	})
	log.Info("accepted connection")

	defer func() {
		if err != nil {
			log.WithField("error", err.Error()).Error("connection failed")
			return
		}
		log.WithField("drained", report.Drained).Info("connection closed")
	}()
	// Register recovery callback to avoid crashing the whole
	// server on panics in connection handling.
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic serving connection: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	read, write := splitConn(c.rwc, c.cfg.Buffered)
	defer read.Close()
	defer write.Close()

	report.Value, err = scanOdd(read)
	if err != nil {
		return report, fmt.Errorf("read from connection: %w", err)
	}
	log.WithField("value", report.Value).Info("client sent odd number")

	wraw, err := write.Unbuffered()
	if err != nil {
		if wraw != nil {
			wraw.Close()
		}
		return report, fmt.Errorf("convert buffered writer to unbuffered writer: %w", err)
	}
	rraw, pending, err := read.Unbuffered()
	if err != nil {
		wraw.Close()
		return report, err
	}
	defer timed(log, "close duration", func() error {
		return errors.Join(rraw.Close(), wraw.Close())
	})

	var frame [frameSize]byte
	binary.BigEndian.PutUint32(frame[:], report.Value)
	if _, err := wraw.Write(frame[:]); err != nil {
		return report, fmt.Errorf("write to connection: %w", err)
	}

	report.Drained, err = c.teardown(log, rraw, wraw, pending)
	return report, err
}

// teardown performs the configured mode's steps up to, but not including,
// the final close.
func (c *conn) teardown(log *logrus.Entry, rraw, wraw *RawConn, pending []byte) (int64, error) {
	switch c.cfg.Mode {
	case CloseImmediately:
		return 0, nil

	case SleepThenClose:
		log.WithField("sleep", c.cfg.Sleep.String()).Debug("sleeping before close")
		time.Sleep(c.cfg.Sleep)
		return 0, nil

	case DrainThenClose:
		return drainAndLog(log, rraw, pending)

	case ShutdownWriteThenDrain:
		log.Info("shutting down write-end of the connection")
		if err := wraw.CloseWrite(); err != nil {
			return 0, fmt.Errorf("shutdown write: %w", err)
		}
		return drainAndLog(log, rraw, pending)

	case ShutdownWriteThenClose:
		if err := timed(log, "shutdown write duration", wraw.CloseWrite); err != nil {
			return 0, fmt.Errorf("shutdown write: %w", err)
		}
		return 0, nil

	case ShutdownBothThenClose:
		if err := timed(log, "shutdown duration", wraw.Shutdown); err != nil {
			return 0, fmt.Errorf("shutdown: %w", err)
		}
		return 0, nil
	}
	return 0, fmt.Errorf("invalid teardown mode %d", int(c.cfg.Mode))
}

// scanOdd reads 4-byte big-endian numbers from r and returns the first odd
// one. Even numbers are discarded.
func scanOdd(r io.Reader) (uint32, error) {
	var buf [frameSize]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		if num := binary.BigEndian.Uint32(buf[:]); num%2 == 1 {
			return num, nil
		}
	}
}

// drain reads and discards from r until the peer ends the stream. pending
// holds bytes already read off the socket by a buffer and counts as drained.
// End of stream is success; any other read error is returned with the count
// so far.
func drain(r io.Reader, pending []byte) (int64, error) {
	n, err := io.Copy(io.Discard, r)
	n += int64(len(pending))
	if err != nil {
		return n, fmt.Errorf("drain: %w", err)
	}
	return n, nil
}

func drainAndLog(log *logrus.Entry, r io.Reader, pending []byte) (int64, error) {
	log.Info("draining connection")
	n, err := drain(r, pending)
	if err != nil {
		log.WithFields(logrus.Fields{
			"bytes": n,
			"error": err.Error(),
		}).Debug("error while draining")
		return n, err
	}
	log.WithField("bytes", n).Info("drained connection")
	return n, nil
}

// timed runs fn and logs how long it took under name.
func timed(log *logrus.Entry, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	log.WithField("duration", time.Since(start).String()).Debug(name)
	return err
}
