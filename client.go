package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultSendLimit caps the numbers sent per run: 8 * 4 MiB of data.
	DefaultSendLimit uint32 = 1 << 23

	// oddValue replaces the number in the middle of the stream. It is the
	// only odd number a run sends and the value the server echoes.
	oddValue uint32 = 23
)

// ClientConfig is the validated client configuration.
type ClientConfig struct {
	Connect string
	// Bind is the local address to bind before connecting. Empty lets the
	// OS choose.
	Bind      string
	Times     int
	Buffered  bool
	SendLimit uint32
}

func (c ClientConfig) validate() error {
	if c.Connect == "" {
		return errors.New("connect address cannot be empty")
	}
	if c.Times < 0 {
		return errors.New("times cannot be negative")
	}
	if c.SendLimit < 2 {
		return errors.New("send limit must be at least 2")
	}
	return nil
}

// Client probes a server with repeated runs of the number stream.
type Client struct {
	cfg    ClientConfig
	dialer net.Dialer
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg}
	c.dialer.Control = reuseAddrControl
	if cfg.Bind != "" {
		laddr, err := net.ResolveTCPAddr("tcp", cfg.Bind)
		if err != nil {
			return nil, fmt.Errorf("resolve bind address: %w", err)
		}
		c.dialer.LocalAddr = laddr
	}
	return c, nil
}

// Run is the observation from one probe.
type Run struct {
	Result RunResult
	// Response is the number the server echoed, if the read succeeded.
	Response uint32
	// Sent counts numbers fully handed to the writer.
	Sent uint32
}

// Run performs the configured number of probes one after another and
// returns how often each outcome occurred. A failed connect aborts the loop
// and returns the statistics gathered so far alongside the error. ctx is
// checked between probes only.
func (c *Client) Run(ctx context.Context) (Stats, error) {
	stats := make(Stats)
	for i := 0; i < c.cfg.Times; i++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		run, err := c.SingleRun()
		if err != nil {
			return stats, fmt.Errorf("run %d: %w", i+1, err)
		}
		logrus.WithFields(logrus.Fields{
			"function": "Run",
			"run":      i + 1,
			"result":   run.Result.String(),
			"response": run.Response,
			"sent":     run.Sent,
		}).Info("run result")
		stats.Add(run.Result)
	}
	return stats, nil
}

// SingleRun connects, streams numbers while a second goroutine waits for the
// server's answer, and classifies what both sides saw. Only connection setup
// errors are returned; read and write failures are part of the result.
func (c *Client) SingleRun() (Run, error) {
	log := logrus.WithFields(logrus.Fields{
		"function": "SingleRun",
		"connect":  c.cfg.Connect,
	})
	log.Info("connecting")

	nc, err := c.dialer.Dial("tcp", c.cfg.Connect)
	if err != nil {
		return Run{}, fmt.Errorf("dial: %w", err)
	}
	log = log.WithField("local", nc.LocalAddr().String())
	log.Info("connected")

	read, write := splitConn(nc.(tcpConn), c.cfg.Buffered)
	defer read.Close()
	defer write.Close()

	// Set by the response reader once it is done; tells the sender to stop.
	var stop atomic.Bool

	type response struct {
		value uint32
		err   error
	}
	done := make(chan response, 1)
	go func() {
		value, err := readResponse(read)
		log.WithField("error", err).Info("server response received, stopping sender")
		stop.Store(true)
		done <- response{value: value, err: err}
	}()

	sent, stopped, writeErr := sendNumbers(write, &stop, c.cfg.SendLimit)
	if stopped {
		log.WithField("sent", sent).Info("stop sending numbers")
	} else if writeErr == nil {
		// The budget ran out; whatever is still buffered may include the odd
		// number the reader is waiting on.
		writeErr = write.Flush()
	}

	resp := <-done
	return Run{
		Result:   classify(resp.err, writeErr),
		Response: resp.value,
		Sent:     sent,
	}, nil
}

func readResponse(r io.Reader) (uint32, error) {
	var buf [frameSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// sendNumbers writes limit numbers to w, all even except oddValue at
// limit/2. It checks stop before every write and returns as soon as it is
// set or a write fails.
func sendNumbers(w io.Writer, stop *atomic.Bool, limit uint32) (sent uint32, stopped bool, err error) {
	var buf [frameSize]byte
	for i := uint32(0); i < limit; i++ {
		if stop.Load() {
			return i, true, nil
		}
		num := i &^ 1
		if i == limit/2 {
			num = oddValue
		}
		binary.BigEndian.PutUint32(buf[:], num)
		if _, err := w.Write(buf[:]); err != nil {
			return i, false, err
		}
	}
	return limit, false, nil
}
