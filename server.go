package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrServerClosed = errors.New("server closed")
	errNotListening = errors.New("serve called before listen")
)

const maxAcceptDelay = time.Second

// ServerConfig is the validated server configuration.
type ServerConfig struct {
	Addr     string
	Mode     TeardownMode
	Buffered bool
	// Sleep is how long SleepThenClose waits before closing.
	Sleep time.Duration
	// Linger, when set, is applied as SO_LINGER to every accepted connection.
	// Nil keeps the OS default.
	Linger *time.Duration
}

func (c ServerConfig) validate() error {
	if c.Addr == "" {
		return errors.New("listen address cannot be empty")
	}
	if !c.Mode.valid() {
		return fmt.Errorf("invalid teardown mode %d", int(c.Mode))
	}
	if c.Sleep < 0 {
		return errors.New("sleep duration cannot be negative")
	}
	if c.Linger != nil {
		if *c.Linger < 0 {
			return errors.New("linger duration cannot be negative")
		}
		// SO_LINGER counts whole seconds; anything finer would be truncated,
		// and 500ms becoming 0 turns a graceful close into a reset.
		if *c.Linger%time.Second != 0 {
			return fmt.Errorf("linger duration %v must be a whole number of seconds", *c.Linger)
		}
	}
	return nil
}

// Server accepts TCP connections and handles them strictly one at a time:
// every connection is scanned, answered and torn down before the next Accept,
// so the timing of each teardown is observable in isolation.
type Server struct {
	cfg ServerConfig

	listener *net.TCPListener

	// mu protects listener setup and the connection being handled, which
	// Shutdown may need to close from another goroutine.
	mu         sync.Mutex
	active     *conn
	inShutdown atomic.Bool
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Server{cfg: cfg}, nil
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	if s.shuttingDown() {
		return ErrServerClosed
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	s.mu.Lock()
	s.listener = ln.(*net.TCPListener)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Listen",
		"addr":     ln.Addr().String(),
		"mode":     s.cfg.Mode.String(),
		"buffered": s.cfg.Buffered,
	}).Info("listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop on the bound listener. Accept errors are logged
// and accepting continues; recoverable ones back off first. It returns
// ErrServerClosed after Shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errNotListening
	}

	var delay time.Duration
	for {
		logrus.WithField("function", "Serve").Debug("accepting connection")
		rwc, err := ln.AcceptTCP()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if isRecoverable(err) {
				delay = nextAcceptDelay(delay)
				logrus.WithFields(logrus.Fields{
					"function": "Serve",
					"error":    err.Error(),
					"retry_in": delay.String(),
				}).Warn("failed to accept connection")
				time.Sleep(delay)
				continue
			}
			logrus.WithFields(logrus.Fields{
				"function": "Serve",
				"error":    err.Error(),
			}).Error("failed to accept connection")
			continue
		}
		delay = 0

		c, err := s.newConn(rwc)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Serve",
				"remote":   rwc.RemoteAddr().String(),
				"error":    err.Error(),
			}).Error("failed to set up connection")
			rwc.Close()
			continue
		}
		c.serve()
	}
}

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > maxAcceptDelay {
		d = maxAcceptDelay
	}
	return d
}

func (s *Server) closeConns() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		// Interrupts a blocked scan or drain. The handler still runs its
		// own release path.
		s.active.rwc.Close()
	}
	return s.active == nil
}

// Shutdown closes the listener and the connection in progress, then waits
// for its handler to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.closeConns() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Server) shuttingDown() bool {
	return s.inShutdown.Load()
}

// newConn applies the configured linger to rwc and wraps it for handling.
func (s *Server) newConn(rwc *net.TCPConn) (*conn, error) {
	if s.cfg.Linger != nil {
		if err := setLinger(rwc, *s.cfg.Linger); err != nil {
			return nil, fmt.Errorf("set linger: %w", err)
		}
	}
	return &conn{
		server:     s,
		cfg:        s.cfg,
		rwc:        rwc,
		remoteAddr: rwc.RemoteAddr().String(),
	}, nil
}

// trackConn records or clears the connection being handled.
func (s *Server) trackConn(c *conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.active = c
		if s.shuttingDown() {
			// Shutdown may already have swept the active connection.
			c.rwc.Close()
		}
	} else if s.active == c {
		s.active = nil
	}
}
