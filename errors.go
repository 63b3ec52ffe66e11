package main

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// isRecoverable tries to replace ne.Temporary() which was deprecated a long time ago
// but no clear replacement was provided.
// See https://github.com/golang/go/issues/45729 and https://groups.google.com/g/golang-nuts/c/-JcZzOkyqYI/m/xwaZzjCgAwAJ
// for context.
func isRecoverable(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EMFILE, syscall.ENFILE:
			return true // Too many open files - might recover?
		case syscall.ECONNABORTED:
			return true
		}
	}
	return false
}

// ErrorKind is the category an I/O error is reduced to for run statistics.
// Two errors of the same kind count as the same outcome regardless of text.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindUnexpectedEOF
	KindConnectionReset
	KindBrokenPipe
	KindConnectionAborted
	KindConnectionRefused
	KindTimedOut
	KindClosed
)

var kindNames = [...]string{
	KindOther:             "other",
	KindUnexpectedEOF:     "unexpected-eof",
	KindConnectionReset:   "connection-reset",
	KindBrokenPipe:        "broken-pipe",
	KindConnectionAborted: "connection-aborted",
	KindConnectionRefused: "connection-refused",
	KindTimedOut:          "timed-out",
	KindClosed:            "closed",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindOther]
	}
	return kindNames[k]
}

// errorKind classifies err. A short read counts as unexpected EOF whether
// the reader saw no bytes (io.EOF) or some (io.ErrUnexpectedEOF).
func errorKind(err error) ErrorKind {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return KindUnexpectedEOF
	case errors.Is(err, syscall.ECONNRESET):
		return KindConnectionReset
	case errors.Is(err, syscall.EPIPE):
		return KindBrokenPipe
	case errors.Is(err, syscall.ECONNABORTED):
		return KindConnectionAborted
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindConnectionRefused
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, syscall.ETIMEDOUT):
		return KindTimedOut
	case errors.Is(err, net.ErrClosed):
		return KindClosed
	}
	return KindOther
}
