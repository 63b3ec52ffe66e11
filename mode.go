package main

import (
	"fmt"
	"strings"
)

// TeardownMode selects what the server does with a connection after it has
// echoed the client's odd number.
type TeardownMode int

const (
	CloseImmediately TeardownMode = iota
	DrainThenClose
	ShutdownWriteThenDrain
	ShutdownWriteThenClose
	SleepThenClose
	ShutdownBothThenClose
)

var modeNames = [...]string{
	CloseImmediately:       "close-immediately",
	DrainThenClose:         "drain-then-close",
	ShutdownWriteThenDrain: "shutdown-write-then-drain",
	ShutdownWriteThenClose: "shutdown-write-then-close",
	SleepThenClose:         "sleep-then-close",
	ShutdownBothThenClose:  "shutdown-both-then-close",
}

// TeardownModes lists every mode in declaration order.
func TeardownModes() []TeardownMode {
	modes := make([]TeardownMode, len(modeNames))
	for i := range modeNames {
		modes[i] = TeardownMode(i)
	}
	return modes
}

func (m TeardownMode) valid() bool {
	return m >= 0 && int(m) < len(modeNames)
}

func (m TeardownMode) String() string {
	if !m.valid() {
		return fmt.Sprintf("TeardownMode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseTeardownMode maps a kebab-case mode name to its TeardownMode.
func ParseTeardownMode(s string) (TeardownMode, error) {
	for i, name := range modeNames {
		if s == name {
			return TeardownMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown teardown mode %q (want one of %s)", s, strings.Join(modeNames[:], ", "))
}

func (m TeardownMode) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, fmt.Errorf("invalid teardown mode %d", int(m))
	}
	return []byte(modeNames[m]), nil
}

func (m *TeardownMode) UnmarshalText(text []byte) error {
	parsed, err := ParseTeardownMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
