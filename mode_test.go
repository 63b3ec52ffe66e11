package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeardownMode_Names(t *testing.T) {
	tests := []struct {
		name string
		mode TeardownMode
	}{
		{name: "close-immediately", mode: CloseImmediately},
		{name: "drain-then-close", mode: DrainThenClose},
		{name: "shutdown-write-then-drain", mode: ShutdownWriteThenDrain},
		{name: "shutdown-write-then-close", mode: ShutdownWriteThenClose},
		{name: "sleep-then-close", mode: SleepThenClose},
		{name: "shutdown-both-then-close", mode: ShutdownBothThenClose},
	}
	require.Len(t, TeardownModes(), len(tests))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.mode.String())

			parsed, err := ParseTeardownMode(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, parsed)

			var m TeardownMode
			require.NoError(t, m.UnmarshalText([]byte(tt.name)))
			assert.Equal(t, tt.mode, m)

			text, err := tt.mode.MarshalText()
			require.NoError(t, err)
			assert.Equal(t, tt.name, string(text))
		})
	}
}

func TestTeardownMode_Invalid(t *testing.T) {
	for _, name := range []string{"", "CloseImmediately", "close_immediately", "shutdown-read-then-close"} {
		_, err := ParseTeardownMode(name)
		assert.Error(t, err, "name %q", name)
	}

	m := DrainThenClose
	assert.Error(t, m.UnmarshalText([]byte("nope")))
	assert.Equal(t, DrainThenClose, m, "failed unmarshal must not change the mode")

	assert.Equal(t, "TeardownMode(9)", TeardownMode(9).String())
	_, err := TeardownMode(-1).MarshalText()
	assert.Error(t, err)
}
