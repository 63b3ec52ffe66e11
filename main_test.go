package main

import (
	"testing"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseArgs(t *testing.T, argv ...string) (args, error) {
	t.Helper()
	var a args
	p, err := arg.NewParser(arg.Config{Program: "tcp-teardown"}, &a)
	require.NoError(t, err)
	return a, p.Parse(argv)
}

func TestArgs_Server(t *testing.T) {
	a, err := parseArgs(t, "server", "127.0.0.1:9000", "shutdown-write-then-drain", "--buffered", "--linger", "2s")
	require.NoError(t, err)
	require.NotNil(t, a.Server)
	assert.Nil(t, a.Client)
	assert.Equal(t, "127.0.0.1:9000", a.Server.Listen)
	assert.Equal(t, ShutdownWriteThenDrain, a.Server.TeardownMode)
	assert.True(t, a.Server.Buffered)
	assert.Equal(t, 5*time.Millisecond, a.Server.Sleep)
	require.NotNil(t, a.Server.Linger)
	assert.Equal(t, 2*time.Second, *a.Server.Linger)
	assert.Equal(t, "debug", a.LogLevel)
}

func TestArgs_ServerDefaults(t *testing.T) {
	a, err := parseArgs(t, "server", ":9000", "sleep-then-close", "--sleep", "250ms")
	require.NoError(t, err)
	assert.Equal(t, SleepThenClose, a.Server.TeardownMode)
	assert.Equal(t, 250*time.Millisecond, a.Server.Sleep)
	assert.Nil(t, a.Server.Linger, "no linger means the OS default")
}

func TestArgs_ServerRejectsUnknownMode(t *testing.T) {
	_, err := parseArgs(t, "server", ":9000", "close-eventually")
	assert.Error(t, err)
}

func TestArgs_Client(t *testing.T) {
	a, err := parseArgs(t, "--log-level", "info", "client", "127.0.0.1:0", "127.0.0.1:9000", "--times", "100")
	require.NoError(t, err)
	require.NotNil(t, a.Client)
	assert.Equal(t, "127.0.0.1:0", a.Client.Bind)
	assert.Equal(t, "127.0.0.1:9000", a.Client.Connect)
	assert.Equal(t, 100, a.Client.Times)
	assert.False(t, a.Client.Buffered)
	assert.Equal(t, DefaultSendLimit, a.Client.SendLimit)
	assert.Equal(t, "info", a.LogLevel)
}
