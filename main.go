package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
)

const (
	gracePeriod = 10 * time.Second
)

type serverCmd struct {
	Listen       string         `arg:"positional,required" help:"address to listen on, host:port"`
	TeardownMode TeardownMode   `arg:"positional,required" help:"close-immediately, drain-then-close, shutdown-write-then-drain, shutdown-write-then-close, sleep-then-close or shutdown-both-then-close"`
	Buffered     bool           `arg:"--buffered" help:"buffer reads and writes on the connection"`
	Sleep        time.Duration  `arg:"--sleep" default:"5ms" help:"time to sleep when using sleep-then-close"`
	Linger       *time.Duration `arg:"--linger" help:"SO_LINGER for accepted connections: close(2) and shutdown(2) block until queued data is sent or the timeout passes"`
}

type clientCmd struct {
	Bind      string `arg:"positional,required" help:"local address to bind, empty for any"`
	Connect   string `arg:"positional,required" help:"server address to connect to"`
	Times     int    `arg:"--times" default:"1" help:"number of runs"`
	Buffered  bool   `arg:"--buffered" help:"buffer reads and writes on the connection"`
	SendLimit uint32 `arg:"--send-limit" default:"8388608" help:"maximum numbers sent per run"`
}

type args struct {
	Server   *serverCmd `arg:"subcommand:server" help:"accept connections and tear them down in the given mode"`
	Client   *clientCmd `arg:"subcommand:client" help:"probe a server and print outcome statistics"`
	LogLevel string     `arg:"--log-level" default:"debug" help:"panic, fatal, error, warn, info, debug or trace"`
}

func (args) Description() string {
	return "tcp-teardown probes how TCP connection teardown strategies interact with a peer that is still sending\n"
}

func main() {
	var a args
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	level, err := logrus.ParseLevel(a.LogLevel)
	if err != nil {
		p.Fail(err.Error())
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	switch {
	case a.Server != nil:
		runServer(a.Server)
	case a.Client != nil:
		runClient(a.Client)
	}
}

func runServer(cmd *serverCmd) {
	srv, err := NewServer(ServerConfig{
		Addr:     cmd.Listen,
		Mode:     cmd.TeardownMode,
		Buffered: cmd.Buffered,
		Sleep:    cmd.Sleep,
		Linger:   cmd.Linger,
	})
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	if err := srv.Listen(); err != nil {
		logrus.Fatalf("Failed to start: %v", err)
	}

	// Channel for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		if err := srv.Serve(); err != nil && err != ErrServerClosed {
			logrus.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for signal
	<-stop
	logrus.Info("Shutdown signal received")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), gracePeriod)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Fatalf("Graceful shutdown failed: %v", err)
	}

	logrus.Info("Server gracefully stopped")
}

func runClient(cmd *clientCmd) {
	client, err := NewClient(ClientConfig{
		Connect:   cmd.Connect,
		Bind:      cmd.Bind,
		Times:     cmd.Times,
		Buffered:  cmd.Buffered,
		SendLimit: cmd.SendLimit,
	})
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	stats, runErr := client.Run(ctx)
	if err := stats.WriteTable(os.Stdout); err != nil {
		logrus.Errorf("Failed to print stats: %v", err)
	}
	if runErr != nil {
		logrus.Fatalf("Client failed: %v", runErr)
	}
}
