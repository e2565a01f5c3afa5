package main

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"frachter/internal/registry"
	"frachter/internal/scheduler"
)

func setEnv(t *testing.T, addr string) {
	t.Helper()
	t.Setenv("FRACHTER_ADDR", addr)
	t.Setenv("FRACHTER_TOKEN", "a-long-shared-secret")
	t.Setenv("FRACHTER_JWT_SECRET", base64.StdEncoding.EncodeToString(make([]byte, 32)))
	t.Setenv("FRACHTER_DATABASE_URL", "")
	t.Setenv("FRACHTER_LOG_LEVEL", "error")
}

func TestRun_InvalidConfig(t *testing.T) {
	setEnv(t, ":0")
	t.Setenv("FRACHTER_TOKEN", "")

	require.Equal(t, 1, run(context.Background()))
}

func TestRun_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	setEnv(t, ln.Addr().String())

	require.Equal(t, 1, run(context.Background()))
}

func TestRun_GracefulShutdown(t *testing.T) {
	setEnv(t, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	code := make(chan int, 1)
	go func() { code <- run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case c := <-code:
		require.Equal(t, 0, c)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

type shutdownFunc func(ctx context.Context) error

func (f shutdownFunc) Shutdown(ctx context.Context) error { return f(ctx) }

func TestDrain_SchedulerOutlivesServerShutdown(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(1)
	sched := scheduler.New(scheduler.DefaultConfig(), reg, log)
	schedCtx, stopSched := context.WithCancel(context.Background())
	defer stopSched()
	go sched.Run(schedCtx)

	id := uuid.New()
	srv := shutdownFunc(func(ctx context.Context) error {
		// A send finishing while the listener drains.
		return sched.RecordStatus(ctx, id, true)
	})
	require.NoError(t, drain(context.Background(), srv, stopSched))

	require.Eventually(t, func() bool {
		_, err := sched.Stats(context.Background())
		return errors.Is(err, scheduler.ErrStopped)
	}, time.Second, 5*time.Millisecond)
}
