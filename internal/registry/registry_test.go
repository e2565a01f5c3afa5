package registry

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegistry_UnknownIDIsNotFound(t *testing.T) {
	req := require.New(t)
	r := New(1)
	id := uuid.New()

	_, err := r.SubscribeReadiness(id)
	req.ErrorIs(err, ErrNotFound)
	_, err = r.Claim(id)
	req.ErrorIs(err, ErrNotFound)
	_, err = r.Extract(id)
	req.ErrorIs(err, ErrNotFound)
	req.False(r.Evict(id))
}

func TestRegistry_Lifecycle(t *testing.T) {
	req := require.New(t)
	r := New(1)

	id := r.Create("a.txt", "text/plain")
	state, ok := r.Lookup(id)
	req.True(ok)
	req.Equal(WaitingForReceiver, state)

	_, err := r.Extract(id)
	req.ErrorIs(err, ErrNotFound, "extract before claim")

	rd, err := r.SubscribeReadiness(id)
	req.NoError(err)
	req.False(rd.Ready())

	recv, err := r.Claim(id)
	req.NoError(err)
	req.Equal("a.txt", recv.Filename)
	req.Equal("text/plain", recv.ContentType)
	req.True(rd.Ready())

	state, _ = r.Lookup(id)
	req.Equal(WaitingForSender, state)

	_, err = r.SubscribeReadiness(id)
	req.ErrorIs(err, ErrNotFound, "readiness is gone once claimed")
	_, err = r.Claim(id)
	req.ErrorIs(err, ErrNotFound, "second claim")

	send, err := r.Extract(id)
	req.NoError(err)
	req.NotNil(send.Producer)
	req.Equal(0, r.Len())

	_, err = r.Extract(id)
	req.ErrorIs(err, ErrNotFound, "second extract")
}

func TestRegistry_ClaimIsAtMostOnce(t *testing.T) {
	r := New(1)
	id := r.Create("f", "application/octet-stream")

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := r.Claim(id); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
}

func TestRegistry_ExtractIsAtMostOnce(t *testing.T) {
	r := New(1)
	id := r.Create("f", "application/octet-stream")
	_, err := r.Claim(id)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := r.Extract(id); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
}

func TestRegistry_WaitWakesOnClaim(t *testing.T) {
	req := require.New(t)
	r := New(1)
	id := r.Create("f", "text/plain")
	rd, err := r.SubscribeReadiness(id)
	req.NoError(err)

	errCh := make(chan error, 1)
	go func() { errCh <- rd.Wait(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	_, err = r.Claim(id)
	req.NoError(err)

	select {
	case err := <-errCh:
		req.NoError(err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}

	// A late watcher still observes the flip.
	req.NoError(rd.Wait(context.Background()))
}

func TestRegistry_WaitTimesOut(t *testing.T) {
	r := New(1)
	id := r.Create("f", "text/plain")
	rd, err := r.SubscribeReadiness(id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, rd.Wait(ctx), context.DeadlineExceeded)

	state, ok := r.Lookup(id)
	require.True(t, ok, "waiting has no side effect")
	require.Equal(t, WaitingForReceiver, state)
}

func TestRegistry_EvictUnclaimedClosesReadiness(t *testing.T) {
	req := require.New(t)
	r := New(1)
	id := r.Create("f", "text/plain")
	rd, err := r.SubscribeReadiness(id)
	req.NoError(err)

	errCh := make(chan error, 1)
	go func() { errCh <- rd.Wait(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	req.True(r.Evict(id))

	select {
	case err := <-errCh:
		req.ErrorIs(err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter did not observe eviction")
	}
}

func TestRegistry_EvictClaimedReleasesReceiver(t *testing.T) {
	req := require.New(t)
	r := New(1)
	id := r.Create("f", "text/plain")
	recv, err := r.Claim(id)
	req.NoError(err)

	req.True(r.Evict(id))

	_, err = recv.Length.Wait(context.Background())
	req.ErrorIs(err, ErrSenderGone)

	_, err = recv.Body.Next(context.Background())
	req.ErrorIs(err, io.EOF)

	_, err = r.Extract(id)
	req.ErrorIs(err, ErrNotFound)
}

func TestLengthSlot(t *testing.T) {
	t.Run("resolve then wait", func(t *testing.T) {
		req := require.New(t)
		f, res := newLengthSlot()
		req.NoError(res.Resolve(Length{N: 5, Known: true}))
		l, err := f.Wait(context.Background())
		req.NoError(err)
		req.Equal(Length{N: 5, Known: true}, l)
		req.ErrorIs(res.Resolve(Length{}), ErrSenderGone, "one shot")
	})

	t.Run("abandoned future rejects resolve", func(t *testing.T) {
		f, res := newLengthSlot()
		f.Abandon()
		require.ErrorIs(t, res.Resolve(Length{}), ErrReceiverGone)
	})

	t.Run("drop reads as sender gone", func(t *testing.T) {
		f, res := newLengthSlot()
		res.Drop()
		_, err := f.Wait(context.Background())
		require.True(t, errors.Is(err, ErrSenderGone))
	})
}
