package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	req := require.New(t)
	b := NewBreaker(2, time.Minute, nil)

	req.ErrorIs(b.Execute(func() error { return errBoom }), errBoom)
	req.Equal(StateClosed, b.State())
	req.ErrorIs(b.Execute(func() error { return errBoom }), errBoom)
	req.Equal(StateOpen, b.State())

	called := false
	req.ErrorIs(b.Execute(func() error { called = true; return nil }), ErrCircuitOpen)
	req.False(called)

	st := b.Stats()
	req.Equal("open", st.State)
	req.Equal(uint64(3), st.Total)
	req.Equal(uint64(2), st.Failed)
	req.Equal(uint64(1), st.Rejected)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(2, time.Minute, nil)
	_ = b.Execute(func() error { return errBoom })
	require.NoError(t, b.Execute(func() error { return nil }))
	_ = b.Execute(func() error { return errBoom })
	require.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	req := require.New(t)
	b := NewBreaker(1, time.Minute, nil)
	now := time.Now()
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errBoom })
	req.Equal(StateOpen, b.State())

	// A failed probe reopens the circuit.
	now = now.Add(2 * time.Minute)
	req.ErrorIs(b.Execute(func() error { return errBoom }), errBoom)
	req.Equal(StateOpen, b.State())

	now = now.Add(2 * time.Minute)
	req.NoError(b.Execute(func() error { return nil }))
	req.Equal(StateClosed, b.State())
}

func TestBreaker_SingleProbe(t *testing.T) {
	b := NewBreaker(1, time.Minute, nil)
	now := time.Now()
	b.now = func() time.Time { return now }
	_ = b.Execute(func() error { return errBoom })
	now = now.Add(2 * time.Minute)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(func() error {
			close(inProbe)
			<-release
			return nil
		})
	}()
	<-inProbe
	require.ErrorIs(t, b.Execute(func() error { return nil }), ErrTooManyRequests)
	close(release)
	require.NoError(t, <-done)
	require.Equal(t, StateClosed, b.State())
}

func TestCircuitState_String(t *testing.T) {
	require.Equal(t, "closed", StateClosed.String())
	require.Equal(t, "open", StateOpen.String())
	require.Equal(t, "half-open", StateHalfOpen.String())
	require.Equal(t, "unknown", CircuitState(42).String())
}
