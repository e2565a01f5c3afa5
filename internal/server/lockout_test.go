package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSecretLockout(t *testing.T) {
	l := newSecretLockout(3, time.Minute, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }

	require.False(t, l.recordFailure("10.0.0.1"))
	require.False(t, l.recordFailure("10.0.0.1"))
	require.False(t, l.locked("10.0.0.1"))
	require.True(t, l.recordFailure("10.0.0.1"))
	require.True(t, l.locked("10.0.0.1"))
	require.False(t, l.locked("10.0.0.2"))

	now = now.Add(2 * time.Minute)
	require.False(t, l.locked("10.0.0.1"), "lockout expires")

	require.False(t, l.recordFailure("10.0.0.3"))
	l.recordSuccess("10.0.0.3")
	require.False(t, l.recordFailure("10.0.0.3"))
	require.False(t, l.recordFailure("10.0.0.3"), "success resets the count")
}

func TestRequireSecret_LocksOutGuessing(t *testing.T) {
	h := newHarness(t)

	guess := func(secret string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/transfer/status", nil)
		r.Header.Set(secretHeader, secret)
		return h.do(r)
	}
	for i := 0; i < secretMaxAttempts-1; i++ {
		require.Equal(t, http.StatusUnauthorized, guess("wrong-wrong-wrong").Code)
	}
	rec := guess("wrong-wrong-wrong")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "locked_out", decodeError(t, rec.Body.Bytes()))

	// Even the right secret is refused while locked.
	require.Equal(t, http.StatusTooManyRequests, guess(testSecret).Code)
}
