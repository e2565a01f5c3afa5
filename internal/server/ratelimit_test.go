package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()
	now := time.Now()
	rl.now = func() time.Time { return now }

	require.True(t, rl.allow("198.51.100.7"))
	now = now.Add(30 * time.Second)
	require.True(t, rl.allow("198.51.100.7"))

	wait, ok := rl.take("198.51.100.7")
	require.False(t, ok)
	require.Equal(t, 30*time.Second, wait, "first hit ages out after a minute")
	require.True(t, rl.allow("198.51.100.8"), "limits are per client")

	now = now.Add(30*time.Second + time.Millisecond)
	require.True(t, rl.allow("198.51.100.7"))
	require.False(t, rl.allow("198.51.100.7"))
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	defer rl.stop()
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.allow("198.51.100.7")
	now = now.Add(2 * time.Minute)
	rl.allow("198.51.100.8")
	rl.sweep()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	require.NotContains(t, rl.hits, "198.51.100.7")
	require.Contains(t, rl.hits, "198.51.100.8")
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)
	defer rl.stop()

	remote := clientIPResolver{}.resolve
	handler := rl.middleware(remote, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	put := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/transfers", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, put().Code, "request %d", i+1)
	}
	w := put()
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "rate_limited", decodeError(t, w.Body.Bytes()))
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}
