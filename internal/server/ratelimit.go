// ratelimit.go - Per-IP limit on transfer creation.
//
// Every create allocates a registry entry that lives until it is sent or
// evicted, so creation is the one route worth throttling.
package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// rateLimiter admits at most limit requests per client IP in any sliding
// window of length window.
type rateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time // oldest first
	limit  int
	window time.Duration
	now    func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// middleware limits next by the key clientIP derives from each request.
func (rl *rateLimiter) middleware(clientIP func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wait, ok := rl.take(clientIP(r)); !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			writeError(w, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow reports whether ip may make another request now.
func (rl *rateLimiter) allow(ip string) bool {
	_, ok := rl.take(ip)
	return ok
}

// take records a request from ip if it fits in the window. When it does
// not, it returns how long until the oldest counted request ages out.
func (rl *rateLimiter) take(ip string) (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := dropBefore(rl.hits[ip], now.Add(-rl.window))
	if len(recent) >= rl.limit {
		rl.hits[ip] = recent
		return recent[0].Add(rl.window).Sub(now), false
	}
	rl.hits[ip] = append(recent, now)
	return 0, true
}

// dropBefore trims the leading entries of ts that are not after cutoff.
func dropBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

func (rl *rateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// sweep forgets clients with nothing left in the window.
func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.window)
	for ip, ts := range rl.hits {
		if len(dropBefore(ts, cutoff)) == 0 {
			delete(rl.hits, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}
