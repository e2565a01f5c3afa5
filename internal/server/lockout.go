// lockout.go - Lockout of clients that keep presenting a wrong shared secret.
package server

import (
	"sync"
	"time"
)

// secretAttempt tracks failed secret checks for one client IP
type secretAttempt struct {
	count       int
	lastAttempt time.Time
	lockedUntil time.Time
}

// secretLockout refuses a client for lockoutDuration once it failed the
// shared-secret check maxAttempts times within windowDuration.
type secretLockout struct {
	mu              sync.Mutex
	attempts        map[string]*secretAttempt
	maxAttempts     int
	lockoutDuration time.Duration
	windowDuration  time.Duration
	now             func() time.Time
}

func newSecretLockout(maxAttempts int, lockoutDuration, windowDuration time.Duration) *secretLockout {
	return &secretLockout{
		attempts:        make(map[string]*secretAttempt),
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		windowDuration:  windowDuration,
		now:             time.Now,
	}
}

// recordFailure counts a failed check and reports whether ip is now locked.
func (l *secretLockout) recordFailure(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	a, ok := l.attempts[ip]
	if !ok {
		a = &secretAttempt{}
		l.attempts[ip] = a
	}
	if now.Sub(a.lastAttempt) > l.windowDuration {
		a.count = 0
	}
	a.count++
	a.lastAttempt = now

	if a.count >= l.maxAttempts {
		a.lockedUntil = now.Add(l.lockoutDuration)
		return true
	}
	return false
}

// recordSuccess forgets earlier failures of ip.
func (l *secretLockout) recordSuccess(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, ip)
}

// locked reports whether ip is currently refused.
func (l *secretLockout) locked(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.attempts[ip]
	return ok && l.now().Before(a.lockedUntil)
}

// prune drops idle entries; called with mu held.
func (l *secretLockout) prune(now time.Time) {
	for ip, a := range l.attempts {
		if now.After(a.lockedUntil) && now.Sub(a.lastAttempt) > 2*l.windowDuration {
			delete(l.attempts, ip)
		}
	}
}
