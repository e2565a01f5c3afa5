package registry

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Readiness.Wait when the transfer was dropped
// before any receiver attached.
var ErrClosed = errors.New("registry: transfer closed")

// Readiness reports whether a receiver has attached to a transfer. It holds
// the latest value rather than an edge: a watcher that subscribes after the
// flip still sees it.
type Readiness struct {
	mu      sync.Mutex
	ready   bool
	closed  bool
	changed chan struct{}
}

func newReadiness() *Readiness {
	return &Readiness{changed: make(chan struct{})}
}

// Ready reports the current value.
func (r *Readiness) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Wait blocks until a receiver attached, the transfer was dropped, or ctx ends.
func (r *Readiness) Wait(ctx context.Context) error {
	r.mu.Lock()
	ready, closed, changed := r.ready, r.closed, r.changed
	r.mu.Unlock()

	switch {
	case ready:
		return nil
	case closed:
		return ErrClosed
	}

	select {
	case <-changed:
		if r.Ready() {
			return nil
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// set flips the value to true. It happens at most once per transfer.
func (r *Readiness) set() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready || r.closed {
		return
	}
	r.ready = true
	close(r.changed)
}

// close marks the writer side as gone without a receiver ever attaching.
func (r *Readiness) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready || r.closed {
		return
	}
	r.closed = true
	close(r.changed)
}
