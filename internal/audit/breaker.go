package audit

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed: calls flow normally
	StateClosed CircuitState = iota
	// StateOpen: calls fail fast
	StateOpen
	// StateHalfOpen: one probe call is allowed through
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when a probe is already in flight.
	ErrTooManyRequests = errors.New("too many requests while circuit is half-open")
)

// Breaker stops hammering the database once it keeps failing.
type Breaker struct {
	mu  sync.Mutex
	log *slog.Logger
	now func() time.Time

	maxFailures uint32
	timeout     time.Duration

	state           CircuitState
	failures        uint32
	lastFailureTime time.Time
	probing         bool

	total    uint64
	failed   uint64
	rejected uint64
}

// NewBreaker opens after maxFailures consecutive failures and probes again
// once timeout has passed.
func NewBreaker(maxFailures uint32, timeout time.Duration, log *slog.Logger) *Breaker {
	if log == nil {
		log = slog.Default()
	}
	return &Breaker{
		log:         log,
		now:         time.Now,
		maxFailures: maxFailures,
		timeout:     timeout,
		state:       StateClosed,
	}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	b.total++

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailureTime) <= b.timeout {
			b.rejected++
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.log.Info("circuit_breaker_half_open", "timeout_elapsed", b.timeout.String())
		fallthrough
	case StateHalfOpen:
		if b.probing {
			b.rejected++
			b.mu.Unlock()
			return ErrTooManyRequests
		}
		b.probing = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.probing = false
	}
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) onSuccess() {
	b.failures = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.log.Info("circuit_breaker_closed", "reason", "recovery_successful")
	}
}

func (b *Breaker) onFailure() {
	b.failed++
	b.failures++
	b.lastFailureTime = b.now()

	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		if b.state != StateOpen {
			b.log.Warn("circuit_breaker_opened",
				"failures", b.failures,
				"max_failures", b.maxFailures,
				"timeout", b.timeout.String())
		}
		b.state = StateOpen
	}
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerStats holds circuit breaker counters.
type BreakerStats struct {
	State    string `json:"state"`
	Failures uint32 `json:"failures"`
	Total    uint64 `json:"total"`
	Failed   uint64 `json:"failed"`
	Rejected uint64 `json:"rejected"`
}

// Stats returns a snapshot of the breaker counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:    b.state.String(),
		Failures: b.failures,
		Total:    b.total,
		Failed:   b.failed,
		Rejected: b.rejected,
	}
}
