// Package scheduler evicts transfers nobody completed in time and keeps
// short-lived outcome records for finished sends.
//
// All state lives in one goroutine (Run). Callers talk to it through
// messages, and its own timers post messages back into the same loop, so
// the queues are never touched concurrently. A queue only has a timer armed
// while it holds entries; there is no fixed-rate polling.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ErrStopped is returned when the scheduler loop is not running.
var ErrStopped = errors.New("scheduler: stopped")

// Evictor removes abandoned transfers. *registry.Registry satisfies it.
type Evictor interface {
	Evict(id uuid.UUID) bool
}

// Config holds the scheduler timings.
type Config struct {
	PendingTTL time.Duration // age at which an unfinished transfer is evicted
	StatusTTL  time.Duration // how long an outcome stays queryable
	MinRecheck time.Duration // floor for pending re-arm delays
	MaxRecheck time.Duration // cap for status re-arm delays
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		PendingTTL: 10 * time.Minute,
		StatusTTL:  60 * time.Second,
		MinRecheck: time.Second,
		MaxRecheck: time.Second,
	}
}

type pendingEntry struct {
	id        uuid.UUID
	createdAt time.Time
}

type statusEntry struct {
	recordedAt time.Time
	succeeded  bool
}

type statusReply struct {
	succeeded bool
	found     bool
}

type msgKind int

const (
	msgTrack msgKind = iota
	msgForget
	msgRecord
	msgQuery
	msgPendingFire
	msgStatusFire
	msgStats
)

type message struct {
	kind  msgKind
	id    uuid.UUID
	ok    bool
	reply chan statusReply
	stats chan Stats
}

// Stats is a point-in-time view of the queues.
type Stats struct {
	Pending      int  `json:"pending"`
	Statuses     int  `json:"statuses"`
	PendingArmed bool `json:"pending_armed"`
	StatusArmed  bool `json:"status_armed"`
	Evicted      int  `json:"evicted"`
}

// Scheduler owns the pending-eviction queue and the status map.
type Scheduler struct {
	cfg     Config
	evictor Evictor
	log     *slog.Logger

	inbox chan message
	done  chan struct{}

	// Owned by the Run goroutine.
	pending      []pendingEntry
	statuses     map[uuid.UUID]statusEntry
	pendingArmed bool
	statusArmed  bool
	evicted      int
}

// New returns a scheduler; call Run to start it.
func New(cfg Config, evictor Evictor, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		evictor:  evictor,
		log:      log.With("service", "scheduler"),
		inbox:    make(chan message, 64),
		done:     make(chan struct{}),
		statuses: make(map[uuid.UUID]statusEntry),
	}
}

// Run processes messages until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)
	s.log.Info("starting",
		"pending_ttl", s.cfg.PendingTTL.String(),
		"status_ttl", s.cfg.StatusTTL.String())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("shutting_down", "pending", len(s.pending), "statuses", len(s.statuses))
			return
		case m := <-s.inbox:
			s.handle(m)
		}
	}
}

func (s *Scheduler) handle(m message) {
	switch m.kind {
	case msgTrack:
		if !s.pendingArmed {
			s.arm(s.cfg.PendingTTL, msgPendingFire)
			s.pendingArmed = true
		}
		s.pending = append(s.pending, pendingEntry{id: m.id, createdAt: time.Now()})

	case msgForget:
		s.pending = lo.Reject(s.pending, func(e pendingEntry, _ int) bool { return e.id == m.id })

	case msgRecord:
		s.statuses[m.id] = statusEntry{recordedAt: time.Now(), succeeded: m.ok}
		if !s.statusArmed {
			s.arm(s.cfg.StatusTTL, msgStatusFire)
			s.statusArmed = true
		}

	case msgQuery:
		e, ok := s.statuses[m.id]
		if ok && time.Since(e.recordedAt) >= s.cfg.StatusTTL {
			ok = false
		}
		m.reply <- statusReply{succeeded: e.succeeded, found: ok}

	case msgPendingFire:
		s.processPending()

	case msgStatusFire:
		s.processStatuses()

	case msgStats:
		m.stats <- Stats{
			Pending:      len(s.pending),
			Statuses:     len(s.statuses),
			PendingArmed: s.pendingArmed,
			StatusArmed:  s.statusArmed,
			Evicted:      s.evicted,
		}
	}
}

func (s *Scheduler) processPending() {
	now := time.Now()
	expired, kept := lo.FilterReject(s.pending, func(e pendingEntry, _ int) bool {
		return now.Sub(e.createdAt) >= s.cfg.PendingTTL
	})
	s.pending = kept

	for _, e := range expired {
		if s.evictor.Evict(e.id) {
			s.evicted++
			s.log.Info("evicted_transfer", "transfer_id", e.id.String(), "age", now.Sub(e.createdAt).String())
		}
	}

	if len(s.pending) == 0 {
		s.pendingArmed = false
		return
	}
	oldest := lo.MinBy(s.pending, func(a, b pendingEntry) bool { return a.createdAt.Before(b.createdAt) })
	next := max(oldest.createdAt.Add(s.cfg.PendingTTL).Sub(now), s.cfg.MinRecheck)
	s.arm(next, msgPendingFire)
	s.log.Debug("processed_pending", "remaining", len(s.pending), "next_check", next.String())
}

func (s *Scheduler) processStatuses() {
	now := time.Now()
	for id, e := range s.statuses {
		if now.Sub(e.recordedAt) >= s.cfg.StatusTTL {
			delete(s.statuses, id)
		}
	}

	if len(s.statuses) == 0 {
		s.statusArmed = false
		return
	}
	var oldest time.Time
	for _, e := range s.statuses {
		if oldest.IsZero() || e.recordedAt.Before(oldest) {
			oldest = e.recordedAt
		}
	}
	next := min(oldest.Add(s.cfg.StatusTTL).Sub(now), s.cfg.MaxRecheck)
	s.arm(next, msgStatusFire)
}

// arm schedules a message back into the loop after d.
func (s *Scheduler) arm(d time.Duration, kind msgKind) {
	time.AfterFunc(d, func() {
		select {
		case s.inbox <- message{kind: kind}:
		case <-s.done:
		}
	})
}

func (s *Scheduler) post(ctx context.Context, m message) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Track starts the eviction clock for a newly created transfer.
func (s *Scheduler) Track(ctx context.Context, id uuid.UUID) error {
	return s.post(ctx, message{kind: msgTrack, id: id})
}

// Forget stops tracking a transfer that was extracted by its sender.
func (s *Scheduler) Forget(ctx context.Context, id uuid.UUID) error {
	return s.post(ctx, message{kind: msgForget, id: id})
}

// RecordStatus stores the outcome of a send.
func (s *Scheduler) RecordStatus(ctx context.Context, id uuid.UUID, succeeded bool) error {
	return s.post(ctx, message{kind: msgRecord, id: id, ok: succeeded})
}

// Status returns the recorded outcome for id. found is false when nothing
// was recorded or the record expired.
func (s *Scheduler) Status(ctx context.Context, id uuid.UUID) (succeeded, found bool, err error) {
	reply := make(chan statusReply, 1)
	if err := s.post(ctx, message{kind: msgQuery, id: id, reply: reply}); err != nil {
		return false, false, err
	}
	select {
	case r := <-reply:
		return r.succeeded, r.found, nil
	case <-s.done:
		return false, false, ErrStopped
	case <-ctx.Done():
		return false, false, ctx.Err()
	}
}

// Stats returns queue sizes and timer state.
func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if err := s.post(ctx, message{kind: msgStats, stats: reply}); err != nil {
		return Stats{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-s.done:
		return Stats{}, ErrStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}
