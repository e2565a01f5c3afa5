package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Reason classifies how a send ended.
type Reason string

const (
	ReasonCompleted            Reason = "completed"
	ReasonReceiverDisconnected Reason = "receiver_disconnected"
	ReasonPayloadError         Reason = "payload_error"
	ReasonTimeout              Reason = "timeout"
)

// Outcome is one row of the trail.
type Outcome struct {
	TransferID uuid.UUID `json:"transfer_id"`
	Succeeded  bool      `json:"succeeded"`
	Reason     Reason    `json:"reason"`
	Bytes      int64     `json:"bytes"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store writes outcomes through a circuit breaker.
type Store struct {
	db      *sql.DB
	breaker *Breaker
	log     *slog.Logger
}

// NewStore wraps an open, migrated database.
func NewStore(db *sql.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("service", "audit")
	return &Store{
		db:      db,
		breaker: NewBreaker(5, 30*time.Second, log),
		log:     log,
	}
}

// Record inserts o. RecordedAt defaults to now.
func (s *Store) Record(ctx context.Context, o Outcome) error {
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now()
	}
	return s.breaker.Execute(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO transfer_outcomes (transfer_id, succeeded, reason, bytes, recorded_at)
			VALUES ($1, $2, $3, $4, $5)
		`, o.TransferID, o.Succeeded, string(o.Reason), o.Bytes, o.RecordedAt)
		if err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
		return nil
	})
}

// Recent returns up to limit outcomes, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transfer_id, succeeded, reason, bytes, recorded_at
		FROM transfer_outcomes
		ORDER BY recorded_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o      Outcome
			reason string
		)
		if err := rows.Scan(&o.TransferID, &o.Succeeded, &reason, &o.Bytes, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Reason = Reason(reason)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Prune deletes outcomes recorded before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transfer_outcomes WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune outcomes: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BreakerStats exposes the write breaker for health output.
func (s *Store) BreakerStats() BreakerStats {
	return s.breaker.Stats()
}
