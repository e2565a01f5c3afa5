package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"frachter/internal/audit"
	"frachter/internal/bridge"
	"frachter/internal/registry"
)

// chunkSize is the largest single read from a sender body.
const chunkSize = 32 << 10

// errSendTimedOut is delivered to the receiver when the sender ran out of time.
var errSendTimedOut = errors.New("send timed out")

// readError marks a failure reading the sender's body.
type readError struct{ err error }

func (e *readError) Error() string { return "read body: " + e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

// handleSend handles POST /api/transfer/send. The sender's body is pumped
// chunk by chunk into the bridge of the transfer named by its token.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := claimsFromContext(r.Context()).ID
	log := s.log.With("transfer_id", id.String(), "rid", RequestIDFromContext(r.Context()))

	snd, err := s.reg.Extract(id)
	if err != nil {
		writeError(w, errNoTransfer)
		return
	}
	if err := s.sched.Forget(r.Context(), id); err != nil {
		// The entry is gone from the registry, so a late eviction is a no-op.
		log.Warn("forget_failed", "err", err)
	}

	length := registry.Length{N: r.ContentLength, Known: r.ContentLength >= 0}
	if err := snd.Length.Resolve(length); err != nil {
		_ = snd.Producer.Close(nil)
		s.finish(id, audit.ReasonReceiverDisconnected, 0, start)
		log.Info("receiver_gone_before_send", "err", err)
		writeError(w, errReceiverDisconnected)
		return
	}

	// One budget for the whole body, measured from the start of the request.
	deadline := start.Add(s.cfg.SendTimeout)
	ctx, cancel := context.WithDeadline(r.Context(), deadline)
	defer cancel()
	_ = http.NewResponseController(w).SetReadDeadline(deadline)

	n, err := pump(ctx, r.Body, snd.Producer)
	switch {
	case err == nil:
		s.finish(id, audit.ReasonCompleted, n, start)
		log.Info("send_complete", "bytes", n, "ms", time.Since(start).Milliseconds())
		w.WriteHeader(http.StatusNoContent)

	case errors.Is(err, bridge.ErrConsumerGone):
		s.finish(id, audit.ReasonReceiverDisconnected, n, start)
		log.Info("receiver_disconnected", "bytes", n)
		writeError(w, errReceiverDisconnected)

	case isTimeout(err):
		closeWithError(snd.Producer, errSendTimedOut)
		s.finish(id, audit.ReasonTimeout, n, start)
		log.Warn("send_timeout", "bytes", n, "budget", s.cfg.SendTimeout.String())
		writeError(w, errSendTimeout)

	default:
		closeWithError(snd.Producer, err)
		s.finish(id, audit.ReasonPayloadError, n, start)
		log.Warn("send_failed", "bytes", n, "err", err)
		writeError(w, errPayload)
	}
}

// pump copies body into p in chunks until EOF, then closes p cleanly.
// Each chunk gets its own buffer because the bridge keeps a reference to it.
func pump(ctx context.Context, body io.Reader, p *bridge.Producer) (int64, error) {
	var total int64
	for {
		buf := make([]byte, chunkSize)
		n, rerr := body.Read(buf)
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if n > 0 {
			if err := p.Send(ctx, buf[:n]); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if errors.Is(rerr, io.EOF) {
			return total, p.Close(nil)
		}
		if rerr != nil {
			return total, &readError{err: rerr}
		}
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}

// closeWithError hands err to the receiver. Close blocks while the queue is
// full, so it runs off the request goroutine; it returns once the receiver
// drains a chunk or leaves.
func closeWithError(p *bridge.Producer, err error) {
	go func() {
		_ = p.Close(fmt.Errorf("sender: %w", err))
	}()
}

// finish records the outcome of a send: the retained status first, so the
// sender can query it as soon as the response arrives, then the audit row.
func (s *Server) finish(id uuid.UUID, reason audit.Reason, bytes int64, start time.Time) {
	succeeded := reason == audit.ReasonCompleted
	s.metrics.RecordSend(succeeded, bytes, time.Since(start))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.sched.RecordStatus(ctx, id, succeeded); err != nil {
		s.log.Warn("record_status_failed", "transfer_id", id.String(), "err", err)
	}

	if s.audit == nil {
		return
	}
	outcome := audit.Outcome{
		TransferID: id,
		Succeeded:  succeeded,
		Reason:     reason,
		Bytes:      bytes,
		RecordedAt: time.Now(),
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.audit.Record(ctx, outcome); err != nil {
			s.log.Warn("audit_record_failed", "transfer_id", id.String(), "err", err)
		}
	}()
}
