package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"frachter/internal/registry"
)

// handleReceive handles GET /api/receive/{id}. It claims the transfer, waits
// for the sender to announce the body length and then streams the sender's
// body straight into the response.
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, errNoTransfer)
		return
	}

	recv, err := s.reg.Claim(id)
	if err != nil {
		writeError(w, errNoTransfer)
		return
	}
	defer recv.Body.Close()

	log := s.log.With("transfer_id", id.String(), "rid", RequestIDFromContext(r.Context()))
	log.Info("receiver_attached")

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReceiveTimeout)
	length, err := recv.Length.Wait(ctx)
	cancel()
	if err != nil {
		recv.Length.Abandon()
		s.metrics.RecordReceiveError()
		switch {
		case errors.Is(err, registry.ErrSenderGone):
			writeError(w, errSenderDisconnected)
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, errSenderTimeout)
		default:
			log.Info("receiver_left_before_sender")
		}
		return
	}

	h := w.Header()
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": recv.Filename}))
	h.Set("Content-Type", recv.ContentType)
	if length.Known {
		h.Set("Content-Length", strconv.FormatInt(length.N, 10))
	}
	w.WriteHeader(http.StatusOK)
	s.metrics.RecordReceiveStart()

	start := time.Now()
	rc := http.NewResponseController(w)
	var total int64
	for {
		chunk, err := recv.Body.Next(r.Context())
		if errors.Is(err, io.EOF) {
			s.metrics.RecordReceive(total, time.Since(start))
			log.Info("receive_complete", "bytes", total)
			return
		}
		if err != nil {
			s.metrics.RecordReceiveError()
			if r.Context().Err() != nil {
				log.Info("receiver_disconnected", "bytes", total)
				return
			}
			// Tear the connection down so the client cannot mistake a
			// truncated body for a complete one.
			log.Warn("stream_aborted", "bytes", total, "err", err)
			panic(http.ErrAbortHandler)
		}
		if _, err := w.Write(chunk); err != nil {
			s.metrics.RecordReceiveError()
			log.Info("receiver_write_failed", "bytes", total, "err", err)
			return
		}
		total += int64(len(chunk))
		_ = rc.Flush()
	}
}
