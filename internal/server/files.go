package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"frachter/internal/registry"
	"frachter/internal/token"
)

const maxCreateBody = 64 << 10

type createResp struct {
	ID string `json:"id"`
}

type statusResp struct {
	ID        string `json:"id"`
	Succeeded bool   `json:"succeeded"`
}

// handleCreate handles PUT /api/transfers. It registers a transfer, starts
// its eviction clock and hands the sender a capability cookie for it.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCreateBody))
	if err := dec.Decode(&body); err != nil {
		writeError(w, errBadRequest.withMessage("body must be JSON {filename, contentType}"))
		return
	}
	filename, contentType, err := body.normalize()
	if err != nil {
		writeError(w, errBadRequest.withMessage(err.Error()))
		return
	}

	id := s.reg.Create(filename, contentType)
	if err := s.sched.Track(r.Context(), id); err != nil {
		s.reg.Evict(id)
		s.log.Error("track_failed", "transfer_id", id.String(), "err", err)
		writeError(w, errInternal)
		return
	}

	tok, exp, err := s.tokens.Mint(token.RoleSender, id)
	if err != nil {
		s.reg.Evict(id)
		s.log.Error("mint_failed", "transfer_id", id.String(), "err", err)
		writeError(w, errInternal)
		return
	}

	s.metrics.RecordCreate()
	s.log.Info("transfer_created",
		"transfer_id", id.String(),
		"filename", filename,
		"content_type", contentType)

	http.SetCookie(w, s.senderCookie(tok, exp))
	writeJSON(w, http.StatusOK, createResp{ID: id.String()})
}

// handleWait handles GET /api/transfer/wait: a long-poll that returns once a
// receiver has claimed the sender's transfer.
func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	rd, err := s.reg.SubscribeReadiness(claims.ID)
	if err != nil {
		writeError(w, errNoTransfer)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.WaitTimeout)
	defer cancel()

	switch err := rd.Wait(ctx); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, registry.ErrClosed):
		writeError(w, errTransferClosed)
	case errors.Is(err, context.DeadlineExceeded):
		s.metrics.RecordWaitTimeout()
		writeError(w, errWaitTimeout)
	default:
		// client went away
	}
}

// handleStatus handles GET /api/transfer/status: the recorded outcome of
// the sender's last send, while it is retained.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	succeeded, found, err := s.sched.Status(r.Context(), claims.ID)
	if err != nil {
		s.log.Error("status_query_failed", "transfer_id", claims.ID.String(), "err", err)
		writeError(w, errInternal)
		return
	}
	if !found {
		writeError(w, errNoStatus)
		return
	}
	writeJSON(w, http.StatusOK, statusResp{ID: claims.ID.String(), Succeeded: succeeded})
}
