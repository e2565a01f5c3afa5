package server

import (
	"net/http"
	"strconv"

	"frachter/internal/audit"
)

const (
	defaultOutcomeLimit = 50
	maxOutcomeLimit     = 500
)

// handleOutcomes handles GET /api/outcomes: the newest audited send
// outcomes, for operators holding the shared secret.
func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, errAuditDisabled)
		return
	}

	limit := defaultOutcomeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxOutcomeLimit {
			writeError(w, errBadRequest.withMessage("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	outcomes, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("outcomes_query_failed", "err", err)
		writeError(w, errInternal)
		return
	}
	if outcomes == nil {
		outcomes = []audit.Outcome{}
	}
	writeJSON(w, http.StatusOK, outcomes)
}
