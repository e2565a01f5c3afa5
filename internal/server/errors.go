package server

import (
	"encoding/json"
	"net/http"
)

// apiError is an error response: {"error": code, "message": text}.
type apiError struct {
	Status  int
	Code    string
	Message string
}

var (
	errBadRequest   = apiError{http.StatusBadRequest, "bad_request", "malformed request"}
	errUnauthorized = apiError{http.StatusUnauthorized, "unauthorized", "missing or invalid credentials"}
	errRateLimited  = apiError{http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, try again later"}
	errLockedOut    = apiError{http.StatusTooManyRequests, "locked_out", "too many failed attempts, try again later"}
	errInternal     = apiError{http.StatusInternalServerError, "internal", "internal error"}

	errNoTransfer           = apiError{http.StatusBadRequest, "no_transfer", "transfer does not exist or is not in the expected state"}
	errTransferClosed       = apiError{http.StatusBadRequest, "transfer_closed", "transfer was dropped before a receiver arrived"}
	errWaitTimeout          = apiError{http.StatusGatewayTimeout, "timeout", "no receiver arrived yet"}
	errSenderDisconnected   = apiError{http.StatusBadRequest, "sender_disconnected", "sender went away before sending"}
	errSenderTimeout        = apiError{http.StatusGatewayTimeout, "sender_timeout", "sender did not start in time"}
	errReceiverDisconnected = apiError{http.StatusBadRequest, "receiver_disconnected", "receiver went away"}
	errPayload              = apiError{http.StatusBadRequest, "payload_error", "reading the request body failed"}
	errSendTimeout          = apiError{http.StatusRequestTimeout, "timeout", "send took too long"}
	errNoStatus             = apiError{http.StatusNotFound, "no_status", "no outcome recorded for this transfer"}
	errAuditDisabled        = apiError{http.StatusNotFound, "audit_disabled", "no audit database is configured"}
)

func (e apiError) withMessage(msg string) apiError {
	e.Message = msg
	return e
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, e apiError) {
	writeJSON(w, e.Status, map[string]string{
		"error":   e.Code,
		"message": e.Message,
	})
}
