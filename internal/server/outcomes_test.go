package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"frachter/internal/audit"
)

func TestOutcomes(t *testing.T) {
	store := &fakeAudit{}
	h := newHarness(t, func(_ *Config, d *Deps) { d.Audit = store })

	first, second := uuid.New(), uuid.New()
	require.NoError(t, store.Record(context.Background(), audit.Outcome{TransferID: first, Reason: audit.ReasonTimeout}))
	require.NoError(t, store.Record(context.Background(), audit.Outcome{TransferID: second, Succeeded: true, Reason: audit.ReasonCompleted, Bytes: 5}))

	rec := h.do(asSender(httptest.NewRequest(http.MethodGet, "/api/outcomes?limit=1", nil), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got []audit.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, second, got[0].TransferID)
	require.Equal(t, audit.ReasonCompleted, got[0].Reason)

	rec = h.do(asSender(httptest.NewRequest(http.MethodGet, "/api/outcomes", nil), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)

	for _, limit := range []string{"0", "501", "x"} {
		rec = h.do(asSender(httptest.NewRequest(http.MethodGet, "/api/outcomes?limit="+limit, nil), nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, limit)
	}

	rec = h.do(httptest.NewRequest(http.MethodGet, "/api/outcomes", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOutcomes_AuditDisabled(t *testing.T) {
	h := newHarness(t)
	rec := h.do(asSender(httptest.NewRequest(http.MethodGet, "/api/outcomes", nil), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "audit_disabled", decodeError(t, rec.Body.Bytes()))
}
