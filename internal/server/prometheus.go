// prometheus.go - Prometheus text exporter for the relay counters.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

func writeMetric(b *strings.Builder, name, kind, help string, value any) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(b, "%s %v\n\n", name, value)
}

// prometheusLabel escapes a label value.
func prometheusLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	return value
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()

	var out strings.Builder
	out.WriteString("# HELP frachter_info Application version info\n")
	out.WriteString("# TYPE frachter_info gauge\n")
	fmt.Fprintf(&out, "frachter_info{version=\"%s\"} 1\n\n", prometheusLabel(s.cfg.Version))

	writeMetric(&out, "frachter_requests_total", "counter", "Total number of HTTP requests", snap.RequestsTotal)
	writeMetric(&out, "frachter_request_errors_4xx_total", "counter", "HTTP requests answered with 4xx", snap.RequestErrors4xx)
	writeMetric(&out, "frachter_request_errors_5xx_total", "counter", "HTTP requests answered with 5xx", snap.RequestErrors5xx)
	writeMetric(&out, "frachter_transfers_created_total", "counter", "Transfers created", snap.TransfersCreated)
	writeMetric(&out, "frachter_wait_timeouts_total", "counter", "Wait long-polls that timed out", snap.WaitTimeouts)
	writeMetric(&out, "frachter_receives_started_total", "counter", "Receivers that began streaming", snap.ReceivesStarted)
	writeMetric(&out, "frachter_receives_completed_total", "counter", "Receivers that reached end of stream", snap.ReceivesCompleted)
	writeMetric(&out, "frachter_receive_errors_total", "counter", "Receives that did not complete", snap.ReceiveErrors)
	writeMetric(&out, "frachter_sends_completed_total", "counter", "Sends that completed", snap.SendsCompleted)
	writeMetric(&out, "frachter_sends_failed_total", "counter", "Sends that failed", snap.SendsFailed)
	writeMetric(&out, "frachter_relayed_bytes_total", "counter", "Bytes accepted from senders", snap.SendBytesTotal)
	writeMetric(&out, "frachter_transfers_in_flight", "gauge", "Transfers held in the registry", s.reg.Len())

	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if st, err := s.sched.Stats(ctx); err == nil {
		writeMetric(&out, "frachter_pending_evictions", "gauge", "Transfers tracked for eviction", st.Pending)
		writeMetric(&out, "frachter_status_records", "gauge", "Outcome records retained", st.Statuses)
		writeMetric(&out, "frachter_evictions_total", "counter", "Transfers evicted unfinished", st.Evicted)
	}

	writeMetric(&out, "frachter_uptime_seconds", "counter", "Application uptime in seconds",
		fmt.Sprintf("%.0f", time.Since(s.started).Seconds()))

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out.String()))
}
