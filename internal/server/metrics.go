package server

import (
	"sync"
	"time"
)

// Metrics holds relay counters.
type Metrics struct {
	mu sync.RWMutex

	transfersCreated int64
	waitTimeouts     int64

	receivesStarted      int64
	receivesCompleted    int64
	receiveErrors        int64
	receiveBytesTotal    int64
	receiveDurationTotal time.Duration

	sendsCompleted    int64
	sendsFailed       int64
	sendBytesTotal    int64
	sendDurationTotal time.Duration

	requestsTotal    int64
	requestErrors5xx int64
	requestErrors4xx int64
}

func newMetrics() *Metrics {
	return &Metrics{}
}

// RecordCreate records a new transfer.
func (m *Metrics) RecordCreate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfersCreated++
}

// RecordWaitTimeout records a long-poll that ended without a receiver.
func (m *Metrics) RecordWaitTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waitTimeouts++
}

// RecordReceiveStart records a receiver that began streaming.
func (m *Metrics) RecordReceiveStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receivesStarted++
}

// RecordReceive records a receive that reached end of stream.
func (m *Metrics) RecordReceive(bytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receivesCompleted++
	m.receiveBytesTotal += bytes
	m.receiveDurationTotal += duration
}

// RecordReceiveError records a receive that did not complete.
func (m *Metrics) RecordReceiveError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiveErrors++
}

// RecordSend records the outcome of a send.
func (m *Metrics) RecordSend(succeeded bool, bytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if succeeded {
		m.sendsCompleted++
	} else {
		m.sendsFailed++
	}
	m.sendBytesTotal += bytes
	m.sendDurationTotal += duration
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++

	if statusCode >= 500 {
		m.requestErrors5xx++
	} else if statusCode >= 400 {
		m.requestErrors4xx++
	}
}

// Snapshot returns a snapshot of current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sends := m.sendsCompleted + m.sendsFailed
	return MetricsSnapshot{
		TransfersCreated:     m.transfersCreated,
		WaitTimeouts:         m.waitTimeouts,
		ReceivesStarted:      m.receivesStarted,
		ReceivesCompleted:    m.receivesCompleted,
		ReceiveErrors:        m.receiveErrors,
		ReceiveBytesTotal:    m.receiveBytesTotal,
		ReceiveAvgDurationMs: avgDuration(m.receiveDurationTotal, m.receivesCompleted),
		SendsCompleted:       m.sendsCompleted,
		SendsFailed:          m.sendsFailed,
		SendBytesTotal:       m.sendBytesTotal,
		SendAvgDurationMs:    avgDuration(m.sendDurationTotal, sends),
		RequestsTotal:        m.requestsTotal,
		RequestErrors5xx:     m.requestErrors5xx,
		RequestErrors4xx:     m.requestErrors4xx,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	TransfersCreated int64 `json:"transfers_created"`
	WaitTimeouts     int64 `json:"wait_timeouts"`

	ReceivesStarted      int64   `json:"receives_started"`
	ReceivesCompleted    int64   `json:"receives_completed"`
	ReceiveErrors        int64   `json:"receive_errors"`
	ReceiveBytesTotal    int64   `json:"receive_bytes_total"`
	ReceiveAvgDurationMs float64 `json:"receive_avg_duration_ms"`

	SendsCompleted    int64   `json:"sends_completed"`
	SendsFailed       int64   `json:"sends_failed"`
	SendBytesTotal    int64   `json:"send_bytes_total"`
	SendAvgDurationMs float64 `json:"send_avg_duration_ms"`

	RequestsTotal    int64 `json:"requests_total"`
	RequestErrors5xx int64 `json:"request_errors_5xx"`
	RequestErrors4xx int64 `json:"request_errors_4xx"`
}

func avgDuration(total time.Duration, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(total.Milliseconds()) / float64(count)
}
