package server

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Status is a health level. The overall status is the worst component's.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

var statusRank = map[Status]int{StatusUp: 0, StatusDegraded: 1, StatusDown: 2}

const probeTimeout = 2 * time.Second

// Health is the /health response body.
type Health struct {
	Status     Status               `json:"status"`
	Version    string               `json:"version,omitempty"`
	Uptime     string               `json:"uptime"`
	Components map[string]Component `json:"components"`
}

// Component is one probed dependency.
type Component struct {
	Status    Status  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Details   any     `json:"details,omitempty"`
}

type probe func(ctx context.Context) Component

// HandleHealth probes every component concurrently. Only a down component
// turns the answer into 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	probes := map[string]probe{
		"registry":  s.probeRegistry,
		"scheduler": s.probeScheduler,
	}
	if s.audit != nil {
		probes["audit"] = s.probeAudit
	}

	h := Health{
		Status:     StatusUp,
		Version:    s.cfg.Version,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Components: make(map[string]Component, len(probes)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			start := time.Now()
			c := p(ctx)
			c.LatencyMs = float64(time.Since(start).Microseconds()) / 1000

			mu.Lock()
			defer mu.Unlock()
			h.Components[name] = c
			if statusRank[c.Status] > statusRank[h.Status] {
				h.Status = c.Status
			}
		}()
	}
	wg.Wait()

	code := http.StatusOK
	if h.Status == StatusDown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

// HandleReady answers 200 while the scheduler loop is serving requests.
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	if c := s.probeScheduler(ctx); c.Status != StatusUp {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"message": c.Message,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleLive answers as long as the process can serve HTTP.
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) probeRegistry(context.Context) Component {
	return Component{
		Status:  StatusUp,
		Details: map[string]int{"transfers": s.reg.Len()},
	}
}

func (s *Server) probeScheduler(ctx context.Context) Component {
	st, err := s.sched.Stats(ctx)
	if err != nil {
		return Component{Status: StatusDown, Message: "scheduler unavailable: " + err.Error()}
	}
	return Component{Status: StatusUp, Details: st}
}

// probeAudit never reports down: transfers keep working without the trail.
func (s *Server) probeAudit(ctx context.Context) Component {
	breaker := s.audit.BreakerStats()
	if err := s.audit.Ping(ctx); err != nil {
		return Component{Status: StatusDegraded, Message: "database ping failed: " + err.Error(), Details: breaker}
	}
	if breaker.State != "closed" {
		return Component{Status: StatusDegraded, Message: "audit writes are being shed", Details: breaker}
	}
	return Component{Status: StatusUp, Details: breaker}
}
