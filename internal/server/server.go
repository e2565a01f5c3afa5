package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"frachter/internal/audit"
	"frachter/internal/registry"
	"frachter/internal/scheduler"
	"frachter/internal/token"
)

// Config holds the HTTP-facing settings.
type Config struct {
	Addr          string // e.g. ":8080"
	Token         string // shared secret for sender routes
	Version       string
	StaticDir     string
	SecureCookies bool

	WaitTimeout    time.Duration
	ReceiveTimeout time.Duration
	SendTimeout    time.Duration

	// Creates per minute per client IP; 0 disables the limiter.
	CreateRateLimit int

	// Peers whose X-Forwarded-For is believed. Empty means none.
	TrustedProxies []netip.Prefix
}

// Scheduler is the part of *scheduler.Scheduler the handlers use.
type Scheduler interface {
	Track(ctx context.Context, id uuid.UUID) error
	Forget(ctx context.Context, id uuid.UUID) error
	RecordStatus(ctx context.Context, id uuid.UUID, succeeded bool) error
	Status(ctx context.Context, id uuid.UUID) (succeeded, found bool, err error)
	Stats(ctx context.Context) (scheduler.Stats, error)
}

// OutcomeStore persists finished sends. *audit.Store satisfies it.
type OutcomeStore interface {
	Record(ctx context.Context, o audit.Outcome) error
	Recent(ctx context.Context, limit int) ([]audit.Outcome, error)
	Ping(ctx context.Context) error
	BreakerStats() audit.BreakerStats
}

var _ OutcomeStore = (*audit.Store)(nil)

// Deps are the collaborators a Server routes requests to.
type Deps struct {
	Registry  *registry.Registry
	Scheduler Scheduler
	Tokens    *token.Issuer
	Audit     OutcomeStore // nil disables the audit trail
	Logger    *slog.Logger
}

type Server struct {
	cfg     Config
	reg     *registry.Registry
	sched   Scheduler
	tokens  *token.Issuer
	audit   OutcomeStore
	log     *slog.Logger
	metrics *Metrics
	limiter *rateLimiter
	lockout *secretLockout
	ips     clientIPResolver
	started time.Time

	handler    http.Handler
	httpServer *http.Server

	// in-flight audit writes
	bg sync.WaitGroup
}

func New(cfg Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		reg:     deps.Registry,
		sched:   deps.Scheduler,
		tokens:  deps.Tokens,
		audit:   deps.Audit,
		log:     log.With("service", "http"),
		metrics: newMetrics(),
		lockout: newSecretLockout(secretMaxAttempts, secretLockoutFor, secretWindow),
		ips:     clientIPResolver{trusted: cfg.TrustedProxies},
		started: time.Now(),
	}

	mux := http.NewServeMux()

	create := http.Handler(http.HandlerFunc(s.handleCreate))
	if cfg.CreateRateLimit > 0 {
		s.limiter = newRateLimiter(cfg.CreateRateLimit, time.Minute)
		create = s.limiter.middleware(s.clientIP, create)
	}
	mux.Handle("PUT /api/transfers", s.requireSecret(create))
	mux.Handle("GET /api/transfer/wait", s.requireSecret(s.requireSender(http.HandlerFunc(s.handleWait))))
	mux.Handle("POST /api/transfer/send", s.requireSecret(s.requireSender(http.HandlerFunc(s.handleSend))))
	mux.Handle("GET /api/transfer/status", s.requireSecret(s.requireSender(http.HandlerFunc(s.handleStatus))))
	mux.HandleFunc("GET /api/receive/{id}", s.handleReceive)
	mux.Handle("GET /api/outcomes", s.requireSecret(http.HandlerFunc(s.handleOutcomes)))

	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.HandleFunc("GET /ready", s.HandleReady)
	mux.HandleFunc("GET /live", s.HandleLive)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	if cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	// Wrap middleware: requestID -> logging -> security headers -> mux
	var handler http.Handler = mux
	handler = securityHeadersMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	s.handler = handler

	// No read or write timeout: transfers are long-lived streams and set
	// their own deadlines.
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// clientIP is the address a request is attributed to.
func (s *Server) clientIP(r *http.Request) string {
	return s.ips.resolve(r)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting requests, waits for in-flight ones and for
// pending audit writes.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.limiter != nil {
		s.limiter.stop()
	}

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
