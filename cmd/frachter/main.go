// Command frachter runs the streaming file relay.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"frachter/internal/audit"
	"frachter/internal/config"
	"frachter/internal/logging"
	"frachter/internal/registry"
	"frachter/internal/scheduler"
	"frachter/internal/server"
	"frachter/internal/token"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx))
}

// run starts the relay and blocks until ctx is cancelled or the listener
// fails. It returns the process exit code.
func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_invalid", "err", err)
		return 1
	}

	log, logCloser := logging.New(logging.Options{
		JSON:  cfg.JSONLogs(),
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})
	defer func() { _ = logCloser.Close() }()
	log = log.With("app", "frachter", "env", cfg.Env)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The scheduler outlives the listener so sends finishing during
	// shutdown can still record their status.
	schedCtx, stopSched := context.WithCancel(context.Background())
	defer stopSched()

	reg := registry.New(cfg.BridgeCapacity)

	sched := scheduler.New(scheduler.Config{
		PendingTTL: cfg.PendingTTL,
		StatusTTL:  cfg.StatusTTL,
		MinRecheck: cfg.MinRecheck,
		MaxRecheck: cfg.MaxRecheck,
	}, reg, log)
	go sched.Run(schedCtx)

	key, encoded := token.DecodeSecret(cfg.JWTSecret)
	log.Info("jwt_secret_loaded", "base64", encoded, "bytes", len(key))

	proxies, err := server.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Error("config_invalid", "err", err)
		return 1
	}

	deps := server.Deps{
		Registry:  reg,
		Scheduler: sched,
		Tokens:    token.NewIssuer(key, cfg.TokenTTL),
		Logger:    log,
	}

	if cfg.AuditEnabled() {
		db, err := audit.OpenDB(cfg.DatabaseURL)
		if err != nil {
			log.Error("db_connect_failed", "err", err)
			return 1
		}
		defer func() { _ = db.Close() }()

		log.Info("running_migrations")
		if err := audit.Migrate(db); err != nil {
			log.Error("migration_failed", "err", err)
			return 1
		}
		log.Info("migrations_complete")

		store := audit.NewStore(db, log)
		go store.RunPruner(ctx, cfg.AuditPruneInterval, cfg.AuditRetention)
		deps.Audit = store
	}

	srv := server.New(server.Config{
		Addr:            cfg.Addr,
		Token:           cfg.Token,
		Version:         version,
		StaticDir:       cfg.StaticDir,
		SecureCookies:   cfg.SecureCookies,
		WaitTimeout:     cfg.WaitTimeout,
		ReceiveTimeout:  cfg.ReceiveTimeout,
		SendTimeout:     cfg.SendTimeout,
		CreateRateLimit: cfg.CreateRateLimit,
		TrustedProxies:  proxies,
	}, deps)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting", "addr", cfg.Addr, "version", version, "audit", cfg.AuditEnabled())
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting_down")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := drain(shutdownCtx, srv, stopSched); err != nil {
			log.Error("shutdown_error", "err", err)
			return 1
		}
		log.Info("shutdown_complete")
		return 0
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server_error", "err", err)
			return 1
		}
		return 0
	}
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// drain shuts srv down and only then stops the background workers, so
// requests still in flight can use them.
func drain(ctx context.Context, srv shutdowner, stopWorkers context.CancelFunc) error {
	err := srv.Shutdown(ctx)
	stopWorkers()
	return err
}
