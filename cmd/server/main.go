package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"civicdesk/internal/audit"
	complainthandler "civicdesk/internal/complaint/handler"
	"civicdesk/internal/complaint/lock"
	complaintmetrics "civicdesk/internal/complaint/metrics"
	"civicdesk/internal/complaint/refnum"
	complaintservice "civicdesk/internal/complaint/service"
	httpapi "civicdesk/internal/http"
	jwttoken "civicdesk/internal/jwt_token"
	"civicdesk/internal/notification"
	"civicdesk/internal/platform/config"
	"civicdesk/internal/platform/httpserver"
	"civicdesk/internal/platform/logger"
	"civicdesk/internal/platform/metrics"
	"civicdesk/internal/ratelimit"
	staffhandler "civicdesk/internal/staff/handler"
	staffservice "civicdesk/internal/staff/service"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	complaintMetrics := complaintmetrics.New(reg)

	recorder, err := audit.NewRecorder(b.audit, audit.WithLogger(log))
	if err != nil {
		return err
	}
	dispatcher, err := notification.NewDispatcher(b.notifications, notification.WithLogger(log))
	if err != nil {
		return err
	}
	staff, err := staffservice.New(b.staff, b.tx, dispatcher, recorder, staffservice.WithLogger(log))
	if err != nil {
		return err
	}
	locks, err := lock.NewManager(b.complaints,
		lock.WithTTL(cfg.Lock.LeaseTTL),
		lock.WithLogger(log),
		lock.WithMetrics(complaintMetrics),
	)
	if err != nil {
		return err
	}
	complaints, err := complaintservice.New(complaintservice.Deps{
		Store:     b.complaints,
		Tx:        b.tx,
		Locks:     locks,
		Refs:      refnum.New(b.sequencer, cfg.Reference.Location),
		Notifier:  dispatcher,
		Audit:     recorder,
		Directory: staff,
	}, complaintservice.WithLogger(log), complaintservice.WithMetrics(complaintMetrics))
	if err != nil {
		return err
	}

	limiter := ratelimit.New(b.rateLimits,
		ratelimit.Limit{Requests: cfg.RateLimit.ReadRequests, Window: cfg.RateLimit.Window},
		ratelimit.Limit{Requests: cfg.RateLimit.WriteRequests, Window: cfg.RateLimit.Window},
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(ratelimit.NewMetrics(reg)),
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	router := httpapi.NewRouter(httpapi.Config{
		Logger:    log,
		Resolver:  jwttoken.NewJWTServiceAdapter(jwtService),
		Metrics:   metrics.New(reg),
		Gatherer:  reg,
		Health:    b.health,
		RateLimit: limiter.Handler,
		Protected: []httpapi.Registrar{
			complainthandler.New(complaints, log),
			staffhandler.New(staff, log),
		},
	})

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting civicdesk", "addr", cfg.Addr, "lock_lease_ttl", cfg.Lock.LeaseTTL.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
