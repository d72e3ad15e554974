package main

import (
	"context"
	"database/sql"
	"log/slog"

	"civicdesk/internal/audit"
	"civicdesk/internal/complaint/lock"
	"civicdesk/internal/complaint/refnum"
	complaintservice "civicdesk/internal/complaint/service"
	complaintstore "civicdesk/internal/complaint/store"
	httpapi "civicdesk/internal/http"
	"civicdesk/internal/notification"
	"civicdesk/internal/platform/config"
	"civicdesk/internal/platform/postgres"
	"civicdesk/internal/platform/redis"
	"civicdesk/internal/ratelimit"
	staffservice "civicdesk/internal/staff/service"
	staffstore "civicdesk/internal/staff/store"
	"civicdesk/pkg/platform/tx"
)

type transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// backends holds the store implementations selected by configuration.
type backends struct {
	tx            transactor
	complaints    complaintStore
	staff         staffservice.Store
	audit         audit.Store
	notifications notification.Store
	sequencer     refnum.Sequencer
	rateLimits    ratelimit.Store
	health        map[string]httpapi.HealthCheck
	closers       []func() error
}

// complaintStore backs both the lifecycle engine and the lease manager.
type complaintStore interface {
	complaintservice.Store
	lock.Store
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

// openBackends uses Postgres when DATABASE_URL is set and in-memory stores
// otherwise. Redis, when configured, takes over reference-number sequencing.
func openBackends(ctx context.Context, cfg config.Server, logger *slog.Logger) (*backends, error) {
	b := &backends{
		rateLimits: ratelimit.NewInMemoryStore(),
		health:     map[string]httpapi.HealthCheck{},
	}

	if cfg.DatabaseURL == "" {
		logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory stores")
		b.tx = tx.NewMemoryTransactor()
		b.complaints = complaintstore.NewInMemory()
		b.staff = staffstore.NewInMemory()
		b.audit = audit.NewInMemoryStore()
		b.notifications = notification.NewInMemoryStore()
		b.sequencer = refnum.NewMemorySequencer()
	} else {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			b.Close()
			return nil, err
		}
		b.usePostgres(db)
		logger.InfoContext(ctx, "using postgres stores")
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		b.Close()
		return nil, err
	}
	if rdb != nil {
		b.closers = append(b.closers, rdb.Close)
		b.sequencer = refnum.NewRedisSequencer(rdb)
		b.rateLimits = ratelimit.NewRedisStore(rdb)
		b.health["redis"] = rdb.Health
		logger.InfoContext(ctx, "using redis reference sequencer and rate limits")
	}
	return b, nil
}

func (b *backends) usePostgres(db *sql.DB) {
	b.tx = postgres.NewTransactor(db)
	b.complaints = complaintstore.NewPostgres(db)
	b.staff = staffstore.NewPostgres(db)
	b.audit = audit.NewPostgresStore(db)
	b.notifications = notification.NewPostgresStore(db)
	b.sequencer = refnum.NewPostgresSequencer(db)
	b.health["postgres"] = db.PingContext
}
