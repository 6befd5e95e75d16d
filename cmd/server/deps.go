package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/iliyamo/auth-core/internal/config"
	"github.com/iliyamo/auth-core/internal/database"
	"github.com/iliyamo/auth-core/internal/handler"
	"github.com/iliyamo/auth-core/internal/observability"
	"github.com/iliyamo/auth-core/internal/queue"
	"github.com/iliyamo/auth-core/internal/repository"
	"github.com/iliyamo/auth-core/internal/service"
)

// eventBuffer is how many audit and reset events may wait for the broker.
const eventBuffer = 1024

// app holds the long-lived dependencies shared by the commands.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	db       *sql.DB
	cache    *redis.Client
	events   *queue.Dispatcher
	registry *prometheus.Registry
	metrics  *observability.Metrics

	auth      *service.AuthService
	blacklist *service.TokenBlacklist
	cleaner   *service.Cleaner
}

// cacheClients converts a possibly nil client into the interfaces the
// denylist and the rate limiter take.  A nil *redis.Client must become a
// nil interface, not an interface holding a nil pointer.
func cacheClients(c *redis.Client) (redis.UniversalClient, redis.Scripter) {
	if c == nil {
		return nil, nil
	}
	return c, c
}

// newApp opens MySQL and Redis and wires the services.  Redis being down is
// not fatal; MySQL being down after dbAttempts pings is.
func newApp(ctx context.Context, cfg config.Config, log *slog.Logger, dbAttempts uint64) (*app, error) {
	db, err := database.Open(ctx, cfg, dbAttempts, log)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}

	a := &app{cfg: cfg, log: log, db: db}
	a.cache = config.NewRedisClient(config.LoadRedisConfig(), log)
	a.registry, a.metrics = observability.NewRegistry()
	a.events = queue.NewDispatcher(queue.NewPublisher(cfg.AMQPURL, log), eventBuffer, log)

	users := repository.NewUserRepo(db)
	refreshRepo := repository.NewRefreshTokenRepo(db)
	resetRepo := repository.NewResetTokenRepo(db)
	attemptRepo := repository.NewLoginAttemptRepo(db)

	creds := service.NewCredentialVerifier(cfg.BcryptCost)
	refresh := service.NewRefreshTokenStore(refreshRepo, cfg.RefreshTTL, cfg.KeepSession, nil)
	denyClient, _ := cacheClients(a.cache)
	a.blacklist = service.NewTokenBlacklist(denyClient, cfg.AccessTTL, log, a.metrics)
	reset := service.NewPasswordResetFlow(users, resetRepo, refresh, creds, a.events, log, service.ResetOptions{
		ExposeToken: !cfg.IsProduction(),
		FrontendURL: cfg.FrontendURL,
	})

	a.auth = service.NewAuthService(service.Deps{
		Users:     users,
		Guard:     service.NewLoginAttemptGuard(attemptRepo, nil),
		Creds:     creds,
		Issuer:    service.NewTokenIssuer(cfg.AuthSecret, cfg.AccessTTL, refresh, nil),
		Refresh:   refresh,
		Blacklist: a.blacklist,
		Reset:     reset,
		Events:    a.events,
		Log:       log,
		Metrics:   a.metrics,
	})
	a.cleaner = service.NewCleaner(refreshRepo, resetRepo, attemptRepo, log, nil)
	return a, nil
}

// readiness returns the dependency probes served on /readyz.
func (a *app) readiness() map[string]handler.Check {
	checks := map[string]handler.Check{
		"mysql": a.db.PingContext,
	}
	if a.cache != nil {
		checks["redis"] = func(ctx context.Context) error { return a.cache.Ping(ctx).Err() }
	}
	return checks
}

// Close flushes pending events and releases the connections.
func (a *app) Close(ctx context.Context) {
	if err := a.events.Close(ctx); err != nil {
		a.log.Warn("pending events not delivered", "error", err)
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	_ = a.db.Close()
}
