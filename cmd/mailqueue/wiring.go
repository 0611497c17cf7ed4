package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/api/handler"
	"github.com/notifyhub/mailqueue/internal/config"
	"github.com/notifyhub/mailqueue/internal/db"
	"github.com/notifyhub/mailqueue/internal/dkim"
	"github.com/notifyhub/mailqueue/internal/idempotency"
	"github.com/notifyhub/mailqueue/internal/metrics"
	"github.com/notifyhub/mailqueue/internal/ratelimiter"
	"github.com/notifyhub/mailqueue/internal/repository"
	"github.com/notifyhub/mailqueue/internal/service"
	"github.com/notifyhub/mailqueue/internal/transport"
	"github.com/notifyhub/mailqueue/internal/worker"
)

// app holds the dependencies shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	repo    repository.RecordRepository
	checks  map[string]handler.Check
	closers []func()
}

// newApp loads configuration and opens the configured store.
func newApp(ctx context.Context, logger *zap.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	reg := prometheus.NewRegistry()
	a := &app{
		cfg:     cfg,
		logger:  logger,
		reg:     reg,
		metrics: metrics.New(reg),
		checks:  map[string]handler.Check{},
	}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.StoreDriver {
	case config.StoreSQLite:
		conn, err := db.OpenSQLite(ctx, a.cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		a.repo = repository.NewSQLiteRecordRepository(conn)
		a.checks["store"] = conn.PingContext
		a.logger.Info("sqlite store opened", zap.String("path", a.cfg.SQLitePath))
	default:
		pool, err := db.Connect(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := db.Migrate(a.cfg.DatabaseURL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		a.repo = repository.NewPgRecordRepository(pool)
		a.checks["store"] = pool.Ping
		a.logger.Info("postgres store opened")
	}
	return nil
}

// transport builds the configured transport behind the rate limiter and timeout.
func (a *app) transport() (transport.Transport, error) {
	var tr transport.Transport
	switch a.cfg.Transport {
	case config.TransportSMTP:
		signer, err := dkim.New(dkim.Options{
			Selector:   a.cfg.DKIMSelector,
			Domain:     a.cfg.DKIMDomain,
			KeyPath:    a.cfg.DKIMKeyPath,
			PrivateKey: a.cfg.DKIMPrivateKey,
		})
		if err != nil {
			return nil, err
		}
		tr = transport.NewSMTP(transport.SMTPConfig{
			Host:        a.cfg.SMTPHost,
			Port:        a.cfg.SMTPPort,
			Username:    a.cfg.SMTPUsername,
			Password:    a.cfg.SMTPPassword,
			Helo:        a.cfg.SMTPHelo,
			DefaultFrom: a.cfg.DefaultFrom,
		}, signer)
		a.logger.Info("smtp transport configured",
			zap.String("host", a.cfg.SMTPHost),
			zap.Int("port", a.cfg.SMTPPort),
			zap.String("dkim_selector", signer.Selector()),
		)
	default:
		tr = transport.NewWebhook(a.cfg.WebhookURL)
		a.logger.Info("webhook transport configured", zap.String("url", a.cfg.WebhookURL))
	}
	return transport.NewGuarded(tr, ratelimiter.New(a.cfg.SendRateLimit), a.cfg.TransportTimeout), nil
}

func (a *app) cycle() (*worker.Cycle, error) {
	tr, err := a.transport()
	if err != nil {
		return nil, err
	}
	onSent, onFailed, onSkipped, onConflict, onCycle, onQueueDepth := a.metrics.DispatchHooks()
	return worker.NewCycle(a.cfg, a.repo, tr, a.logger, worker.MetricHooks{
		OnSent:       onSent,
		OnFailed:     onFailed,
		OnSkipped:    onSkipped,
		OnConflict:   onConflict,
		OnCycle:      onCycle,
		OnQueueDepth: onQueueDepth,
	}), nil
}

// claimer returns the redis idempotency-key claimer, or a no-op one when
// REDIS_ADDR is not set.
func (a *app) claimer() idempotency.Claimer {
	if a.cfg.RedisAddr == "" {
		return idempotency.NopClaimer{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	a.logger.Info("idempotency keys enabled",
		zap.String("redis_addr", a.cfg.RedisAddr),
		zap.Duration("ttl", a.cfg.IdempotencyTTL),
	)
	return idempotency.NewRedisClaimer(client, a.cfg.IdempotencyTTL)
}

func (a *app) ingestionService() *service.IngestionService {
	onIngested, onRejected := a.metrics.IngestHooks()
	return service.NewIngestionService(a.cfg, a.repo, a.claimer(), a.logger, service.IngestHooks{
		OnIngested: onIngested,
		OnRejected: onRejected,
	})
}

func (a *app) httpServer(h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + a.cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       a.cfg.ReadTimeout,
		ReadHeaderTimeout: a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}

// Close releases everything opened by newApp, last opened first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
