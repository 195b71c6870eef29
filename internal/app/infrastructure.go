package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prperemyshlev/interview-auth/internal/config"
	"github.com/prperemyshlev/interview-auth/internal/kvstore"
	"github.com/prperemyshlev/interview-auth/migrations"
	"github.com/prperemyshlev/interview-auth/pkg/database"
	"github.com/prperemyshlev/interview-auth/pkg/observability"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

const serviceName = "interview-auth"

type Infrastructure interface {
	Postgres() *database.Postgres
	Redis() *database.Redis
	KVStore() kvstore.Store
	AuthMetrics() *observability.AuthMetrics
	Logger() *zap.Logger
	MetricsHandler() http.Handler
	MeterProvider() *metric.MeterProvider

	Shutdown(ctx context.Context) error
}

type infrastructure struct {
	postgres       *database.Postgres
	redis          *database.Redis
	kv             kvstore.Store
	authMetrics    *observability.AuthMetrics
	logger         *zap.Logger
	metricsHandler http.Handler
	meterProvider  *metric.MeterProvider
}

var _ Infrastructure = &infrastructure{}

func NewInfrastructure(ctx context.Context, cfg config.Config) (*infrastructure, error) {
	i := &infrastructure{}

	logger, err := observability.InitLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	i.logger = logger

	postgres, err := database.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	i.postgres = postgres

	if cfg.Postgres.MigrateOnStart {
		if err := postgres.Migrate(migrations.FS, logger); err != nil {
			_ = i.postgres.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	redis, err := database.NewRedis(ctx, cfg.Redis.Address(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = i.postgres.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	i.redis = redis

	meterProvider, metricsHandler, err := observability.InitTelemetry(serviceName)
	if err != nil {
		_ = i.postgres.Close()
		_ = i.redis.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	i.meterProvider = meterProvider
	i.metricsHandler = metricsHandler

	authMetrics, err := observability.NewAuthMetrics(meterProvider.Meter(serviceName))
	if err != nil {
		_ = i.postgres.Close()
		_ = i.redis.Close()
		return nil, fmt.Errorf("failed to register auth metrics: %w", err)
	}
	i.authMetrics = authMetrics

	i.kv = kvstore.NewFallbackStore(
		kvstore.NewRedisStore(redis.Client),
		kvstore.NewMemoryStore(cfg.Security.FallbackCapacity),
		logger,
		authMetrics.KVFallback,
	)

	return i, nil
}

func (i *infrastructure) Postgres() *database.Postgres {
	return i.postgres
}

func (i *infrastructure) Redis() *database.Redis {
	return i.redis
}

func (i *infrastructure) KVStore() kvstore.Store {
	return i.kv
}

func (i *infrastructure) AuthMetrics() *observability.AuthMetrics {
	return i.authMetrics
}

func (i *infrastructure) Logger() *zap.Logger {
	return i.logger
}

func (i *infrastructure) MetricsHandler() http.Handler {
	return i.metricsHandler
}

func (i *infrastructure) MeterProvider() *metric.MeterProvider {
	return i.meterProvider
}

func (i *infrastructure) Shutdown(ctx context.Context) error {
	errs := make(chan error, 3)

	go func() { errs <- i.postgres.Close() }()
	go func() { errs <- i.redis.Close() }()
	go func() { errs <- observability.Shutdown(ctx, i.meterProvider, i.logger) }()

	return errors.Join(<-errs, <-errs, <-errs)
}
