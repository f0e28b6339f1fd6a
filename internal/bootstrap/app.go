package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/merchantskit/merchants/internal/infrastructure/config"
	"github.com/merchantskit/merchants/internal/infrastructure/observability"
	"github.com/merchantskit/merchants/internal/providers"
	"github.com/merchantskit/merchants/internal/repository/postgres"
	infraRedis "github.com/merchantskit/merchants/internal/repository/redis"
	"github.com/merchantskit/merchants/internal/service"
	"github.com/merchantskit/merchants/internal/store"
	"github.com/merchantskit/merchants/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the shared infrastructure of a binary: config, logging, metrics
// and whichever backends the configuration enables. Pool and Redis are nil
// when their backend is disabled; with both disabled the session router runs
// on its implicit in-memory model.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Msg("Starting")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
			logger.Info().Msg("Tracing enabled")
		}
	}

	var metrics *observability.Metrics
	if cfg.Observability.EnableMetrics {
		metrics = observability.NewMetrics(metricsNamespace, nil)
		logger.Info().Msg("Metrics initialized")
	}

	var pool *pgxpool.Pool
	if cfg.Database.Enabled {
		pool, err = postgres.NewPool(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info().Msg("Connected to PostgreSQL")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = infraRedis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Msg("Connected to Redis")
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: metrics,
	}, nil
}

// NewSessionRouter assembles the storage models the configuration enables:
// one postgres model per configured table, plus an optional redis model.
// Updates are serialized through a redis lock when redis is available, so
// several instances can share the same backends.
func (a *App) NewSessionRouter() (*store.Router, error) {
	registry := store.NewRegistry()

	if a.Pool != nil {
		for _, table := range a.Config.Database.Tables {
			model, err := postgres.NewSessionModel(a.Pool, table, table)
			if err != nil {
				return nil, fmt.Errorf("session model for table %s: %w", table, err)
			}
			registry.Register(model)
		}
	}
	if a.Redis != nil && a.Config.Redis.ModelName != "" {
		registry.Register(infraRedis.NewSessionModel(a.Redis, a.Config.Redis.ModelName))
	}

	var opts []store.RouterOption
	if a.Redis != nil {
		opts = append(opts, store.WithLocker(infraRedis.NewLocker(a.Redis, a.Config.Redis.LockTTL)))
	}

	if registry.Len() == 0 {
		a.Logger.Warn().Msg("No storage models configured, using in-memory sessions")
	}
	return store.NewRouter(registry, opts...), nil
}

// NewSessionService wires the session service over the given router with the
// configured provider set.
func (a *App) NewSessionService(router *store.Router) *service.SessionService {
	providerRegistry := providers.NewRegistry(
		providers.NewDummyProvider(),
	)

	mcfg := a.Config.Merchants
	return service.NewSessionService(providerRegistry, router, service.Config{
		WebhookSecret: mcfg.WebhookSecret,
		SyncRetry: retry.Config{
			MaxAttempts:  mcfg.SyncMaxRetries,
			InitialDelay: mcfg.SyncRetryDelay,
			MaxDelay:     5 * time.Second,
		},
		BulkConcurrency: mcfg.BulkConcurrency,
	}, a.Logger, a.Metrics)
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
