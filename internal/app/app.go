package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sedori-tools/repricer/internal/api"
	"github.com/sedori-tools/repricer/internal/audit"
	"github.com/sedori-tools/repricer/internal/cache"
	"github.com/sedori-tools/repricer/internal/config"
	"github.com/sedori-tools/repricer/internal/events"
	"github.com/sedori-tools/repricer/internal/health"
	"github.com/sedori-tools/repricer/internal/log"
	"github.com/sedori-tools/repricer/internal/metrics"
	"github.com/sedori-tools/repricer/internal/output"
	"github.com/sedori-tools/repricer/internal/ratelimit"
	"github.com/sedori-tools/repricer/internal/retry"
	"github.com/sedori-tools/repricer/internal/scheduler"
	"github.com/sedori-tools/repricer/internal/service"
	"github.com/sedori-tools/repricer/internal/tracing"
)

// App represents the application
type App struct {
	config          *config.Config
	logger          *zap.Logger
	dbPool          *pgxpool.Pool
	redisClient     *redis.Client
	publisher       events.Publisher
	service         *service.RepricerService
	apiServer       *api.Server
	metricsServer   *metrics.Server
	scheduler       *scheduler.Scheduler
	shutdownTracing func()
}

// New creates a new application instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := log.Init(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := log.L(ctx)

	logger.Info("Initializing repricer application",
		zap.String("app_name", cfg.AppName),
		zap.String("http_address", cfg.HTTP.Address))

	a := &App{config: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.config

	tcfg := tracing.DefaultConfig()
	tcfg.Enabled = cfg.Tracing.Enabled
	tcfg.ServiceName = cfg.AppName
	tcfg.JaegerEndpoint = cfg.Tracing.JaegerEndpoint
	tcfg.SamplingRatio = cfg.Tracing.SamplingRatio
	shutdownTracing, err := tracing.Init(tcfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.shutdownTracing = shutdownTracing

	// Redis is optional unless it backs the rule table
	if cfg.Redis.Addr != "" {
		client, err := cache.NewClient(ctx, cache.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			if cfg.Rules.Backend == config.RulesBackendRedis {
				return fmt.Errorf("failed to initialize redis: %w", err)
			}
			a.logger.Warn("Redis initialization failed, continuing without Redis",
				zap.Error(err),
				zap.String("redis_addr", cfg.Redis.Addr))
		} else {
			a.redisClient = client
		}
	}

	rules, err := NewRuleRepository(ctx, cfg, a.redisClient)
	if err != nil {
		return err
	}

	runs, pool, err := NewRunRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize run history: %w", err)
	}
	a.dbPool = pool

	publisher, err := NewPublisher(ctx, cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	a.publisher = publisher

	engine, err := NewEngine(cfg, a.logger)
	if err != nil {
		return err
	}

	a.service = service.NewRepricerService(service.Deps{
		Engine:    engine,
		Rules:     rules,
		Runs:      runs,
		Writer:    output.NewWriter(cfg.Output.Dir),
		Publisher: publisher,
		Audit:     audit.NewManager(audit.NewZapAuditLogger(a.logger)),
		Retry:     retry.DefaultConfig(),
		Logger:    a.logger,
	})

	hs := health.NewService(a.logger)
	rulesReachable, rulesUsable := RuleStoreChecks(rules)
	hs.Register("rules", true, rulesReachable)
	hs.Register("rules_table", false, rulesUsable)
	if a.dbPool != nil {
		hs.Register("postgres", true, a.dbPool.Ping)
	}
	if a.redisClient != nil {
		hs.Register("redis", cfg.Rules.Backend == config.RulesBackendRedis, func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		})
	}

	router := api.NewRouter(api.RouterConfig{
		Handler: api.NewHandler(a.service, cfg.HTTP.MaxUploadBytes, time.Local, a.logger),
		Health:  hs,
		Limiter: NewRateLimiter(cfg, a.redisClient, a.logger),
		RateLimit: ratelimit.Config{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		},
		Logger: a.logger,
	})
	a.apiServer = api.NewServer(api.ServerConfig{
		Address:      cfg.HTTP.Address,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, router, a.logger)

	if cfg.Metrics.Enabled {
		a.metricsServer = metrics.NewServer(cfg.Metrics.Address, a.logger)
	}

	if cfg.Schedule.Enabled {
		a.scheduler, err = scheduler.New(scheduler.Config{
			Spec:       cfg.Schedule.Spec,
			InboxDir:   cfg.Schedule.InboxDir,
			ArchiveDir: cfg.Schedule.ArchiveDir,
		}, a.service, a.logger)
		if err != nil {
			return err
		}
	}
	return nil
}

// Service exposes the repricer service
func (a *App) Service() *service.RepricerService {
	return a.service
}

// Run starts every server and blocks until ctx is done or one of them fails
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting repricer application")

	errCh := make(chan error, 2)
	go func() { errCh <- a.apiServer.Start(ctx) }()
	if a.metricsServer != nil {
		go func() { errCh <- a.metricsServer.Start(ctx) }()
	}
	if a.scheduler != nil {
		if err := a.scheduler.Start(); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down repricer application")

	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.logger.Error("Scheduled run did not finish before shutdown", zap.Error(err))
		}
	}
	if a.apiServer != nil {
		if err := a.apiServer.Shutdown(ctx); err != nil {
			a.logger.Error("Failed to shut down API server", zap.Error(err))
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Error("Failed to shut down metrics server", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("Failed to close event publisher", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
	if a.shutdownTracing != nil {
		a.shutdownTracing()
	}

	a.logger.Info("Application shutdown complete")
	return nil
}
