package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sedori-tools/repricer/internal/cache"
	"github.com/sedori-tools/repricer/internal/circuitbreaker"
	"github.com/sedori-tools/repricer/internal/codec"
	"github.com/sedori-tools/repricer/internal/config"
	"github.com/sedori-tools/repricer/internal/events"
	"github.com/sedori-tools/repricer/internal/health"
	"github.com/sedori-tools/repricer/internal/log"
	"github.com/sedori-tools/repricer/internal/ratelimit"
	"github.com/sedori-tools/repricer/internal/repository"
	"github.com/sedori-tools/repricer/internal/repository/postgres"
	"github.com/sedori-tools/repricer/internal/repricer"
	"github.com/sedori-tools/repricer/internal/rulestore"
)

// NewEngine builds the repricing engine from the codec and column settings
func NewEngine(cfg *config.Config, logger *zap.Logger) (*repricer.Engine, error) {
	c, err := codec.New(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("failed to create codec: %w", err)
	}
	return repricer.NewEngine(c, cfg.Columns, logger), nil
}

// NewRuleRepository creates the rule store selected by rules.backend
func NewRuleRepository(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (repricer.RuleRepository, error) {
	log.Info(ctx, "Initializing rule store", zap.String("backend", cfg.Rules.Backend))

	switch cfg.Rules.Backend {
	case config.RulesBackendFile:
		return rulestore.NewFileStore(cfg.Rules.File), nil
	case config.RulesBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis rules backend selected but redis is unavailable")
		}
		return rulestore.NewRedisStore(cache.New(redisClient), cfg.Rules.RedisKey), nil
	default:
		return nil, fmt.Errorf("unsupported rules backend: %s", cfg.Rules.Backend)
	}
}

// NewRunRepository returns the Postgres run history when a DSN is set and an
// in-memory one otherwise. The pool is nil in the in-memory case.
func NewRunRepository(ctx context.Context, cfg *config.Config) (repository.RunRepository, *pgxpool.Pool, error) {
	if cfg.Postgres.DSN == "" {
		log.Warn(ctx, "postgres.dsn not set, keeping run history in memory")
		return repository.NewMemoryRunRepository(), nil, nil
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Postgres.DSN)
	poolCfg.MaxConns = cfg.Postgres.MaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := postgres.NewStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

// NewPublisher creates a Kafka publisher, or a no-op one when no brokers
// are configured
func NewPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (events.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info(ctx, "kafka.brokers not set, events will not be published")
		return events.NoopPublisher{}, nil
	}

	producer, err := events.NewSyncProducer(events.KafkaConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		ClientID: cfg.Kafka.ClientID,
	})
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "Kafka publisher initialized",
		zap.String("brokers", strings.Join(cfg.Kafka.Brokers, ",")),
		zap.String("topic", cfg.Kafka.Topic))
	kafka := events.NewKafkaPublisher(producer, cfg.Kafka.Topic, logger)
	breaker := circuitbreaker.New("kafka", circuitbreaker.DefaultConfig(), logger)
	return events.NewGuardedPublisher(kafka, breaker), nil
}

// NewRateLimiter shares limits through Redis when it is available
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) ratelimit.RateLimiter {
	if redisClient != nil {
		return ratelimit.NewRedisRateLimiter(redisClient, cfg.RateLimit.RequestsPerMinute, logger)
	}
	return ratelimit.NewMemoryRateLimiter(cfg.RateLimit.RequestsPerMinute)
}

// RuleStoreChecks splits rule store health in two. reachable fails only when
// the store cannot be read; usable also fails on a table that would leave
// every listing unchanged.
func RuleStoreChecks(rules repricer.RuleRepository) (reachable, usable health.Checker) {
	load := func(ctx context.Context) error {
		cfg, err := rules.Load(ctx)
		if err != nil {
			return err
		}
		return cfg.Validate()
	}
	reachable = func(ctx context.Context) error {
		var cerr *repricer.ConfigError
		if err := load(ctx); err != nil && !errors.As(err, &cerr) {
			return err
		}
		return nil
	}
	return reachable, load
}
