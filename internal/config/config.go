package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sedori-tools/repricer/internal/codec"
	"github.com/sedori-tools/repricer/internal/repricer"
)

// Config holds all configuration for the repricer
type Config struct {
	AppName   string          `mapstructure:"app_name"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Codec     codec.Config    `mapstructure:"codec"`
	Columns   repricer.Schema `mapstructure:"columns"`
	Output    OutputConfig    `mapstructure:"output"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// HTTPConfig holds HTTP API configuration
type HTTPConfig struct {
	Address        string        `mapstructure:"address"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// RedisConfig holds Redis configuration. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// PostgresConfig holds PostgreSQL configuration. An empty DSN keeps run
// history in memory.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// KafkaConfig holds event publishing configuration. No brokers means events
// are dropped.
type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SamplingRatio  float64 `mapstructure:"sampling_ratio"`
}

// Rule storage backends
const (
	RulesBackendFile  = "file"
	RulesBackendRedis = "redis"
)

// RulesConfig selects where the rule table lives
type RulesConfig struct {
	Backend  string `mapstructure:"backend"`
	File     string `mapstructure:"file"`
	RedisKey string `mapstructure:"redis_key"`
}

// OutputConfig holds where apply runs write their files
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// ScheduleConfig holds the inbox scheduler configuration
type ScheduleConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Spec       string `mapstructure:"spec"`
	InboxDir   string `mapstructure:"inbox_dir"`
	ArchiveDir string `mapstructure:"archive_dir"`
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return unmarshal(v)
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() (*Config, error) {
	return unmarshal(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	schema := repricer.DefaultSchema()
	codecCfg := codec.DefaultConfig()

	v.SetDefault("app_name", "repricer")
	v.SetDefault("http.address", ":8080")
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 60*time.Second)
	v.SetDefault("http.max_upload_bytes", 32<<20)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "repricer.run.completed")
	v.SetDefault("kafka.client_id", "repricer")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.sampling_ratio", 1.0)
	v.SetDefault("rules.backend", RulesBackendFile)
	v.SetDefault("rules.file", "data/rules.json")
	v.SetDefault("rules.redis_key", "repricer:rules")
	v.SetDefault("codec.input_encoding", codecCfg.InputEncoding)
	v.SetDefault("codec.output_encoding", codecCfg.OutputEncoding)
	v.SetDefault("columns.sku", schema.SKU)
	v.SetDefault("columns.price", schema.Price)
	v.SetDefault("columns.floor", schema.Floor)
	v.SetDefault("columns.price_trace", schema.AutoTrack)
	v.SetDefault("columns.days_listed", schema.DaysListed)
	v.SetDefault("columns.listed_at", schema.ListedAt)
	v.SetDefault("columns.age_from_sku", schema.AgeFromSKU)
	v.SetDefault("output.dir", "data/output")
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.spec", "0 9 * * 1")
	v.SetDefault("schedule.inbox_dir", "data/inbox")
	v.SetDefault("schedule.archive_dir", "data/archive")
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_minute", 60)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.AppName == "" {
		return fmt.Errorf("app_name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		return fmt.Errorf("http.max_upload_bytes must be greater than 0")
	}
	if c.Postgres.DSN != "" && c.Postgres.MaxConns <= 0 {
		return fmt.Errorf("postgres.max_conns must be greater than 0")
	}
	switch c.Rules.Backend {
	case RulesBackendFile:
		if c.Rules.File == "" {
			return fmt.Errorf("rules.file is required for the file backend")
		}
	case RulesBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis rules backend")
		}
		if c.Rules.RedisKey == "" {
			return fmt.Errorf("rules.redis_key is required for the redis backend")
		}
	default:
		return fmt.Errorf("rules.backend must be %q or %q, got %q", RulesBackendFile, RulesBackendRedis, c.Rules.Backend)
	}
	if err := c.Codec.Validate(); err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	if c.Columns.SKU == "" || c.Columns.Price == "" || c.Columns.Floor == "" {
		return fmt.Errorf("columns.sku, columns.price and columns.floor are required")
	}
	if c.Columns.DaysListed == "" && c.Columns.ListedAt == "" && !c.Columns.AgeFromSKU {
		return fmt.Errorf("one of columns.days_listed, columns.listed_at or columns.age_from_sku is required")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Schedule.Enabled && (c.Schedule.Spec == "" || c.Schedule.InboxDir == "" || c.Schedule.ArchiveDir == "") {
		return fmt.Errorf("schedule.spec, schedule.inbox_dir and schedule.archive_dir are required when scheduling is enabled")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("ratelimit.requests_per_minute must be greater than 0")
	}
	if c.Tracing.SamplingRatio < 0 || c.Tracing.SamplingRatio > 1 {
		return fmt.Errorf("tracing.sampling_ratio must be within [0, 1]")
	}
	return nil
}
