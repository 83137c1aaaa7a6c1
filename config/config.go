package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/mealbridge/dispatch-api/pkg/messaging/redis"
	"github.com/mealbridge/dispatch-api/pkg/worker"
)

type ServerConfig struct {
	Port         int           `mapstructure:"port" envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"10s"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" envconfig:"DB_HOST" default:"localhost"`
	Port     int    `mapstructure:"port" envconfig:"DB_PORT" default:"5432"`
	User     string `mapstructure:"user" envconfig:"DB_USER" default:"dispatch"`
	Password string `mapstructure:"password" envconfig:"DB_PASSWORD"`
	Name     string `mapstructure:"name" envconfig:"DB_NAME" default:"dispatch"`
	SSLMode  string `mapstructure:"sslmode" envconfig:"DB_SSLMODE" default:"disable"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url" envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	MaxRetries   int           `mapstructure:"max_retries" envconfig:"REDIS_MAX_RETRIES" default:"3"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" envconfig:"REDIS_RETRY_BACKOFF" default:"100ms"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `mapstructure:"min_idle_conns" envconfig:"REDIS_MIN_IDLE_CONNS" default:"2"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret" envconfig:"JWT_SECRET"`
}

// MatchingConfig bounds receiver selection. Volunteers are matched without
// a radius cap.
type MatchingConfig struct {
	SearchRadiusKm float64 `mapstructure:"search_radius_km" envconfig:"MATCHING_SEARCH_RADIUS_KM" default:"10"`
}

type TelemetryConfig struct {
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold" envconfig:"TELEMETRY_STALENESS_THRESHOLD" default:"15m"`
	ConfigCacheTTL     time.Duration `mapstructure:"config_cache_ttl" envconfig:"TELEMETRY_CONFIG_CACHE_TTL" default:"1m"`
}

type OTPConfig struct {
	Validity time.Duration `mapstructure:"validity" envconfig:"OTP_VALIDITY" default:"10m"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size" envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	PollInterval  time.Duration `mapstructure:"poll_interval" envconfig:"OUTBOX_POLL_INTERVAL" default:"5s"`
	RetryAttempts int           `mapstructure:"retry_attempts" envconfig:"OUTBOX_RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" envconfig:"OUTBOX_RETRY_DELAY" default:"5s"`

	RetentionDays   int           `mapstructure:"retention_days" envconfig:"OUTBOX_RETENTION_DAYS" default:"7"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" envconfig:"OUTBOX_CLEANUP_INTERVAL" default:"1h"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" envconfig:"RATELIMIT_RPS" default:"50"`
	Burst             int     `mapstructure:"burst" envconfig:"RATELIMIT_BURST" default:"100"`
	// OTP endpoints get a tighter bucket to slow brute-force attempts.
	OTPRequestsPerSecond float64 `mapstructure:"otp_requests_per_second" envconfig:"RATELIMIT_OTP_RPS" default:"5"`
	OTPBurst             int     `mapstructure:"otp_burst" envconfig:"RATELIMIT_OTP_BURST" default:"10"`
}

type EmailConfig struct {
	Host     string `mapstructure:"host" envconfig:"SMTP_HOST"`
	Port     int    `mapstructure:"port" envconfig:"SMTP_PORT" default:"587"`
	Username string `mapstructure:"username" envconfig:"SMTP_USERNAME"`
	Password string `mapstructure:"password" envconfig:"SMTP_PASSWORD"`
	From     string `mapstructure:"from" envconfig:"SMTP_FROM"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	OTP       OTPConfig       `mapstructure:"otp"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Email     EmailConfig     `mapstructure:"email"`
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.retry_backoff", "100ms")
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)
	viper.SetDefault("matching.search_radius_km", 10.0)
	viper.SetDefault("telemetry.staleness_threshold", "15m")
	viper.SetDefault("telemetry.config_cache_ttl", "1m")
	viper.SetDefault("otp.validity", "10m")
	viper.SetDefault("outbox.batch_size", 100)
	viper.SetDefault("outbox.poll_interval", "5s")
	viper.SetDefault("outbox.retry_attempts", 3)
	viper.SetDefault("outbox.retry_delay", "5s")
	viper.SetDefault("outbox.retention_days", 7)
	viper.SetDefault("outbox.cleanup_interval", "1h")
	viper.SetDefault("rate_limit.requests_per_second", 50.0)
	viper.SetDefault("rate_limit.burst", 100)
	viper.SetDefault("rate_limit.otp_requests_per_second", 5.0)
	viper.SetDefault("rate_limit.otp_burst", 10)
	viper.SetDefault("email.port", 587)
}

// LoadConfig reads config.yml plus environment overrides.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	setDefaults()
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No file is fine; defaults and env cover everything.
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// LoadFromEnv builds configuration from the environment only. The worker
// runs without a config file in containerized deployments.
func LoadFromEnv() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	return &config, nil
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *OutboxConfig) ToProcessorConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
	}
}
