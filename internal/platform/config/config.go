// Package config loads process configuration from CHATLINE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the root configuration.
type Config struct {
	Server    Server
	Storage   Storage
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig

	// SummaryCacheTTL bounds how long a user summary may be served from cache.
	SummaryCacheTTL time.Duration `env:"SUMMARY_CACHE_TTL" envDefault:"2m"`
	// SeedFile is loaded by `chatline seed` when --file is not given.
	SeedFile string `env:"SEED_FILE"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Storage selects and configures the persistence backend.
type Storage struct {
	Driver          string        `env:"STORAGE_DRIVER" envDefault:"memory"`
	PostgresDSN     string        `env:"POSTGRES_DSN"`
	MaxOpenConns    int           `env:"POSTGRES_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"POSTGRES_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME" envDefault:"30m"`
	SQLitePath      string        `env:"SQLITE_PATH" envDefault:"chatline.db"`
}

// RedisConfig is optional; an empty URL disables the summary cache.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig is optional; no brokers keeps audit events in memory.
type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic       string        `env:"KAFKA_AUDIT_TOPIC" envDefault:"contact-audit"`
	AuditPartitions  int32         `env:"KAFKA_AUDIT_PARTITIONS" envDefault:"3"`
	AuditReplication int16         `env:"KAFKA_AUDIT_REPLICATION" envDefault:"1"`
	BreakerFailures  uint32        `env:"KAFKA_BREAKER_FAILURES" envDefault:"5"`
	BreakerOpenFor   time.Duration `env:"KAFKA_BREAKER_OPEN_FOR" envDefault:"30s"`
	AuditAsyncBuffer int           `env:"AUDIT_ASYNC_BUFFER" envDefault:"256"`
}

// AuthConfig configures bearer token validation. Tokens are issued elsewhere.
type AuthConfig struct {
	JWTSigningKey string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"chatline"`
	Leeway        time.Duration `env:"JWT_LEEWAY" envDefault:"30s"`
	// AdminToken guards the operator endpoints; empty disables them.
	AdminToken string `env:"ADMIN_TOKEN"`
}

// RateLimitConfig sets the per-user token bucket on search and send.
type RateLimitConfig struct {
	Enabled bool    `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RPS     float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	Burst   int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "CHATLINE_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("CHATLINE_POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.SQLitePath == "" {
		return errors.New("CHATLINE_SQLITE_PATH is required for the sqlite driver")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("rate limit rps and burst must be positive")
	}
	if c.Auth.JWTSigningKey == "" {
		return errors.New("CHATLINE_JWT_SIGNING_KEY must not be empty")
	}
	return nil
}
