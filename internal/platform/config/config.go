package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server captures the process-level configuration. Empty backing-service URLs
// select the in-memory implementation of that concern.
type Server struct {
	Addr          string `env:"REGISTRAR_ADDR" envDefault:":8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"registrar"`

	EventConfigPath string `env:"EVENT_CONFIG_PATH"`

	Database    Database
	Redis       RedisConfig
	Kafka       Kafka
	Trigger     Trigger
	Idempotency Idempotency

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Database selects the ledger backend.
type Database struct {
	URL string `env:"DATABASE_URL"`
	// Driver is the database/sql driver name: "pgx" or "postgres" (lib/pq).
	Driver       string        `env:"DATABASE_DRIVER" envDefault:"pgx"`
	MaxOpenConns int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLife  time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig holds connection settings for the idempotency store.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka configures publication of folded event state.
type Kafka struct {
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	ClientID   string   `env:"KAFKA_CLIENT_ID" envDefault:"registrar"`
	IndexTopic string   `env:"KAFKA_INDEX_TOPIC" envDefault:"registrar.events"`
	Partitions int32    `env:"KAFKA_INDEX_PARTITIONS" envDefault:"3"`
	Replicas   int16    `env:"KAFKA_INDEX_REPLICAS" envDefault:"1"`
}

// Trigger configures the country-config confirmation webhook.
type Trigger struct {
	BaseURL          string        `env:"COUNTRY_CONFIG_URL"`
	Timeout          time.Duration `env:"TRIGGER_TIMEOUT" envDefault:"10s"`
	FailureThreshold int           `env:"TRIGGER_BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"TRIGGER_BREAKER_COOLDOWN" envDefault:"30s"`
}

// Idempotency bounds how long request results are replayable.
type Idempotency struct {
	TTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Database.Driver != "pgx" && cfg.Database.Driver != "postgres" {
		return Server{}, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.Database.Driver)
	}
	return cfg, nil
}
