// Package config loads service configuration from the environment so main
// stays lean. Invalid values fail startup rather than falling back.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"healthcommons/pkg/platform/strings"
)

// Ledger backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the full service configuration.
type Config struct {
	Server   Server
	Ledger   LedgerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Privacy  PrivacyConfig
	Log      LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	ServiceName string
}

type LedgerConfig struct {
	Backend string
}

type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit sink. No brokers means audit events stay
// in process memory.
type KafkaConfig struct {
	Brokers           []string
	AuditTopic        string
	Partitions        int32
	ReplicationFactor int16
}

// PrivacyConfig holds the default allocation and executor knobs.
type PrivacyConfig struct {
	DefaultEpsilon  float64
	DefaultDelta    float64
	BudgetValidity  time.Duration
	AutoRenew       bool
	MaxQueryRetries int
	ConfidenceLevel float64
	LockTimeout     time.Duration
	// Composition is "basic" or "advanced"; DeltaPrime applies to advanced.
	Composition string
	DeltaPrime  float64
}

type LogConfig struct {
	Level  string
	Format string
}

// FromEnv builds a Config, reporting every invalid variable at once.
func FromEnv() (Config, error) {
	p := &parser{}

	cfg := Config{
		Server: Server{
			Addr:        p.str("PRIVACY_ADDR", ":8080"),
			ServiceName: p.str("OTEL_SERVICE_NAME", "healthcommons-privacy"),
		},
		Ledger: LedgerConfig{
			Backend: p.str("PRIVACY_LEDGER_BACKEND", BackendMemory),
		},
		Postgres: PostgresConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: p.integer("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: p.integer("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           strings.SplitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic:        p.str("AUDIT_TOPIC", "privacy-audit"),
			Partitions:        int32(p.integer("AUDIT_TOPIC_PARTITIONS", 3)),
			ReplicationFactor: int16(p.integer("AUDIT_TOPIC_REPLICATION", 1)),
		},
		Privacy: PrivacyConfig{
			DefaultEpsilon:  p.float("PRIVACY_DEFAULT_EPSILON", 1.0),
			DefaultDelta:    p.float("PRIVACY_DEFAULT_DELTA", 1e-6),
			BudgetValidity:  p.duration("PRIVACY_BUDGET_VALIDITY", 365*24*time.Hour),
			AutoRenew:       p.boolean("PRIVACY_AUTO_RENEW", true),
			MaxQueryRetries: p.integer("PRIVACY_MAX_QUERY_RETRIES", 3),
			ConfidenceLevel: p.float("PRIVACY_CONFIDENCE_LEVEL", 0.95),
			LockTimeout:     p.duration("PRIVACY_LOCK_TIMEOUT", 5*time.Second),
			Composition:     p.str("PRIVACY_COMPOSITION", "basic"),
			DeltaPrime:      p.float("PRIVACY_COMPOSITION_DELTA_PRIME", 1e-7),
		},
		Log: LogConfig{
			Level:  p.str("LOG_LEVEL", "info"),
			Format: p.str("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		p.errs = append(p.errs, err)
	}
	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	switch c.Ledger.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres ledger backend"))
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis ledger backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("PRIVACY_LEDGER_BACKEND: unknown backend %q", c.Ledger.Backend))
	}
	if c.Privacy.MaxQueryRetries < 0 {
		errs = append(errs, errors.New("PRIVACY_MAX_QUERY_RETRIES must not be negative"))
	}
	if c.Privacy.BudgetValidity <= 0 {
		errs = append(errs, errors.New("PRIVACY_BUDGET_VALIDITY must be positive"))
	}
	if c.Privacy.ConfidenceLevel <= 0 || c.Privacy.ConfidenceLevel >= 1 {
		errs = append(errs, errors.New("PRIVACY_CONFIDENCE_LEVEL must be in (0,1)"))
	}
	switch c.Privacy.Composition {
	case "basic":
	case "advanced":
		if c.Privacy.DeltaPrime <= 0 || c.Privacy.DeltaPrime >= 1 {
			errs = append(errs, errors.New("PRIVACY_COMPOSITION_DELTA_PRIME must be in (0,1)"))
		} else if c.Privacy.DeltaPrime > c.Privacy.DefaultDelta {
			errs = append(errs, errors.New("PRIVACY_COMPOSITION_DELTA_PRIME must not exceed PRIVACY_DEFAULT_DELTA"))
		}
	default:
		errs = append(errs, fmt.Errorf("PRIVACY_COMPOSITION: unknown composition %q", c.Privacy.Composition))
	}
	return errors.Join(errs...)
}

type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) boolean(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}
