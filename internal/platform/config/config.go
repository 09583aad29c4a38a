package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	RegulatedMode bool
	LogLevel      string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	// DevTokens exposes POST /dev/token for local testing. Never enable in production.
	DevTokens bool

	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	EntryStore EntryStoreConfig
	Sealing    SealingConfig
	Budget     BudgetConfig
	Tracing    TracingConfig
}

// DatabaseConfig configures the Postgres pool. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the optional Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit outbox relay. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers       []string
	TopicPrefix   string
	RelayInterval time.Duration
	RelayBatch    int
}

// EntryStoreConfig selects the content-addressed payload store. An empty path
// keeps payloads in memory.
type EntryStoreConfig struct {
	LevelDBPath string
}

// SealingConfig holds the master key contribution payload keys derive from.
type SealingConfig struct {
	MasterKey string
}

// Budget ledger backends.
const (
	BudgetBackendMemory   = "memory"
	BudgetBackendPostgres = "postgres"
	BudgetBackendRedis    = "redis"
)

// BudgetConfig selects where privacy budget ledgers live.
type BudgetConfig struct {
	Backend string
}

// TracingConfig configures OpenTelemetry. An empty endpoint records spans
// without exporting them.
type TracingConfig struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:          envString("HEALTHCOMMONS_ADDR", ":8080"),
		RegulatedMode: os.Getenv("REGULATED_MODE") == "true",
		LogLevel:      envString("LOG_LEVEL", "info"),
		// Use a default for development - should be overridden in production
		JWTSigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envString("JWT_ISSUER", "healthcommons"),
		JWTAudience:   envString("JWT_AUDIENCE", "healthcommons-api"),
		DevTokens:     os.Getenv("DEV_TOKENS") == "true",
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       envList("KAFKA_BROKERS"),
			TopicPrefix:   envString("KAFKA_TOPIC_PREFIX", "healthcommons"),
			RelayInterval: envDuration("OUTBOX_RELAY_INTERVAL", time.Second),
			RelayBatch:    envInt("OUTBOX_RELAY_BATCH", 100),
		},
		EntryStore: EntryStoreConfig{
			LevelDBPath: os.Getenv("ENTRY_STORE_PATH"),
		},
		Sealing: SealingConfig{
			MasterKey: envString("SEALING_MASTER_KEY", "dev-sealing-key-change-in-production"),
		},
		Budget: BudgetConfig{
			Backend: envString("BUDGET_BACKEND", ""),
		},
		Tracing: TracingConfig{
			ServiceName: envString("OTEL_SERVICE_NAME", "healthcommons"),
			Endpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
			Insecure:    os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
			SampleRatio: envFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if cfg.Budget.Backend == "" {
		cfg.Budget.Backend = BudgetBackendMemory
		if cfg.Database.URL != "" {
			cfg.Budget.Backend = BudgetBackendPostgres
		}
	}
	return cfg
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
