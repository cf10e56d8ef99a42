package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

type Config struct {
	Port      string
	APIPrefix string
	GinMode   string

	StoreBackend string
	MongoURL     string
	DBName       string
	PostgresURL  string

	JWTSecret string
	TokenTTL  time.Duration

	CORSOrigins []string

	AllowAnonymousFallback bool
	FallbackEmail          string
	FallbackName           string
	FallbackPassword       string

	SeedCatalog bool

	KafkaBrokers     []string
	OrderEventsTopic string

	OTLPEndpoint string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return fallback
	}

	cfg := Config{
		Port:             get("PORT", "8000"),
		APIPrefix:        get("API_PREFIX", "/api"),
		GinMode:          get("GIN_MODE", "debug"),
		StoreBackend:     strings.ToLower(get("STORE_BACKEND", BackendMemory)),
		MongoURL:         get("MONGO_URL", ""),
		DBName:           get("DB_NAME", "vibe_db"),
		PostgresURL:      get("POSTGRES_URL", ""),
		JWTSecret:        get("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
		CORSOrigins:      splitList(get("CORS_ORIGINS", "*")),
		FallbackEmail:    get("MOCK_USER_EMAIL", "demo@example.com"),
		FallbackName:     get("MOCK_USER_NAME", "Demo User"),
		FallbackPassword: get("MOCK_USER_PASS", "demo-pass"),
		KafkaBrokers:     splitList(get("KAFKA_BROKERS", "")),
		OrderEventsTopic: get("ORDER_EVENTS_TOPIC", "order.placed"),
		OTLPEndpoint:     get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	var err error
	if cfg.TokenTTL, err = time.ParseDuration(get("TOKEN_TTL", "168h")); err != nil {
		return Config{}, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("invalid TOKEN_TTL: must be positive")
	}
	if cfg.AllowAnonymousFallback, err = strconv.ParseBool(get("ALLOW_ANONYMOUS_FALLBACK", "false")); err != nil {
		return Config{}, fmt.Errorf("invalid ALLOW_ANONYMOUS_FALLBACK: %w", err)
	}
	if cfg.SeedCatalog, err = strconv.ParseBool(get("SEED_CATALOG", "true")); err != nil {
		return Config{}, fmt.Errorf("invalid SEED_CATALOG: %w", err)
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendMongo:
		if cfg.MongoURL == "" {
			return Config{}, fmt.Errorf("MONGO_URL is required for the mongo store backend")
		}
	case BackendPostgres:
		if cfg.PostgresURL == "" {
			return Config{}, fmt.Errorf("POSTGRES_URL is required for the postgres store backend")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
