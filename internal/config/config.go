package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends. Memory is the default for local development; postgres is
// what production runs and the only backend the async queue can ride on.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	Addr           string
	AllowedOrigins []string

	StoreBackend string
	DatabaseURL  string
	RedisAddr    string
	NatsURL      string

	SessionSecret string
	AdminActors   []string
	AdminKeyHash  string
	BillingSecret string

	Provider     ProviderConfig
	Orchestrator OrchestratorConfig
}

type ProviderConfig struct {
	APIKey   string
	Endpoint string
	Model    string
}

type OrchestratorConfig struct {
	Price           int
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Load reads configuration from the environment, with .env support for
// local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:           env("DRIFTFRAME_ADDR", ":8080"),
		AllowedOrigins: envList("DRIFTFRAME_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		StoreBackend:   env("DRIFTFRAME_STORE", StoreMemory),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      env("DRIFTFRAME_REDIS_ADDR", "localhost:6379"),
		NatsURL:        os.Getenv("DRIFTFRAME_NATS_URL"),
		SessionSecret:  env("DRIFTFRAME_SESSION_SECRET", "devsecret"),
		AdminActors:    envList("DRIFTFRAME_ADMIN_ACTORS", nil),
		AdminKeyHash:   os.Getenv("DRIFTFRAME_ADMIN_KEY_HASH"),
		BillingSecret:  os.Getenv("DRIFTFRAME_BILLING_SECRET"),
		Provider: ProviderConfig{
			APIKey:   os.Getenv("VOLCENGINE_ARK_API_KEY"),
			Endpoint: os.Getenv("VOLCENGINE_ARK_ENDPOINT"),
			Model:    os.Getenv("SEEDANCE_MODEL"),
		},
		Orchestrator: OrchestratorConfig{
			Price:           envInt("DRIFTFRAME_GENERATION_PRICE", 100),
			PollInterval:    envDuration("DRIFTFRAME_POLL_INTERVAL", 3*time.Second),
			MaxPollAttempts: envInt("DRIFTFRAME_POLL_MAX_ATTEMPTS", 40),
		},
	}

	switch cfg.StoreBackend {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when DRIFTFRAME_STORE=postgres")
		}
	default:
		return nil, fmt.Errorf("invalid store backend %q, must be memory, postgres or redis", cfg.StoreBackend)
	}

	if cfg.Provider.APIKey == "" || cfg.Provider.Endpoint == "" {
		return nil, fmt.Errorf("generation provider is not configured: set VOLCENGINE_ARK_API_KEY and VOLCENGINE_ARK_ENDPOINT")
	}

	return cfg, nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
