package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures everything the engine reads from the environment, so main
// stays lean. Optional backends degrade gracefully: an empty PostgresDSN keeps
// stores in memory, an empty RedisURL keeps the cache in memory, and empty
// KafkaBrokers run the engine without event transport.
type Config struct {
	Addr string

	PostgresDSN  string
	RedisURL     string
	KafkaBrokers []string
	KafkaGroup   string

	PolicyFile string

	JWTSigningKey string
	AdminToken    string

	LogLevel  string
	LogFormat string

	PipelineWorkers int
	SweepInterval   time.Duration
	RefreshRate     float64
	RefreshBurst    int
	ShutdownTimeout time.Duration
}

// FromEnv builds the engine config from environment variables. A .env file
// in the working directory is folded in first; absence is not an error.
func FromEnv() Config {
	_ = godotenv.Load()

	jwtSigningKey := envStr("JWT_SIGNING_KEY", "")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Addr: envStr("PLATBOOK_ADDR", ":8080"),

		PostgresDSN:  envStr("PLATBOOK_POSTGRES_DSN", ""),
		RedisURL:     envStr("PLATBOOK_REDIS_URL", ""),
		KafkaBrokers: envList("PLATBOOK_KAFKA_BROKERS"),
		KafkaGroup:   envStr("PLATBOOK_KAFKA_GROUP", "platbook-engine"),

		PolicyFile: envStr("PLATBOOK_POLICY_FILE", ""),

		JWTSigningKey: jwtSigningKey,
		AdminToken:    envStr("PLATBOOK_ADMIN_TOKEN", ""),

		LogLevel:  envStr("PLATBOOK_LOG_LEVEL", "info"),
		LogFormat: envStr("PLATBOOK_LOG_FORMAT", "text"),

		PipelineWorkers: envInt("PLATBOOK_PIPELINE_WORKERS", 4),
		SweepInterval:   envDuration("PLATBOOK_SWEEP_INTERVAL", time.Minute),
		RefreshRate:     envFloat("PLATBOOK_REFRESH_RATE", 10),
		RefreshBurst:    envInt("PLATBOOK_REFRESH_BURST", 20),
		ShutdownTimeout: envDuration("PLATBOOK_SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	raw := os.Getenv(key)
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

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
