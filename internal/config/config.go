package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr string

	// DatabaseURL selects the Postgres record store; empty means the
	// in-process store (single-process deployment).
	DatabaseURL string

	// RedisAddr switches the robbery log to the Redis TTL backend.
	RedisAddr string

	// NATSURL enables the economy event publisher.
	NATSURL            string
	EventSubjectPrefix string

	// CatalogPath points at the optional YAML economy catalog.
	CatalogPath string

	// RestockSpec is the cron spec the worker runs Restock on.
	RestockSpec string

	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() Config {
	_ = godotenv.Load()

	addr := strings.TrimSpace(os.Getenv("PORT"))
	if addr != "" && !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}
	if addr == "" {
		addr = envDefault("DXBUX_API_ADDR", ":8080")
	}

	return Config{
		Addr:               addr,
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:          strings.TrimSpace(os.Getenv("DXBUX_REDIS_ADDR")),
		NATSURL:            strings.TrimSpace(os.Getenv("DXBUX_NATS_URL")),
		EventSubjectPrefix: envDefault("DXBUX_EVENT_SUBJECT_PREFIX", "economy"),
		CatalogPath:        envDefault("DXBUX_CATALOG_PATH", "catalog.yaml"),
		RestockSpec:        envDefault("DXBUX_RESTOCK_CRON", "@every 1h"),
		ShutdownTimeout:    envDurationDefault("DXBUX_SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
