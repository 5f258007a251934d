package config

import (
	"log/slog"

	"github.com/caarlos0/env/v10"
)

// Config holds environment-driven runtime configuration. The provider table
// and cache TTLs live in the YAML settings file (see Settings).
type Config struct {
	// Server
	Port      int    `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Settings file (providers, TTL table, dispatch tuning)
	SettingsFile string `env:"SETTINGS_FILE" envDefault:"settings.yaml"`

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"` // 10MB in bytes

	// Cache durable tier: "memory", "redis", "sqlite", or "postgres"
	CacheProvider string `env:"CACHE_PROVIDER" envDefault:"memory"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheDBPath   string `env:"CACHE_DB_PATH" envDefault:"fusion-cache.db"`
	DBURL         string `env:"DB_URL"`

	// Queue: "nats" or "none"
	QueueProvider string `env:"QUEUE_PROVIDER" envDefault:"none"`
	QueueURL      string `env:"QUEUE_URL"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}
