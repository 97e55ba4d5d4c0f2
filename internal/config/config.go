package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	Port               string        `env:"PORT" envDefault:"8080"`
	Environment        string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelName       string        `env:"LOG_LEVEL" envDefault:"info"`
	StorageBackend     string        `env:"STORAGE_BACKEND" envDefault:"redis"`
	RedisURL           string        `env:"REDIS_URL" envDefault:"localhost:6379"`
	SQLitePath         string        `env:"SQLITE_PATH" envDefault:"novel.db"`
	GeneratorURL       string        `env:"GENERATOR_URL" envDefault:"http://localhost:8090"`
	GeneratorAPIKey    string        `env:"GENERATOR_API_KEY"`
	GeneratorTimeout   time.Duration `env:"GENERATOR_TIMEOUT" envDefault:"120s"`
	PromptHistoryLimit int           `env:"PROMPT_HISTORY_LIMIT" envDefault:"20"`

	LogLevel slog.Level // Parsed from LogLevelName
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	switch cfg.StorageBackend {
	case BackendRedis, BackendSQLite, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	if cfg.PromptHistoryLimit <= 0 {
		return nil, fmt.Errorf("PROMPT_HISTORY_LIMIT must be positive, got %d", cfg.PromptHistoryLimit)
	}
	return &cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
