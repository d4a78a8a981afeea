package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries the engine's startup settings, populated from the
// environment (with a .env file honored when present).
type Config struct {
	DbDirectory string
	BlockSize   int
	PoolSize    int
	RefCountMax int
	LogFile     string
	MetricsPort int
}

const (
	DefaultDbDirectory = "ferrodb_data"
	DefaultBlockSize   = 400
	DefaultPoolSize    = 8
	DefaultRefCountMax = 5
	DefaultLogFile     = "ferrodb.log"
	DefaultMetricsPort = 2112
)

func Load() Config {
	godotenv.Load(".env")

	cfg := Config{
		DbDirectory: envOr("FERRODB_DIR", DefaultDbDirectory),
		BlockSize:   envInt("FERRODB_BLOCK_SIZE", DefaultBlockSize),
		PoolSize:    envInt("FERRODB_POOL_SIZE", DefaultPoolSize),
		RefCountMax: envInt("FERRODB_REF_COUNT_MAX", DefaultRefCountMax),
		LogFile:     envOr("FERRODB_LOG_FILE", DefaultLogFile),
		MetricsPort: envInt("FERRODB_METRICS_PORT", DefaultMetricsPort),
	}

	// A non-positive ref count disables the G-Clock countdown entirely,
	// so it falls back to the default.
	if cfg.RefCountMax < 1 {
		cfg.RefCountMax = DefaultRefCountMax
	}
	return cfg
}

func envOr(key, fallback string) string {
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
