package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Addr            string
	LogLevel        string
	ShutdownTimeout time.Duration
	Database        DatabaseConfig
}

// DatabaseConfig holds sqlite configuration.
type DatabaseConfig struct {
	Path          string
	MigrationsDir string
	BusyTimeout   time.Duration
	ReadConns     int
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	busyMS, err := getInt("SQLITE_BUSY_TIMEOUT_MS", 5000)
	if err != nil {
		return nil, err
	}
	readConns, err := getInt("SQLITE_READ_CONNS", 8)
	if err != nil {
		return nil, err
	}
	shutdown, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "2s"))
	if err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Addr:            getEnv("APP_ADDR", ":3000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: shutdown,
		Database: DatabaseConfig{
			Path:          getEnv("SQLITE_PATH", "railstock.db"),
			MigrationsDir: os.Getenv("MIGRATIONS_DIR"),
			BusyTimeout:   time.Duration(busyMS) * time.Millisecond,
			ReadConns:     readConns,
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return v, nil
}
