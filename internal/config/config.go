// Package config provides configuration management for the account sync engine.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable via STORE_BACKEND
const (
	StoreBackendRedis    = "redis"
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Source  SourceConfig
	Sync    SyncConfig
	Archive ArchiveConfig
	Logging LoggingConfig
}

// ServerConfig holds the status API server configuration
type ServerConfig struct {
	Host string
	Port string
	RPS  int
}

// StoreConfig holds persistent store configuration
type StoreConfig struct {
	Backend   string
	KeyPrefix string
	Redis     RedisConfig
	Postgres  PostgresConfig
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// SourceConfig holds account data source configuration
type SourceConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Accounts          []string
}

// SyncConfig holds update coordinator configuration
type SyncConfig struct {
	UpdateInterval     time.Duration
	ThrottleWindow     time.Duration
	InitialDelay       time.Duration
	StalenessThreshold time.Duration
	LeaseTTL           time.Duration
}

// ArchiveConfig holds the optional ClickHouse trade archive configuration
type ArchiveConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
			RPS:  getEnvAsInt("SERVER_RPS", 20),
		},
		Store: StoreConfig{
			Backend:   getEnv("STORE_BACKEND", StoreBackendRedis),
			KeyPrefix: getEnv("STORE_KEY_PREFIX", "dashboard"),
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "account_sync"),
				User:           getEnv("POSTGRES_USER", "sync"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
		},
		Source: SourceConfig{
			BaseURL:           getEnv("SOURCE_BASE_URL", "http://localhost:9000"),
			Timeout:           getEnvAsDuration("SOURCE_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvAsFloat("SOURCE_RPS", 2),
			Accounts:          getEnvAsList("SOURCE_ACCOUNTS", nil),
		},
		Sync: SyncConfig{
			UpdateInterval:     getEnvAsDuration("SYNC_UPDATE_INTERVAL", 5*time.Minute),
			ThrottleWindow:     getEnvAsDuration("SYNC_THROTTLE_WINDOW", 2*time.Minute),
			InitialDelay:       getEnvAsDuration("SYNC_INITIAL_DELAY", 3*time.Second),
			StalenessThreshold: getEnvAsDuration("SYNC_STALENESS_THRESHOLD", 15*time.Minute),
			LeaseTTL:           getEnvAsDuration("SYNC_LEASE_TTL", 10*time.Minute),
		},
		Archive: ArchiveConfig{
			Enabled:  getEnvAsBool("ARCHIVE_ENABLED", false),
			Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
			Port:     getEnv("CLICKHOUSE_PORT", "9000"),
			Database: getEnv("CLICKHOUSE_DB", "account_sync"),
			User:     getEnv("CLICKHOUSE_USER", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if config.Sync.ThrottleWindow > config.Sync.UpdateInterval {
		return nil, fmt.Errorf("throttle window %v must not exceed update interval %v",
			config.Sync.ThrottleWindow, config.Sync.UpdateInterval)
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList gets an environment variable as a comma-separated list
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
