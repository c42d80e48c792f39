package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/report"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/store"
	"github.com/joho/godotenv"
)

// MinSamplingInterval is the fastest detection cadence the engine accepts.
const MinSamplingInterval = 100 * time.Millisecond

// Config holds all configuration for the proctoring engine.
type Config struct {
	// Service addresses
	HTTPPort string
	GRPCPort string

	// Session store
	StoreBackend  string
	StoreDSN      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Event bus
	NatsURL      string
	EventSink    string
	KafkaBrokers []string
	KafkaTopic   string

	// Ingest timing
	SamplingInterval    time.Duration
	IngestBudget        time.Duration
	FinishedCacheSize   int
	HealthProbeInterval time.Duration

	LogLevel   string
	SystemName string
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	// Try multiple .env locations
	envPaths := []string{
		".env",
		"../.env",
		"/app/.env", // Docker
	}

	envLoaded := false
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("loaded config", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Debug("no .env file found, using environment variables")
	}

	config := &Config{
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),
		GRPCPort: getEnvOrDefault("GRPC_PORT", "50051"),

		StoreBackend:  strings.ToLower(getEnvOrDefault("STORE_BACKEND", "memory")),
		StoreDSN:      os.Getenv("STORE_DSN"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       parseIntOrDefault("REDIS_DB", 0),

		NatsURL:      os.Getenv("NATS_URL"),
		EventSink:    strings.ToLower(getEnvOrDefault("EVENT_SINK", "nats")),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnvOrDefault("KAFKA_TOPIC", "proctor.events"),

		SamplingInterval:    parseDurationOrDefault("SAMPLING_INTERVAL", time.Second),
		IngestBudget:        parseDurationOrDefault("INGEST_BUDGET", 500*time.Millisecond),
		FinishedCacheSize:   parseIntOrDefault("FINISHED_CACHE_SIZE", 1024),
		HealthProbeInterval: parseDurationOrDefault("HEALTH_PROBE_INTERVAL", 10*time.Second),

		LogLevel:   strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		SystemName: getEnvOrDefault("SYSTEM_NAME", report.DefaultSystemName),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration and names the first offending variable.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT is required")
	}

	if c.GRPCPort == "" {
		return fmt.Errorf("GRPC_PORT is required")
	}

	switch c.StoreBackend {
	case "memory", "redis":
	case "postgres", "postgresql", "mysql", "mongodb", "mongo":
		if c.StoreDSN == "" {
			return fmt.Errorf("STORE_DSN is required for STORE_BACKEND=%s", c.StoreBackend)
		}
	default:
		return fmt.Errorf("STORE_BACKEND %q is not supported", c.StoreBackend)
	}

	switch c.EventSink {
	case "nats", "none":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for EVENT_SINK=kafka")
		}
	default:
		return fmt.Errorf("EVENT_SINK %q is not supported", c.EventSink)
	}

	if c.SamplingInterval < MinSamplingInterval {
		return fmt.Errorf("SAMPLING_INTERVAL must be at least %s", MinSamplingInterval)
	}

	if c.IngestBudget <= 0 || c.IngestBudget >= c.SamplingInterval {
		return fmt.Errorf("INGEST_BUDGET must be positive and below SAMPLING_INTERVAL")
	}

	if c.FinishedCacheSize <= 0 {
		return fmt.Errorf("FINISHED_CACHE_SIZE must be positive")
	}

	if c.HealthProbeInterval <= 0 {
		return fmt.Errorf("HEALTH_PROBE_INTERVAL must be positive")
	}

	if _, ok := logLevels[c.LogLevel]; !ok {
		return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel)
	}

	return nil
}

// StoreOptions maps the store settings onto store.New.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:       c.StoreBackend,
		DSN:           c.StoreDSN,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
	}
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func (c *Config) SlogLevel() slog.Level {
	return logLevels[c.LogLevel]
}

// Helper functions
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
