// Package config centralises configuration parsing for the fabric daemon.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration values for the fabric daemon.
type Config struct {
	BrokerKind   string // "redis" or "kafka"
	BrokerHost   string
	KafkaBrokers []string

	ObjectTimeToLive  int32         // seconds a replica survives without a refresh
	ObjectPublishRate time.Duration // re-announce interval for originated objects
	TTLScanInterval   time.Duration // reaper wake interval; also the per-tick TTL decrement
	WorkerPoolSize    int

	APIServerPort       string
	APIServerStaticRoot string

	AdminJWTSecret string
	AdminJWTIssuer string
}

// Load reads environment variables into Config, applying sensible defaults for local dev.
func Load() (Config, error) {
	cfg := Config{
		BrokerKind:   strings.ToLower(getEnv("BROKER_KIND", "redis")),
		BrokerHost:   getEnv("BROKER_HOST", "localhost:6379"),
		KafkaBrokers: splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:9092")),

		ObjectTimeToLive:  int32(getIntEnv("OBJECT_TIME_TO_LIVE", 30)),
		ObjectPublishRate: getDurationEnv("OBJECT_PUBLISH_RATE", 10*time.Second),
		TTLScanInterval:   getDurationEnv("TTL_SCAN_INTERVAL", 10*time.Second),
		WorkerPoolSize:    getIntEnv("WORKER_POOL_SIZE", 10),

		APIServerPort:       getEnv("API_SERVER_PORT", ":8080"),
		APIServerStaticRoot: getEnv("API_SERVER_STATIC_ROOT", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		AdminJWTIssuer: getEnv("ADMIN_JWT_ISSUER", "sapphire-kv"),
	}

	if cfg.BrokerKind != "redis" && cfg.BrokerKind != "kafka" {
		return Config{}, fmt.Errorf("config: unsupported BROKER_KIND %q (want redis or kafka)", cfg.BrokerKind)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
