// Package config loads application configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/fx"
)

// Config holds process-wide settings. Values come from environment variables;
// zero values fall back to the defaults set in Load.
type Config struct {
	Environment string
	HTTPAddr    string

	DatabaseURL string
	RedisAddr   string

	// Pipeline batch sizes.
	ReadBatchSize    int
	GeocodeBatchSize int
	SchemaSampleSize int

	// External-duplicate existence queries are chunked to this many IDs.
	ExistenceChunkSize int

	QueueBufferSize int
	QueueWorkers    int
	TaskTimeout     time.Duration

	GeocodeConfidenceThreshold float64
	GeocodeRequestTimeout      time.Duration
	GeocodeCacheTTL            time.Duration

	NominatimBaseURL string
	PhotonBaseURL    string

	MaintenanceEnabled bool
}

// Load reads configuration from the environment with defaults.
func Load() Config {
	cfg := Config{
		Environment: envOr("TIMETILES_ENV", "development"),
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		ReadBatchSize:      envInt("READ_BATCH_SIZE", 200),
		GeocodeBatchSize:   envInt("GEOCODE_BATCH_SIZE", 50),
		SchemaSampleSize:   envInt("SCHEMA_SAMPLE_SIZE", 500),
		ExistenceChunkSize: envInt("EXISTENCE_CHUNK_SIZE", 500),

		QueueBufferSize: envInt("QUEUE_BUFFER_SIZE", 256),
		QueueWorkers:    envInt("QUEUE_WORKERS", 4),
		TaskTimeout:     envDuration("TASK_TIMEOUT", 5*time.Minute),

		GeocodeConfidenceThreshold: envFloat("GEOCODE_CONFIDENCE_THRESHOLD", 0.5),
		GeocodeRequestTimeout:      envDuration("GEOCODE_REQUEST_TIMEOUT", 10*time.Second),
		GeocodeCacheTTL:            envDuration("GEOCODE_CACHE_TTL", 0),

		NominatimBaseURL: envOr("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		PhotonBaseURL:    envOr("PHOTON_BASE_URL", "https://photon.komoot.io"),

		MaintenanceEnabled: envOr("MAINTENANCE_ENABLED", "true") == "true",
	}
	return cfg
}

// IsProduction reports whether the process runs with production settings.
func (c Config) IsProduction() bool { return c.Environment == "production" }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return fallback
}

// Module provides Config to the fx graph.
var Module = fx.Module("config",
	fx.Provide(Load),
)
