/*
Configuration loading for the restaurant operations core.

Generalizes the teacher gateway's env-var-plus-dotenv config loader
(per-provider timeouts, rate limits) to this core's camera cadence,
classifier tuning, and default routing weights (§6). A Config is loaded
once at process start and passed by pointer to every component
constructor — nothing in this module reads os.Getenv after Load returns,
per §9's "ambient configuration via globals" re-architecture note.
*/
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all core configuration values (§6 environment knobs plus
// ambient server/storage settings).
type Config struct {
	// Server / environment
	Env             string
	GracefulTimeout time.Duration

	// Storage
	SQLiteDSN string
	RedisURL  string

	// Camera pipeline (§6 environment knobs)
	CaptureIntervalSeconds    int
	VideoSourceTimeoutSeconds int
	MaxInFlightPerCamera      int
	ClassifierEndpoint        string
	CropsBaseDir              string
	ClassifierAttemptTimeout  time.Duration

	// Ops server
	OpsAddr string

	// Logging
	LogLevel   string
	LogFile    string // empty = stderr only

	// Default per-restaurant routing weights (§6), overridable per
	// restaurant via domain.RestaurantConfig.
	DefaultMaxTablesPerWaiter int
}

// Load reads configuration from environment variables and an optional
// .env file, exactly as the teacher's config.Load does.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("CORE_GRACEFUL_TIMEOUT_SEC", 15)
	attemptTimeoutSec := getEnvInt("CLASSIFIER_ATTEMPT_TIMEOUT_SEC", 30)

	return &Config{
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,

		SQLiteDSN: getEnv("SQLITE_DSN", "file:restaurant.db?cache=shared&_pragma=busy_timeout(5000)"),
		RedisURL:  getEnv("REDIS_URL", "redis://localhost:6379"),

		CaptureIntervalSeconds:    getEnvInt("CAPTURE_INTERVAL_SECONDS", 5),
		VideoSourceTimeoutSeconds: getEnvInt("VIDEO_SOURCE_TIMEOUT_SECONDS", 10),
		MaxInFlightPerCamera:      getEnvInt("MAX_IN_FLIGHT_PER_CAMERA", 4),
		ClassifierEndpoint:        getEnv("CLASSIFIER_ENDPOINT", "http://localhost:9001/classify"),
		CropsBaseDir:              getEnv("CROPS_BASE_DIR", "./crops"),
		ClassifierAttemptTimeout:  time.Duration(attemptTimeoutSec) * time.Second,

		OpsAddr: getEnv("OPS_ADDR", ":9090"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		DefaultMaxTablesPerWaiter: getEnvInt("DEFAULT_MAX_TABLES_PER_WAITER", 5),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
