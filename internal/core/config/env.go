package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: NBCOLLAB_[SECTION]_[KEY] (e.g., NBCOLLAB_DB_PATH).
func ApplyEnvOverrides(cfg *Config) {
	// Scoring
	setEnvFloat64(&cfg.Scoring.Threshold, "NBCOLLAB_SCORING_THRESHOLD")
	setEnvInt(&cfg.Scoring.Parallel, "NBCOLLAB_SCORING_PARALLEL")

	// Database
	setEnvBool(&cfg.DB.Enabled, "NBCOLLAB_DB_ENABLED")
	setEnvString(&cfg.DB.Path, "NBCOLLAB_DB_PATH")
	setEnvDuration(&cfg.DB.BusyTimeout, "NBCOLLAB_DB_BUSY_TIMEOUT")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "NBCOLLAB_WATCH_DEBOUNCE")
	setEnvFloat64(&cfg.Watch.RescoreRate, "NBCOLLAB_WATCH_RESCORE_RATE")

	// Observability
	setEnvString(&cfg.Observability.MetricsAddress, "NBCOLLAB_OBSERVABILITY_METRICS_ADDRESS")
	setEnvBool(&cfg.Observability.TracingEnabled, "NBCOLLAB_OBSERVABILITY_TRACING_ENABLED")
	setEnvString(&cfg.Observability.OTLPEndpoint, "NBCOLLAB_OBSERVABILITY_OTLP_ENDPOINT")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
