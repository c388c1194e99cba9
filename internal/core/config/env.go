package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: UPGRADEIMPACT_[SECTION]_[KEY] (e.g., UPGRADEIMPACT_PYPI_OFFLINE).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.ProjectRoot, "UPGRADEIMPACT_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.CacheDir, "UPGRADEIMPACT_PATHS_CACHE_DIR")
	setEnvString(&cfg.Paths.Database, "UPGRADEIMPACT_PATHS_DATABASE")

	// Cache
	if val, ok := os.LookupEnv("UPGRADEIMPACT_CACHE_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			slog.Debug("applying env override", "key", "UPGRADEIMPACT_CACHE_ENABLED", "value", val)
			cfg.Cache.Enabled = &b
		}
	}
	setEnvDuration(&cfg.Cache.PyPITTL, "UPGRADEIMPACT_CACHE_PYPI_TTL")
	setEnvDuration(&cfg.Cache.ChangelogTTL, "UPGRADEIMPACT_CACHE_CHANGELOG_TTL")

	// Risk
	setEnvFloat64(&cfg.Risk.Semver, "UPGRADEIMPACT_RISK_SEMVER_WEIGHT")
	setEnvFloat64(&cfg.Risk.Usage, "UPGRADEIMPACT_RISK_USAGE_WEIGHT")
	setEnvFloat64(&cfg.Risk.Changelog, "UPGRADEIMPACT_RISK_CHANGELOG_WEIGHT")

	// Analysis
	setEnvInt(&cfg.Analysis.Workers, "UPGRADEIMPACT_ANALYSIS_WORKERS")
	setEnvInt(&cfg.Analysis.Concurrency, "UPGRADEIMPACT_ANALYSIS_CONCURRENCY")
	setEnvBool(&cfg.Analysis.IncludeTests, "UPGRADEIMPACT_ANALYSIS_INCLUDE_TESTS")
	setEnvBool(&cfg.Analysis.Transitive, "UPGRADEIMPACT_ANALYSIS_TRANSITIVE")
	setEnvInt(&cfg.Analysis.TransitiveDepth, "UPGRADEIMPACT_ANALYSIS_TRANSITIVE_DEPTH")

	// PyPI
	setEnvString(&cfg.PyPI.BaseURL, "UPGRADEIMPACT_PYPI_BASE_URL")
	setEnvFloat64(&cfg.PyPI.RequestsPerSecond, "UPGRADEIMPACT_PYPI_REQUESTS_PER_SECOND")
	setEnvInt(&cfg.PyPI.Burst, "UPGRADEIMPACT_PYPI_BURST")
	setEnvDuration(&cfg.PyPI.Timeout, "UPGRADEIMPACT_PYPI_TIMEOUT")
	setEnvBool(&cfg.PyPI.Offline, "UPGRADEIMPACT_PYPI_OFFLINE")

	// CI
	setEnvBool(&cfg.CI.FailOnCritical, "UPGRADEIMPACT_CI_FAIL_ON_CRITICAL")
	setEnvBool(&cfg.CI.FailOnHigh, "UPGRADEIMPACT_CI_FAIL_ON_HIGH")

	// Observability
	setEnvString(&cfg.Observability.MetricsAddr, "UPGRADEIMPACT_OBSERVABILITY_METRICS_ADDR")
	setEnvString(&cfg.Observability.OTLPEndpoint, "UPGRADEIMPACT_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.OTLPInsecure, "UPGRADEIMPACT_OBSERVABILITY_OTLP_INSECURE")
	setEnvString(&cfg.Observability.ServiceName, "UPGRADEIMPACT_OBSERVABILITY_SERVICE_NAME")

	// History
	setEnvBool(&cfg.History.Enabled, "UPGRADEIMPACT_HISTORY_ENABLED")

	normalize(cfg)
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = strings.TrimSpace(val)
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", i)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", b)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", f)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", d)
			*target = d
		}
	}
}
