// Package config loads process configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable named across the analysis pipeline.
type Config struct {
	HTTPAddr string

	UploadDir     string
	MaxUploadSize int64 // bytes

	CatalogCacheDir     string
	CatalogPrimaryURL   string
	CatalogBackupURL    string
	CatalogRefreshEvery time.Duration

	BoltPath string

	SQLDSN string

	MinConfidence int
	MaxMatches    int

	DefaultTaskTimeout time.Duration
	DefaultRetries     int
	DefaultRetryDelay  time.Duration

	CrashGrace time.Duration
}

// Load reads Config from the environment, applying the defaults named in the spec.
func Load() Config {
	return Config{
		HTTPAddr: getEnvDefault("ATTACKCTL_HTTP_ADDR", ":8080"),

		UploadDir:     getEnvDefault("ATTACKCTL_UPLOAD_DIR", "./data/uploads"),
		MaxUploadSize: getEnvInt64Default("ATTACKCTL_MAX_UPLOAD_BYTES", 50*1024*1024),

		CatalogCacheDir:     getEnvDefault("ATTACKCTL_CATALOG_CACHE_DIR", "./data/catalog"),
		CatalogPrimaryURL:   getEnvDefault("ATTACKCTL_CATALOG_URL", "https://raw.githubusercontent.com/mitre/cti/master/enterprise-attack/enterprise-attack.json"),
		CatalogBackupURL:    getEnvDefault("ATTACKCTL_CATALOG_BACKUP_URL", ""),
		CatalogRefreshEvery: getEnvDurationDefault("ATTACKCTL_CATALOG_REFRESH", 24*time.Hour),

		BoltPath: getEnvDefault("ATTACKCTL_BOLT_PATH", "./data/workflows.db"),

		SQLDSN: getEnvDefault("ATTACKCTL_SQL_DSN", ""),

		MinConfidence: getEnvIntDefault("ATTACKCTL_MIN_CONFIDENCE", 65),
		MaxMatches:    getEnvIntDefault("ATTACKCTL_MAX_MATCHES", 100),

		DefaultTaskTimeout: getEnvDurationDefault("ATTACKCTL_TASK_TIMEOUT", 2*time.Minute),
		DefaultRetries:     getEnvIntDefault("ATTACKCTL_TASK_RETRIES", 3),
		DefaultRetryDelay:  getEnvDurationDefault("ATTACKCTL_TASK_RETRY_DELAY", 2*time.Second),

		CrashGrace: getEnvDurationDefault("ATTACKCTL_CRASH_GRACE", 10*time.Minute),
	}
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64Default(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
