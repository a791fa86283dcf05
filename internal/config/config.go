package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// StorageType controls the history backend.
type StorageType string

const (
	StorageFile   StorageType = "file"
	StorageSQLite StorageType = "sqlite"
	StorageMemory StorageType = "memory"
)

// DefaultAPIBase is used when neither a query parameter nor configuration
// names the prediction service.
const DefaultAPIBase = "http://127.0.0.1:8080"

// Config contains all runtime configuration for the console.
type Config struct {
	// Core
	APIBase  string `yaml:"api_base"`
	Model    string `yaml:"model"`
	LogLevel string `yaml:"log_level"`

	// Logging
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`

	// Request lifecycle
	FirstAttemptTimeout time.Duration `yaml:"first_attempt_timeout"`
	RetryTimeout        time.Duration `yaml:"retry_timeout"`
	RetryBackoff        time.Duration `yaml:"retry_backoff"`
	RetryClientErrors   bool          `yaml:"retry_client_errors"`
	ResponseMaxBytes    int64         `yaml:"response_max_bytes"`

	// History
	HistoryEnabled bool        `yaml:"history_enabled"`
	Storage        StorageType `yaml:"storage"`
	HistoryDir     string      `yaml:"history_dir"`

	// Serve
	ListenAddr          string        `yaml:"listen_addr"`
	PageURL             string        `yaml:"page_url"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	HealthCheckTimeout  time.Duration `yaml:"health_check_timeout"`
	VersionCacheTTL     time.Duration `yaml:"version_cache_ttl"`
	CORSAllowOrigin     string        `yaml:"cors_allow_origin"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		APIBase:  DefaultAPIBase,
		Model:    "logreg",
		LogLevel: "info",

		LogMaxSizeMB:  10,
		LogMaxBackups: 3,

		FirstAttemptTimeout: 5 * time.Second,
		RetryTimeout:        8 * time.Second,
		RetryBackoff:        0,
		RetryClientErrors:   true,
		ResponseMaxBytes:    1024 * 1024,

		HistoryEnabled: true,
		Storage:        StorageFile,
		HistoryDir:     defaultHistoryDir(),

		ListenAddr:          "127.0.0.1:8088",
		PageURL:             "http://127.0.0.1:8088/",
		HealthCheckInterval: 30 * time.Second,
		HealthCheckTimeout:  5 * time.Second,
		VersionCacheTTL:     5 * time.Minute,
		CORSAllowOrigin:     "",
	}
}

// Load reads the optional YAML file named by IRIS_CONFIG, then applies env
// overrides, and returns a validated Config.
func Load() (Config, error) {
	base := Defaults()
	if path := strings.TrimSpace(os.Getenv("IRIS_CONFIG")); path != "" {
		fromFile, err := LoadFile(path, base)
		if err != nil {
			return Config{}, err
		}
		base = fromFile
	}

	cfg := Config{
		// Core
		APIBase:  getEnvString("IRIS_API_BASE", base.APIBase),
		Model:    getEnvString("IRIS_MODEL", base.Model),
		LogLevel: getEnvString("IRIS_LOG_LEVEL", base.LogLevel),

		// Logging
		LogFile:       getEnvString("IRIS_LOG_FILE", base.LogFile),
		LogMaxSizeMB:  getEnvInt("IRIS_LOG_MAX_SIZE_MB", base.LogMaxSizeMB),
		LogMaxBackups: getEnvInt("IRIS_LOG_MAX_BACKUPS", base.LogMaxBackups),

		// Request lifecycle
		FirstAttemptTimeout: getEnvDuration("IRIS_FIRST_ATTEMPT_TIMEOUT", base.FirstAttemptTimeout),
		RetryTimeout:        getEnvDuration("IRIS_RETRY_TIMEOUT", base.RetryTimeout),
		RetryBackoff:        getEnvDuration("IRIS_RETRY_BACKOFF", base.RetryBackoff),
		RetryClientErrors:   getEnvBool("IRIS_RETRY_CLIENT_ERRORS", base.RetryClientErrors),
		ResponseMaxBytes:    getEnvInt64("IRIS_RESPONSE_MAX_BYTES", base.ResponseMaxBytes),

		// History
		HistoryEnabled: getEnvBool("IRIS_HISTORY_ENABLED", base.HistoryEnabled),
		Storage:        StorageType(getEnvString("IRIS_STORAGE", string(base.Storage))),
		HistoryDir:     getEnvString("IRIS_HISTORY_DIR", base.HistoryDir),

		// Serve
		ListenAddr:          getEnvString("IRIS_LISTEN_ADDR", base.ListenAddr),
		PageURL:             getEnvString("IRIS_PAGE_URL", base.PageURL),
		HealthCheckInterval: getEnvDuration("IRIS_HEALTH_CHECK_INTERVAL", base.HealthCheckInterval),
		HealthCheckTimeout:  getEnvDuration("IRIS_HEALTH_CHECK_TIMEOUT", base.HealthCheckTimeout),
		VersionCacheTTL:     getEnvDuration("IRIS_VERSION_CACHE_TTL", base.VersionCacheTTL),
		CORSAllowOrigin:     getEnvString("IRIS_CORS_ALLOW_ORIGIN", base.CORSAllowOrigin),
	}
	cfg.APIBase = NormalizeAPIBase(cfg.APIBase)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto base. Keys missing from the
// file keep their value from base.
func LoadFile(path string, base Config) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks configuration constraints.
func (c Config) Validate() error {
	if c.APIBase != "" {
		u, err := url.Parse(c.APIBase)
		if err != nil {
			return fmt.Errorf("invalid IRIS_API_BASE: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("IRIS_API_BASE must be an http(s) URL, got %q", c.APIBase)
		}
	}

	switch c.Storage {
	case StorageFile, StorageSQLite, StorageMemory:
		// ok
	default:
		return fmt.Errorf("invalid IRIS_STORAGE: %q (must be file|sqlite|memory)", c.Storage)
	}
	if c.Storage != StorageMemory && c.HistoryDir == "" {
		return fmt.Errorf("IRIS_HISTORY_DIR must be set for %s storage", c.Storage)
	}

	if c.FirstAttemptTimeout <= 0 {
		return fmt.Errorf("IRIS_FIRST_ATTEMPT_TIMEOUT must be > 0")
	}
	if c.RetryTimeout <= 0 {
		return fmt.Errorf("IRIS_RETRY_TIMEOUT must be > 0")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("IRIS_RETRY_BACKOFF must be >= 0")
	}
	if c.ResponseMaxBytes <= 0 {
		return fmt.Errorf("IRIS_RESPONSE_MAX_BYTES must be > 0")
	}

	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("IRIS_HEALTH_CHECK_INTERVAL must be > 0")
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("IRIS_HEALTH_CHECK_TIMEOUT must be > 0")
	}
	if c.VersionCacheTTL < 0 {
		return fmt.Errorf("IRIS_VERSION_CACHE_TTL must be >= 0")
	}

	if c.LogMaxSizeMB <= 0 {
		return fmt.Errorf("IRIS_LOG_MAX_SIZE_MB must be > 0")
	}
	if c.LogMaxBackups < 0 {
		return fmt.Errorf("IRIS_LOG_MAX_BACKUPS must be >= 0")
	}

	return nil
}

// NormalizeAPIBase trims whitespace and trailing slashes so that
// base+"/predict" never produces a double slash.
func NormalizeAPIBase(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

// ResolveAPIBase picks the api query parameter from rawQuery when present and
// non-empty, otherwise fallback. The result is normalized.
func ResolveAPIBase(rawQuery, fallback string) string {
	q, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err == nil {
		if v := NormalizeAPIBase(q.Get("api")); v != "" {
			return v
		}
	}
	return NormalizeAPIBase(fallback)
}

func defaultHistoryDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir + string(os.PathSeparator) + "iris-predict"
	}
	return ".iris-predict"
}

// Helper functions for parsing environment variables

func getEnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
