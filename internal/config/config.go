package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinSessionSecretLen is the shortest accepted SESSION_SECRET.
const MinSessionSecretLen = 32

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort     string
	RequestTimeout time.Duration

	DatabaseDriver          string // "memory" or "postgres"
	DatabaseDSN             string
	DatabaseMaxOpenConns    int
	DatabaseConnMaxLifetime time.Duration
	DatabaseConnectAttempts uint
	DatabaseConnectDelay    time.Duration

	CacheBackend  string // "in_memory" or "memcached"
	CacheTTL          time.Duration
	ChartCacheTTL     time.Duration
	CacheWarmInterval time.Duration // 0 disables periodic warming

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	SessionSecret string
	SessionSecure bool

	AdminName     string
	AdminEmail    string
	AdminPassword string

	RateLimitRPS   int
	RateLimitBurst int

	EventsBackend           string // "none" or "kafka"
	KafkaBrokers            []string
	KafkaTopic              string
	KafkaWriteTimeout       time.Duration
	EventsRetryAttempts     uint
	EventsRetryDelay        time.Duration
	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration

	ReportsArchive string // "none" or "s3"
	S3Region       string
	S3Bucket       string
	S3Prefix       string
	S3Endpoint     string

	ChartsEnabled bool
	ChartsJitter  bool
	ChartsSeed    int64
	ChartWidth    int
	ChartHeight   int

	CSRFEnabled bool

	DashboardLimit int

	ShutdownTimeout time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int

	TrackedCities []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Database struct {
		Driver          string `yaml:"driver"`
		DSN             string `yaml:"dsn"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		ConnectAttempts uint   `yaml:"connect_attempts"`
		ConnectDelay    string `yaml:"connect_delay"`
	} `yaml:"database"`

	Cache struct {
		Backend      string `yaml:"backend"`
		TTL          string `yaml:"ttl"`
		ChartTTL     string `yaml:"chart_ttl"`
		WarmInterval string `yaml:"warm_interval"`
		Memcached    struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Session struct {
		Secure bool `yaml:"secure"`
	} `yaml:"session"`

	Admin struct {
		Name  string `yaml:"name"`
		Email string `yaml:"email"`
	} `yaml:"admin"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Events struct {
		Backend      string   `yaml:"backend"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		WriteTimeout string   `yaml:"write_timeout"`
		Attempts     uint     `yaml:"attempts"`
		RetryDelay   string   `yaml:"retry_delay"`
		Breaker      struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"breaker"`
	} `yaml:"events"`

	Reports struct {
		Archive  string `yaml:"archive"`
		Region   string `yaml:"region"`
		Bucket   string `yaml:"bucket"`
		Prefix   string `yaml:"prefix"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"reports"`

	Charts struct {
		Enabled *bool `yaml:"enabled"`
		Jitter  *bool `yaml:"jitter"`
		Seed    int64 `yaml:"seed"`
		Width   int   `yaml:"width"`
		Height  int   `yaml:"height"`
	} `yaml:"charts"`

	Security struct {
		CSRFEnabled *bool `yaml:"csrf_enabled"`
	} `yaml:"security"`

	Dashboard struct {
		Limit int `yaml:"limit"`
	} `yaml:"dashboard"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	SessionSecret string `yaml:"session_secret"`
	AdminPassword string `yaml:"admin_password"`
	DatabaseDSN   string `yaml:"database_dsn"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// SESSION_SECRET and ADMIN_PASSWORD come from env first, then the secrets file. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = strings.TrimSpace(os.Getenv("PORT"))
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.SessionSecret = firstNonEmpty(os.Getenv("SESSION_SECRET"), sec.SessionSecret)
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET required (set env or config/secrets.yaml session_secret)")
	}
	cfg.SessionSecure = fc.Session.Secure
	cfg.AdminPassword = firstNonEmpty(os.Getenv("ADMIN_PASSWORD"), sec.AdminPassword)
	cfg.AdminName = firstNonEmpty(fc.Admin.Name, "Administrator")
	cfg.AdminEmail = strings.ToLower(firstNonEmpty(os.Getenv("ADMIN_EMAIL"), fc.Admin.Email, "admin@example.com"))

	cfg.DatabaseDriver = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("DATABASE_DRIVER"), fc.Database.Driver, "memory")))
	cfg.DatabaseDSN = firstNonEmpty(os.Getenv("DATABASE_URL"), sec.DatabaseDSN, fc.Database.DSN)
	cfg.DatabaseMaxOpenConns = fc.Database.MaxOpenConns
	if cfg.DatabaseMaxOpenConns <= 0 {
		cfg.DatabaseMaxOpenConns = 10
	}
	cfg.DatabaseConnMaxLifetime = parseDuration(fc.Database.ConnMaxLifetime, 30*time.Minute)
	cfg.DatabaseConnectAttempts = fc.Database.ConnectAttempts
	if cfg.DatabaseConnectAttempts == 0 {
		cfg.DatabaseConnectAttempts = 5
	}
	cfg.DatabaseConnectDelay = parseDuration(fc.Database.ConnectDelay, 500*time.Millisecond)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
	cfg.ChartCacheTTL = parseDuration(fc.Cache.ChartTTL, time.Hour)
	cfg.CacheWarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}

	cfg.EventsBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("EVENTS_BACKEND"), fc.Events.Backend, "none")))
	cfg.KafkaBrokers = fc.Events.Brokers
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}
	cfg.KafkaTopic = firstNonEmpty(fc.Events.Topic, "climate-risk.events")
	cfg.KafkaWriteTimeout = parseDuration(fc.Events.WriteTimeout, 2*time.Second)
	cfg.EventsRetryAttempts = fc.Events.Attempts
	if cfg.EventsRetryAttempts == 0 {
		cfg.EventsRetryAttempts = 3
	}
	cfg.EventsRetryDelay = parseDuration(fc.Events.RetryDelay, 100*time.Millisecond)
	cfg.BreakerFailureThreshold = fc.Events.Breaker.FailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerSuccessThreshold = fc.Events.Breaker.SuccessThreshold
	if cfg.BreakerSuccessThreshold <= 0 {
		cfg.BreakerSuccessThreshold = 2
	}
	cfg.BreakerTimeout = parseDuration(fc.Events.Breaker.Timeout, 30*time.Second)

	cfg.ReportsArchive = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("REPORTS_ARCHIVE"), fc.Reports.Archive, "none")))
	cfg.S3Region = firstNonEmpty(os.Getenv("AWS_REGION"), fc.Reports.Region, "us-east-1")
	cfg.S3Bucket = firstNonEmpty(os.Getenv("REPORTS_BUCKET"), fc.Reports.Bucket)
	cfg.S3Prefix = firstNonEmpty(fc.Reports.Prefix, "reports")
	cfg.S3Endpoint = firstNonEmpty(os.Getenv("S3_ENDPOINT"), fc.Reports.Endpoint)

	cfg.ChartsEnabled = boolOr(fc.Charts.Enabled, true)
	cfg.ChartsJitter = boolOr(fc.Charts.Jitter, true)
	cfg.ChartsSeed = fc.Charts.Seed
	cfg.ChartWidth = fc.Charts.Width
	if cfg.ChartWidth <= 0 {
		cfg.ChartWidth = 1000
	}
	cfg.ChartHeight = fc.Charts.Height
	if cfg.ChartHeight <= 0 {
		cfg.ChartHeight = 600
	}

	cfg.CSRFEnabled = boolOr(fc.Security.CSRFEnabled, true)

	cfg.DashboardLimit = fc.Dashboard.Limit
	if cfg.DashboardLimit <= 0 {
		cfg.DashboardLimit = 10
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}
	cfg.TrackedCities = fc.Metrics.TrackedCities

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validate performs post-load validation of configuration values.
// Backends must be known values, and each non-default backend must have
// what it needs to connect.
func validate(cfg *Config) error {
	if len(cfg.SessionSecret) < MinSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters", MinSessionSecretLen)
	}
	switch cfg.DatabaseDriver {
	case "memory":
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return fmt.Errorf("database.dsn (or DATABASE_URL) required for postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be memory or postgres, got %q", cfg.DatabaseDriver)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	switch cfg.EventsBackend {
	case "none":
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return fmt.Errorf("events.brokers (or KAFKA_BROKERS) required for kafka backend")
		}
	default:
		return fmt.Errorf("events.backend must be none or kafka, got %q", cfg.EventsBackend)
	}
	switch cfg.ReportsArchive {
	case "none":
	case "s3":
		if cfg.S3Bucket == "" {
			return fmt.Errorf("reports.bucket (or REPORTS_BUCKET) required for s3 archive")
		}
	default:
		return fmt.Errorf("reports.archive must be none or s3, got %q", cfg.ReportsArchive)
	}
	if cfg.OverloadThresholdPct > 100 {
		cfg.OverloadThresholdPct = 100
	}
	return nil
}
