package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// clearEnv unsets every variable Load consults so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENV_NAME", "PORT", "SESSION_SECRET", "ADMIN_PASSWORD", "ADMIN_EMAIL",
		"DATABASE_DRIVER", "DATABASE_URL", "CACHE_BACKEND", "MEMCACHED_ADDRS",
		"EVENTS_BACKEND", "KAFKA_BROKERS", "REPORTS_ARCHIVE", "REPORTS_BUCKET",
		"AWS_REGION", "S3_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_FailsWhenNoSessionSecret(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	t.Chdir(dir)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when no SESSION_SECRET and no secrets file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "SESSION_SECRET") {
		t.Errorf("Load() error = %v, want message containing SESSION_SECRET", err)
	}
}

func TestLoad_FailsWhenSessionSecretTooShort(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_SECRET", "short")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	t.Chdir(dir)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "at least 32") {
		t.Fatalf("Load() error = %v, want minimum length error", err)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "session_secret: "+testSecret+"\nadmin_password: from-file\n")
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionSecret != testSecret {
		t.Errorf("SessionSecret = %q, want secret from secrets file", cfg.SessionSecret)
	}
	if cfg.AdminPassword != "from-file" {
		t.Errorf("AdminPassword = %q, want from-file", cfg.AdminPassword)
	}
}

func TestLoad_EnvOverridesSecretsFile(t *testing.T) {
	clearEnv(t)
	envSecret := strings.Repeat("e", 40)
	t.Setenv("SESSION_SECRET", envSecret)
	t.Setenv("ADMIN_PASSWORD", "from-env")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "session_secret: "+testSecret+"\nadmin_password: from-file\n")
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionSecret != envSecret {
		t.Errorf("SessionSecret = %q, want env value", cfg.SessionSecret)
	}
	if cfg.AdminPassword != "from-env" {
		t.Errorf("AdminPassword = %q, want from-env", cfg.AdminPassword)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_SECRET", testSecret)
	dir := t.TempDir()
	writeEnvFile(t, dir, "server:\n  port: \"\"\n")
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.DatabaseDriver != "memory" {
		t.Errorf("DatabaseDriver = %q, want memory", cfg.DatabaseDriver)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if cfg.EventsBackend != "none" || cfg.ReportsArchive != "none" {
		t.Errorf("EventsBackend/ReportsArchive = %q/%q, want none/none", cfg.EventsBackend, cfg.ReportsArchive)
	}
	if !cfg.ChartsEnabled || !cfg.ChartsJitter || !cfg.CSRFEnabled {
		t.Errorf("charts/jitter/csrf defaults = %v/%v/%v, want all true", cfg.ChartsEnabled, cfg.ChartsJitter, cfg.CSRFEnabled)
	}
	if cfg.ChartWidth != 1000 || cfg.ChartHeight != 600 {
		t.Errorf("chart size = %dx%d, want 1000x600", cfg.ChartWidth, cfg.ChartHeight)
	}
	if cfg.AdminEmail != "admin@example.com" {
		t.Errorf("AdminEmail = %q, want admin@example.com", cfg.AdminEmail)
	}
	if cfg.DashboardLimit != 10 {
		t.Errorf("DashboardLimit = %d, want 10", cfg.DashboardLimit)
	}
	if cfg.CacheWarmInterval != 0 {
		t.Errorf("CacheWarmInterval = %v, want 0 (periodic warming off)", cfg.CacheWarmInterval)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_SECRET", testSecret)
	yml := minimalEnvYAML + `
shutdown:
  timeout: "soon"
lifecycle:
  degraded_window: "-5s"
`
	dir := t.TempDir()
	writeEnvFile(t, dir, yml)
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 30s", cfg.ShutdownTimeout)
	}
	if cfg.DegradedWindow != 60*time.Second {
		t.Errorf("DegradedWindow = %v, want default 60s", cfg.DegradedWindow)
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "session_secret: [unclosed\n")
	t.Chdir(dir)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse secrets file") {
		t.Fatalf("Load() error = %v, want parse secrets file error", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_SECRET", testSecret)
	dir := t.TempDir()
	writeEnvFile(t, dir, "server: [unclosed\n")
	t.Chdir(dir)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Fatalf("Load() error = %v, want parse config file error", err)
	}
}

func TestLoad_BackendValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{"unknown database driver", "database:\n  driver: mysql\n", nil, "database.driver"},
		{"postgres without dsn", "database:\n  driver: postgres\n", nil, "DATABASE_URL"},
		{"unknown cache backend", "cache:\n  backend: redis\n", nil, "cache.backend"},
		{"kafka without brokers", "events:\n  backend: kafka\n", nil, "KAFKA_BROKERS"},
		{"unknown events backend", "events:\n  backend: nats\n", nil, "events.backend"},
		{"s3 without bucket", "reports:\n  archive: s3\n", nil, "REPORTS_BUCKET"},
		{"postgres dsn from env", "database:\n  driver: postgres\n", map[string]string{"DATABASE_URL": "postgres://localhost/db"}, ""},
		{"kafka brokers from env", "events:\n  backend: kafka\n", map[string]string{"KAFKA_BROKERS": "a:9092, b:9092"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("SESSION_SECRET", testSecret)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.yaml)
			t.Chdir(dir)

			_, err := Load()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Load() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_KafkaBrokersFromEnvAreSplit(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	dir := t.TempDir()
	writeEnvFile(t, dir, "events:\n  backend: kafka\n  brokers: [\"ignored:9092\"]\n")
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "a:9092" || cfg.KafkaBrokers[1] != "b:9092" {
		t.Errorf("KafkaBrokers = %v, want [a:9092 b:9092]", cfg.KafkaBrokers)
	}
}

func TestLoad_ChartsAndLifecycle(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_SECRET", testSecret)
	yml := minimalEnvYAML + `
charts:
  enabled: false
  jitter: false
  seed: 42
  width: 800
  height: 400
security:
  csrf_enabled: false
lifecycle:
  overload_window: "30s"
  overload_threshold_pct: 90
  degraded_window: "2m"
  degraded_error_pct: 10
metrics:
  tracked_cities: ["Seattle", "Denver"]
`
	dir := t.TempDir()
	writeEnvFile(t, dir, yml)
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChartsEnabled || cfg.ChartsJitter || cfg.CSRFEnabled {
		t.Errorf("charts/jitter/csrf = %v/%v/%v, want all false", cfg.ChartsEnabled, cfg.ChartsJitter, cfg.CSRFEnabled)
	}
	if cfg.ChartsSeed != 42 || cfg.ChartWidth != 800 || cfg.ChartHeight != 400 {
		t.Errorf("charts = seed %d %dx%d, want seed 42 800x400", cfg.ChartsSeed, cfg.ChartWidth, cfg.ChartHeight)
	}
	if cfg.OverloadWindow != 30*time.Second || cfg.OverloadThresholdPct != 90 {
		t.Errorf("overload = %v/%d, want 30s/90", cfg.OverloadWindow, cfg.OverloadThresholdPct)
	}
	if cfg.DegradedWindow != 2*time.Minute || cfg.DegradedErrorPct != 10 {
		t.Errorf("degraded = %v/%d, want 2m/10", cfg.DegradedWindow, cfg.DegradedErrorPct)
	}
	if len(cfg.TrackedCities) != 2 {
		t.Errorf("TrackedCities = %v, want 2 entries", cfg.TrackedCities)
	}
}

func TestLoad_ProjectDevConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_SECRET", testSecret)
	t.Chdir(findProjectRoot(t))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseDriver != "memory" || cfg.CacheBackend != "in_memory" {
		t.Errorf("dev config = %s/%s, want memory/in_memory", cfg.DatabaseDriver, cfg.CacheBackend)
	}
	if cfg.CacheWarmInterval != 4*time.Minute {
		t.Errorf("CacheWarmInterval = %v, want 4m", cfg.CacheWarmInterval)
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
request:
  timeout: "5s"
cache:
  ttl: "5m"
reliability:
  rate_limit_rps: 5
  rate_limit_burst: 10
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
