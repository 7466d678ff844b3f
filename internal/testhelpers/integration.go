//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-risk-service/internal/cache"
	"github.com/kjstillabower/climate-risk-service/internal/service"
	"github.com/kjstillabower/climate-risk-service/internal/store"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	PostgresDSN   string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if CLIMATE_RISK_POSTGRES_DSN is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	dsn := os.Getenv("CLIMATE_RISK_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CLIMATE_RISK_POSTGRES_DSN not set, skipping integration test")
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		PostgresDSN:   dsn,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationStore opens the postgres store and closes it when the test ends.
func SetupIntegrationStore(t *testing.T, cfg IntegrationTestConfig) *store.SQLStore {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{
		Driver:          store.DriverPostgres,
		DSN:             cfg.PostgresDSN,
		ConnectAttempts: 3,
		ConnectDelay:    500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// SetupIntegrationCache returns memcached when requested and reachable,
// otherwise an in-memory cache.
func SetupIntegrationCache(t *testing.T, cfg IntegrationTestConfig) cache.Cache {
	t.Helper()
	if cfg.CacheBackend != "memcached" {
		return cache.NewInMemoryCache()
	}
	mc := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
	if err := mc.Ping(); err != nil {
		t.Logf("Memcached not available (%v), using in-memory cache", err)
		_ = mc.Close()
		return cache.NewInMemoryCache()
	}
	t.Cleanup(func() { _ = mc.Close() })
	t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
	return mc
}

// SetupIntegrationService creates a prediction service backed by postgres and
// the configured cache. Charts are disabled so runs stay fast.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.PredictionService, *store.SQLStore) {
	t.Helper()
	s := SetupIntegrationStore(t, cfg)
	svc := service.NewPredictionService(service.PredictionConfig{
		Store:  s,
		Cache:  SetupIntegrationCache(t, cfg),
		Logger: zap.NewNop(),
	})
	return svc, s
}

// UniqueEmail returns an address that will not collide across runs.
func UniqueEmail(prefix string) string {
	return prefix + "-" + time.Now().UTC().Format("20060102150405.000000") + "@example.com"
}
