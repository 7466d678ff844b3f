package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/climate-risk-service/internal/archive"
	"github.com/kjstillabower/climate-risk-service/internal/auth"
	"github.com/kjstillabower/climate-risk-service/internal/cache"
	"github.com/kjstillabower/climate-risk-service/internal/charts"
	"github.com/kjstillabower/climate-risk-service/internal/circuitbreaker"
	"github.com/kjstillabower/climate-risk-service/internal/config"
	"github.com/kjstillabower/climate-risk-service/internal/events"
	httphandler "github.com/kjstillabower/climate-risk-service/internal/http"
	"github.com/kjstillabower/climate-risk-service/internal/lifecycle"
	"github.com/kjstillabower/climate-risk-service/internal/observability"
	"github.com/kjstillabower/climate-risk-service/internal/risk"
	"github.com/kjstillabower/climate-risk-service/internal/service"
	"github.com/kjstillabower/climate-risk-service/internal/store"
	"github.com/kjstillabower/climate-risk-service/internal/traffic"
	"github.com/kjstillabower/climate-risk-service/internal/web"
)

const (
	startupWarmTimeout      = 30 * time.Second
	shutdownInFlightTimeout = 10 * time.Second
	inFlightCheckInterval   = 100 * time.Millisecond
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web service (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := observability.NewLogger()
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := config.Load()
			if err != nil {
				logger.Error("config", zap.Error(err))
				return err
			}
			return serve(cfg, logger)
		},
	}
}

// backends are the process-wide resources opened from config.
type backends struct {
	store     *store.SQLStore
	cache     cache.Cache
	memcached *cache.MemcachedCache
	publisher events.Publisher
	archiver  archive.Archiver
}

func openStore(ctx context.Context, cfg *config.Config) (*store.SQLStore, error) {
	return store.Open(ctx, store.Config{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseDSN,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
		ConnectAttempts: cfg.DatabaseConnectAttempts,
		ConnectDelay:    cfg.DatabaseConnectDelay,
	})
}

func openBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	logger.Info("store opened", zap.String("driver", cfg.DatabaseDriver))
	b := &backends{store: st}

	switch cfg.CacheBackend {
	case "memcached":
		b.memcached = cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		b.cache = b.memcached
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		b.cache = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	switch cfg.EventsBackend {
	case "kafka":
		breaker := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.BreakerFailureThreshold,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
			Timeout:          cfg.BreakerTimeout,
			Component:        "kafka",
			OnStateChange:    service.BreakerStateRecorder(logger),
		})
		observability.CircuitBreakerState.WithLabelValues("kafka").Set(0)
		b.publisher = events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaTopic,
			WriteTimeout: cfg.KafkaWriteTimeout,
			Attempts:     cfg.EventsRetryAttempts,
			RetryDelay:   cfg.EventsRetryDelay,
		}, breaker, logger)
		logger.Info("events backend: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	default:
		b.publisher = events.NopPublisher{}
	}

	switch cfg.ReportsArchive {
	case "s3":
		a, err := archive.NewS3Archiver(ctx, archive.S3Config{
			Region:   cfg.S3Region,
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			b.close(logger)
			return nil, fmt.Errorf("report archive: %w", err)
		}
		b.archiver = a
		logger.Info("reports archive: s3", zap.String("bucket", cfg.S3Bucket))
	default:
		b.archiver = archive.NopArchiver{}
	}
	return b, nil
}

func (b *backends) close(logger *zap.Logger) {
	if b.publisher != nil {
		if err := b.publisher.Close(); err != nil {
			logger.Error("event publisher close", zap.Error(err))
		}
	}
	if b.memcached != nil {
		if err := b.memcached.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if err := b.store.Close(); err != nil {
		logger.Error("store close", zap.Error(err))
	}
}

func chartJitter(cfg *config.Config) risk.Jitter {
	if !cfg.ChartsJitter {
		return risk.NoJitter
	}
	seed := cfg.ChartsSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return risk.NewJitter(seed)
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup", zap.Error(err))
		return err
	}
	defer b.close(logger)

	clock := clockwork.NewRealClock()
	var renderer *charts.Renderer
	if cfg.ChartsEnabled {
		renderer = charts.NewRenderer(cfg.ChartWidth, cfg.ChartHeight)
	}
	predictions := service.NewPredictionService(service.PredictionConfig{
		Store:     b.store,
		Cache:     b.cache,
		Renderer:  renderer,
		Publisher: b.publisher,
		Archiver:  b.archiver,
		Clock:     clock,
		Jitter:    chartJitter(cfg),
		ChartTTL:  cfg.ChartCacheTTL,
		Logger:    logger,
	})
	contacts := service.NewContactService(b.store, b.publisher, clock, logger)
	climate := service.NewClimateDataService(b.cache, cfg.CacheTTL, logger)
	dashboards := service.NewDashboardService(b.store, b.store, cfg.DashboardLimit, logger)
	accounts := service.NewAccountService(b.store, logger)

	if _, err := accounts.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Error("admin seeding", zap.Error(err))
		return err
	}

	warmer := cache.NewCacheWarmer(logger)
	jobs := []cache.WarmJob{climate.WarmJob()}
	warmCtx, warmCancel := context.WithTimeout(ctx, startupWarmTimeout)
	if err := warmer.Warm(warmCtx, jobs); err != nil {
		logger.Warn("cache warming failed", zap.Error(err))
	}
	warmCancel()
	if cfg.CacheWarmInterval > 0 {
		go func() {
			if err := warmer.WarmPeriodic(ctx, jobs, cfg.CacheWarmInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic cache warming stopped", zap.Error(err))
			}
		}()
	}

	pages, err := web.NewRenderer()
	if err != nil {
		logger.Error("templates", zap.Error(err))
		return err
	}

	lc := &lifecycle.State{}
	tracker := traffic.NewTracker()
	inflight := httphandler.NewInFlightTracker()
	observability.RegisterTrafficGauges(tracker, cfg.OverloadWindow)
	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	healthConfig := &httphandler.HealthConfig{
		Version:              version,
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		StorePing:            b.store.Ping,
	}
	if b.memcached != nil {
		healthConfig.CachePing = b.memcached.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	csrfKey := sha256.Sum256([]byte("csrf:" + cfg.SessionSecret))

	handler := httphandler.NewHandler(httphandler.Deps{
		Predictions: predictions,
		Contacts:    contacts,
		Climate:     climate,
		Dashboards:  dashboards,
		Users:       b.store,
		Sessions:    auth.NewSessions([]byte(cfg.SessionSecret), cfg.SessionSecure),
		Pages:       pages,
		Lifecycle:   lc,
		Traffic:     tracker,
		InFlight:    inflight,
		Health:      healthConfig,
		Logger:      logger,
	})
	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		RateLimiter:    limiter,
		RequestTimeout: cfg.RequestTimeout,
		CSRFEnabled:    cfg.CSRFEnabled,
		CSRFKey:        csrfKey[:],
		SecureCookies:  cfg.SessionSecure,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	lc.SetReady(true)

	select {
	case err := <-serveErr:
		logger.Error("server", zap.Error(err))
		return err
	case <-ctx.Done():
	}
	stop()

	logger.Info("graceful shutdown triggered")
	lc.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inflight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownInFlightTimeout)
	defer waitCancel()
	if err := inflight.WaitForZero(waitCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inflight.Count()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
