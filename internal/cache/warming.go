package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-risk-service/internal/observability"
)

// WarmJob fills one cache entry. Implemented by the service layer so the
// cache package does not depend on it.
type WarmJob struct {
	Name string
	Run  func(ctx context.Context) error
}

// CacheWarmer runs warm jobs at startup and on an interval.
type CacheWarmer struct {
	logger *zap.Logger
	clock  clockwork.Clock
}

// NewCacheWarmer creates a CacheWarmer that logs to logger.
func NewCacheWarmer(logger *zap.Logger) *CacheWarmer {
	return NewCacheWarmerWithClock(logger, clockwork.NewRealClock())
}

// NewCacheWarmerWithClock creates a CacheWarmer whose periodic refresh is driven by clock.
func NewCacheWarmerWithClock(logger *zap.Logger, clock clockwork.Clock) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{logger: logger, clock: clock}
}

// Warm runs every job concurrently. Returns the joined errors of failed jobs.
func (w *CacheWarmer) Warm(ctx context.Context, jobs []WarmJob) error {
	start := w.clock.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("jobs", len(jobs)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(jobs))
	for _, job := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := job.Run(ctx); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", job.Name, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := w.clock.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete", zap.Int("jobs", len(jobs)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, jobs []WarmJob, interval time.Duration) error {
	if err := w.Warm(ctx, jobs); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := w.Warm(ctx, jobs); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
