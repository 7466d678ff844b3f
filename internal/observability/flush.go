package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// flusher is implemented by SDK tracer providers. The default global
// provider is a no-op and does not implement it.
type flusher interface {
	ForceFlush(ctx context.Context) error
}

// FlushTelemetry exports buffered spans and syncs the logger before exit.
// Metrics are scraped, so there is nothing to push. Call after in-flight
// requests drain.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var errs []error
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		if err := f.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush spans: %w", err))
		}
	}
	if logger != nil {
		// Sync on a terminal stderr reports EINVAL/ENOTTY; nothing was lost.
		if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
			errs = append(errs, fmt.Errorf("flush logs: %w", err))
		}
	}
	return errors.Join(errs...)
}
