package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const healthPingTimeout = 2 * time.Second

// HealthConfig holds lifecycle thresholds and dependency checks for /health.
type HealthConfig struct {
	Version              string
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int // 0 when rate limiter disabled
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// StorePing checks the database. A failure reports degraded.
	StorePing func(ctx context.Context) error
	// CachePing, when set, is reported under checks but does not change the
	// status; the service keeps working on cache misses.
	CachePing func() error
}

// healthState remembers the last reported status for transition logging.
type healthState struct {
	mu   sync.Mutex
	prev string
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

type healthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.health.mu.Lock()
	prev := h.health.prev
	if prev != "" && prev != result.status {
		h.Logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.health.prev = result.status
	h.health.mu.Unlock()

	checks := map[string]string{"store": "healthy"}
	if result.reason == "store_unreachable" {
		checks["store"] = "unhealthy"
	}
	version := "dev"
	if h.Health != nil {
		if h.Health.CachePing != nil {
			checks["cache"] = "healthy"
			if h.Health.CachePing() != nil {
				checks["cache"] = "unhealthy"
			}
		}
		if h.Health.Version != "" {
			version = h.Health.Version
		}
	}

	writeJSON(w, r, result.statusCode, healthResponse{
		Status:    result.status,
		Service:   "climate-risk-service",
		Version:   version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > store unreachable > overloaded > error-rate degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if h.Lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if !h.Lifecycle.IsReady() {
		return healthResult{"starting", http.StatusServiceUnavailable, "not_ready"}
	}
	cfg := h.Health
	if cfg == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}

	if cfg.StorePing != nil {
		pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
		err := cfg.StorePing(pingCtx)
		cancel()
		if err != nil {
			h.Logger.Warn("store ping failed", zap.Error(err))
			return healthResult{"degraded", http.StatusServiceUnavailable, "store_unreachable"}
		}
	}

	if cfg.RateLimitRPS > 0 && cfg.OverloadWindow > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(h.Traffic.RequestCount(cfg.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}

	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		errs, total := h.Traffic.ErrorRate(cfg.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(cfg.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}
