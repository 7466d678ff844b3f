package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/climate-risk-service/internal/auth"
	"github.com/kjstillabower/climate-risk-service/internal/models"
	"github.com/kjstillabower/climate-risk-service/internal/observability"
	"github.com/kjstillabower/climate-risk-service/internal/store"
	"github.com/kjstillabower/climate-risk-service/internal/traffic"
)

// CorrelationIDMiddleware reuses or generates X-Correlation-ID and attaches a
// request-scoped logger carrying it.
func CorrelationIDMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := r.Header.Get("X-Correlation-ID")
			if corrID == "" {
				corrID = uuid.New().String()
			}
			w.Header().Set("X-Correlation-ID", corrID)

			ctx := observability.WithCorrelationID(r.Context(), corrID)
			ctx = observability.WithLogger(ctx, logger.With(zap.String("correlation_id", corrID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MetricsMiddleware records request count, latency and in-flight gauge, and
// feeds outcomes to the traffic tracker used by /health. Health and metrics
// scrapes are not counted as traffic; rate-limit denials are recorded by
// RateLimitMiddleware.
func MetricsMiddleware(inflight *InFlightTracker, tracker *traffic.Tracker) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			observability.HTTPRequestsInFlight.Inc()
			defer observability.HTTPRequestsInFlight.Dec()
			if inflight != nil {
				inflight.Increment()
				defer inflight.Decrement()
			}

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			route := routeLabel(r)
			observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, statusCodeString(recorder.statusCode)).Inc()
			observability.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())

			if tracker == nil || route == "/health" || route == "/metrics" || recorder.statusCode == http.StatusTooManyRequests {
				return
			}
			if recorder.statusCode >= 500 {
				tracker.RecordError()
			} else {
				tracker.RecordSuccess()
			}
		})
	}
}

// routeLabel returns the matched route template so path variables do not
// explode metric cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func statusCodeString(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// TimeoutMiddleware sets a deadline on the request context. When exceeded, downstream handlers
// receive context.DeadlineExceeded. Applied to /api/ only.
func TimeoutMiddleware(timeout time.Duration) mux.MiddlewareFunc {
	if timeout <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware returns 429 when the token bucket is exhausted. Disabled when limiter is nil.
func RateLimitMiddleware(limiter *rate.Limiter, tracker *traffic.Tracker) mux.MiddlewareFunc {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				observability.LoggerFromContext(r.Context(), nil).Debug("rate limit denied", zap.String("path", r.URL.Path))
				if tracker != nil {
					tracker.RecordDenied()
				}
				observability.RateLimitDeniedTotal.Inc()
				writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserLookup resolves the session's user ID to an account.
type UserLookup interface {
	UserByID(ctx context.Context, id int64) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
}

// LoadUserMiddleware puts the logged-in user, if any, on the request context.
// A session pointing at a missing user is treated as anonymous; a storage
// failure is logged and also treated as anonymous.
func LoadUserMiddleware(sessions *auth.Sessions, users UserLookup) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := sessions.UserID(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			u, err := users.UserByID(r.Context(), id)
			switch {
			case errors.Is(err, store.ErrNotFound):
				observability.ObserveStore("user_by_id", start, nil)
			case err != nil:
				observability.ObserveStore("user_by_id", start, err)
				observability.LoggerFromContext(r.Context(), nil).Warn("load session user failed", zap.Int64("user_id", id), zap.Error(err))
			default:
				observability.ObserveStore("user_by_id", start, nil)
				r = r.WithContext(auth.WithUser(r.Context(), &u))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireLogin rejects anonymous requests: API callers get 401, browsers are
// sent to /login with a next parameter.
func RequireLogin(sessions *auth.Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.UserFromContext(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}
			if isAPIRequest(r) {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Login required")
				return
			}
			if err := sessions.AddFlash(w, r, auth.FlashInfo, "Please log in to access this page."); err != nil {
				observability.LoggerFromContext(r.Context(), nil).Warn("add flash failed", zap.Error(err))
			}
			http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
		})
	}
}

// RequireAdmin rejects non-admin users with 403. Use after RequireLogin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := auth.UserFromContext(r.Context()); u == nil || !u.IsAdmin {
			writeError(w, r, http.StatusForbidden, "FORBIDDEN", "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CSRFMiddleware protects browser form posts. API and JSON requests skip the
// check; they cannot be sent cross-site without a CORS preflight. When secure
// is false requests are marked plaintext so the Referer check does not
// demand HTTPS.
func CSRFMiddleware(key []byte, secure bool) mux.MiddlewareFunc {
	protect := csrf.Protect(key,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			observability.LoggerFromContext(r.Context(), nil).Warn("csrf check failed", zap.Error(csrf.FailureReason(r)))
			writeError(w, r, http.StatusForbidden, "CSRF_INVALID", "Invalid or missing CSRF token")
		})),
	)
	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			if isAPIRequest(r) || isJSONBody(r) {
				r = csrf.UnsafeSkipCheck(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func isJSONBody(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// wantsJSON reports whether the caller sent or asked for JSON.
func wantsJSON(r *http.Request) bool {
	if isJSONBody(r) {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
