package http

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/climate-risk-service/internal/auth"
	"github.com/kjstillabower/climate-risk-service/internal/lifecycle"
	"github.com/kjstillabower/climate-risk-service/internal/observability"
	"github.com/kjstillabower/climate-risk-service/internal/service"
	"github.com/kjstillabower/climate-risk-service/internal/traffic"
	"github.com/kjstillabower/climate-risk-service/internal/web"
)

// Deps holds everything the handlers need. Lifecycle, Traffic and InFlight
// get fresh instances when nil.
type Deps struct {
	Predictions   *service.PredictionService
	Contacts      *service.ContactService
	Climate       *service.ClimateDataService
	Dashboards    *service.DashboardService
	Users         UserLookup
	Authenticator *auth.Authenticator
	Sessions      *auth.Sessions
	Pages         *web.Renderer
	Lifecycle     *lifecycle.State
	Traffic       *traffic.Tracker
	InFlight      *InFlightTracker
	Health        *HealthConfig
	Logger        *zap.Logger
}

// RouterOptions tunes the middleware chain.
type RouterOptions struct {
	RateLimiter    *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration // applied to /api/
	CSRFEnabled    bool
	CSRFKey        []byte
	SecureCookies  bool
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Deps
	health healthState
}

// NewHandler returns a new Handler.
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.State{}
		deps.Lifecycle.SetReady(true)
	}
	if deps.Traffic == nil {
		deps.Traffic = traffic.NewTracker()
	}
	if deps.InFlight == nil {
		deps.InFlight = NewInFlightTracker()
	}
	if deps.Authenticator == nil && deps.Users != nil {
		deps.Authenticator = auth.NewAuthenticator(deps.Users)
	}
	return &Handler{Deps: deps}
}

// NewRouter registers every route and the middleware chain:
// correlation ID, metrics, session user, then CSRF when enabled.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(h.Logger))
	router.Use(MetricsMiddleware(h.InFlight, h.Traffic))
	router.Use(LoadUserMiddleware(h.Sessions, h.Users))
	if opts.CSRFEnabled {
		router.Use(CSRFMiddleware(opts.CSRFKey, opts.SecureCookies))
	}

	limit := RateLimitMiddleware(opts.RateLimiter, h.Traffic)
	login := RequireLogin(h.Sessions)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.PathPrefix("/static/").Handler(web.Static()).Methods(http.MethodGet, http.MethodHead)

	router.HandleFunc("/", h.Index).Methods(http.MethodGet)
	router.HandleFunc("/about", h.About).Methods(http.MethodGet)
	router.HandleFunc("/predict", h.PredictForm).Methods(http.MethodGet)
	router.HandleFunc("/predict", h.Predict).Methods(http.MethodPost)
	router.HandleFunc("/download-report/{city}", h.DownloadReport).Methods(http.MethodGet)
	router.HandleFunc("/contact", h.Contact).Methods(http.MethodGet, http.MethodPost)
	router.Handle("/login", limit(http.HandlerFunc(h.Login))).Methods(http.MethodGet, http.MethodPost)
	router.Handle("/logout", login(http.HandlerFunc(h.Logout))).Methods(http.MethodGet)
	router.Handle("/dashboard", login(http.HandlerFunc(h.Dashboard))).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(limit)
	api.Use(TimeoutMiddleware(opts.RequestTimeout))
	api.HandleFunc("/predict", h.APIPredict).Methods(http.MethodPost)
	api.HandleFunc("/climate-data", h.APIClimateData).Methods(http.MethodGet)
	api.Handle("/dashboard", login(http.HandlerFunc(h.APIDashboard))).Methods(http.MethodGet)
	api.Handle("/contacts/{id:[0-9]+}", login(RequireAdmin(http.HandlerFunc(h.APIUpdateContact)))).Methods(http.MethodPatch)

	return router
}

// page builds the common template data: user, pending flashes and the CSRF field.
// Call before anything is written to w; reading flashes rewrites the cookie.
func (h *Handler) page(w http.ResponseWriter, r *http.Request, title string) web.Page {
	flashes, err := h.Sessions.Flashes(w, r)
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.Logger).Warn("read flashes failed", zap.Error(err))
	}
	return web.Page{
		Title:     title,
		User:      auth.UserFromContext(r.Context()),
		Flashes:   flashes,
		CSRFField: csrf.TemplateField(r),
		Year:      time.Now().Year(),
	}
}

// render executes a page template and writes it with status.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, p web.Page) {
	var buf bytes.Buffer
	if err := h.Pages.Render(&buf, name, p); err != nil {
		h.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// serverError logs err and sends a generic 500 without leaking details.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context(), h.Logger).Error("internal error", zap.String("path", r.URL.Path), zap.Error(err))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// flash queues a message for the next page and logs when the session cannot be saved.
func (h *Handler) flash(w http.ResponseWriter, r *http.Request, category, message string) {
	if err := h.Sessions.AddFlash(w, r, category, message); err != nil {
		observability.LoggerFromContext(r.Context(), h.Logger).Warn("add flash failed", zap.Error(err))
	}
}
