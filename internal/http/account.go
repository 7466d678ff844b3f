package http

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-risk-service/internal/auth"
	"github.com/kjstillabower/climate-risk-service/internal/models"
	"github.com/kjstillabower/climate-risk-service/internal/observability"
	"github.com/kjstillabower/climate-risk-service/internal/validation"
	"github.com/kjstillabower/climate-risk-service/internal/web"
)

const (
	msgLoginSuccess = "Login successful!"
	msgLoginInvalid = "Invalid email or password"
)

// Login handles GET and POST /login. A logged-in user is sent home.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if auth.UserFromContext(r.Context()) != nil {
		if wantsJSON(r) {
			writeJSON(w, r, http.StatusOK, map[string]any{"ok": true})
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if r.Method == http.MethodGet {
		p := h.page(w, r, "Login")
		p.Next = r.URL.Query().Get("next")
		h.render(w, r, http.StatusOK, web.PageLogin, p)
		return
	}
	if wantsJSON(r) {
		h.loginJSON(w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	form := validation.LoginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Remember: r.PostFormValue("remember") != "",
	}
	next := r.URL.Query().Get("next")

	email, err := validation.ValidateLogin(form)
	var fe validation.FieldErrors
	if errors.As(err, &fe) {
		observability.LoginAttemptsTotal.WithLabelValues("invalid_form").Inc()
		p := h.page(w, r, "Login")
		p.Form = map[string]string{"email": form.Email}
		p.Errors = fe
		p.Next = next
		h.render(w, r, http.StatusOK, web.PageLogin, p)
		return
	}

	u, err := h.Authenticator.Authenticate(r.Context(), email, form.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		observability.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		h.flash(w, r, auth.FlashDanger, msgLoginInvalid)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	case err != nil:
		observability.LoginAttemptsTotal.WithLabelValues("error").Inc()
		observability.LoggerFromContext(r.Context(), h.Logger).Error("authenticate failed", zap.Error(err))
		h.flash(w, r, auth.FlashDanger, "Login is temporarily unavailable. Please try again later.")
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	if !h.startSession(w, r, u, form.Remember) {
		h.serverError(w, r, errors.New("session save failed"))
		return
	}
	h.flash(w, r, auth.FlashSuccess, msgLoginSuccess)
	http.Redirect(w, r, auth.SafeNext(next), http.StatusFound)
}

func (h *Handler) loginJSON(w http.ResponseWriter, r *http.Request) {
	var form validation.LoginForm
	if err := decodeJSON(w, r, &form); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "Request body must be a JSON object")
		return
	}
	email, err := validation.ValidateLogin(form)
	var fe validation.FieldErrors
	if errors.As(err, &fe) {
		observability.LoginAttemptsTotal.WithLabelValues("invalid_form").Inc()
		writeValidationError(w, r, fe)
		return
	}

	u, err := h.Authenticator.Authenticate(r.Context(), email, form.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		observability.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", msgLoginInvalid)
		return
	case err != nil:
		observability.LoginAttemptsTotal.WithLabelValues("error").Inc()
		observability.LoggerFromContext(r.Context(), h.Logger).Error("authenticate failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage is temporarily unavailable")
		return
	}

	if !h.startSession(w, r, u, form.Remember) {
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"ok": true, "user": u})
}

// startSession records a successful login. Returns false when the session
// cookie could not be written.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, u models.User, remember bool) bool {
	logger := observability.LoggerFromContext(r.Context(), h.Logger)
	if err := h.Sessions.Login(w, r, u.ID, remember); err != nil {
		observability.LoginAttemptsTotal.WithLabelValues("error").Inc()
		logger.Error("session save failed", zap.Int64("user_id", u.ID), zap.Error(err))
		return false
	}
	observability.LoginAttemptsTotal.WithLabelValues("success").Inc()
	logger.Info("user logged in", zap.Int64("user_id", u.ID), zap.Bool("remember", remember))
	return true
}

// Logout handles GET /logout. Requires login.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Logout(w, r); err != nil {
		observability.LoggerFromContext(r.Context(), h.Logger).Warn("logout failed", zap.Error(err))
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
