package http

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-risk-service/internal/auth"
	"github.com/kjstillabower/climate-risk-service/internal/observability"
	"github.com/kjstillabower/climate-risk-service/internal/report"
	"github.com/kjstillabower/climate-risk-service/internal/service"
	"github.com/kjstillabower/climate-risk-service/internal/validation"
	"github.com/kjstillabower/climate-risk-service/internal/web"
)

// Index handles GET /.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	p := h.page(w, r, "")
	series := h.Climate.Series(r.Context())
	p.Climate = &series
	h.render(w, r, http.StatusOK, web.PageIndex, p)
}

// About handles GET /about.
func (h *Handler) About(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, web.PageAbout, h.page(w, r, "About"))
}

// PredictForm handles GET /predict.
func (h *Handler) PredictForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, web.PagePredict, h.page(w, r, "Predict"))
}

// Predict handles POST /predict. Invalid input re-renders the form with
// field errors; a valid form renders the assessment, saved for logged-in users.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	form := validation.PredictionForm{
		City:                r.PostFormValue("city"),
		Population:          r.PostFormValue("population"),
		TemperatureIncrease: r.PostFormValue("temperature_increase"),
		UrbanDensity:        r.PostFormValue("urban_density"),
		Infrastructure:      r.PostFormValue("infrastructure"),
	}

	p := h.page(w, r, "Predict")
	p.Form = map[string]string{
		"city":                 form.City,
		"population":           form.Population,
		"temperature_increase": form.TemperatureIncrease,
		"urban_density":        form.UrbanDensity,
		"infrastructure":       form.Infrastructure,
	}

	a, err := h.Predictions.Assess(r.Context(), form, auth.UserFromContext(r.Context()))
	var fe validation.FieldErrors
	switch {
	case errors.As(err, &fe):
		p.Errors = fe
		h.render(w, r, http.StatusOK, web.PagePredict, p)
		return
	case err != nil:
		h.serverError(w, r, err)
		return
	}

	if a.Saved {
		p.Flashes = append(p.Flashes, auth.Flash{Category: auth.FlashSuccess, Message: "Prediction saved to your account"})
	}
	p.Assessment = &a
	h.render(w, r, http.StatusOK, web.PagePredict, p)
}

// DownloadReport handles GET /download-report/{city}.
func (h *Handler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	city := mux.Vars(r)["city"]
	body, err := h.Predictions.CityReport(r.Context(), city, auth.UserFromContext(r.Context()))
	switch {
	case errors.Is(err, service.ErrNoPredictionData):
		h.flash(w, r, auth.FlashWarning, "No prediction data available for the specified city.")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	case errors.Is(err, service.ErrStorage):
		observability.LoggerFromContext(r.Context(), h.Logger).Warn("report lookup failed", zap.String("city", city), zap.Error(err))
		h.flash(w, r, auth.FlashDanger, "Reports are temporarily unavailable. Please try again later.")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	case err != nil:
		h.serverError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+report.Filename(city))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Contact handles GET and POST /contact for both browsers and JSON callers.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, web.PageContact, h.page(w, r, "Contact"))
		return
	}
	if wantsJSON(r) {
		h.contactJSON(w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	form := validation.ContactForm{
		Name:    r.PostFormValue("name"),
		Email:   r.PostFormValue("email"),
		Message: r.PostFormValue("message"),
	}
	_, err := h.Contacts.Submit(r.Context(), form)
	var fe validation.FieldErrors
	switch {
	case errors.As(err, &fe):
		p := h.page(w, r, "Contact")
		p.Form = map[string]string{"name": form.Name, "email": form.Email, "message": form.Message}
		p.Errors = fe
		h.render(w, r, http.StatusOK, web.PageContact, p)
		return
	case errors.Is(err, service.ErrStorage):
		observability.LoggerFromContext(r.Context(), h.Logger).Warn("contact submit failed", zap.Error(err))
		p := h.page(w, r, "Contact")
		p.Form = map[string]string{"name": form.Name, "email": form.Email, "message": form.Message}
		p.Flashes = append(p.Flashes, auth.Flash{Category: auth.FlashDanger, Message: "We could not send your message right now. Please try again later."})
		h.render(w, r, http.StatusServiceUnavailable, web.PageContact, p)
		return
	case err != nil:
		h.serverError(w, r, err)
		return
	}

	h.flash(w, r, auth.FlashSuccess, "Your message has been sent! We will get back to you soon.")
	http.Redirect(w, r, "/contact", http.StatusFound)
}

func (h *Handler) contactJSON(w http.ResponseWriter, r *http.Request) {
	var form validation.ContactForm
	if err := decodeJSON(w, r, &form); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "Request body must be a JSON object")
		return
	}
	c, err := h.Contacts.Submit(r.Context(), form)
	var fe validation.FieldErrors
	switch {
	case errors.As(err, &fe):
		writeValidationError(w, r, fe)
		return
	case err != nil:
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, c)
}

// Dashboard handles GET /dashboard. Requires login.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	p := h.page(w, r, "Dashboard")
	d := h.Dashboards.Load(r.Context(), *user)
	p.Dashboard = &d
	h.render(w, r, http.StatusOK, web.PageDashboard, p)
}
