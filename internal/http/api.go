package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kjstillabower/climate-risk-service/internal/auth"
	"github.com/kjstillabower/climate-risk-service/internal/models"
	"github.com/kjstillabower/climate-risk-service/internal/service"
	"github.com/kjstillabower/climate-risk-service/internal/store"
	"github.com/kjstillabower/climate-risk-service/internal/validation"
)

// predictRequest is the body of POST /api/predict. Numbers may be sent as
// JSON numbers or strings.
type predictRequest struct {
	City                string     `json:"city"`
	Population          flexString `json:"population"`
	TemperatureIncrease flexString `json:"temperature_increase"`
	UrbanDensity        string     `json:"urban_density"`
	Infrastructure      string     `json:"infrastructure"`
}

// APIPredict handles POST /api/predict.
func (h *Handler) APIPredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "Request body must be a JSON object")
		return
	}
	form := validation.PredictionForm{
		City:                req.City,
		Population:          string(req.Population),
		TemperatureIncrease: string(req.TemperatureIncrease),
		UrbanDensity:        req.UrbanDensity,
		Infrastructure:      req.Infrastructure,
	}

	a, err := h.Predictions.Assess(r.Context(), form, auth.UserFromContext(r.Context()))
	var fe validation.FieldErrors
	switch {
	case errors.As(err, &fe):
		writeValidationError(w, r, fe)
		return
	case err != nil:
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

// APIClimateData handles GET /api/climate-data.
func (h *Handler) APIClimateData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, r, http.StatusOK, h.Climate.Series(r.Context()))
}

// APIDashboard handles GET /api/dashboard. Requires login.
func (h *Handler) APIDashboard(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	writeJSON(w, r, http.StatusOK, h.Dashboards.Load(r.Context(), *user))
}

type contactStatusRequest struct {
	Status models.ContactStatus `json:"status"`
}

// APIUpdateContact handles PATCH /api/contacts/{id}. Requires an admin.
func (h *Handler) APIUpdateContact(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_ID", "Contact id must be a positive integer")
		return
	}
	var req contactStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "Request body must be a JSON object")
		return
	}

	err = h.Contacts.UpdateStatus(r.Context(), id, req.Status)
	switch {
	case errors.Is(err, service.ErrInvalidStatus):
		writeError(w, r, http.StatusBadRequest, "INVALID_STATUS", "Status must be pending, responded or closed")
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Contact message not found")
		return
	case err != nil:
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}
