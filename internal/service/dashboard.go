package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-risk-service/internal/models"
	"github.com/kjstillabower/climate-risk-service/internal/observability"
)

// DashboardService loads a user's recent activity.
type DashboardService struct {
	predictions PredictionStore
	contacts    ContactStore
	limit       int
	logger      *zap.Logger
}

// NewDashboardService creates a DashboardService listing up to limit records of each kind.
func NewDashboardService(predictions PredictionStore, contacts ContactStore, limit int, logger *zap.Logger) *DashboardService {
	if limit <= 0 {
		limit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{predictions: predictions, contacts: contacts, limit: limit, logger: logger}
}

// Load returns the user's recent predictions; admins also get recent contact
// messages. When the store fails, Load returns sample records with
// Fallback set rather than an error.
func (s *DashboardService) Load(ctx context.Context, user models.User) (d models.Dashboard) {
	ctx, span := observability.StartSpan(ctx, "DashboardService.Load")
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()
	logger := observability.LoggerFromContext(ctx, s.logger)

	start := time.Now()
	preds, err := s.predictions.ListPredictions(ctx, user.ID, s.limit)
	observability.ObserveStore("list_predictions", start, err)
	if err != nil {
		spanErr = err
		logger.Error("load dashboard predictions failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return fallbackDashboard(user)
	}

	d = models.Dashboard{Predictions: preds, Contacts: []models.ContactMessage{}}
	if d.Predictions == nil {
		d.Predictions = []models.Prediction{}
	}
	if !user.IsAdmin {
		return d
	}

	start = time.Now()
	contacts, err := s.contacts.ListContacts(ctx, s.limit)
	observability.ObserveStore("list_contacts", start, err)
	if err != nil {
		spanErr = err
		logger.Error("load dashboard contacts failed", zap.Error(err))
		return fallbackDashboard(user)
	}
	if contacts != nil {
		d.Contacts = contacts
	}
	return d
}

// fallbackDashboard is shown while storage is unavailable.
func fallbackDashboard(user models.User) models.Dashboard {
	day := func(m time.Month, d int) time.Time { return time.Date(2023, m, d, 0, 0, 0, 0, time.UTC) }
	d := models.Dashboard{
		Predictions: []models.Prediction{
			{ID: 1, UserID: user.ID, City: "New York", Population: 8_500_000, TemperatureIncrease: 2.1, RiskLevel: "high", RiskScore: 82, Date: day(time.May, 15)},
			{ID: 2, UserID: user.ID, City: "Los Angeles", Population: 4_000_000, TemperatureIncrease: 1.8, RiskLevel: "medium", RiskScore: 65, Date: day(time.May, 14)},
			{ID: 3, UserID: user.ID, City: "Chicago", Population: 2_700_000, TemperatureIncrease: 1.5, RiskLevel: "low", RiskScore: 35, Date: day(time.May, 12)},
		},
		Contacts: []models.ContactMessage{},
		Fallback: true,
	}
	if user.IsAdmin {
		d.Contacts = []models.ContactMessage{
			{ID: 1, Name: "Jane Smith", Email: "jane@example.com", Message: "I'm interested in using this tool for my research on urban planning.", Date: day(time.May, 16), Status: models.ContactPending},
			{ID: 2, Name: "Mark Johnson", Email: "mark@example.com", Message: "Can you provide more information about your methodology?", Date: day(time.May, 15), Status: models.ContactPending},
		}
	}
	return d
}
