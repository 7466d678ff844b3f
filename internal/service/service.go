// Package service orchestrates the risk model, storage, caching, events and
// report archiving behind the HTTP handlers and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-risk-service/internal/circuitbreaker"
	"github.com/kjstillabower/climate-risk-service/internal/events"
	"github.com/kjstillabower/climate-risk-service/internal/models"
	"github.com/kjstillabower/climate-risk-service/internal/observability"
)

var (
	// ErrStorage marks failures of the backing store. Handlers map it to 503.
	ErrStorage = errors.New("storage unavailable")
	// ErrNoPredictionData is returned for a report request by a user with no saved prediction for the city.
	ErrNoPredictionData = errors.New("no prediction data available for the specified city")
	// ErrInvalidStatus is returned for an unknown contact status.
	ErrInvalidStatus = errors.New("invalid contact status")
)

// PredictionStore persists saved assessments.
type PredictionStore interface {
	CreatePrediction(ctx context.Context, p models.Prediction) (models.Prediction, error)
	ListPredictions(ctx context.Context, userID int64, limit int) ([]models.Prediction, error)
	LatestPrediction(ctx context.Context, userID int64, city string) (models.Prediction, error)
}

// ContactStore persists contact messages.
type ContactStore interface {
	CreateContact(ctx context.Context, c models.ContactMessage) (models.ContactMessage, error)
	ListContacts(ctx context.Context, limit int) ([]models.ContactMessage, error)
	UpdateContactStatus(ctx context.Context, id int64, status models.ContactStatus) error
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	SeedAdmin(ctx context.Context, name, email, passwordHash string) (bool, error)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// publish sends e and records the outcome. Failures are logged, never returned.
func publish(ctx context.Context, p events.Publisher, logger *zap.Logger, e events.Event) {
	if err := p.Publish(ctx, e); err != nil {
		observability.EventsFailedTotal.WithLabelValues(e.Type).Inc()
		logger.Warn("event publish failed",
			zap.String("event_type", e.Type),
			zap.String("event_id", e.ID),
			zap.Error(err),
		)
		return
	}
	observability.EventsPublishedTotal.WithLabelValues(e.Type).Inc()
}

// BreakerStateRecorder returns a circuit breaker hook that mirrors state into
// the circuitBreakerState gauge and logs each transition.
func BreakerStateRecorder(logger *zap.Logger) func(component string, from, to circuitbreaker.State) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(component string, from, to circuitbreaker.State) {
		observability.CircuitBreakerState.WithLabelValues(component).Set(float64(to))
		logger.Warn("circuit breaker state change",
			zap.String("component", component),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
}

// normalizeCity trims and lowercases a city for keys and partitioning.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
