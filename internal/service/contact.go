package service

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-risk-service/internal/events"
	"github.com/kjstillabower/climate-risk-service/internal/models"
	"github.com/kjstillabower/climate-risk-service/internal/observability"
	"github.com/kjstillabower/climate-risk-service/internal/store"
	"github.com/kjstillabower/climate-risk-service/internal/validation"
)

// ContactService accepts and triages contact messages.
type ContactService struct {
	store     ContactStore
	publisher events.Publisher
	clock     clockwork.Clock
	logger    *zap.Logger
}

// NewContactService creates a ContactService. A nil publisher drops events.
func NewContactService(s ContactStore, publisher events.Publisher, clock clockwork.Clock, logger *zap.Logger) *ContactService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactService{store: s, publisher: publisher, clock: clock, logger: logger}
}

// Submit validates and stores a message, then announces it.
// Returns validation.FieldErrors for bad input.
func (s *ContactService) Submit(ctx context.Context, form validation.ContactForm) (c models.ContactMessage, err error) {
	ctx, span := observability.StartSpan(ctx, "ContactService.Submit")
	defer func() { observability.EndSpan(span, err) }()
	logger := observability.LoggerFromContext(ctx, s.logger)

	form, err = validation.ValidateContact(form)
	if err != nil {
		observability.ContactSubmissionsTotal.WithLabelValues("invalid").Inc()
		return models.ContactMessage{}, err
	}

	now := s.clock.Now()
	start := time.Now()
	c, err = s.store.CreateContact(ctx, models.ContactMessage{
		Name:    form.Name,
		Email:   form.Email,
		Message: form.Message,
		Date:    now,
		Status:  models.ContactPending,
	})
	observability.ObserveStore("create_contact", start, err)
	if err != nil {
		observability.ContactSubmissionsTotal.WithLabelValues("error").Inc()
		return models.ContactMessage{}, storageErr("save contact", err)
	}
	observability.ContactSubmissionsTotal.WithLabelValues("accepted").Inc()

	if e, err := events.New(events.TypeContactReceived, c.Email, now, c); err != nil {
		logger.Warn("build event failed", zap.Error(err))
	} else {
		publish(ctx, s.publisher, logger, e)
	}
	logger.Info("contact message received", zap.Int64("contact_id", c.ID))
	return c, nil
}

// UpdateStatus sets the triage status of message id.
func (s *ContactService) UpdateStatus(ctx context.Context, id int64, status models.ContactStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	start := time.Now()
	err := s.store.UpdateContactStatus(ctx, id, status)
	if errors.Is(err, store.ErrNotFound) {
		observability.ObserveStore("update_contact", start, nil)
		return err
	}
	observability.ObserveStore("update_contact", start, err)
	if err != nil {
		return storageErr("update contact", err)
	}
	return nil
}
