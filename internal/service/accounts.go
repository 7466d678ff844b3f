package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-risk-service/internal/auth"
	"github.com/kjstillabower/climate-risk-service/internal/models"
	"github.com/kjstillabower/climate-risk-service/internal/observability"
	"github.com/kjstillabower/climate-risk-service/internal/store"
	"github.com/kjstillabower/climate-risk-service/internal/validation"
)

// AccountService creates users.
type AccountService struct {
	users  UserStore
	logger *zap.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(users UserStore, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{users: users, logger: logger}
}

// CreateUser registers a user. Returns validation.FieldErrors for a missing
// name or malformed email, auth.ErrWeakPassword for a short password and
// store.ErrDuplicateEmail when the email is taken.
func (s *AccountService) CreateUser(ctx context.Context, name, email, password string, admin bool) (models.User, error) {
	email, err := validation.ValidateLogin(validation.LoginForm{Email: email, Password: password})
	fe := validation.FieldErrors{}
	var vErr validation.FieldErrors
	if errors.As(err, &vErr) {
		for k, v := range vErr {
			fe[k] = v
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		fe["name"] = validation.MsgRequired
	}
	if len(fe) > 0 {
		return models.User{}, fe
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	start := time.Now()
	u, err := s.users.CreateUser(ctx, models.User{Name: name, Email: email, PasswordHash: hash, IsAdmin: admin})
	if errors.Is(err, store.ErrDuplicateEmail) {
		observability.ObserveStore("create_user", start, nil)
		return models.User{}, err
	}
	observability.ObserveStore("create_user", start, err)
	if err != nil {
		return models.User{}, storageErr("create user", err)
	}
	s.logger.Info("user created", zap.Int64("user_id", u.ID), zap.Bool("admin", admin))
	return u, nil
}

// EnsureAdmin creates the administrator account unless one with email
// exists. An empty password disables seeding. Returns true when created.
func (s *AccountService) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	if password == "" {
		s.logger.Info("admin seeding skipped, no ADMIN_PASSWORD configured")
		return false, nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	created, err := s.users.SeedAdmin(ctx, name, strings.ToLower(strings.TrimSpace(email)), hash)
	if err != nil {
		return false, storageErr("seed admin", err)
	}
	if created {
		s.logger.Info("admin user created", zap.String("email", email))
	}
	return created, nil
}
