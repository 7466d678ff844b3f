// Package auth handles password hashing, credential checks and cookie sessions.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/kjstillabower/climate-risk-service/internal/models"
	"github.com/kjstillabower/climate-risk-service/internal/store"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrWeakPassword is returned when a new password is too short.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
)

// MinPasswordLen is the shortest password HashPassword accepts.
const MinPasswordLen = 8

// hashCost is the bcrypt cost for stored and dummy hashes alike.
const hashCost = bcrypt.DefaultCost

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLen {
		return "", ErrWeakPassword
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UserLookup finds users by email.
type UserLookup interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
}

// Authenticator verifies login credentials against stored users.
type Authenticator struct {
	users UserLookup
	// dummyHash is compared on unknown emails so both failure paths cost the
	// same bcrypt round.
	dummyHash []byte
}

// NewAuthenticator creates an Authenticator backed by users.
func NewAuthenticator(users UserLookup) *Authenticator {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("climate-risk-dummy"), hashCost)
	return &Authenticator{users: users, dummyHash: dummy}
}

// Authenticate returns the user for email when password matches.
// Returns ErrInvalidCredentials for both unknown emails and wrong passwords;
// any other error is a storage failure.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	u, err := a.users.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !CheckPassword(u.PasswordHash, password) {
		return models.User{}, ErrInvalidCredentials
	}
	return u, nil
}
