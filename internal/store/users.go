package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kjstillabower/climate-risk-service/internal/models"
)

const userColumns = `id, name, email, password_hash, date_registered, is_admin`

// CreateUser inserts u and returns it with ID and DateRegistered set.
// The email is stored lower-cased.
func (s *SQLStore) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	if _, err := s.UserByEmail(ctx, u.Email); err == nil {
		return models.User{}, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return models.User{}, err
	}

	if u.DateRegistered.IsZero() {
		u.DateRegistered = s.now()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (name, email, password_hash, date_registered, is_admin)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		u.Name, u.Email, u.PasswordHash, u.DateRegistered, u.IsAdmin,
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// UserByEmail looks a user up by case-insensitive email.
func (s *SQLStore) UserByEmail(ctx context.Context, email string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// UserByID looks a user up by primary key.
func (s *SQLStore) UserByID(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// SeedAdmin creates an administrator unless a user with that email exists.
// Returns true when a user was created.
func (s *SQLStore) SeedAdmin(ctx context.Context, name, email, passwordHash string) (bool, error) {
	_, err := s.CreateUser(ctx, models.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		IsAdmin:      true,
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrDuplicateEmail):
		return false, nil
	default:
		return false, fmt.Errorf("seed admin: %w", err)
	}
}

func scanUser(row *sql.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.DateRegistered, &u.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}
