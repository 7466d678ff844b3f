// Package store persists users, contact messages and predictions over
// database/sql. The memory driver (ramsql) backs development and tests; the
// postgres driver (lib/pq) backs deployments. Both share one schema.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/lib/pq"
	_ "github.com/proullon/ramsql/driver"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateEmail is returned when creating a user whose email is taken.
	ErrDuplicateEmail = errors.New("store: email already registered")
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

const pqUniqueViolation = "23505"

// Config selects and tunes the database backend.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts uint
	ConnectDelay    time.Duration
}

// SQLStore implements persistence for every record type.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to the configured backend, waits for it to answer a ping and
// creates missing tables.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	driverName, dsn, err := resolveDriver(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}
	err = retry.Do(
		func() error { return db.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(cfg.ConnectDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	s := New(db, cfg.Driver)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. driver is DriverMemory or DriverPostgres.
func New(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{
		db:     db,
		driver: driver,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func resolveDriver(cfg Config) (string, string, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory, "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "climaterisk"
		}
		return "ramsql", dsn, nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return "", "", errors.New("postgres driver requires a dsn")
		}
		return "postgres", cfg.DSN, nil
	default:
		return "", "", fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// EnsureSchema creates the tables if they are missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// limitClause renders LIMIT inline; ramsql does not bind placeholders there.
func limitClause(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", n)
}
