//go:build integration
// +build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/climate-risk-service/internal/models"
)

// TestPostgres_RoundTrip_Integration requires CLIMATE_RISK_POSTGRES_DSN.
func TestPostgres_RoundTrip_Integration(t *testing.T) {
	dsn := os.Getenv("CLIMATE_RISK_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CLIMATE_RISK_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, Config{
		Driver:          DriverPostgres,
		DSN:             dsn,
		ConnectAttempts: 3,
		ConnectDelay:    500 * time.Millisecond,
	})
	require.NoError(t, err)
	defer s.Close()

	email := "it-" + time.Now().Format("20060102150405.000000") + "@example.com"
	u, err := s.CreateUser(ctx, models.User{Name: "Integration", Email: email, PasswordHash: "x"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, models.User{Name: "Again", Email: email, PasswordHash: "y"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	p, err := s.CreatePrediction(ctx, models.Prediction{UserID: u.ID, City: "Austin", RiskLevel: "low", RiskScore: 33})
	require.NoError(t, err)

	got, err := s.LatestPrediction(ctx, u.ID, "Austin")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}
