package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kjstillabower/climate-risk-service/internal/models"
)

const predictionColumns = `id, user_id, city, population, temperature_increase, urban_density, infrastructure, risk_level, risk_score, date`

// CreatePrediction saves a prediction for p.UserID.
func (s *SQLStore) CreatePrediction(ctx context.Context, p models.Prediction) (models.Prediction, error) {
	if p.Date.IsZero() {
		p.Date = s.now()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO predictions (user_id, city, population, temperature_increase, urban_density, infrastructure, risk_level, risk_score, date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		p.UserID, p.City, p.Population, p.TemperatureIncrease, p.UrbanDensity, p.Infrastructure, p.RiskLevel, p.RiskScore, p.Date,
	).Scan(&p.ID)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("insert prediction: %w", err)
	}
	return p, nil
}

// ListPredictions returns a user's predictions, newest first. limit <= 0 means all.
func (s *SQLStore) ListPredictions(ctx context.Context, userID int64, limit int) ([]models.Prediction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE user_id = $1 ORDER BY id DESC`+limitClause(limit),
		userID)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var out []models.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return out, nil
}

// LatestPrediction returns the user's most recent prediction for city.
func (s *SQLStore) LatestPrediction(ctx context.Context, userID int64, city string) (models.Prediction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE user_id = $1 AND city = $2 ORDER BY id DESC`+limitClause(1),
		userID, city)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("latest prediction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.Prediction{}, fmt.Errorf("latest prediction: %w", err)
		}
		return models.Prediction{}, ErrNotFound
	}
	return scanPrediction(rows)
}

func scanPrediction(rows *sql.Rows) (models.Prediction, error) {
	var (
		p          models.Prediction
		population sql.NullInt64
		temp, sc   sql.NullFloat64
		density    sql.NullString
		infra      sql.NullString
		level      sql.NullString
	)
	err := rows.Scan(&p.ID, &p.UserID, &p.City, &population, &temp, &density, &infra, &level, &sc, &p.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Prediction{}, ErrNotFound
	}
	if err != nil {
		return models.Prediction{}, fmt.Errorf("scan prediction: %w", err)
	}
	p.Population = int(population.Int64)
	p.TemperatureIncrease = temp.Float64
	p.UrbanDensity = density.String
	p.Infrastructure = infra.String
	p.RiskLevel = level.String
	p.RiskScore = sc.Float64
	return p, nil
}
