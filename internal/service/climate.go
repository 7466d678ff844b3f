package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-risk-service/internal/cache"
	"github.com/kjstillabower/climate-risk-service/internal/models"
	"github.com/kjstillabower/climate-risk-service/internal/observability"
)

const climateDataKey = "climate-data:v1"

// ClimateDataService serves the regional temperature and rainfall series
// shown on the home page.
type ClimateDataService struct {
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewClimateDataService creates a ClimateDataService caching for ttl.
func NewClimateDataService(c cache.Cache, ttl time.Duration, logger *zap.Logger) *ClimateDataService {
	if c == nil {
		c = cache.NewInMemoryCache()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClimateDataService{cache: c, ttl: ttl, logger: logger}
}

// Series returns the 2023-2030 series. Cache failures fall through to the
// source data; Series never fails.
func (s *ClimateDataService) Series(ctx context.Context) models.ClimateData {
	logger := observability.LoggerFromContext(ctx, s.logger)

	var data models.ClimateData
	ok, err := cache.GetJSON(ctx, s.cache, climateDataKey, &data)
	if err != nil {
		logger.Warn("climate data cache get failed", zap.Error(err))
	}
	if ok {
		observability.CacheHitsTotal.WithLabelValues("climate_data").Inc()
		return data
	}
	observability.CacheMissesTotal.WithLabelValues("climate_data").Inc()

	data = climateSeries()
	if err := cache.SetJSON(ctx, s.cache, climateDataKey, data, s.ttl); err != nil {
		logger.Warn("climate data cache set failed", zap.Error(err))
	}
	return data
}

// WarmJob refreshes the cached series.
func (s *ClimateDataService) WarmJob() cache.WarmJob {
	return cache.WarmJob{
		Name: "climate-data",
		Run: func(ctx context.Context) error {
			return cache.SetJSON(ctx, s.cache, climateDataKey, climateSeries(), s.ttl)
		},
	}
}

func climateSeries() models.ClimateData {
	return models.ClimateData{
		Temperature: []models.DataPoint{
			{Year: 2023, Value: 25.8},
			{Year: 2024, Value: 26.2},
			{Year: 2025, Value: 26.7},
			{Year: 2026, Value: 27.1},
			{Year: 2027, Value: 27.6},
			{Year: 2028, Value: 28.0},
			{Year: 2029, Value: 28.5},
			{Year: 2030, Value: 29.0},
		},
		Rainfall: []models.DataPoint{
			{Year: 2023, Value: 800},
			{Year: 2024, Value: 750},
			{Year: 2025, Value: 900},
			{Year: 2026, Value: 650},
			{Year: 2027, Value: 1000},
			{Year: 2028, Value: 850},
			{Year: 2029, Value: 700},
			{Year: 2030, Value: 600},
		},
	}
}
