package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-risk-service/internal/archive"
	"github.com/kjstillabower/climate-risk-service/internal/cache"
	"github.com/kjstillabower/climate-risk-service/internal/charts"
	"github.com/kjstillabower/climate-risk-service/internal/events"
	"github.com/kjstillabower/climate-risk-service/internal/models"
	"github.com/kjstillabower/climate-risk-service/internal/observability"
	"github.com/kjstillabower/climate-risk-service/internal/report"
	"github.com/kjstillabower/climate-risk-service/internal/risk"
	"github.com/kjstillabower/climate-risk-service/internal/store"
	"github.com/kjstillabower/climate-risk-service/internal/validation"
)

const chartRenderTimeout = 10 * time.Second

// PredictionConfig wires a PredictionService. Nil optional fields get no-op
// or default implementations.
type PredictionConfig struct {
	Store     PredictionStore
	Cache     cache.Cache
	Renderer  *charts.Renderer // nil disables charts
	Publisher events.Publisher
	Archiver  archive.Archiver
	Clock     clockwork.Clock
	Jitter    risk.Jitter
	ChartTTL  time.Duration
	Logger    *zap.Logger
}

// PredictionService scores cities and produces the charts and reports around a score.
type PredictionService struct {
	store     PredictionStore
	cache     cache.Cache
	renderer  *charts.Renderer
	publisher events.Publisher
	archiver  archive.Archiver
	clock     clockwork.Clock
	jitter    risk.Jitter
	chartTTL  time.Duration
	logger    *zap.Logger
	coalescer *requestCoalescer[chartSet]
}

// chartSet is the cached form of the three encoded charts.
type chartSet struct {
	Rainfall    string `json:"rainfall"`
	Risk        string `json:"risk"`
	Temperature string `json:"temperature"`
}

// NewPredictionService creates a PredictionService from cfg.
func NewPredictionService(cfg PredictionConfig) *PredictionService {
	s := &PredictionService{
		store:     cfg.Store,
		cache:     cfg.Cache,
		renderer:  cfg.Renderer,
		publisher: cfg.Publisher,
		archiver:  cfg.Archiver,
		clock:     cfg.Clock,
		jitter:    cfg.Jitter,
		chartTTL:  cfg.ChartTTL,
		logger:    cfg.Logger,
		coalescer: newRequestCoalescer[chartSet](chartRenderTimeout),
	}
	if s.cache == nil {
		s.cache = cache.NewInMemoryCache()
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.archiver == nil {
		s.archiver = archive.NopArchiver{}
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.jitter == nil {
		s.jitter = risk.NoJitter
	}
	if s.chartTTL <= 0 {
		s.chartTTL = time.Hour
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Assess validates form and returns the full assessment. When user is not nil
// the result is also saved, announced and archived; those side effects never
// fail the assessment, and Saved reports whether the save succeeded.
func (s *PredictionService) Assess(ctx context.Context, form validation.PredictionForm, user *models.User) (a models.Assessment, err error) {
	ctx, span := observability.StartSpan(ctx, "PredictionService.Assess")
	defer func() { observability.EndSpan(span, err) }()
	logger := observability.LoggerFromContext(ctx, s.logger)

	in, err := validation.ValidatePrediction(form)
	if err != nil {
		return models.Assessment{}, err
	}
	span.SetAttributes(attribute.String("city", in.City))

	score := risk.Score(in)
	level := risk.LevelFor(score)
	factors, recs := risk.Insights(in, level)

	a = models.Assessment{
		City:                in.City,
		Population:          in.Population,
		TemperatureIncrease: in.TemperatureIncrease,
		UrbanDensity:        string(in.Density),
		Infrastructure:      string(in.Infrastructure),
		RiskLevel:           string(level),
		RiskScore:           score,
		RiskFactors:         factors,
		Recommendations:     recs,
	}

	if s.renderer != nil {
		set, err := s.charts(ctx, in, score)
		if err != nil {
			return models.Assessment{}, err
		}
		a.RainfallPlot, a.RiskPlot, a.TemperaturePlot = set.Rainfall, set.Risk, set.Temperature
	}

	now := s.clock.Now()
	a.CSVData, err = report.PredictionCSV(a, now)
	if err != nil {
		return models.Assessment{}, fmt.Errorf("build prediction csv: %w", err)
	}
	observability.RecordPrediction(a.City, a.RiskLevel)

	if user != nil {
		a.Saved = s.save(ctx, logger, a, user, now)
	}
	logger.Debug("assessment complete",
		zap.String("city", a.City),
		zap.String("risk_level", a.RiskLevel),
		zap.Float64("risk_score", a.RiskScore),
		zap.Bool("saved", a.Saved),
	)
	return a, nil
}

// save persists a for user, then publishes and archives it. Returns whether
// the prediction was stored.
func (s *PredictionService) save(ctx context.Context, logger *zap.Logger, a models.Assessment, user *models.User, now time.Time) bool {
	if s.store == nil {
		return false
	}
	start := time.Now()
	p, err := s.store.CreatePrediction(ctx, models.Prediction{
		UserID:              user.ID,
		City:                a.City,
		Population:          a.Population,
		TemperatureIncrease: a.TemperatureIncrease,
		UrbanDensity:        a.UrbanDensity,
		Infrastructure:      a.Infrastructure,
		RiskLevel:           a.RiskLevel,
		RiskScore:           a.RiskScore,
		Date:                now,
	})
	observability.ObserveStore("create_prediction", start, err)
	if err != nil {
		logger.Error("save prediction failed", zap.Int64("user_id", user.ID), zap.String("city", a.City), zap.Error(err))
		return false
	}
	observability.PredictionsSavedTotal.Inc()

	if e, err := events.New(events.TypePredictionCreated, normalizeCity(p.City), now, p); err != nil {
		logger.Warn("build event failed", zap.Error(err))
	} else {
		publish(ctx, s.publisher, logger, e)
	}

	key, err := s.archiver.Archive(ctx, a.City, now, []byte(a.CSVData))
	switch {
	case err != nil:
		observability.ReportsArchivedTotal.WithLabelValues("error").Inc()
		logger.Warn("archive report failed", zap.String("city", a.City), zap.Error(err))
	case key != "":
		observability.ReportsArchivedTotal.WithLabelValues("success").Inc()
		logger.Debug("report archived", zap.String("key", key))
	}
	return true
}

// charts returns the encoded charts for in, from cache when possible.
// Concurrent misses for the same inputs share one render.
func (s *PredictionService) charts(ctx context.Context, in risk.Input, score float64) (chartSet, error) {
	key := chartKey(in, score, s.renderer)
	logger := observability.LoggerFromContext(ctx, s.logger)

	var set chartSet
	ok, err := cache.GetJSON(ctx, s.cache, key, &set)
	if err != nil {
		logger.Warn("chart cache get failed", zap.Error(err))
	}
	if ok {
		observability.CacheHitsTotal.WithLabelValues("chart").Inc()
		return set, nil
	}
	observability.CacheMissesTotal.WithLabelValues("chart").Inc()

	set, shared, err := s.coalescer.GetOrDo(ctx, key, func(ctx context.Context) (chartSet, error) {
		set, err := s.render(in, score)
		if err != nil {
			return chartSet{}, err
		}
		if err := cache.SetJSON(ctx, s.cache, key, set, s.chartTTL); err != nil {
			logger.Warn("chart cache set failed", zap.Error(err))
		}
		return set, nil
	})
	if err != nil {
		return chartSet{}, fmt.Errorf("render charts: %w", err)
	}
	if shared {
		logger.Debug("chart render coalesced", zap.String("key", key))
	}
	return set, nil
}

func (s *PredictionService) render(in risk.Input, score float64) (chartSet, error) {
	var set chartSet
	steps := []struct {
		kind charts.Kind
		dst  *string
		draw func() ([]byte, error)
	}{
		{charts.KindRainfall, &set.Rainfall, func() ([]byte, error) {
			return s.renderer.Rainfall(risk.RainfallProjection(in.TemperatureIncrease, s.jitter))
		}},
		{charts.KindRisk, &set.Risk, func() ([]byte, error) {
			return s.renderer.Risk(risk.RiskProjection(score, in.Density, in.Infrastructure, s.jitter))
		}},
		{charts.KindTemperature, &set.Temperature, func() ([]byte, error) {
			return s.renderer.Temperature(risk.TemperatureProjection(in.TemperatureIncrease, s.jitter))
		}},
	}
	for _, step := range steps {
		start := time.Now()
		png, err := step.draw()
		observability.ChartRenderDuration.WithLabelValues(string(step.kind)).Observe(time.Since(start).Seconds())
		if err != nil {
			return chartSet{}, err
		}
		*step.dst = charts.Encode(png)
	}
	return set, nil
}

// chartKey identifies charts by the inputs that shape them. City is not part
// of any chart, so different cities with equal inputs share an entry.
func chartKey(in risk.Input, score float64, r *charts.Renderer) string {
	return fmt.Sprintf("charts:v1:%.2f:%s:%s:%.2f:%dx%d",
		in.TemperatureIncrease, in.Density, in.Infrastructure, score, r.Width, r.Height)
}

// CityReport renders the downloadable report for city. A logged-in user gets
// their latest saved prediction for the city, or ErrNoPredictionData when
// there is none. Anonymous callers (user nil) get the sample report.
func (s *PredictionService) CityReport(ctx context.Context, city string, user *models.User) (body []byte, err error) {
	ctx, span := observability.StartSpan(ctx, "PredictionService.CityReport", attribute.String("city", city))
	defer func() { observability.EndSpan(span, err) }()

	var p *models.Prediction
	source := "sample"
	if user != nil {
		if s.store == nil {
			return nil, ErrNoPredictionData
		}
		start := time.Now()
		latest, err := s.store.LatestPrediction(ctx, user.ID, city)
		switch {
		case errors.Is(err, store.ErrNotFound):
			observability.ObserveStore("latest_prediction", start, nil)
			return nil, ErrNoPredictionData
		case err != nil:
			observability.ObserveStore("latest_prediction", start, err)
			return nil, storageErr("latest prediction", err)
		}
		observability.ObserveStore("latest_prediction", start, nil)
		p = &latest
		source = "saved"
	}

	body, err = report.CityReport(city, p, s.clock.Now())
	if err != nil {
		return nil, err
	}
	observability.ReportsDownloadedTotal.WithLabelValues(source).Inc()
	return body, nil
}
