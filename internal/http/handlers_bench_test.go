package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-risk-service/internal/auth"
	"github.com/kjstillabower/climate-risk-service/internal/cache"
	"github.com/kjstillabower/climate-risk-service/internal/service"
)

// setupBenchmarkRouter builds a router for anonymous traffic; no store is needed.
func setupBenchmarkRouter(b *testing.B) http.Handler {
	b.Helper()
	logger := zap.NewNop()
	c := cache.NewInMemoryCache()
	h := NewHandler(Deps{
		Predictions: service.NewPredictionService(service.PredictionConfig{Cache: c, Logger: logger}),
		Climate:     service.NewClimateDataService(c, time.Minute, logger),
		Sessions:    auth.NewSessions([]byte(testSecret), false),
		Logger:      logger,
	})
	return NewRouter(h, RouterOptions{})
}

func BenchmarkAPIClimateData(b *testing.B) {
	router := setupBenchmarkRouter(b)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/climate-data", nil))
		if w.Code != http.StatusOK {
			b.Fatalf("status = %d", w.Code)
		}
	}
}

func BenchmarkAPIPredict(b *testing.B) {
	router := setupBenchmarkRouter(b)
	body := `{"city":"Lagos","population":"9500000","temperature_increase":3,"urban_density":"high","infrastructure":"aging"}`
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			b.Fatalf("status = %d", w.Code)
		}
	}
}
