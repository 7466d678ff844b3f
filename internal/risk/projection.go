package risk

import (
	"math"
	"math/rand"
	"sync"
)

// Projection years are fixed to the reporting horizon of the model.
const (
	FirstYear = 2023
	LastYear  = 2030

	baseRainfallMM    = 800.0
	baseTemperatureC  = 25.0
	temperatureBandC  = 0.5
	rainfallJitterMM  = 25.0
	riskJitter        = 2.5
	temperatureJitter = 0.25
)

// Jitter returns a value in [-amplitude, amplitude). Projections use it to add
// noise so charts look like observations rather than straight lines.
type Jitter func(amplitude float64) float64

// NoJitter is the deterministic Jitter.
func NoJitter(float64) float64 { return 0 }

// NewJitter returns a goroutine-safe Jitter seeded with seed.
func NewJitter(seed int64) Jitter {
	var mu sync.Mutex
	r := rand.New(rand.NewSource(seed))
	return func(amplitude float64) float64 {
		mu.Lock()
		f := r.Float64()
		mu.Unlock()
		return f*2*amplitude - amplitude
	}
}

// Series is a yearly projection.
type Series struct {
	Years  []int
	Values []float64
}

// Band is a Series with a lower and upper envelope.
type Band struct {
	Series
	Lower []float64
	Upper []float64
}

// Years returns the projection horizon, inclusive.
func Years() []int {
	years := make([]int, 0, LastYear-FirstYear+1)
	for y := FirstYear; y <= LastYear; y++ {
		years = append(years, y)
	}
	return years
}

// RainfallProjection projects annual rainfall (mm). Rainfall declines as the
// temperature increase grows.
func RainfallProjection(temperatureIncrease float64, j Jitter) Series {
	j = orNoJitter(j)
	years := Years()
	values := make([]float64, len(years))
	for i := range years {
		values[i] = baseRainfallMM - float64(i)*25*temperatureIncrease/2.0 + j(rainfallJitterMM)
	}
	return Series{Years: years, Values: values}
}

// RiskProjection projects the risk score forward. Dense cities with aging
// infrastructure deteriorate faster. Values never exceed 100.
func RiskProjection(score float64, d Density, infra Infrastructure, j Jitter) Series {
	j = orNoJitter(j)
	df := growthFactor(d == DensityHigh, d == DensityMedium)
	inf := growthFactor(infra == InfrastructureAging, infra == InfrastructureModerate)
	years := Years()
	values := make([]float64, len(years))
	for i := range years {
		values[i] = math.Min(maxScore, score+float64(i)*3*df*inf+j(riskJitter))
	}
	return Series{Years: years, Values: values}
}

// TemperatureProjection projects mean temperature (°C) with a ±0.5 band.
func TemperatureProjection(temperatureIncrease float64, j Jitter) Band {
	j = orNoJitter(j)
	years := Years()
	b := Band{
		Series: Series{Years: years, Values: make([]float64, len(years))},
		Lower:  make([]float64, len(years)),
		Upper:  make([]float64, len(years)),
	}
	for i := range years {
		v := baseTemperatureC + float64(i)*temperatureIncrease/8 + j(temperatureJitter)
		b.Values[i] = v
		b.Lower[i] = v - temperatureBandC
		b.Upper[i] = v + temperatureBandC
	}
	return b
}

// Trend fits y = slope*x + intercept by least squares, with x = 0..n-1.
func Trend(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	if n == 0 {
		return 0, 0
	}
	if n == 1 {
		return 0, ys[0]
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	slope = (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// LevelColor returns the hex color used to render a value at the given score.
func LevelColor(score float64) string {
	switch LevelFor(score) {
	case LevelHigh:
		return "dc3545"
	case LevelMedium:
		return "ffc107"
	default:
		return "198754"
	}
}

func growthFactor(high, medium bool) float64 {
	switch {
	case high:
		return 1.5
	case medium:
		return 1.2
	default:
		return 1.0
	}
}

func orNoJitter(j Jitter) Jitter {
	if j == nil {
		return NoJitter
	}
	return j
}
