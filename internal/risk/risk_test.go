package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want float64
	}{
		{
			name: "large dense aging city",
			in:   Input{Population: 8_500_000, TemperatureIncrease: 2.1, Density: DensityHigh, Infrastructure: InfrastructureAging},
			want: 96,
		},
		{
			name: "small low density new city",
			in:   Input{Population: 300_000, TemperatureIncrease: 0.5, Density: DensityLow, Infrastructure: InfrastructureNew},
			want: 25,
		},
		{
			name: "mid-size medium moderate city",
			in:   Input{Population: 600_000, TemperatureIncrease: 1.5, Density: DensityMedium, Infrastructure: InfrastructureModerate},
			want: 65,
		},
		{
			name: "capped at 100",
			in:   Input{Population: 2_000_000, TemperatureIncrease: 5.0, Density: DensityHigh, Infrastructure: InfrastructureAging},
			want: 100,
		},
		{
			name: "population bands are exclusive",
			in:   Input{Population: 1_000_000, TemperatureIncrease: 0, Density: DensityLow, Infrastructure: InfrastructureNew},
			want: 30,
		},
		{
			name: "500k adds nothing",
			in:   Input{Population: 500_000, TemperatureIncrease: 0, Density: DensityLow, Infrastructure: InfrastructureNew},
			want: 20,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.in), 1e-9)
		})
	}
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, LevelHigh, LevelFor(100))
	assert.Equal(t, LevelHigh, LevelFor(70))
	assert.Equal(t, LevelMedium, LevelFor(69.9))
	assert.Equal(t, LevelMedium, LevelFor(40))
	assert.Equal(t, LevelLow, LevelFor(39.99))
	assert.Equal(t, LevelLow, LevelFor(20))
}

func TestInsights_HighRisk(t *testing.T) {
	in := Input{TemperatureIncrease: 2.1, Density: DensityHigh, Infrastructure: InfrastructureAging}

	factors, recs := Insights(in, LevelHigh)

	assert.Equal(t, []string{
		"Moderate temperature increase",
		"High urban density",
		"Aging infrastructure",
	}, factors)
	assert.Equal(t, []string{
		"Develop cooling centers and heat action plans",
		"Increase green spaces by 30%",
		"Prioritize infrastructure updates",
		"Develop comprehensive climate action plan",
		"Implement flood defense systems",
		"Create emergency response protocols",
	}, recs)
}

func TestInsights_LowRisk(t *testing.T) {
	in := Input{TemperatureIncrease: 0.5, Density: DensityLow, Infrastructure: InfrastructureNew}

	factors, recs := Insights(in, LevelLow)

	assert.Equal(t, []string{"Mild temperature increase"}, factors)
	assert.Equal(t, []string{"Monitor climate indicators regularly"}, recs)
}

func TestInsights_SevereMedium(t *testing.T) {
	in := Input{TemperatureIncrease: 3.0, Density: DensityMedium, Infrastructure: InfrastructureModerate}

	factors, recs := Insights(in, LevelMedium)

	assert.Equal(t, []string{
		"Severe temperature increase",
		"Medium urban density",
		"Moderately aged infrastructure",
	}, factors)
	assert.Equal(t, []string{
		"Implement extensive heat mitigation strategies",
		"Develop more community green areas",
		"Plan phased infrastructure improvements",
		"Assess vulnerable infrastructure",
		"Update urban planning guidelines",
	}, recs)
}

func TestParseInfrastructure(t *testing.T) {
	got, ok := ParseInfrastructure(" Aging ")
	require.True(t, ok)
	assert.Equal(t, InfrastructureAging, got)

	got, ok = ParseInfrastructure("modern")
	require.True(t, ok)
	assert.Equal(t, InfrastructureNew, got)

	_, ok = ParseInfrastructure("ancient")
	assert.False(t, ok)
}

func TestParseDensity(t *testing.T) {
	got, ok := ParseDensity("HIGH")
	require.True(t, ok)
	assert.Equal(t, DensityHigh, got)

	_, ok = ParseDensity("")
	assert.False(t, ok)
}
