// Package risk implements the rule-based urban climate risk model: scoring,
// level classification, narrative insights and year-by-year projections.
package risk

import "strings"

// Density is the urban density category of a city.
type Density string

const (
	DensityLow    Density = "low"
	DensityMedium Density = "medium"
	DensityHigh   Density = "high"
)

// Infrastructure is the age category of a city's infrastructure.
type Infrastructure string

const (
	InfrastructureNew      Infrastructure = "new"
	InfrastructureModerate Infrastructure = "moderate"
	InfrastructureAging    Infrastructure = "aging"
)

// Level is the coarse risk classification derived from a score.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

const (
	baseScore = 20.0
	maxScore  = 100.0

	// HighThreshold and MediumThreshold are inclusive lower bounds.
	HighThreshold   = 70.0
	MediumThreshold = 40.0
)

// Input is a validated prediction request.
type Input struct {
	City                string
	Population          int
	TemperatureIncrease float64
	Density             Density
	Infrastructure      Infrastructure
}

// ParseDensity maps a form value onto a Density.
func ParseDensity(s string) (Density, bool) {
	switch d := Density(strings.ToLower(strings.TrimSpace(s))); d {
	case DensityLow, DensityMedium, DensityHigh:
		return d, true
	}
	return "", false
}

// ParseInfrastructure maps a form value onto an Infrastructure category.
// "modern" is accepted as an alias for "new".
func ParseInfrastructure(s string) (Infrastructure, bool) {
	v := Infrastructure(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case InfrastructureNew, InfrastructureModerate, InfrastructureAging:
		return v, true
	case "modern":
		return InfrastructureNew, true
	}
	return "", false
}

// Score computes the risk score for in. The result is in [20, 100].
func Score(in Input) float64 {
	score := baseScore

	switch {
	case in.Population > 1_000_000:
		score += 20
	case in.Population > 500_000:
		score += 10
	}

	score += in.TemperatureIncrease * 10

	switch in.Density {
	case DensityHigh:
		score += 15
	case DensityMedium:
		score += 10
	}

	switch in.Infrastructure {
	case InfrastructureAging:
		score += 20
	case InfrastructureModerate:
		score += 10
	}

	if score > maxScore {
		return maxScore
	}
	return score
}

// LevelFor classifies a score.
func LevelFor(score float64) Level {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Insights returns the contributing risk factors and the recommended actions
// for in at the given level. Order is stable: temperature, density,
// infrastructure, then level-wide recommendations.
func Insights(in Input, level Level) (factors, recommendations []string) {
	switch {
	case in.TemperatureIncrease > 2.5:
		factors = append(factors, "Severe temperature increase")
		recommendations = append(recommendations, "Implement extensive heat mitigation strategies")
	case in.TemperatureIncrease > 1.5:
		factors = append(factors, "Moderate temperature increase")
		recommendations = append(recommendations, "Develop cooling centers and heat action plans")
	default:
		factors = append(factors, "Mild temperature increase")
	}

	switch in.Density {
	case DensityHigh:
		factors = append(factors, "High urban density")
		recommendations = append(recommendations, "Increase green spaces by 30%")
	case DensityMedium:
		factors = append(factors, "Medium urban density")
		recommendations = append(recommendations, "Develop more community green areas")
	}

	switch in.Infrastructure {
	case InfrastructureAging:
		factors = append(factors, "Aging infrastructure")
		recommendations = append(recommendations, "Prioritize infrastructure updates")
	case InfrastructureModerate:
		factors = append(factors, "Moderately aged infrastructure")
		recommendations = append(recommendations, "Plan phased infrastructure improvements")
	}

	switch level {
	case LevelHigh:
		recommendations = append(recommendations,
			"Develop comprehensive climate action plan",
			"Implement flood defense systems",
			"Create emergency response protocols",
		)
	case LevelMedium:
		recommendations = append(recommendations,
			"Assess vulnerable infrastructure",
			"Update urban planning guidelines",
		)
	default:
		recommendations = append(recommendations, "Monitor climate indicators regularly")
	}
	return factors, recommendations
}
