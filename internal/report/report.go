// Package report renders downloadable CSV reports for risk assessments.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/climate-risk-service/internal/models"
	"github.com/kjstillabower/climate-risk-service/internal/risk"
)

const reportTitle = "Urban Climate Risk Report"

var tableHeader = []string{"City", "Population", "Temperature Increase", "Urban Density", "Infrastructure", "Risk Level", "Risk Score"}

// sampleRow is shown to anonymous visitors who have no saved predictions.
var sampleRow = []string{"500000", "1.5", "medium", "moderate", "medium", "55%"}

const sampleTemperatureIncrease = 1.5

// PredictionCSV renders the short report attached to every assessment: the
// inputs and result on one row followed by a five-year outlook starting the
// year after now.
func PredictionCSV(a models.Assessment, now time.Time) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"City", "Population", "Temperature Increase", "Urban Density", "Infrastructure", "Risk Level", "Risk Score", "Date"},
		{
			a.City,
			strconv.Itoa(a.Population),
			formatFloat(a.TemperatureIncrease),
			a.UrbanDensity,
			a.Infrastructure,
			a.RiskLevel,
			formatScore(a.RiskScore),
			now.Format("2006-01-02"),
		},
	}
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write prediction rows: %w", err)
	}
	// blank separator lines between the two tables
	buf.WriteString("\n\n")

	w = csv.NewWriter(&buf)
	if err := w.Write([]string{"Year", "Projected Temperature (°C)", "Projected Rainfall (mm)", "Projected Risk Score"}); err != nil {
		return "", fmt.Errorf("write projection header: %w", err)
	}
	for i := 1; i <= 5; i++ {
		fi := float64(i)
		temp := roundTo(a.TemperatureIncrease*(1+fi*0.2), 2)
		rain := int(math.Round(800 - fi*50*a.TemperatureIncrease/2.0))
		score := math.Min(100, a.RiskScore+fi*5)
		if err := w.Write([]string{
			strconv.Itoa(now.Year() + i),
			formatFloat(temp),
			strconv.Itoa(rain),
			formatScore(score),
		}); err != nil {
			return "", fmt.Errorf("write projection row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush projection rows: %w", err)
	}
	return buf.String(), nil
}

// CityReport renders the downloadable city report. When p is nil the sample
// row is used so anonymous visitors still get a complete document.
func CityReport(city string, p *models.Prediction, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	// csv.Writer buffers; any write failure surfaces from Error after Flush.
	write := func(rec []string) { _ = w.Write(rec) }

	write([]string{reportTitle})
	write([]string{"Generated on", now.Format("2006-01-02 15:04:05")})
	write(nil)
	write(tableHeader)

	tempIncrease := sampleTemperatureIncrease
	if p != nil {
		write([]string{
			p.City,
			strconv.Itoa(p.Population),
			formatFloat(p.TemperatureIncrease),
			p.UrbanDensity,
			p.Infrastructure,
			p.RiskLevel,
			formatFloat(p.RiskScore) + "%",
		})
		tempIncrease = p.TemperatureIncrease
	} else {
		write(append([]string{city}, sampleRow...))
	}

	write(nil)
	write([]string{fmt.Sprintf("Future Projections (%d-%d)", risk.FirstYear, risk.LastYear)})
	write([]string{"Year", "Projected Temperature (°C)", "Projected Rainfall (mm)", "Projected Flood Risk (%)"})
	for i, year := range risk.Years() {
		fi := float64(i)
		temp := roundTo(25.0+fi*tempIncrease/8, 1)
		rain := int(math.Round(800 - fi*25))
		floodRisk := min(100, int(math.Round(30+fi*3)))
		write([]string{
			strconv.Itoa(year),
			formatFloat(temp),
			strconv.Itoa(rain),
			strconv.Itoa(floodRisk) + "%",
		})
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush city report: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename is the attachment name for a city report.
func Filename(city string) string {
	return city + "_climate_report.csv"
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// formatFloat prints the shortest representation and keeps a trailing ".0"
// on whole numbers, so 65 prints as "65.0" and 1.25 as "1.25".
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEN") {
		s += ".0"
	}
	return s
}

// formatScore is formatFloat except that a score capped at 100 prints as the
// integer cap.
func formatScore(v float64) string {
	if v >= 100 {
		return "100"
	}
	return formatFloat(v)
}
