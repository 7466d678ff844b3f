// Package charts renders projection charts as PNG images.
package charts

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/kjstillabower/climate-risk-service/internal/risk"
)

// Kind identifies one of the projection charts.
type Kind string

const (
	KindRainfall    Kind = "rainfall"
	KindRisk        Kind = "risk"
	KindTemperature Kind = "temperature"
)

var (
	colorBlue   = drawing.ColorFromHex("0d6efd")
	colorRed    = drawing.ColorFromHex("dc3545")
	colorYellow = drawing.ColorFromHex("ffc107")
)

// Renderer draws charts at a fixed size.
type Renderer struct {
	Width  int
	Height int
}

// NewRenderer returns a Renderer, defaulting non-positive dimensions to 1000x600.
func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = 1000
	}
	if height <= 0 {
		height = 600
	}
	return &Renderer{Width: width, Height: height}
}

// Rainfall plots projected rainfall with a dashed least-squares trend line.
func (r *Renderer) Rainfall(s risk.Series) ([]byte, error) {
	xs := years(s.Years)
	slope, intercept := risk.Trend(s.Values)
	trend := make([]float64, len(s.Values))
	for i := range trend {
		trend[i] = intercept + slope*float64(i)
	}

	ch := r.base("Annual Rainfall Projection (2023-2030)", "Rainfall (mm)", s.Years)
	ch.Series = []chart.Series{
		chart.ContinuousSeries{
			Name:    "Rainfall",
			XValues: xs,
			YValues: s.Values,
			Style: chart.Style{
				StrokeColor: colorBlue,
				StrokeWidth: 2,
				FillColor:   colorBlue.WithAlpha(64),
				DotColor:    colorBlue,
				DotWidth:    5,
			},
		},
		chart.ContinuousSeries{
			Name:    "Trend",
			XValues: xs,
			YValues: trend,
			Style: chart.Style{
				StrokeColor:     colorRed,
				StrokeWidth:     2,
				StrokeDashArray: []float64{6, 4},
			},
		},
	}
	return r.render(ch)
}

// Risk plots the projected risk score, colouring each point by its level,
// with the high and medium thresholds drawn as dashed reference lines.
func (r *Renderer) Risk(s risk.Series) ([]byte, error) {
	xs := years(s.Years)
	values := s.Values

	ch := r.base("Climate Risk Projection (2023-2030)", "Risk Score (%)", s.Years)
	ch.YAxis.Range = &chart.ContinuousRange{Min: 0, Max: 100}
	ch.Series = []chart.Series{
		chart.ContinuousSeries{
			Name:    "Risk Score",
			XValues: xs,
			YValues: values,
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("6c757d"),
				StrokeWidth: 1,
				DotWidth:    8,
				DotColorProvider: func(_, _ chart.Range, index int, _, _ float64) drawing.Color {
					return drawing.ColorFromHex(risk.LevelColor(values[index]))
				},
			},
		},
		threshold("High Risk Threshold", xs, risk.HighThreshold, colorRed),
		threshold("Medium Risk Threshold", xs, risk.MediumThreshold, colorYellow),
	}
	return r.render(ch)
}

// Temperature plots the projected temperature inside its uncertainty band.
func (r *Renderer) Temperature(b risk.Band) ([]byte, error) {
	xs := years(b.Years)

	ch := r.base("Temperature Projection (2023-2030)", "Temperature (°C)", b.Years)
	ch.Series = []chart.Series{
		chart.ContinuousSeries{
			Name:    "Upper bound",
			XValues: xs,
			YValues: b.Upper,
			Style: chart.Style{
				StrokeColor: colorRed.WithAlpha(80),
				StrokeWidth: 1,
				FillColor:   colorRed.WithAlpha(50),
			},
		},
		chart.ContinuousSeries{
			Name:    "Lower bound",
			XValues: xs,
			YValues: b.Lower,
			Style: chart.Style{
				StrokeColor: colorRed.WithAlpha(80),
				StrokeWidth: 1,
				FillColor:   drawing.ColorWhite,
			},
		},
		chart.ContinuousSeries{
			Name:    "Temperature",
			XValues: xs,
			YValues: b.Values,
			Style: chart.Style{
				StrokeColor: colorRed,
				StrokeWidth: 2,
				DotColor:    colorRed,
				DotWidth:    5,
			},
		},
	}
	return r.render(ch)
}

// Encode returns the standard base64 encoding of a PNG, as embedded in
// pages and API responses.
func Encode(png []byte) string {
	return base64.StdEncoding.EncodeToString(png)
}

func (r *Renderer) base(title, yName string, ys []int) chart.Chart {
	ticks := make([]chart.Tick, len(ys))
	for i, y := range ys {
		ticks[i] = chart.Tick{Value: float64(y), Label: strconv.Itoa(y)}
	}
	return chart.Chart{
		Title:      title,
		Width:      r.Width,
		Height:     r.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "Year", Ticks: ticks},
		YAxis:      chart.YAxis{Name: yName},
	}
}

func (r *Renderer) render(ch chart.Chart) ([]byte, error) {
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render %q: %w", ch.Title, err)
	}
	return buf.Bytes(), nil
}

func threshold(name string, xs []float64, y float64, col drawing.Color) chart.ContinuousSeries {
	ys := make([]float64, len(xs))
	for i := range ys {
		ys[i] = y
	}
	return chart.ContinuousSeries{
		Name:    name,
		XValues: xs,
		YValues: ys,
		Style: chart.Style{
			StrokeColor:     col,
			StrokeWidth:     1.5,
			StrokeDashArray: []float64{5, 5},
		},
	}
}

func years(ys []int) []float64 {
	out := make([]float64, len(ys))
	for i, y := range ys {
		out[i] = float64(y)
	}
	return out
}
