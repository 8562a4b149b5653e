package report

import (
	"bytes"
	"fmt"
	"time"

	"cwv-watch/internal/history"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// RenderTrend draws the good/ni/poor trend across the retained history
// window, one line per category per device class, as a PNG. Needs at least
// two data points.
func RenderTrend(rows []history.Row) ([]byte, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("need at least 2 history rows to render a trend, have %d", len(rows))
	}

	dates := make([]time.Time, len(rows))
	for i, r := range rows {
		dates[i] = r.Date
	}

	pick := func(f func(h history.Row) float64) []float64 {
		values := make([]float64, len(rows))
		for i, r := range rows {
			values[i] = f(r)
		}
		return values
	}

	type line struct {
		name   string
		color  drawing.Color
		dashed bool
		values []float64
	}

	lines := []line{
		{"Mobile Good", chart.ColorGreen, false, pick(func(h history.Row) float64 { return h.Mobile.Good })},
		{"Mobile NI", chart.ColorOrange, false, pick(func(h history.Row) float64 { return h.Mobile.NI })},
		{"Mobile Poor", chart.ColorRed, false, pick(func(h history.Row) float64 { return h.Mobile.Poor })},
		{"Desktop Good", chart.ColorGreen, true, pick(func(h history.Row) float64 { return h.Desktop.Good })},
		{"Desktop NI", chart.ColorOrange, true, pick(func(h history.Row) float64 { return h.Desktop.NI })},
		{"Desktop Poor", chart.ColorRed, true, pick(func(h history.Row) float64 { return h.Desktop.Poor })},
	}

	series := make([]chart.Series, 0, len(lines))
	for _, l := range lines {
		style := chart.Style{StrokeColor: l.color, StrokeWidth: 2.0}
		if l.dashed {
			style.StrokeDashArray = []float64{4.0, 3.0}
		}
		series = append(series, chart.TimeSeries{
			Name:    l.name,
			XValues: dates,
			YValues: l.values,
			Style:   style,
		})
	}

	graph := chart.Chart{
		Title:  "Core Web Vitals trend",
		Width:  800,
		Height: 450,
		YAxis: chart.YAxis{
			Name:  "% users",
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render trend chart: %w", err)
	}
	return buf.Bytes(), nil
}
