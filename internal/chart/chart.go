// Package chart draws the per-model history bars.
package chart

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"iris-predict/internal/history"
)

// Size of the rendered PNG.
const (
	Width  = 480
	Height = 240
)

var barColors = []drawing.Color{chart.ColorBlue, chart.ColorGreen, chart.ColorOrange, chart.ColorRed}

func barStyle(i int) chart.Style {
	col := barColors[i%len(barColors)]
	return chart.Style{
		FillColor:   col,
		StrokeColor: col,
		StrokeWidth: 1,
	}
}

// PNG renders bars as a bar chart. Heights are the bars' fractions on a
// fixed 0..1 axis, so an empty history draws flat bars.
func PNG(w io.Writer, bars []history.Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("no bars to render")
	}
	values := make([]chart.Value, len(bars))
	for i, b := range bars {
		values[i] = chart.Value{
			Label: fmt.Sprintf("%s (%d)", b.Model, b.Count),
			Value: b.Fraction,
			Style: barStyle(i),
		}
	}

	bc := chart.BarChart{
		Title:      "Predictions per model",
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 8}},
		Width:      Width,
		Height:     Height,
		BarWidth:   80,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 1},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f%%", f*100)
				}
				return ""
			},
		},
		Bars: values,
	}

	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Text writes one line per bar, each at most width cells of '#'.
func Text(w io.Writer, bars []history.Bar, width int) error {
	if width <= 0 {
		width = 40
	}
	name := 0
	for _, b := range bars {
		if len(b.Model) > name {
			name = len(b.Model)
		}
	}
	for _, b := range bars {
		n := int(b.Fraction*float64(width) + 0.5)
		if _, err := fmt.Fprintf(w, "%-*s |%-*s| %d (%.0f%%)\n",
			name, b.Model, width, strings.Repeat("#", n), b.Count, b.Fraction*100); err != nil {
			return err
		}
	}
	return nil
}
