package charts

import (
	"fmt"
	"io"
	"strings"

	"github.com/sudorandom/flow-map/pkg/flowengine"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	DefaultWidth  = 640
	DefaultHeight = 480

	maxPieSlices = 8
)

func sliceColor(i int) drawing.Color {
	return drawing.ColorFromHex(strings.TrimPrefix(flowengine.PaletteColor(i).Hex(), "#"))
}

// RenderPie writes the table as a PNG pie chart.
func RenderPie(w io.Writer, t Table, width, height int) error {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	t = t.Top(maxPieSlices-1, "Other")
	values := make([]chart.Value, 0, len(t.Slices))
	for i, s := range t.Slices {
		if s.Visitors <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s %.1f%%", s.Label, s.Share),
			Value: float64(s.Visitors),
			Style: chart.Style{FillColor: sliceColor(i), StrokeColor: drawing.ColorWhite, StrokeWidth: 1},
		})
	}
	if len(values) == 0 {
		return ErrNoData
	}
	pie := chart.PieChart{
		Title:  t.Title,
		Width:  width,
		Height: height,
		Values: values,
	}
	if err := pie.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render %s pie: %w", t.Kind, err)
	}
	return nil
}

// RenderBar writes the table as a PNG bar chart of visitor counts.
func RenderBar(w io.Writer, t Table, width, height int) error {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	if len(t.Slices) == 0 {
		return ErrNoData
	}
	bars := make([]chart.Value, len(t.Slices))
	top := 0.0
	for i, s := range t.Slices {
		bars[i] = chart.Value{
			Label: s.Label,
			Value: float64(s.Visitors),
			Style: chart.Style{FillColor: sliceColor(i), StrokeColor: sliceColor(i)},
		}
		top = max(top, float64(s.Visitors))
	}
	barWidth := (width - 120) / max(len(bars), 1) * 2 / 3
	bar := chart.BarChart{
		Title:      t.Title,
		Width:      width,
		Height:     height,
		BarWidth:   max(barWidth, 8),
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1},
		},
		Bars: bars,
	}
	if err := bar.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render %s bar: %w", t.Kind, err)
	}
	return nil
}
