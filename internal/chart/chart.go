// Package chart lays out and renders the pruning window chart, which plots
// pruning suitability against BBCH stage.
package chart

import (
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/svg"

	"github.com/drpaneas/vitisexpert/internal/phenology"
)

const (
	Width   = 800.0
	Height  = 200.0
	Padding = 40.0

	chartWidth  = Width - Padding*2
	chartHeight = Height - Padding*2

	lineColor = "#e2e8f0"
	gridColor = "#f1f5f9"
	areaTop   = "#10b981"

	markerRadius = 5.0
)

// GridLevels are the suitability values that get a horizontal grid line.
var GridLevels = []float64{0, 25, 50, 75, 100}

// X returns the horizontal position of point i out of n.
func X(i, n int) float64 {
	if n < 2 {
		return Padding
	}
	return Padding + float64(i)*(chartWidth/float64(n-1))
}

// Y returns the vertical SVG position (y grows downwards) for a suitability.
func Y(suitability float64) float64 {
	return Height - Padding - suitability*(chartHeight/100)
}

// Baseline is the y position of suitability 0.
func Baseline() float64 {
	return Height - Padding
}

// LinePath returns the SVG path data connecting all points.
func LinePath(points []phenology.ChartPoint) string {
	parts := make([]string, 0, len(points))
	for i, p := range points {
		cmd := "L"
		if i == 0 {
			cmd = "M"
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", cmd, num(X(i, len(points))), num(Y(p.Suitability))))
	}
	return strings.Join(parts, " ")
}

// AreaPath returns the line path closed down to the baseline.
func AreaPath(points []phenology.ChartPoint) string {
	if len(points) == 0 {
		return ""
	}
	base := num(Baseline())
	return fmt.Sprintf("%s L %s %s L %s %s Z",
		LinePath(points), num(X(len(points)-1, len(points))), base, num(X(0, len(points))), base)
}

// Marker is a positioned chart point.
type Marker struct {
	phenology.ChartPoint
	X, Y float64
}

// Layout is everything an inline SVG template needs.
type Layout struct {
	Width, Height float64
	Line, Area    string
	Grid          []float64 // y positions
	Baseline      float64
	LabelY        float64
	Markers       []Marker
}

// NewLayout positions points on the chart.
func NewLayout(points []phenology.ChartPoint) Layout {
	l := Layout{
		Width:    Width,
		Height:   Height,
		Line:     LinePath(points),
		Area:     AreaPath(points),
		Baseline: Baseline(),
		LabelY:   Baseline() + 20,
	}
	for _, g := range GridLevels {
		l.Grid = append(l.Grid, Y(g))
	}
	for i, p := range points {
		l.Markers = append(l.Markers, Marker{ChartPoint: p, X: X(i, len(points)), Y: Y(p.Suitability)})
	}
	return l
}

// Render writes the chart as a standalone SVG document.
func Render(w io.Writer, points []phenology.ChartPoint) error {
	if len(points) < 2 {
		return fmt.Errorf("chart needs at least two points, got %d", len(points))
	}

	c := canvas.New(Width, Height)
	ctx := canvas.NewContext(c)
	ctx.SetFillColor(canvas.White)
	ctx.DrawPath(0, 0, canvas.Rectangle(Width, Height))

	// canvas has its origin bottom-left, so heights are measured from the bottom edge.
	up := func(suitability float64) float64 { return Height - Y(suitability) }

	ctx.SetFillColor(canvas.Transparent)
	ctx.SetStrokeColor(canvas.Hex(gridColor))
	ctx.SetStrokeWidth(1)
	for _, g := range GridLevels {
		grid := &canvas.Path{}
		grid.MoveTo(Padding, up(g))
		grid.LineTo(Width-Padding, up(g))
		ctx.DrawPath(0, 0, grid)
	}

	line := &canvas.Path{}
	for i, p := range points {
		if i == 0 {
			line.MoveTo(X(i, len(points)), up(p.Suitability))
			continue
		}
		line.LineTo(X(i, len(points)), up(p.Suitability))
	}

	area := line.Copy()
	area.LineTo(X(len(points)-1, len(points)), Padding)
	area.LineTo(X(0, len(points)), Padding)
	area.Close()
	ctx.SetStrokeColor(canvas.Transparent)
	ctx.SetFillColor(fade(canvas.Hex(areaTop), 0.1))
	ctx.DrawPath(0, 0, area)

	ctx.SetFillColor(canvas.Transparent)
	ctx.SetStrokeColor(canvas.Hex(lineColor))
	ctx.SetStrokeWidth(3)
	ctx.SetStrokeCapper(canvas.RoundCap)
	ctx.SetStrokeJoiner(canvas.RoundJoin)
	ctx.DrawPath(0, 0, line)

	ctx.SetStrokeColor(canvas.Transparent)
	for i, p := range points {
		ctx.SetFillColor(canvas.Hex(p.Color))
		ctx.DrawPath(X(i, len(points)), up(p.Suitability), canvas.Circle(markerRadius))
	}

	r := svg.New(w, c.W, c.H, nil)
	c.RenderTo(r)
	if err := r.Close(); err != nil {
		return fmt.Errorf("writing SVG: %w", err)
	}
	return nil
}

// fade returns c with its alpha scaled to opacity, premultiplied as color.RGBA requires.
func fade(c color.RGBA, opacity float64) color.RGBA {
	scale := func(v uint8) uint8 { return uint8(float64(v)*opacity + 0.5) }
	return color.RGBA{R: scale(c.R), G: scale(c.G), B: scale(c.B), A: scale(c.A)}
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
