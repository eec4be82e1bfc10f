// Package chart renders the dashboard views as PNG images.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const daysPerYear = 365

var (
	blue   = color.RGBA{R: 31, G: 119, B: 180, A: 160}
	red    = color.RGBA{R: 214, G: 39, B: 40, A: 160}
	orange = color.RGBA{R: 255, G: 127, B: 14, A: 160}
	green  = color.RGBA{R: 44, G: 160, B: 44, A: 190}
	navy   = color.RGBA{R: 0, G: 0, B: 200, A: 255}
)

// ErrEmptySeries is returned when there is nothing to draw.
var ErrEmptySeries = errors.New("chart: empty series")

// Renderer draws charts of a fixed size.
type Renderer struct {
	Width  vg.Length
	Height vg.Length
}

// NewRenderer returns a renderer for images of w x h pixels.
func NewRenderer(w, h int) Renderer {
	if w <= 0 {
		w = 800
	}
	if h <= 0 {
		h = 600
	}
	return Renderer{Width: pixels(w), Height: pixels(h)}
}

// pixels converts a pixel count to a length at the vgimg default DPI.
func pixels(n int) vg.Length {
	return vg.Length(n) * vg.Inch / vgimg.DefaultDPI
}

// CountryInput is one country's history in both currencies.
type CountryInput struct {
	Country      string
	CurrencyCode string
	Dates        []int
	USDPrices    []float64
	LocalPrices  []float64
}

// Country draws USD prices on top and local prices below.
func (r Renderer) Country(in CountryInput) ([]byte, error) {
	if len(in.Dates) == 0 {
		return nil, ErrEmptySeries
	}
	if len(in.USDPrices) != len(in.Dates) || len(in.LocalPrices) != len(in.Dates) {
		return nil, fmt.Errorf("chart: %d dates but %d usd and %d local prices", len(in.Dates), len(in.USDPrices), len(in.LocalPrices))
	}
	code := in.CurrencyCode
	if code == "" {
		code = "local"
	}
	top := newPlot(in.Country+" Big Mac Prices (USD) since 2000", "Price (USD)", in.Dates)
	if err := addLinePoints(top, xys(in.Dates, in.USDPrices), blue, "Big Mac Prices over time"); err != nil {
		return nil, err
	}
	bottom := newPlot(fmt.Sprintf("%s Big Mac Prices (%s) since 2000", in.Country, code), "Price ("+code+")", in.Dates)
	if err := addLinePoints(bottom, xys(in.Dates, in.LocalPrices), red, "Big Mac Prices over time"); err != nil {
		return nil, err
	}

	c := vgimg.New(r.Width, r.Height)
	dc := draw.New(c)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadTop: vg.Points(4), PadBottom: vg.Points(4), PadY: vg.Points(12), PadLeft: vg.Points(4), PadRight: vg.Points(8)}
	plots := [][]*plot.Plot{{top}, {bottom}}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}
	return encode(c)
}

// Average draws the cross-country mean price per date.
func (r Renderer) Average(dates []int, means []float64) ([]byte, error) {
	if len(dates) == 0 {
		return nil, ErrEmptySeries
	}
	if len(means) != len(dates) {
		return nil, fmt.Errorf("chart: %d dates but %d averages", len(dates), len(means))
	}
	p := newPlot("World Average Big Mac Prices (USD) since 2000", "Price (USD)", dates)
	if err := addLinePoints(p, xys(dates, means), orange, "Average Big Mac Prices over time"); err != nil {
		return nil, err
	}
	return r.single(p)
}

// RegressionInput is one fitted split of a country series.
type RegressionInput struct {
	Country     string
	TrainX      []int
	TrainY      []float64
	TestX       []int
	TestY       []float64
	Predictions []float64
	// Line evaluates the fitted model; used to draw the line when there are
	// no held-out points.
	Line func(x int) float64
}

// Regression draws the training points, the held-out actual points and the
// fitted line across the held-out date range.
func (r Renderer) Regression(in RegressionInput) ([]byte, error) {
	if len(in.TrainX) == 0 {
		return nil, ErrEmptySeries
	}
	if len(in.TrainY) != len(in.TrainX) || len(in.Predictions) != len(in.TestX) {
		return nil, fmt.Errorf("chart: mismatched regression series")
	}
	all := append(append([]int(nil), in.TrainX...), in.TestX...)
	p := newPlot("Regressed "+in.Country+" Big Mac Prices (USD) since 2000", "Price (USD)", all)

	train, err := plotter.NewScatter(xys(in.TrainX, in.TrainY))
	if err != nil {
		return nil, fmt.Errorf("chart: %w", err)
	}
	train.GlyphStyle.Color = red
	train.GlyphStyle.Shape = draw.CircleGlyph{}
	train.GlyphStyle.Radius = vg.Points(3)
	p.Add(train)
	p.Legend.Add("Train Data", train)

	if len(in.TestY) == len(in.TestX) && len(in.TestX) > 0 {
		held, err := plotter.NewScatter(xys(in.TestX, in.TestY))
		if err != nil {
			return nil, fmt.Errorf("chart: %w", err)
		}
		held.GlyphStyle.Color = green
		held.GlyphStyle.Shape = draw.CircleGlyph{}
		held.GlyphStyle.Radius = vg.Points(3)
		p.Add(held)
		p.Legend.Add("Actual Test Data", held)
	}

	line := fittedLine(in)
	if len(line) >= 2 {
		l, err := plotter.NewLine(line)
		if err != nil {
			return nil, fmt.Errorf("chart: %w", err)
		}
		l.Color = navy
		l.Width = vg.Points(1.5)
		p.Add(l)
		p.Legend.Add("Linear Regression", l)
	}
	return r.single(p)
}

// fittedLine returns the predictions over the held-out dates in date order,
// or the model over the training range when nothing was held out.
func fittedLine(in RegressionInput) plotter.XYs {
	if len(in.TestX) > 0 {
		pts := xys(in.TestX, in.Predictions)
		sort.Slice(pts, func(i, j int) bool { return pts[i].X < pts[j].X })
		if len(pts) >= 2 {
			return pts
		}
	}
	if in.Line == nil {
		return nil
	}
	lo, hi := bounds(append(append([]int(nil), in.TrainX...), in.TestX...))
	return plotter.XYs{{X: float64(lo), Y: in.Line(lo)}, {X: float64(hi), Y: in.Line(hi)}}
}

func (r Renderer) single(p *plot.Plot) ([]byte, error) {
	c := vgimg.New(r.Width, r.Height)
	p.Draw(draw.New(c))
	return encode(c)
}

func encode(c *vgimg.Canvas) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("chart: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func newPlot(title, ylabel string, dates []int) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Years since 2000"
	p.Y.Label.Text = ylabel
	p.Legend.Top = true
	p.Legend.Left = true
	lo, hi := bounds(dates)
	p.X.Tick.Marker = YearTicks(lo, hi)
	p.Add(plotter.NewGrid())
	return p
}

func addLinePoints(p *plot.Plot, pts plotter.XYs, c color.Color, label string) error {
	l, s, err := plotter.NewLinePoints(pts)
	if err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	l.Color = c
	s.GlyphStyle.Color = c
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Radius = vg.Points(2.5)
	p.Add(l, s)
	p.Legend.Add(label, l, s)
	return nil
}

func xys(xs []int, ys []float64) plotter.XYs {
	out := make(plotter.XYs, len(xs))
	for i := range xs {
		out[i].X = float64(xs[i])
		out[i].Y = ys[i]
	}
	return out
}

func bounds(xs []int) (lo, hi int) {
	if len(xs) == 0 {
		return 0, 0
	}
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	return lo, hi
}

// YearTicks labels day offsets as whole years since 2000, one tick every 365
// days, thinned so that long ranges stay readable.
func YearTicks(lo, hi int) plot.Ticker {
	return plot.TickerFunc(func(min, max float64) []plot.Tick {
		first := int(math.Floor(math.Min(min, float64(lo)) / daysPerYear))
		last := int(math.Ceil(math.Max(max, float64(hi)) / daysPerYear))
		step := 1
		for (last-first)/step > 24 {
			step *= 2
		}
		var ticks []plot.Tick
		for y := first; y <= last; y++ {
			v := float64(y * daysPerYear)
			if v < min || v > max {
				continue
			}
			label := ""
			if y%step == 0 {
				label = strconv.Itoa(y)
			}
			ticks = append(ticks, plot.Tick{Value: v, Label: label})
		}
		return ticks
	})
}
