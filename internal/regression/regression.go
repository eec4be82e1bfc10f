// Package regression fits a one-variable least squares line (date offset to
// USD price) on a random train/test split and scores it on the held-out part.
package regression

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/macindex/internal/analysis"
)

// MinPoints is the smallest series a line can be fit to.
const MinPoints = 2

// DefaultTestFraction is the share of points held out for scoring.
const DefaultTestFraction = 0.25

// Options controls the split.
type Options struct {
	// TestFraction in (0,1); anything else uses DefaultTestFraction.
	TestFraction float64
	// Seed makes the split reproducible. Nil draws a fresh seed per call.
	Seed *uint64
}

// Seed is a convenience for Options.Seed.
func Seed(v uint64) *uint64 { return &v }

// Point is one (date offset, USD price) observation.
type Point struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

// Model is a fitted line.
type Model struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// Predict evaluates the line at day offset x. Extrapolation is unbounded.
func (m Model) Predict(x int) float64 {
	return m.Intercept + m.Slope*float64(x)
}

// Fit is one split of a series and the line fitted to its training part.
// Score and Predict on the same Fit are consistent with each other.
type Fit struct {
	Country     string    `json:"country,omitempty"`
	Model       Model     `json:"model"`
	Train       []Point   `json:"train"`
	Test        []Point   `json:"test"`
	Predictions []float64 `json:"predictions"`
	RSquared    float64   `json:"r_squared"`
	Seed        uint64    `json:"seed"`
	// InSample is set when the series was too short to hold points out and
	// RSquared was computed on the training points.
	InSample bool `json:"in_sample"`
}

// Predict evaluates the fitted line at day offset x.
func (f *Fit) Predict(x int) float64 { return f.Model.Predict(x) }

// testSize returns how many of n points are held out.
func testSize(n int, frac float64) int {
	if frac <= 0 || frac >= 1 {
		frac = DefaultTestFraction
	}
	k := int(math.Ceil(frac * float64(n)))
	if n-k < MinPoints {
		k = n - MinPoints
	}
	if k < 0 {
		k = 0
	}
	return k
}

// Split partitions points randomly into train and test. Both parts keep
// ascending date order. The returned seed reproduces the split.
func Split(points []Point, opt Options) (train, test []Point, seed uint64) {
	if opt.Seed != nil {
		seed = *opt.Seed
	} else {
		seed = rand.Uint64()
	}
	n := len(points)
	k := testSize(n, opt.TestFraction)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	perm := rng.Perm(n)
	testIdx := append([]int(nil), perm[:k]...)
	trainIdx := append([]int(nil), perm[k:]...)
	sort.Ints(testIdx)
	sort.Ints(trainIdx)
	for _, i := range trainIdx {
		train = append(train, points[i])
	}
	for _, i := range testIdx {
		test = append(test, points[i])
	}
	return train, test, seed
}

// Points converts a country series into (date, USD price) points.
func Points(s *analysis.CountrySeries) []Point {
	if s == nil {
		return nil
	}
	out := make([]Point, s.Len())
	for i := range s.Dates {
		out[i] = Point{X: s.Dates[i], Y: s.USDPrices[i]}
	}
	return out
}

// NewFit splits the series once, fits the training part and scores the
// held-out part.
func NewFit(s *analysis.CountrySeries, opt Options) (*Fit, error) {
	country := ""
	if s != nil {
		country = s.Country
	}
	f, err := FitPoints(Points(s), opt)
	if err != nil {
		switch e := err.(type) {
		case *InsufficientDataError:
			e.Country = country
		case *DegenerateFitError:
			e.Country = country
		}
		return nil, err
	}
	f.Country = country
	return f, nil
}

// FitPoints is NewFit for bare points.
func FitPoints(points []Point, opt Options) (*Fit, error) {
	if len(points) < MinPoints {
		return nil, &InsufficientDataError{Points: len(points)}
	}
	train, test, seed := Split(points, opt)
	xs, ys := unzip(train)
	if stat.Variance(xs, nil) == 0 {
		return nil, &DegenerateFitError{X: train[0].X}
	}
	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	f := &Fit{
		Model: Model{Slope: slope, Intercept: intercept},
		Train: train,
		Test:  test,
		Seed:  seed,
	}
	scored := test
	if len(scored) == 0 {
		scored = train
		f.InSample = true
	}
	f.Predictions = make([]float64, len(test))
	for i, p := range test {
		f.Predictions[i] = f.Model.Predict(p.X)
	}
	f.RSquared = rSquared(f.Model, scored)
	return f, nil
}

func unzip(points []Point) ([]float64, []float64) {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = float64(p.X)
		ys[i] = p.Y
	}
	return xs, ys
}

// rSquared is the coefficient of determination of m on points. When the
// actual values are constant it is 1 for a perfect prediction and 0 otherwise.
func rSquared(m Model, points []Point) float64 {
	_, ys := unzip(points)
	est := make([]float64, len(points))
	var ssRes, scale float64
	for i, p := range points {
		est[i] = m.Predict(p.X)
		d := ys[i] - est[i]
		ssRes += d * d
		scale += ys[i] * ys[i]
	}
	mean := stat.Mean(ys, nil)
	var ssTot float64
	for _, y := range ys {
		ssTot += (y - mean) * (y - mean)
	}
	if ssTot <= 1e-12*math.Max(1, scale) {
		if ssRes <= 1e-12*math.Max(1, scale) {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(est, ys, nil)
}

// FitPredictScore returns the model, the held-out points, the predictions
// for them and the held-out R².
func FitPredictScore(s *analysis.CountrySeries, opt Options) (Model, []Point, []float64, float64, error) {
	f, err := NewFit(s, opt)
	if err != nil {
		return Model{}, nil, nil, 0, err
	}
	return f.Model, f.Test, f.Predictions, f.RSquared, nil
}

// Predict fits the series and evaluates the line at queryDate.
func Predict(s *analysis.CountrySeries, queryDate int, opt Options) (float64, error) {
	f, err := NewFit(s, opt)
	if err != nil {
		return 0, err
	}
	return f.Predict(queryDate), nil
}

// Score fits the series and returns the held-out R².
func Score(s *analysis.CountrySeries, opt Options) (float64, error) {
	f, err := NewFit(s, opt)
	if err != nil {
		return 0, err
	}
	return f.RSquared, nil
}
