// Package pipeline is the entry point presentation layers call with a country,
// a date and optionally a split seed. It loads the dataset through a
// fingerprint cache, derives series, fits and renders.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/KaramelBytes/macindex/internal/analysis"
	"github.com/KaramelBytes/macindex/internal/cache"
	"github.com/KaramelBytes/macindex/internal/chart"
	"github.com/KaramelBytes/macindex/internal/dataset"
	"github.com/KaramelBytes/macindex/internal/logging"
	"github.com/KaramelBytes/macindex/internal/regression"
)

// Loader returns the dataset for a source. *dataset.Cache implements it.
type Loader interface {
	Load(ctx context.Context, src dataset.Source) (*dataset.Dataset, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, src dataset.Source) (*dataset.Dataset, error)

func (f LoaderFunc) Load(ctx context.Context, src dataset.Source) (*dataset.Dataset, error) {
	return f(ctx, src)
}

// Options tunes the analysis.
type Options struct {
	ExpectedSamples int
	TestFraction    float64
	// Seed is used when a call passes no seed of its own. Nil means random.
	Seed    *uint64
	Exclude []string
}

// Pipeline serves one configured source. It is safe for concurrent use.
type Pipeline struct {
	src      dataset.Source
	loader   Loader
	renderer chart.Renderer
	charts   cache.ChartCache
	opt      Options
	log      *logrus.Entry
}

// New assembles a pipeline. A nil loader reads the source on every call,
// a nil chart cache disables chart caching.
func New(src dataset.Source, loader Loader, renderer chart.Renderer, charts cache.ChartCache, opt Options, log logrus.FieldLogger) *Pipeline {
	if loader == nil {
		loader = LoaderFunc(dataset.Load)
	}
	if charts == nil {
		charts = cache.Nop{}
	}
	if opt.ExpectedSamples <= 0 {
		opt.ExpectedSamples = analysis.DefaultExpectedSamples
	}
	if renderer.Width <= 0 || renderer.Height <= 0 {
		renderer = chart.NewRenderer(0, 0)
	}
	return &Pipeline{
		src:      src,
		loader:   loader,
		renderer: renderer,
		charts:   charts,
		opt:      opt,
		log:      logging.WithComponent(log, "pipeline"),
	}
}

// Source returns the configured source.
func (p *Pipeline) Source() dataset.Source { return p.src }

// ChartCacheStats reports the chart cache counters.
func (p *Pipeline) ChartCacheStats() cache.Stats { return p.charts.Stats() }

// Dataset loads (or reuses) the cleaned dataset.
func (p *Pipeline) Dataset(ctx context.Context) (*dataset.Dataset, error) {
	ds, err := p.loader.Load(ctx, p.src)
	if err != nil {
		return nil, err
	}
	if n := len(ds.Diagnostics.Dropped); n > 0 {
		p.log.WithFields(logrus.Fields{"source": ds.Name, "dropped": n, "kept": ds.Len()}).Debug("rows dropped at load")
	}
	return ds, nil
}

// Countries lists every country minus the excluded aliases.
func (p *Pipeline) Countries(ctx context.Context) ([]string, error) {
	ds, err := p.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	return analysis.Countries(ds, p.opt.Exclude...), nil
}

// EligibleCountries lists the countries with complete history.
func (p *Pipeline) EligibleCountries(ctx context.Context) ([]string, error) {
	ds, err := p.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	skip := map[string]bool{}
	for _, e := range p.opt.Exclude {
		skip[strings.ToLower(strings.TrimSpace(e))] = true
	}
	out := []string{}
	for _, c := range analysis.EligibleRegressionCountries(ds, p.opt.ExpectedSamples) {
		if !skip[strings.ToLower(c)] {
			out = append(out, c)
		}
	}
	return out, nil
}

// Series returns one country's observations.
func (p *Pipeline) Series(ctx context.Context, country string) (*analysis.CountrySeries, error) {
	ds, err := p.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	return analysis.SeriesFor(ds, country)
}

// CountryChart renders the dual-currency history of country.
func (p *Pipeline) CountryChart(ctx context.Context, country string) ([]byte, error) {
	ds, err := p.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	s, err := analysis.SeriesFor(ds, country)
	if err != nil {
		return nil, err
	}
	return p.cached(ctx, p.chartKey(ds, "country", s.Country), ds.Fingerprint != "", func() ([]byte, error) {
		return p.renderer.Country(chart.CountryInput{
			Country:      s.Country,
			CurrencyCode: s.CurrencyCode,
			Dates:        s.Dates,
			USDPrices:    s.USDPrices,
			LocalPrices:  s.LocalPrices,
		})
	})
}

// AverageChart renders the cross-country mean price over time.
func (p *Pipeline) AverageChart(ctx context.Context) ([]byte, error) {
	ds, err := p.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	return p.cached(ctx, p.chartKey(ds, "average"), ds.Fingerprint != "", func() ([]byte, error) {
		pts := analysis.AverageSeries(ds)
		dates := make([]int, len(pts))
		means := make([]float64, len(pts))
		for i, pt := range pts {
			dates[i] = pt.Date
			means[i] = pt.MeanUSDPrice
		}
		return p.renderer.Average(dates, means)
	})
}

// chartKey scopes a rendered view to the data read, the way it was read and
// the image size, so pipelines with different settings can share one cache.
func (p *Pipeline) chartKey(ds *dataset.Dataset, view ...string) string {
	size := fmt.Sprintf("%.0fx%.0f", float64(p.renderer.Width), float64(p.renderer.Height))
	return cache.Key(append([]string{ds.Fingerprint, p.src.Key(), size}, view...)...)
}

// cached serves key from the chart cache or renders and stores it. Cache
// failures are logged and never fail the request.
func (p *Pipeline) cached(ctx context.Context, key string, cacheable bool, render func() ([]byte, error)) ([]byte, error) {
	if cacheable {
		b, ok, err := p.charts.Get(ctx, key)
		if err != nil {
			p.log.WithError(err).WithField("key", key).Warn("chart cache read failed")
		} else if ok {
			return b, nil
		}
	}
	b, err := render()
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := p.charts.Set(ctx, key, b); err != nil {
			p.log.WithError(err).WithField("key", key).Warn("chart cache write failed")
		}
	}
	return b, nil
}

func (p *Pipeline) fitOptions(seed *uint64) regression.Options {
	if seed == nil {
		seed = p.opt.Seed
	}
	return regression.Options{TestFraction: p.opt.TestFraction, Seed: seed}
}

// Fit splits and fits one country's series once.
func (p *Pipeline) Fit(ctx context.Context, country string, seed *uint64) (*regression.Fit, error) {
	s, err := p.Series(ctx, country)
	if err != nil {
		return nil, err
	}
	f, err := regression.NewFit(s, p.fitOptions(seed))
	if err != nil {
		return nil, err
	}
	p.log.WithFields(logrus.Fields{"country": f.Country, "seed": f.Seed, "r2": f.RSquared}).Debug("fitted")
	return f, nil
}

// RegressionResult is a chart and the score of the split it shows.
type RegressionResult struct {
	Fit *regression.Fit
	PNG []byte
}

// Regression renders the fit of one split together with its score, so the
// chart and the number always agree.
func (p *Pipeline) Regression(ctx context.Context, country string, seed *uint64) (*RegressionResult, error) {
	f, err := p.Fit(ctx, country, seed)
	if err != nil {
		return nil, err
	}
	in := chart.RegressionInput{Country: f.Country, Predictions: f.Predictions, Line: f.Predict}
	for _, pt := range f.Train {
		in.TrainX = append(in.TrainX, pt.X)
		in.TrainY = append(in.TrainY, pt.Y)
	}
	for _, pt := range f.Test {
		in.TestX = append(in.TestX, pt.X)
		in.TestY = append(in.TestY, pt.Y)
	}
	b, err := p.renderer.Regression(in)
	if err != nil {
		return nil, err
	}
	return &RegressionResult{Fit: f, PNG: b}, nil
}

// Score returns the held-out R² of one split.
func (p *Pipeline) Score(ctx context.Context, country string, seed *uint64) (*regression.Fit, error) {
	return p.Fit(ctx, country, seed)
}

// Prediction is a forecast price for a date.
type Prediction struct {
	Country  string  `json:"country"`
	Date     string  `json:"date"`
	Offset   int     `json:"offset"`
	Price    float64 `json:"price"`
	RSquared float64 `json:"r_squared"`
	Seed     uint64  `json:"seed"`
}

// Predict fits country and evaluates the line at the day offset.
func (p *Pipeline) Predict(ctx context.Context, country string, offset int, seed *uint64) (*Prediction, error) {
	f, err := p.Fit(ctx, country, seed)
	if err != nil {
		return nil, err
	}
	return &Prediction{
		Country:  f.Country,
		Date:     dataset.DateFromOffset(offset).Format(dataset.DateLayout),
		Offset:   offset,
		Price:    f.Predict(offset),
		RSquared: f.RSquared,
		Seed:     f.Seed,
	}, nil
}

// Summary reports what was loaded.
func (p *Pipeline) Summary(ctx context.Context) (*analysis.Report, error) {
	ds, err := p.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	opt := analysis.DefaultOptions()
	opt.ExpectedSamples = p.opt.ExpectedSamples
	opt.Exclude = p.opt.Exclude
	return analysis.Summarize(ds, opt), nil
}

// ParseQuery reads a prediction target given either as an ISO date or as a
// signed day offset. A bare integer is always an offset.
func ParseQuery(s string) (int, error) {
	v := strings.TrimSpace(s)
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	return dataset.ParseDayOffset(v)
}

// ParseSeed parses a decimal split seed.
func ParseSeed(s string) (*uint64, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return nil, &InvalidSeedError{Input: s}
	}
	return &n, nil
}

// InvalidSeedError indicates a seed that is not an unsigned integer.
type InvalidSeedError struct{ Input string }

func (e *InvalidSeedError) Error() string {
	return fmt.Sprintf("invalid seed %q: expected an unsigned integer", e.Input)
}
