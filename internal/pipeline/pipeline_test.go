package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/macindex/internal/analysis"
	"github.com/KaramelBytes/macindex/internal/cache"
	"github.com/KaramelBytes/macindex/internal/chart"
	"github.com/KaramelBytes/macindex/internal/dataset"
	"github.com/KaramelBytes/macindex/internal/regression"
)

// writeIndex writes a CSV where "Linear" has 37 records on an exact line,
// "Patchy" has 5 and both "UAE" spellings carry the same 37 records.
func writeIndex(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("name,iso_a3,currency_code,local_price,dollar_ex,dollar_price,date\n")
	for i := 0; i < 37; i++ {
		d := dataset.DateFromOffset(i * 182)
		offset := dataset.DayOffset(d)
		usd := 1 + float64(offset)/1000
		date := d.Format(dataset.DateLayout)
		fmt.Fprintf(&b, "Linear,LIN,LNR,%.6f,2,%.6f,%s\n", usd*2, usd, date)
		fmt.Fprintf(&b, "UAE,ARE,AED,9,3.67,2.45,%s\n", date)
		fmt.Fprintf(&b, "United Arab Emirates,ARE,AED,9,3.67,2.45,%s\n", date)
		if i < 5 {
			fmt.Fprintf(&b, "Patchy,PAT,PAT,10,5,2,%s\n", date)
		}
	}
	b.WriteString("Patchy,PAT,PAT,10,5,,2020-01-01\n")
	p := filepath.Join(t.TempDir(), "big-mac.csv")
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o644))
	return p
}

func newPipeline(t *testing.T, opt Options) (*Pipeline, *dataset.Cache, *cache.Memory) {
	t.Helper()
	dc, err := dataset.NewCache(2)
	require.NoError(t, err)
	charts := cache.NewMemory(16, 0)
	if opt.Exclude == nil {
		opt.Exclude = []string{"United Arab Emirates"}
	}
	p := New(dataset.Source{Path: writeIndex(t)}, dc, chart.NewRenderer(320, 240), charts, opt, nil)
	return p, dc, charts
}

func TestCountriesAndEligibility(t *testing.T) {
	p, _, _ := newPipeline(t, Options{})
	ctx := context.Background()

	countries, err := p.Countries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Linear", "Patchy", "UAE"}, countries)

	eligible, err := p.EligibleCountries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Linear", "UAE"}, eligible)
}

func TestDatasetIsLoadedOnce(t *testing.T) {
	p, dc, _ := newPipeline(t, Options{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := p.Countries(ctx)
		require.NoError(t, err)
	}
	st := dc.Stats()
	assert.Equal(t, int64(1), st.Loads)
	assert.Equal(t, int64(2), st.Hits)
}

func TestChartsAreCachedByFingerprint(t *testing.T) {
	p, _, charts := newPipeline(t, Options{})
	ctx := context.Background()

	first, err := p.AverageChart(ctx)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(first, []byte("\x89PNG")))
	second, err := p.AverageChart(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = p.CountryChart(ctx, "Linear")
	require.NoError(t, err)
	_, err = p.CountryChart(ctx, "Linear")
	require.NoError(t, err)

	st := charts.Stats()
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(2), st.Sets)
}

func TestSharedChartCacheSeparatesSettings(t *testing.T) {
	var b strings.Builder
	b.WriteString("name,iso_a3,currency_code,local_price,dollar_ex,dollar_price,alt_price,date\n")
	for i := 0; i < 3; i++ {
		date := dataset.DateFromOffset(i * 365).Format(dataset.DateLayout)
		fmt.Fprintf(&b, "Linear,LIN,LNR,2,2,1,%d,%s\n", (i+1)*100, date)
	}
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	loader := func() Loader {
		dc, err := dataset.NewCache(2)
		require.NoError(t, err)
		return dc
	}
	shared := cache.NewMemory(16, 0)
	usd := New(dataset.Source{Path: path}, loader(), chart.NewRenderer(320, 240), shared, Options{}, nil)
	altSrc := dataset.Source{Path: path}
	altSrc.Columns.USDPrice = "alt_price"
	alt := New(altSrc, loader(), chart.NewRenderer(400, 300), shared, Options{}, nil)
	ctx := context.Background()

	first, err := usd.CountryChart(ctx, "Linear")
	require.NoError(t, err)
	second, err := alt.CountryChart(ctx, "Linear")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	cfg, err := png.DecodeConfig(bytes.NewReader(second))
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 300, cfg.Height)

	resized := New(dataset.Source{Path: path}, loader(), chart.NewRenderer(400, 300), shared, Options{}, nil)
	third, err := resized.AverageChart(ctx)
	require.NoError(t, err)
	_, err = usd.AverageChart(ctx)
	require.NoError(t, err)
	cfg, err = png.DecodeConfig(bytes.NewReader(third))
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)

	st := shared.Stats()
	assert.Equal(t, int64(0), st.Hits)
	assert.Equal(t, int64(4), st.Sets)
}

func TestUnknownCountry(t *testing.T) {
	p, _, _ := newPipeline(t, Options{})
	_, err := p.CountryChart(context.Background(), "Atlantis")
	var ue *analysis.UnknownCountryError
	require.ErrorAs(t, err, &ue)

	_, err = p.Predict(context.Background(), "Atlantis", 0, nil)
	require.ErrorAs(t, err, &ue)
}

func TestRegressionChartAndScoreAgree(t *testing.T) {
	p, _, _ := newPipeline(t, Options{})
	res, err := p.Regression(context.Background(), "Linear", regression.Seed(11))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(res.PNG, []byte("\x89PNG")))
	assert.Equal(t, uint64(11), res.Fit.Seed)
	assert.Len(t, res.Fit.Test, 10)

	score, err := p.Score(context.Background(), "Linear", regression.Seed(11))
	require.NoError(t, err)
	assert.Equal(t, res.Fit.RSquared, score.RSquared)
	assert.InDelta(t, 1.0, score.RSquared, 1e-6)
}

func TestPredict(t *testing.T) {
	p, _, _ := newPipeline(t, Options{Seed: regression.Seed(5)})
	offset, err := ParseQuery("2030-01-01")
	require.NoError(t, err)
	pred, err := p.Predict(context.Background(), "Linear", offset, nil)
	require.NoError(t, err)
	assert.Equal(t, "2030-01-01", pred.Date)
	assert.Equal(t, uint64(5), pred.Seed)
	assert.InDelta(t, 1+float64(offset)/1000, pred.Price, 1e-6)

	again, err := p.Predict(context.Background(), "Linear", offset, nil)
	require.NoError(t, err)
	assert.Equal(t, pred.Price, again.Price)
}

func TestPredictInsufficientAndDegenerate(t *testing.T) {
	p, _, _ := newPipeline(t, Options{})
	// Patchy has five points, enough for a fit.
	_, err := p.Predict(context.Background(), "Patchy", 100, nil)
	require.NoError(t, err)

	one := New(dataset.Source{}, LoaderFunc(func(context.Context, dataset.Source) (*dataset.Dataset, error) {
		return &dataset.Dataset{Records: []dataset.PriceRecord{{Country: "Solo", Date: 3, USDPrice: 1, LocalPrice: 1}}}, nil
	}), chart.Renderer{}, nil, Options{}, nil)
	_, err = one.Score(context.Background(), "Solo", nil)
	var ie *regression.InsufficientDataError
	require.ErrorAs(t, err, &ie)
}

func TestSummary(t *testing.T) {
	p, _, _ := newPipeline(t, Options{})
	r, err := p.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 37*3+5, r.Kept)
	assert.Equal(t, 1, r.DropReasons["missing usd price"])
	assert.Equal(t, []string{"Linear", "UAE", "United Arab Emirates"}, r.Eligible)
	assert.Len(t, r.Countries, 3)
	assert.NotEmpty(t, r.Fingerprint)
}

func TestParseQueryAndSeed(t *testing.T) {
	n, err := ParseQuery("2000-01-02")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = ParseQuery(" -30 ")
	require.NoError(t, err)
	assert.Equal(t, -30, n)
	_, err = ParseQuery("next year")
	var de *dataset.InvalidDateError
	require.ErrorAs(t, err, &de)

	s, err := ParseSeed("42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), *s)
	s, err = ParseSeed("")
	require.NoError(t, err)
	assert.Nil(t, s)
	_, err = ParseSeed("-1")
	var se *InvalidSeedError
	require.ErrorAs(t, err, &se)
}
