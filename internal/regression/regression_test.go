package regression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/macindex/internal/analysis"
)

func series(country string, xs []int, ys []float64) *analysis.CountrySeries {
	return &analysis.CountrySeries{Country: country, Dates: xs, USDPrices: ys, LocalPrices: ys}
}

func perfectLine() *analysis.CountrySeries {
	return series("Lineland", []int{0, 100, 200, 300}, []float64{1, 2, 3, 4})
}

func TestPerfectLinePredictsAndScoresOne(t *testing.T) {
	for seed := uint64(0); seed < 25; seed++ {
		opt := Options{Seed: Seed(seed)}
		got, err := Predict(perfectLine(), 400, opt)
		require.NoError(t, err)
		assert.InDelta(t, 5.0, got, 1e-9, "seed %d", seed)

		r2, err := Score(perfectLine(), opt)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, r2, 1e-6, "seed %d", seed)
	}
	r2, err := Score(perfectLine(), Options{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r2, 1e-6)
}

func TestFitPredictScoreReturnsHeldOutPart(t *testing.T) {
	xs := make([]int, 37)
	ys := make([]float64, 37)
	for i := range xs {
		xs[i] = i * 182
		ys[i] = 2 + 0.001*float64(xs[i]) + float64(i%3)*0.05
	}
	model, test, preds, r2, err := FitPredictScore(series("Noisy", xs, ys), Options{Seed: Seed(7)})
	require.NoError(t, err)
	assert.Len(t, test, 10) // ceil(0.25 * 37)
	assert.Len(t, preds, len(test))
	for i, p := range test {
		assert.InDelta(t, model.Predict(p.X), preds[i], 1e-12)
		if i > 0 {
			assert.Less(t, test[i-1].X, p.X)
		}
	}
	assert.InDelta(t, 0.001, model.Slope, 1e-4)
	assert.Greater(t, r2, 0.9)
	assert.LessOrEqual(t, r2, 1.0)
}

func TestSplitIsReproducibleForSeed(t *testing.T) {
	pts := Points(series("X", []int{1, 2, 3, 4, 5, 6, 7, 8}, []float64{1, 2, 3, 4, 5, 6, 7, 8}))
	tr1, te1, s1 := Split(pts, Options{Seed: Seed(42)})
	tr2, te2, s2 := Split(pts, Options{Seed: Seed(42)})
	assert.Equal(t, tr1, tr2)
	assert.Equal(t, te1, te2)
	assert.Equal(t, uint64(42), s1)
	assert.Equal(t, s1, s2)
	assert.Len(t, te1, 2)
	assert.Len(t, tr1, 6)

	// The reported seed of an unseeded split reproduces it.
	tr3, te3, s3 := Split(pts, Options{})
	tr4, te4, _ := Split(pts, Options{Seed: Seed(s3)})
	assert.Equal(t, tr3, tr4)
	assert.Equal(t, te3, te4)
}

func TestPredictIdempotentWithSeed(t *testing.T) {
	s := series("Wobble", []int{0, 10, 20, 30, 40, 50}, []float64{1, 3, 2, 5, 4, 6})
	first, err := Predict(s, 1000, Options{Seed: Seed(3)})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Predict(s, 1000, Options{Seed: Seed(3)})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTestSize(t *testing.T) {
	cases := []struct {
		n    int
		frac float64
		want int
	}{
		{2, 0.25, 0},
		{3, 0.25, 1},
		{4, 0.25, 1},
		{5, 0.25, 2},
		{37, 0, 10},
		{10, 0.9, 8},
		{10, 1.5, 3},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, testSize(c.n, c.frac), "n=%d frac=%v", c.n, c.frac)
	}
}

func TestTwoPointsScoreInSample(t *testing.T) {
	f, err := NewFit(series("Pair", []int{0, 10}, []float64{1, 2}), Options{Seed: Seed(1)})
	require.NoError(t, err)
	assert.True(t, f.InSample)
	assert.Empty(t, f.Test)
	assert.Empty(t, f.Predictions)
	assert.InDelta(t, 1.0, f.RSquared, 1e-9)
	assert.InDelta(t, 3.0, f.Predict(20), 1e-9)
	assert.Equal(t, "Pair", f.Country)
}

func TestInsufficientData(t *testing.T) {
	for _, s := range []*analysis.CountrySeries{
		series("Solo", []int{5}, []float64{1}),
		series("Empty", nil, nil),
		nil,
	} {
		_, _, _, _, err := FitPredictScore(s, Options{})
		var ie *InsufficientDataError
		require.ErrorAs(t, err, &ie)
	}
	_, err := Score(series("Solo", []int{5}, []float64{1}), Options{})
	assert.Contains(t, err.Error(), "Solo")
}

func TestDegenerateFit(t *testing.T) {
	s := series("Flat", []int{100, 100, 100, 100}, []float64{1, 2, 3, 4})
	_, err := Predict(s, 200, Options{Seed: Seed(9)})
	var de *DegenerateFitError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "Flat", de.Country)
	assert.Equal(t, 100, de.X)
}

func TestRSquaredConstantActuals(t *testing.T) {
	pts := []Point{{X: 0, Y: 2}, {X: 1, Y: 2}}
	assert.Equal(t, 1.0, rSquared(Model{Intercept: 2}, pts))
	assert.Equal(t, 0.0, rSquared(Model{Intercept: 3}, pts))
	assert.Less(t, rSquared(Model{Slope: -1, Intercept: 5}, []Point{{X: 0, Y: 1}, {X: 1, Y: 2}, {X: 2, Y: 3}}), 0.0)
}
