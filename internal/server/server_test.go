package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/macindex/internal/cache"
	"github.com/KaramelBytes/macindex/internal/chart"
	"github.com/KaramelBytes/macindex/internal/dataset"
	"github.com/KaramelBytes/macindex/internal/pipeline"
)

func writeIndex(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("name,currency_code,local_price,dollar_ex,dollar_price,date\n")
	for i := 0; i < 37; i++ {
		d := dataset.DateFromOffset(i * 182)
		usd := 1 + float64(dataset.DayOffset(d))/1000
		fmt.Fprintf(&b, "United States,USD,%.6f,1,%.6f,%s\n", usd, usd, d.Format(dataset.DateLayout))
		if i < 3 {
			fmt.Fprintf(&b, "Stub,STB,5,2,2.5,%s\n", d.Format(dataset.DateLayout))
		}
	}
	b.WriteString("Fixed,FXD,1,1,1,2000-01-01\nFixed,FXD,1,1,2,2000-01-01\nFixed,FXD,1,1,3,2000-01-01\n")
	b.WriteString("Single,SGL,1,1,1,2000-01-01\n")
	p := filepath.Join(t.TempDir(), "big-mac.csv")
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o644))
	return p
}

func newTestServer(t *testing.T, src dataset.Source, opt Options) http.Handler {
	t.Helper()
	dc, err := dataset.NewCache(2)
	require.NoError(t, err)
	p := pipeline.New(src, dc, chart.NewRenderer(320, 240), cache.NewMemory(8, time.Minute), pipeline.Options{}, nil)
	h, err := New(p, opt, nil).Handler()
	require.NoError(t, err)
	return h
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestHealthzAndRequestID(t *testing.T) {
	h := newTestServer(t, dataset.Source{Path: writeIndex(t)}, Options{})
	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestCountriesEndpoints(t *testing.T) {
	h := newTestServer(t, dataset.Source{Path: writeIndex(t)}, Options{})
	rec := get(t, h, "/api/countries")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"Fixed", "Single", "Stub", "United States"}, decode(t, rec)["countries"])

	rec = get(t, h, "/api/countries/eligible")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"United States"}, decode(t, rec)["countries"])
}

func TestChartEndpoints(t *testing.T) {
	h := newTestServer(t, dataset.Source{Path: writeIndex(t)}, Options{})
	for _, path := range []string{
		"/api/charts/average.png",
		"/api/charts/country/United%20States.png",
		"/api/charts/regression/United%20States.png?seed=3",
	} {
		rec := get(t, h, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"), path)
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")), path)
	}
	rec := get(t, h, "/api/charts/regression/United%20States.png?seed=3")
	assert.Equal(t, "3", rec.Header().Get("X-Split-Seed"))
	assert.Equal(t, "1.000000", rec.Header().Get("X-R-Squared"))
}

func TestScoreAndPredict(t *testing.T) {
	h := newTestServer(t, dataset.Source{Path: writeIndex(t)}, Options{})

	rec := get(t, h, "/api/regression/United%20States/score?seed=9")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.InDelta(t, 1.0, body["r_squared"], 1e-6)
	assert.Equal(t, float64(10), body["test"])

	rec = get(t, h, "/api/regression/United%20States/predict?date=2000-01-11&seed=9")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "1.01", body["price_usd"])
	assert.Equal(t, float64(10), body["offset"])

	rec = get(t, h, "/api/regression/United%20States/predict?offset=1000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2.00", decode(t, rec)["price_usd"])
}

func TestErrorStatusMapping(t *testing.T) {
	h := newTestServer(t, dataset.Source{Path: writeIndex(t)}, Options{})
	cases := map[string]int{
		"/api/charts/country/Atlantis.png":                   http.StatusNotFound,
		"/api/regression/Atlantis/score":                     http.StatusNotFound,
		"/api/regression/United%20States/predict?date=soon":  http.StatusBadRequest,
		"/api/regression/United%20States/predict":            http.StatusBadRequest,
		"/api/regression/United%20States/predict?offset=x":   http.StatusBadRequest,
		"/api/regression/United%20States/score?seed=-4":      http.StatusBadRequest,
		"/api/regression/Single/score":                       http.StatusUnprocessableEntity,
		"/api/regression/Fixed/predict?date=2001-01-01":      http.StatusUnprocessableEntity,
	}
	for path, want := range cases {
		rec := get(t, h, path)
		assert.Equal(t, want, rec.Code, path)
		assert.NotEmpty(t, decode(t, rec)["kind"], path)
	}

	broken := newTestServer(t, dataset.Source{Path: filepath.Join(t.TempDir(), "missing.csv")}, Options{})
	rec := get(t, broken, "/api/countries")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "data_format", decode(t, rec)["kind"])
}

func TestSummaryAndIndex(t *testing.T) {
	h := newTestServer(t, dataset.Source{Path: writeIndex(t)}, Options{})
	rec := get(t, h, "/api/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(37+3+3+1), decode(t, rec)["kept"])

	rec = get(t, h, "/api/summary?format=markdown")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "[DATASET SUMMARY]")

	rec = get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<option value="United States">`)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, dataset.Source{Path: writeIndex(t)}, Options{RatePerSec: 0.001, Burst: 1})
	assert.Equal(t, http.StatusOK, get(t, h, "/api/countries").Code)
	rec := get(t, h, "/api/countries")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	// Health checks are not limited.
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	dc, err := dataset.NewCache(1)
	require.NoError(t, err)
	p := pipeline.New(dataset.Source{Path: writeIndex(t)}, dc, chart.Renderer{}, nil, pipeline.Options{}, nil)
	s := New(p, Options{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                      "0.0.0.0:8080",
		":9090":                 "0.0.0.0:9090",
		"localhost":             "localhost:8080",
		"127.0.0.1:80":          "127.0.0.1:80",
		"::1":                   "[::1]:8080",
		"*:8080":                "0.0.0.0:8080",
		"http://example.com:81": "example.com:81",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeAddress(in), in)
	}
}
