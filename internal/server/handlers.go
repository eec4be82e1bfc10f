package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/KaramelBytes/macindex/internal/analysis"
	"github.com/KaramelBytes/macindex/internal/dataset"
	"github.com/KaramelBytes/macindex/internal/pipeline"
	"github.com/KaramelBytes/macindex/internal/regression"
)

// statusFor maps a pipeline error to an HTTP status and a stable kind.
func statusFor(err error) (int, string) {
	var (
		unknown    *analysis.UnknownCountryError
		badDate    *dataset.InvalidDateError
		badSeed    *pipeline.InvalidSeedError
		tooFew     *regression.InsufficientDataError
		degenerate *regression.DegenerateFitError
		format     *dataset.DataFormatError
	)
	switch {
	case errors.As(err, &unknown):
		return http.StatusNotFound, "unknown_country"
	case errors.As(err, &badDate):
		return http.StatusBadRequest, "invalid_date"
	case errors.As(err, &badSeed):
		return http.StatusBadRequest, "invalid_seed"
	case errors.As(err, &tooFew):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case errors.As(err, &degenerate):
		return http.StatusUnprocessableEntity, "degenerate_fit"
	case errors.As(err, &format):
		return http.StatusInternalServerError, "data_format"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("request_id", c.GetString("request_id")).Error(kind)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "kind": kind})
}

// pngParam strips the .png suffix from a path parameter.
func pngParam(c *gin.Context, name string) string {
	return strings.TrimSuffix(c.Param(name), ".png")
}

func price(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func (s *Server) index(c *gin.Context) {
	countries, err := s.p.Countries(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	eligible, err := s.p.EligibleCountries(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.HTML(http.StatusOK, "index.tmpl", gin.H{
		"Countries": countries,
		"Eligible":  eligible,
	})
}

func (s *Server) countries(c *gin.Context) {
	list, err := s.p.Countries(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"countries": list})
}

func (s *Server) eligible(c *gin.Context) {
	list, err := s.p.EligibleCountries(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"countries": list})
}

func (s *Server) summary(c *gin.Context) {
	r, err := s.p.Summary(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if c.Query("format") == "markdown" {
		c.String(http.StatusOK, r.Markdown())
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"chart_cache": s.p.ChartCacheStats()})
}

func (s *Server) averageChart(c *gin.Context) {
	b, err := s.p.AverageChart(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", b)
}

func (s *Server) countryChart(c *gin.Context) {
	b, err := s.p.CountryChart(c.Request.Context(), pngParam(c, "file"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", b)
}

func (s *Server) seed(c *gin.Context) (*uint64, bool) {
	seed, err := pipeline.ParseSeed(c.Query("seed"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return seed, true
}

func (s *Server) regressionChart(c *gin.Context) {
	seed, ok := s.seed(c)
	if !ok {
		return
	}
	res, err := s.p.Regression(c.Request.Context(), pngParam(c, "file"), seed)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("X-R-Squared", strconv.FormatFloat(res.Fit.RSquared, 'f', 6, 64))
	c.Header("X-Split-Seed", strconv.FormatUint(res.Fit.Seed, 10))
	c.Data(http.StatusOK, "image/png", res.PNG)
}

func (s *Server) score(c *gin.Context) {
	seed, ok := s.seed(c)
	if !ok {
		return
	}
	f, err := s.p.Score(c.Request.Context(), c.Param("country"), seed)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"country":   f.Country,
		"r_squared": f.RSquared,
		"seed":      f.Seed,
		"train":     len(f.Train),
		"test":      len(f.Test),
		"in_sample": f.InSample,
	})
}

func (s *Server) predict(c *gin.Context) {
	seed, ok := s.seed(c)
	if !ok {
		return
	}
	var (
		offset int
		err    error
	)
	switch {
	case c.Query("date") != "":
		offset, err = dataset.ParseDayOffset(c.Query("date"))
	case c.Query("offset") != "":
		offset, err = strconv.Atoi(strings.TrimSpace(c.Query("offset")))
		if err != nil {
			err = &dataset.InvalidDateError{Input: c.Query("offset"), Err: err}
		}
	default:
		err = &dataset.InvalidDateError{Input: ""}
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	pred, err := s.p.Predict(c.Request.Context(), c.Param("country"), offset, seed)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"country":   pred.Country,
		"date":      pred.Date,
		"offset":    pred.Offset,
		"price":     pred.Price,
		"price_usd": price(pred.Price),
		"r_squared": pred.RSquared,
		"seed":      pred.Seed,
	})
}
