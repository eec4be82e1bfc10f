package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KaramelBytes/macindex/internal/dataset"
)

// DefaultExpectedSamples is the record count of a country with complete
// history: one observation per semiannual release from 2000 onward.
const DefaultExpectedSamples = 37

// UnknownCountryError indicates a country name that matches no record.
type UnknownCountryError struct {
	Country string
}

func (e *UnknownCountryError) Error() string {
	return fmt.Sprintf("unknown country %q", e.Country)
}

// CountrySeries holds one country's observations in dataset order.
// All slices have the same length.
type CountrySeries struct {
	Country      string    `json:"country"`
	CurrencyCode string    `json:"currency_code"`
	Dates        []int     `json:"dates"`
	USDPrices    []float64 `json:"usd_prices"`
	LocalPrices  []float64 `json:"local_prices"`
}

// Len returns the number of observations.
func (s *CountrySeries) Len() int { return len(s.Dates) }

// AveragePoint is the mean USD price over every record sharing Date.
type AveragePoint struct {
	Date         int     `json:"date"`
	MeanUSDPrice float64 `json:"mean_usd_price"`
	Count        int     `json:"count"`
}

// SeriesFor extracts the observations of country. The currency code is the
// most recent non-empty code seen for that country.
func SeriesFor(ds *dataset.Dataset, country string) (*CountrySeries, error) {
	name := strings.TrimSpace(country)
	s := &CountrySeries{Country: name}
	if ds != nil {
		for _, r := range ds.Records {
			if r.Country != name {
				continue
			}
			s.Dates = append(s.Dates, r.Date)
			s.USDPrices = append(s.USDPrices, r.USDPrice)
			s.LocalPrices = append(s.LocalPrices, r.LocalPrice)
			if r.CurrencyCode != "" {
				s.CurrencyCode = r.CurrencyCode
			}
		}
	}
	if name == "" || s.Len() == 0 {
		return nil, &UnknownCountryError{Country: country}
	}
	return s, nil
}

// AverageSeries returns one point per unique date, in date order.
func AverageSeries(ds *dataset.Dataset) []AveragePoint {
	if ds == nil {
		return nil
	}
	var out []AveragePoint
	var sum float64
	for i, r := range ds.Records {
		if i == 0 || r.Date != ds.Records[i-1].Date {
			if len(out) > 0 {
				last := &out[len(out)-1]
				last.MeanUSDPrice = sum / float64(last.Count)
			}
			out = append(out, AveragePoint{Date: r.Date})
			sum = 0
		}
		sum += r.USDPrice
		out[len(out)-1].Count++
	}
	if len(out) > 0 {
		last := &out[len(out)-1]
		last.MeanUSDPrice = sum / float64(last.Count)
	}
	return out
}

// counts returns the number of records per non-empty country name.
func counts(ds *dataset.Dataset) map[string]int {
	m := map[string]int{}
	if ds == nil {
		return m
	}
	for _, r := range ds.Records {
		if r.Country == "" {
			continue
		}
		m[r.Country]++
	}
	return m
}

// EligibleRegressionCountries returns, sorted, the countries whose record
// count equals expected. A non-positive expected uses DefaultExpectedSamples.
func EligibleRegressionCountries(ds *dataset.Dataset, expected int) []string {
	if expected <= 0 {
		expected = DefaultExpectedSamples
	}
	out := []string{}
	for name, n := range counts(ds) {
		if n == expected {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Countries returns the sorted unique country names, minus exclude
// (compared case-insensitively).
func Countries(ds *dataset.Dataset, exclude ...string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[strings.ToLower(strings.TrimSpace(e))] = true
	}
	out := []string{}
	for name := range counts(ds) {
		if skip[strings.ToLower(name)] {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
