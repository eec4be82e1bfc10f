package analysis

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/macindex/internal/dataset"
)

// Options controls the dataset summary.
type Options struct {
	// ExpectedSamples is the completeness gate for regression; 0 uses DefaultExpectedSamples.
	ExpectedSamples int
	// Exclude lists country names left out of the per-country table.
	Exclude []string
	// MaxDropped limits how many dropped rows are listed; reason counts are always complete.
	MaxDropped int
}

// DefaultOptions returns the summary defaults.
func DefaultOptions() Options {
	return Options{
		ExpectedSamples: DefaultExpectedSamples,
		Exclude:         []string{"United Arab Emirates"},
		MaxDropped:      20,
	}
}

// Report is a markdown-friendly summary of a loaded dataset.
type Report struct {
	Name        string               `json:"name"`
	Fingerprint string               `json:"fingerprint,omitempty"`
	RowsRead    int                  `json:"rows_read"`
	Kept        int                  `json:"kept"`
	DropReasons map[string]int       `json:"drop_reasons,omitempty"`
	Dropped     []dataset.DroppedRow `json:"dropped,omitempty"`
	FirstDate   string               `json:"first_date,omitempty"`
	LastDate    string               `json:"last_date,omitempty"`
	UniqueDates int                  `json:"unique_dates"`
	Countries   []CountryStats       `json:"countries"`
	Eligible    []string             `json:"eligible"`
	Expected    int                  `json:"expected_samples"`
	Warnings    []string             `json:"warnings,omitempty"`
}

// CountryStats summarizes one country's USD prices.
type CountryStats struct {
	Country  string  `json:"country"`
	Currency string  `json:"currency"`
	Count    int     `json:"count"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Std      float64 `json:"std"`
}

// Summarize builds a Report for ds.
func Summarize(ds *dataset.Dataset, opt Options) *Report {
	if opt.ExpectedSamples <= 0 {
		opt.ExpectedSamples = DefaultExpectedSamples
	}
	r := &Report{Expected: opt.ExpectedSamples, DropReasons: map[string]int{}}
	if ds == nil {
		return r
	}
	r.Name = ds.Name
	r.Fingerprint = ds.Fingerprint
	r.RowsRead = ds.Diagnostics.RowsRead
	r.Kept = ds.Len()
	for i, d := range ds.Diagnostics.Dropped {
		r.DropReasons[reasonKind(d.Reason)]++
		if opt.MaxDropped <= 0 || i < opt.MaxDropped {
			r.Dropped = append(r.Dropped, d)
		}
	}
	if n := len(ds.Diagnostics.Dropped); opt.MaxDropped > 0 && n > opt.MaxDropped {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d dropped rows not listed", n-opt.MaxDropped))
	}
	if ds.Len() > 0 {
		r.FirstDate = dataset.DateFromOffset(ds.Records[0].Date).Format(dataset.DateLayout)
		r.LastDate = dataset.DateFromOffset(ds.Records[ds.Len()-1].Date).Format(dataset.DateLayout)
	}
	r.UniqueDates = len(AverageSeries(ds))

	for _, name := range Countries(ds, opt.Exclude...) {
		s, err := SeriesFor(ds, name)
		if err != nil {
			continue
		}
		r.Countries = append(r.Countries, countryStats(s))
	}
	r.Eligible = EligibleRegressionCountries(ds, opt.ExpectedSamples)
	if len(r.Eligible) == 0 && ds.Len() > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("no country has exactly %d records; the regression view has nothing to offer", opt.ExpectedSamples))
	}
	return r
}

func countryStats(s *CountrySeries) CountryStats {
	cs := CountryStats{Country: s.Country, Currency: s.CurrencyCode, Count: s.Len()}
	sorted := append([]float64(nil), s.USDPrices...)
	sort.Float64s(sorted)
	cs.Min = sorted[0]
	cs.Max = sorted[len(sorted)-1]
	cs.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if len(sorted) > 1 {
		cs.Mean, cs.Std = stat.MeanStdDev(sorted, nil)
	} else {
		cs.Mean = sorted[0]
	}
	return cs
}

// reasonKind strips the quoted value from reasons such as `invalid date "x"`.
func reasonKind(reason string) string {
	if i := strings.IndexByte(reason, '"'); i > 0 {
		return strings.TrimSpace(reason[:i])
	}
	return reason
}

// Markdown renders the report for the terminal or a standalone document.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	if r.Fingerprint != "" {
		b.WriteString(fmt.Sprintf("Fingerprint: %s\n", r.Fingerprint))
	}
	b.WriteString(fmt.Sprintf("Rows: %d read, %d kept, %d dropped\n", r.RowsRead, r.Kept, r.RowsRead-r.Kept))
	if r.FirstDate != "" {
		b.WriteString(fmt.Sprintf("Dates: %s to %s (%d unique)\n", r.FirstDate, r.LastDate, r.UniqueDates))
	}
	b.WriteString(fmt.Sprintf("Countries: %d\n", len(r.Countries)))

	if len(r.Countries) > 0 {
		b.WriteString("\n[COUNTRIES]\n")
		b.WriteString("| country | currency | n | min | max | mean | median | std |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- | --- | --- |\n")
		for _, c := range r.Countries {
			b.WriteString(fmt.Sprintf("| %s | %s | %d | %.2f | %.2f | %.2f | %.2f | %.2f |\n",
				safeVal(c.Country), safeVal(c.Currency), c.Count, c.Min, c.Max, c.Mean, c.Median, c.Std))
		}
	}

	b.WriteString(fmt.Sprintf("\n[REGRESSION ELIGIBLE] (n=%d)\n", r.Expected))
	if len(r.Eligible) == 0 {
		b.WriteString("- none\n")
	} else {
		b.WriteString("- ")
		b.WriteString(strings.Join(r.Eligible, ", "))
		b.WriteString("\n")
	}

	if len(r.DropReasons) > 0 {
		b.WriteString("\n[DROPPED ROWS]\n")
		kinds := make([]string, 0, len(r.DropReasons))
		for k := range r.DropReasons {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			b.WriteString(fmt.Sprintf("- %s: %d\n", k, r.DropReasons[k]))
		}
		for _, d := range r.Dropped {
			name := d.Country
			if name == "" {
				name = "(unnamed)"
			}
			b.WriteString(fmt.Sprintf("  • row %d %s: %s\n", d.Row, safeVal(name), safeVal(d.Reason)))
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
