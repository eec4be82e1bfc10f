package analysis

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/KaramelBytes/macindex/internal/dataset"
)

func rec(country string, date int, usd, local float64) dataset.PriceRecord {
	return dataset.PriceRecord{Country: country, Date: date, USDPrice: usd, LocalPrice: local, CurrencyCode: strings.ToUpper(country[:3])}
}

func sampleDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Name: "sample",
		Records: []dataset.PriceRecord{
			rec("Brazil", 0, 1.5, 2.9),
			rec("Canada", 0, 2.0, 2.8),
			rec("Denmark", 0, 4.0, 24),
			rec("Brazil", 182, 1.7, 3.1),
			rec("Canada", 182, 2.2, 3.0),
			rec("Brazil", 365, 2.1, 3.4),
		},
		Diagnostics: dataset.Diagnostics{RowsRead: 7, Dropped: []dataset.DroppedRow{{Row: 4, Country: "Denmark", Reason: "missing usd price"}}},
	}
}

func TestSeriesFor(t *testing.T) {
	s, err := SeriesFor(sampleDataset(), "Brazil")
	if err != nil {
		t.Fatalf("SeriesFor: %v", err)
	}
	if s.Len() != 3 || len(s.USDPrices) != 3 || len(s.LocalPrices) != 3 {
		t.Fatalf("series = %+v", s)
	}
	if s.Dates[0] != 0 || s.Dates[2] != 365 || s.USDPrices[1] != 1.7 || s.LocalPrices[2] != 3.4 {
		t.Fatalf("series values = %+v", s)
	}
	if s.CurrencyCode != "BRA" {
		t.Fatalf("currency = %q", s.CurrencyCode)
	}
}

func TestSeriesForUnknownCountry(t *testing.T) {
	for _, name := range []string{"Narnia", "", "brazil"} {
		_, err := SeriesFor(sampleDataset(), name)
		var ue *UnknownCountryError
		if !errors.As(err, &ue) {
			t.Fatalf("SeriesFor(%q) error = %v, want UnknownCountryError", name, err)
		}
	}
	if _, err := SeriesFor(nil, "Brazil"); err == nil {
		t.Fatalf("nil dataset should fail")
	}
}

func TestAverageSeries(t *testing.T) {
	pts := AverageSeries(sampleDataset())
	if len(pts) != 3 {
		t.Fatalf("points = %+v, want 3 unique dates", pts)
	}
	want := []AveragePoint{
		{Date: 0, MeanUSDPrice: 2.5, Count: 3},
		{Date: 182, MeanUSDPrice: 1.95, Count: 2},
		{Date: 365, MeanUSDPrice: 2.1, Count: 1},
	}
	for i, w := range want {
		got := pts[i]
		if got.Date != w.Date || got.Count != w.Count || math.Abs(got.MeanUSDPrice-w.MeanUSDPrice) > 1e-12 {
			t.Fatalf("point %d = %+v, want %+v", i, got, w)
		}
	}
	if AverageSeries(&dataset.Dataset{}) != nil {
		t.Fatalf("empty dataset should have no points")
	}
}

func synthetic(counts map[string]int) *dataset.Dataset {
	ds := &dataset.Dataset{}
	for i := 0; i < 40; i++ {
		for name, n := range counts {
			if i < n {
				ds.Records = append(ds.Records, rec(name, i*182, 2+float64(i)/10, 10))
			}
		}
	}
	return ds
}

func TestEligibleRegressionCountries(t *testing.T) {
	ds := synthetic(map[string]int{"Short": 36, "Exact": 37, "Long": 38, "AlsoExact": 37})
	got := EligibleRegressionCountries(ds, 37)
	if strings.Join(got, ",") != "AlsoExact,Exact" {
		t.Fatalf("eligible = %v", got)
	}
	if def := EligibleRegressionCountries(ds, 0); strings.Join(def, ",") != "AlsoExact,Exact" {
		t.Fatalf("default threshold eligible = %v", def)
	}
	if got := EligibleRegressionCountries(ds, 36); strings.Join(got, ",") != "Short" {
		t.Fatalf("eligible(36) = %v", got)
	}
}

func TestCountriesExcludesAliases(t *testing.T) {
	ds := sampleDataset()
	ds.Records = append(ds.Records, rec("United Arab Emirates", 365, 3.5, 13), rec("UAE", 365, 3.5, 13))
	ds.Records = append(ds.Records, dataset.PriceRecord{Country: "", Date: 365, USDPrice: 1, LocalPrice: 1})
	got := Countries(ds, "united arab emirates")
	if strings.Join(got, ",") != "Brazil,Canada,Denmark,UAE" {
		t.Fatalf("countries = %v", got)
	}
}
