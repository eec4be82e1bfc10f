package dataset

import (
	"strings"
	"time"
)

// DateLayout is the ISO date format used by the source and by prediction queries.
const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Epoch is day offset 0.
var Epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// PriceRecord is one observation of a Big Mac price in one country on one date.
type PriceRecord struct {
	Country      string  `json:"country"`
	Date         int     `json:"date"`
	USDPrice     float64 `json:"usd_price"`
	LocalPrice   float64 `json:"local_price"`
	CurrencyCode string  `json:"currency_code"`
	ExchangeRate float64 `json:"exchange_rate"`
}

// DroppedRow describes a source row excluded at load time.
type DroppedRow struct {
	Row     int    `json:"row"`
	Country string `json:"country,omitempty"`
	Reason  string `json:"reason"`
}

// Diagnostics reports what the loader did with the source rows.
type Diagnostics struct {
	RowsRead int          `json:"rows_read"`
	Dropped  []DroppedRow `json:"dropped,omitempty"`
}

// Dataset is the cleaned table, sorted ascending by Date.
// It is never mutated after Load returns and may be shared between goroutines.
type Dataset struct {
	Name        string
	Fingerprint string
	Records     []PriceRecord
	Diagnostics Diagnostics
}

// Len returns the number of kept records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// DayOffset converts t to whole days since Epoch. The time of day is ignored.
func DayOffset(t time.Time) int {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int((day.Unix() - Epoch.Unix()) / secondsPerDay)
}

// DateFromOffset is the inverse of DayOffset.
func DateFromOffset(offset int) time.Time {
	return Epoch.AddDate(0, 0, offset)
}

// ParseDayOffset parses an ISO date (YYYY-MM-DD) into a day offset.
func ParseDayOffset(s string) (int, error) {
	v := strings.TrimSpace(s)
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return 0, &InvalidDateError{Input: s, Err: err}
	}
	return DayOffset(t), nil
}
