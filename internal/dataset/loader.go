package dataset

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// nullTokens are the cell values treated as missing, in addition to "".
var nullTokens = map[string]bool{
	"na": true, "n/a": true, "nan": true, "null": true, "none": true, "#n/a": true, "-nan": true,
}

func isNull(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || nullTokens[strings.ToLower(v)]
}

// Load reads the full source, drops rows with a missing or unparsable date,
// USD price or local price, derives day offsets and sorts by date.
// Dropped rows are not an error; they are listed in Dataset.Diagnostics.
func Load(ctx context.Context, src Source) (*Dataset, error) {
	if strings.TrimSpace(src.Path) == "" {
		return nil, formatErr("", "no source configured", nil)
	}
	localPath, etag := src.Path, ""
	if src.isS3() {
		tmp, tag, err := downloadS3(ctx, src)
		if err != nil {
			return nil, formatErr(src.Path, "unreadable source", err)
		}
		defer os.Remove(tmp)
		localPath, etag = tmp, tag
	}
	format, err := src.resolveFormat(src.Path)
	if err != nil {
		return nil, formatErr(src.Path, "unknown format", err)
	}
	r, ok := readers[format]
	if !ok {
		return nil, formatErr(src.Path, "unsupported format "+string(format), nil)
	}
	t, err := r.Read(ctx, localPath, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, formatErr(src.Path, "unreadable source", err)
	}
	cols := src.Columns.withDefaults()
	if format == FormatParquet {
		cols = DefaultColumns()
	}
	ds, err := build(t, cols)
	if err != nil {
		return nil, formatErr(src.Path, err.Error(), nil)
	}
	ds.Name = src.Name()
	if etag != "" {
		ds.Fingerprint = s3Fingerprint(src, etag)
	}
	return ds, nil
}

type columnSet struct {
	country, date, usd, local, currency, rate int
}

func resolveColumns(header []string, cols Columns) (columnSet, error) {
	var missing []string
	find := func(name string) int {
		i := columnIndex(header, name)
		if i < 0 {
			missing = append(missing, name)
		}
		return i
	}
	cs := columnSet{
		country:  find(cols.Country),
		date:     find(cols.Date),
		usd:      find(cols.USDPrice),
		local:    find(cols.LocalPrice),
		currency: find(cols.CurrencyCode),
		rate:     find(cols.ExchangeRate),
	}
	if len(missing) > 0 {
		return cs, fmt.Errorf("missing required column(s): %s", strings.Join(missing, ", "))
	}
	return cs, nil
}

// columnIndex finds name in header, ignoring case and surrounding spaces.
func columnIndex(header []string, name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return i
		}
	}
	return -1
}

func build(t *table, cols Columns) (*Dataset, error) {
	cs, err := resolveColumns(t.header, cols)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{Records: make([]PriceRecord, 0, len(t.rows))}
	ds.Diagnostics.RowsRead = len(t.rows)
	for i, row := range t.rows {
		cell := func(idx int) string {
			if idx < len(row) {
				return strings.TrimSpace(row[idx])
			}
			return ""
		}
		country := cell(cs.country)
		rec, reason := parseRecord(country, cell(cs.date), cell(cs.usd), cell(cs.local))
		if reason != "" {
			ds.Diagnostics.Dropped = append(ds.Diagnostics.Dropped, DroppedRow{Row: i + 1, Country: country, Reason: reason})
			continue
		}
		rec.CurrencyCode = cell(cs.currency)
		if rate, err := strconv.ParseFloat(cell(cs.rate), 64); err == nil {
			rec.ExchangeRate = rate
		}
		ds.Records = append(ds.Records, rec)
	}
	sort.SliceStable(ds.Records, func(i, j int) bool {
		return ds.Records[i].Date < ds.Records[j].Date
	})
	return ds, nil
}

// parseRecord returns a non-empty reason when the row must be dropped.
func parseRecord(country, date, usd, local string) (PriceRecord, string) {
	switch {
	case isNull(date):
		return PriceRecord{}, "missing date"
	case isNull(usd):
		return PriceRecord{}, "missing usd price"
	case isNull(local):
		return PriceRecord{}, "missing local price"
	}
	offset, ok := parseSourceDate(date)
	if !ok {
		return PriceRecord{}, "invalid date " + strconv.Quote(date)
	}
	u, err := strconv.ParseFloat(usd, 64)
	if err != nil {
		return PriceRecord{}, "invalid usd price " + strconv.Quote(usd)
	}
	l, err := strconv.ParseFloat(local, 64)
	if err != nil {
		return PriceRecord{}, "invalid local price " + strconv.Quote(local)
	}
	return PriceRecord{Country: country, Date: offset, USDPrice: u, LocalPrice: l}, ""
}

// parseSourceDate accepts the ISO date and, for exports that kept a time part,
// RFC3339 or "YYYY-MM-DD HH:MM:SS".
func parseSourceDate(s string) (int, bool) {
	for _, layout := range []string{DateLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return DayOffset(t), true
		}
	}
	return 0, false
}
