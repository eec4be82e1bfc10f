package dataset

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

// ParquetRecord is the on-disk layout of a Parquet source. Every column is
// optional so that null prices and dates survive until the loader filters them.
type ParquetRecord struct {
	Name         *string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Date         *string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	DollarPrice  *float64 `parquet:"name=dollar_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	LocalPrice   *float64 `parquet:"name=local_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	CurrencyCode *string  `parquet:"name=currency_code, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	DollarEx     *float64 `parquet:"name=dollar_ex, type=DOUBLE, repetitiontype=OPTIONAL"`
}

var parquetColumns = []string{"name", "date", "dollar_price", "local_price", "currency_code", "dollar_ex"}

type parquetReader struct{}

// Read loads every row group. Parquet sources use the fixed column names of
// ParquetRecord; the Columns mapping of Source does not apply.
func (parquetReader) Read(ctx context.Context, localPath string, _ Source) (*table, error) {
	fr, err := local.NewLocalFileReader(localPath)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(ParquetRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("read parquet footer: %w", err)
	}
	defer pr.ReadStop()

	present := map[string]bool{}
	for _, el := range pr.Footer.Schema {
		present[strings.ToLower(el.Name)] = true
	}
	for _, c := range parquetColumns {
		if !present[c] {
			return nil, fmt.Errorf("missing required column %q", c)
		}
	}

	n := int(pr.GetNumRows())
	recs := make([]ParquetRecord, n)
	if n > 0 {
		if err := pr.Read(&recs); err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := &table{header: append([]string(nil), parquetColumns...), rows: make([][]string, 0, n)}
	for _, r := range recs {
		t.rows = append(t.rows, []string{
			strOrEmpty(r.Name),
			strOrEmpty(r.Date),
			floatOrEmpty(r.DollarPrice),
			floatOrEmpty(r.LocalPrice),
			strOrEmpty(r.CurrencyCode),
			floatOrEmpty(r.DollarEx),
		})
	}
	return t, nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatOrEmpty(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}
