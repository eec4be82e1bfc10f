package dataset

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Format identifies a tabular source encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
	FormatSQLite  Format = "sqlite"
)

// Columns maps the logical record fields to source column names.
type Columns struct {
	Country      string `mapstructure:"country" yaml:"country"`
	Date         string `mapstructure:"date" yaml:"date"`
	USDPrice     string `mapstructure:"usd_price" yaml:"usd_price"`
	LocalPrice   string `mapstructure:"local_price" yaml:"local_price"`
	CurrencyCode string `mapstructure:"currency_code" yaml:"currency_code"`
	ExchangeRate string `mapstructure:"exchange_rate" yaml:"exchange_rate"`
}

// DefaultColumns returns the column names of The Economist's Big Mac index file.
func DefaultColumns() Columns {
	return Columns{
		Country:      "name",
		Date:         "date",
		USDPrice:     "dollar_price",
		LocalPrice:   "local_price",
		CurrencyCode: "currency_code",
		ExchangeRate: "dollar_ex",
	}
}

func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if c.Country == "" {
		c.Country = d.Country
	}
	if c.Date == "" {
		c.Date = d.Date
	}
	if c.USDPrice == "" {
		c.USDPrice = d.USDPrice
	}
	if c.LocalPrice == "" {
		c.LocalPrice = d.LocalPrice
	}
	if c.CurrencyCode == "" {
		c.CurrencyCode = d.CurrencyCode
	}
	if c.ExchangeRate == "" {
		c.ExchangeRate = d.ExchangeRate
	}
	return c
}

// S3Options configures access to s3:// sources.
type S3Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Source describes where and how to read the dataset. It is passed explicitly
// into Load; there is no package-level source location.
type Source struct {
	// Path is a local file path or an s3://bucket/key URI.
	Path string
	// Format overrides detection by file extension.
	Format Format
	// Delimiter for CSV. If 0, ',' for .csv and '\t' for .tsv.
	Delimiter rune
	// Sheet selects the XLSX sheet; empty means the first sheet.
	Sheet string
	// Table is the SQLite table holding the records.
	Table   string
	Columns Columns
	S3      S3Options
}

// Name returns the base name of the source for reports and logs.
func (s Source) Name() string {
	return path.Base(strings.TrimSuffix(s.Path, "/"))
}

// Key identifies how the source is read: location, format options and the
// column mapping. Credentials are not part of it.
func (s Source) Key() string {
	return hashKey(sourceKey(s))
}

func (s Source) isS3() bool {
	return strings.HasPrefix(strings.ToLower(s.Path), "s3://")
}

// resolveFormat picks the reader format from the override or the extension of p.
func (s Source) resolveFormat(p string) (Format, error) {
	if s.Format != "" {
		return Format(strings.ToLower(string(s.Format))), nil
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".tsv":
		return FormatTSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("cannot infer format from %q", path.Base(p))
}

// table is the format-neutral result of a reader: a header and string cells.
// Empty cells stand for nulls.
type table struct {
	header []string
	rows   [][]string
}

// tableReader reads one source format.
type tableReader interface {
	Read(ctx context.Context, localPath string, src Source) (*table, error)
}

var readers = map[Format]tableReader{}

// register adds a reader implementation for the given formats.
func register(r tableReader, formats ...Format) {
	for _, f := range formats {
		readers[f] = r
	}
}

func init() {
	register(csvReader{}, FormatCSV, FormatTSV)
	register(xlsxReader{}, FormatXLSX)
	register(parquetReader{}, FormatParquet)
	register(sqliteReader{}, FormatSQLite)
}
