package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

type csvReader struct{}

func (csvReader) Read(ctx context.Context, localPath string, src Source) (*table, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	delim := src.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(localPath, src.Format)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comma = delim

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	// Strip a UTF-8 BOM left by spreadsheet exports.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t := &table{header: header}
	ncol := len(header)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(t.rows)+1, err)
		}
		if len(rec) < ncol {
			// Short rows are padded so every column index is addressable.
			tmp := make([]string, ncol)
			copy(tmp, rec)
			rec = tmp
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func sniffDelimiter(p string, format Format) rune {
	if format == FormatTSV || strings.HasSuffix(strings.ToLower(p), ".tsv") {
		return '\t'
	}
	return ','
}
