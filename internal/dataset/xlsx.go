package dataset

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

type xlsxReader struct{}

// Read loads the selected sheet (or the first one). Date cells stored as Excel
// serial numbers are converted to ISO strings so they share the CSV date path.
func (xlsxReader) Read(ctx context.Context, localPath string, src Source) (*table, error) {
	f, err := excelize.OpenFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := sheets[0]
	if src.Sheet != "" {
		sheet = ""
		for _, s := range sheets {
			if strings.EqualFold(s, src.Sheet) {
				sheet = s
				break
			}
		}
		if sheet == "" {
			return nil, fmt.Errorf("sheet '%s' not found; available sheets: %s", src.Sheet, strings.Join(sheets, ", "))
		}
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("empty sheet")
	}
	t := &table{header: rows[0], rows: rows[1:]}
	dateIdx := columnIndex(t.header, src.Columns.withDefaults().Date)
	if dateIdx < 0 {
		return t, nil
	}
	for _, row := range t.rows {
		if dateIdx >= len(row) {
			continue
		}
		serial, err := strconv.ParseFloat(strings.TrimSpace(row[dateIdx]), 64)
		if err != nil {
			continue
		}
		if tm, err := excelize.ExcelDateToTime(serial, false); err == nil {
			row[dateIdx] = tm.Format(DateLayout)
		}
	}
	return t, nil
}
