package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

// DefaultTable is the SQLite table read when Source.Table is empty.
const DefaultTable = "big_mac_index"

type sqliteReader struct{}

// Read selects every column of the configured table. Values are scanned as
// strings so numeric and text affinities share one null-filtering path.
func (sqliteReader) Read(ctx context.Context, localPath string, src Source) (*table, error) {
	// sql.Open would create a missing database file.
	if _, err := os.Stat(localPath); err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db, err := sql.Open("sqlite", localPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	name := src.Table
	if name == "" {
		name = DefaultTable
	}
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(name))
	if err != nil {
		return nil, fmt.Errorf("query table %s: %w", name, err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	t := &table{header: header}
	for rows.Next() {
		vals := make([]sql.NullString, len(header))
		dest := make([]any, len(header))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(t.rows)+1, err)
		}
		rec := make([]string, len(header))
		for i, v := range vals {
			if v.Valid {
				rec[i] = v.String
			}
		}
		t.rows = append(t.rows, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return t, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
