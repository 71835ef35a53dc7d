package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format is a tabular file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".tsv":
		return FormatTSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	}
	return "", eris.Errorf("fetcher: unsupported table format %q", path)
}

// TableOptions configures ReadTable.
type TableOptions struct {
	Sheet XLSXOptions
	CSV   CSVOptions
}

// Table is a header-keyed tabular file. The first non-empty row is the
// header; fully blank rows are dropped.
type Table struct {
	Source string
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewTable builds a table from a header and data rows. Header names are
// trimmed and must be unique.
func NewTable(source string, header []string, rows [][]string) (*Table, error) {
	t := &Table{Source: source, Header: make([]string, len(header)), index: make(map[string]int, len(header))}
	for i, h := range header {
		name := strings.TrimSpace(h)
		t.Header[i] = name
		if name == "" {
			continue
		}
		if _, dup := t.index[name]; dup {
			return nil, eris.Errorf("fetcher: %s: duplicate column %q", source, name)
		}
		t.index[name] = i
	}
	for _, r := range rows {
		if !blank(r) {
			t.Rows = append(t.Rows, r)
		}
	}
	return t, nil
}

// Index returns the position of a column.
func (t *Table) Index(column string) (int, error) {
	i, ok := t.index[column]
	if !ok {
		return 0, eris.Errorf("fetcher: %s: column %q not found", t.Source, column)
	}
	return i, nil
}

// Has reports whether the column exists.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Cell returns row[i] trimmed, or "" when the row is short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ReadTable reads a CSV, TSV or XLSX file chosen by extension.
func ReadTable(ctx context.Context, path string, opts TableOptions) (*Table, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	switch format {
	case FormatXLSX:
		rows, err = ReadXLSX(path, opts.Sheet)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: read %s", path)
		}
	default:
		rows, err = readDelimited(ctx, path, format, opts.CSV)
		if err != nil {
			return nil, err
		}
	}

	for len(rows) > 0 && blank(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("fetcher: %s: no header row", path)
	}
	return NewTable(path, rows[0], rows[1:])
}

func readDelimited(ctx context.Context, path string, format Format, opts CSVOptions) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	if format == FormatTSV && opts.Delimiter == 0 {
		opts.Delimiter = '\t'
	}

	rowCh, errCh := StreamCSV(ctx, f, opts)
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: read %s", path)
		}
	}
	return rows, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
