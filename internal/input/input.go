// Package input loads protocol tables: CSV files with a header row and one row per
// sample, one column per compound holding the volume to transfer.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"pipetter/internal/logging"
	"strings"
)

// Table is a parsed CSV file. Rows map column name to raw cell text; cells missing
// from short rows are empty.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// Load reads the CSV file at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.Input("Loaded %d rows with %d columns from %s", len(t.Rows), len(t.Columns), path)
	return t, nil
}

// Parse reads a CSV table from r.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty input: no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true
		header[i] = name
	}

	t := &Table{Columns: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(t.Rows)+1, err)
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = rec[i]
			} else {
				row[name] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// RequireColumns checks that every named column is present.
func (t *Table) RequireColumns(names ...string) error {
	have := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		have[c] = true
	}
	var missing []string
	for _, n := range names {
		if !have[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("input is missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
