package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Row is one positional record from an import file. Column meaning is fixed
// per entity type. Rows are never mutated in place; address correction
// produces a fresh copy.
type Row []string

// Field returns the whitespace-trimmed value at the 0-based column index, or
// the empty string when the row is too short.
func (r Row) Field(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[i])
}

func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Source yields rows from a delimited file in order, lazily, single pass.
// Import files have no header row.
type Source struct {
	f   *os.File
	csv *csv.Reader
	n   int
}

func OpenSource(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file could not be opened: %w", err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	return &Source{f: f, csv: r}, nil
}

// Next returns the next row and its 1-based row number, or io.EOF when the
// file is exhausted.
func (s *Source) Next() (Row, int, error) {
	record, err := s.csv.Read()
	if err != nil {
		return nil, s.n, err
	}
	s.n++
	return Row(record), s.n, nil
}

func (s *Source) Close() error {
	return s.f.Close()
}

// ReadFile drains an import file into memory. Request bodies are still built
// lazily at dispatch time, so large per-row payloads are never all alive at
// once.
func ReadFile(path string) ([]Row, error) {
	src, err := OpenSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var rows []Row
	for {
		row, n, err := src.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", n+1, err)
		}
		rows = append(rows, row)
	}
}
