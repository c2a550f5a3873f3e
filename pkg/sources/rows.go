// Package sources reads the per-location CSV and JSON assets behind the flow map.
package sources

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var ErrEmptyCSV = errors.New("csv has no header row")

// Row is one CSV record keyed by header. Values are nil, bool, float64 or string.
type Row map[string]any

var numberPattern = regexp.MustCompile(`^\s*-?(\d+\.?|\.\d+|\d+\.\d+)([eE][-+]?\d+)?\s*$`)

// ParseRows reads a header-row CSV, skipping blank lines. Cells are typed
// loosely: empty cells are nil, true/false become bools, dot-decimal numbers
// become float64 and everything else stays a string, so "40,98" is a string.
func ParseRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = h
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		if blank(record) {
			continue
		}
		row := make(Row, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(record) {
				row[h] = typed(record[i])
			} else {
				row[h] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func typed(cell string) any {
	switch {
	case cell == "":
		return nil
	case cell == "true" || cell == "TRUE" || cell == "True":
		return true
	case cell == "false" || cell == "FALSE" || cell == "False":
		return false
	case numberPattern.MatchString(cell):
		if f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
			return f
		}
	}
	return cell
}

// truthy reports whether a cell counts as present: non-empty strings,
// non-zero numbers and true.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	}
	return true
}

// text renders a cell as a display string.
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

// Text returns the named column as a string, or "" when it is missing.
func (r Row) Text(column string) string { return text(r[column]) }

// First returns the first truthy column of names, rendered as text.
func (r Row) First(names ...string) string {
	for _, n := range names {
		if v, ok := r[n]; ok && truthy(v) {
			return text(v)
		}
	}
	return ""
}

// Visitors reads visitor_count the same way destination rows do.
func (r Row) Visitors() (int, bool) {
	n, ok := visitorCount(r["visitor_count"])
	return n, ok && n >= 1
}
