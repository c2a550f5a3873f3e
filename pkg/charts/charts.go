// Package charts turns raw location rows into the grouped tables behind the
// dashboard's pie and bar charts.
package charts

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sudorandom/flow-map/pkg/sources"
)

var (
	ErrUnknownKind = errors.New("unknown chart kind")
	ErrNoData      = errors.New("no rows to chart")
)

// Kind names one of the dashboard's aggregate charts.
type Kind string

const (
	VisitorSegments Kind = "segments"
	SalesChannels   Kind = "channels"
	CustomerTypes   Kind = "customers"
)

// Slice is one group of a chart.
type Slice struct {
	Label    string  `json:"label"`
	Visitors int     `json:"visitors"`
	Share    float64 `json:"share"`
}

// Table is a chart's data, largest group first.
type Table struct {
	Kind     Kind    `json:"kind"`
	Title    string  `json:"title"`
	Total    int     `json:"total"`
	Slices   []Slice `json:"slices"`
	Fallback string  `json:"-"`
}

type builder struct {
	title    string
	columns  []string
	fallback string
}

var builders = map[Kind]builder{
	VisitorSegments: {"Visitor Segments", []string{"visitor_segment", "Segment"}, "Other"},
	SalesChannels:   {"Sales Channels", []string{"sales_channel", "SatisKanali"}, "Unknown Channel"},
	CustomerTypes:   {"Customer Types", []string{"MusteriCesidi", "customer_type"}, "Unspecified"},
}

// Kinds lists the chart kinds in display order.
func Kinds() []Kind { return []Kind{VisitorSegments, SalesChannels, CustomerTypes} }

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := builders[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Build aggregates rows for one chart kind.
func Build(kind Kind, rows []sources.Row) (Table, error) {
	b, ok := builders[kind]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if len(rows) == 0 {
		return Table{}, ErrNoData
	}
	slices := Aggregate(rows, b.columns, b.fallback)
	total := 0
	for _, s := range slices {
		total += s.Visitors
	}
	return Table{Kind: kind, Title: b.title, Total: total, Slices: slices, Fallback: b.fallback}, nil
}

// Aggregate groups rows by the first populated column and sums their
// visitor_count. A row without a usable count stands for one visitor. Share
// is the percentage of all visitors.
func Aggregate(rows []sources.Row, columns []string, fallbackLabel string) []Slice {
	sums := make(map[string]int)
	total := 0
	for _, r := range rows {
		label := r.First(columns...)
		if label == "" {
			label = fallbackLabel
		}
		n, ok := r.Visitors()
		if !ok {
			n = 1
		}
		sums[label] += n
		total += n
	}

	out := make([]Slice, 0, len(sums))
	for label, n := range sums {
		s := Slice{Label: label, Visitors: n}
		if total > 0 {
			s.Share = float64(n) / float64(total) * 100
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Visitors != out[j].Visitors {
			return out[i].Visitors > out[j].Visitors
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Top keeps the n largest slices and folds the rest into one labelled other.
func (t Table) Top(n int, other string) Table {
	if n <= 0 || len(t.Slices) <= n {
		return t
	}
	rest := Slice{Label: other}
	for _, s := range t.Slices[n:] {
		rest.Visitors += s.Visitors
		rest.Share += s.Share
	}
	out := t
	out.Slices = append(append([]Slice(nil), t.Slices[:n]...), rest)
	return out
}
