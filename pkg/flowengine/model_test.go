package flowengine

import (
	"reflect"
	"testing"
)

func TestSelect(t *testing.T) {
	points := []DestinationPoint{
		{Name: "low", VisitorCount: 10},
		{Name: "tie-first", VisitorCount: 50},
		{Name: "high", VisitorCount: 209},
		{Name: "tie-second", VisitorCount: 50},
		{Name: "mid", VisitorCount: 100},
	}

	tests := []struct {
		max  int
		want []string
	}{
		{2, []string{"high", "mid"}},
		{4, []string{"high", "mid", "tie-first", "tie-second"}},
		{10, []string{"high", "mid", "tie-first", "tie-second", "low"}},
		{0, []string{"high", "mid", "tie-first", "tie-second", "low"}},
	}

	for _, tt := range tests {
		got := Select(points, tt.max)
		var names []string
		for _, p := range got {
			names = append(names, p.Name)
		}
		if !reflect.DeepEqual(names, tt.want) {
			t.Errorf("Select(max=%d) = %v; want %v", tt.max, names, tt.want)
		}
	}

	if points[0].Name != "low" || points[2].Name != "high" {
		t.Errorf("Select modified its input: %v", points)
	}
}

func TestSelectIdempotent(t *testing.T) {
	points := []DestinationPoint{
		{Name: "a", VisitorCount: 3}, {Name: "b", VisitorCount: 3}, {Name: "c", VisitorCount: 7},
		{Name: "d", VisitorCount: 3}, {Name: "e", VisitorCount: 1},
	}
	first := Select(points, 4)
	second := Select(points, 4)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Select is not stable across calls: %v vs %v", first, second)
	}
	again := Select(first, 4)
	if !reflect.DeepEqual(first, again) {
		t.Errorf("Select(Select(x)) = %v; want %v", again, first)
	}
	if len(first) != 4 {
		t.Errorf("len = %d; want min(5, 4)", len(first))
	}
	for i := 1; i < len(first); i++ {
		if first[i].VisitorCount > first[i-1].VisitorCount {
			t.Errorf("not non-increasing at %d: %v", i, first)
		}
	}
}

func TestSelectEmpty(t *testing.T) {
	if got := Select(nil, 5); len(got) != 0 {
		t.Errorf("Select(nil) = %v; want empty", got)
	}
}

func TestDestinationDetail(t *testing.T) {
	d := DestinationPoint{Name: "Moda Sahil", Location: GeoPoint{40.98, 29.02}, VisitorCount: 150, Category: "Cafe"}
	detail := DestinationDetail(d, 2)
	if detail.Title != "Moda Sahil" {
		t.Errorf("Title = %q", detail.Title)
	}
	want := map[string]string{"Rank": "#2", "Visitors": "150", "Category": "Cafe", "Coordinates": "40.98000, 29.02000"}
	for _, f := range detail.Fields {
		if want[f.Label] != f.Value {
			t.Errorf("field %s = %q; want %q", f.Label, f.Value, want[f.Label])
		}
	}
}
