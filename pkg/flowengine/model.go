package flowengine

import (
	"fmt"
	"sort"
)

const (
	DefaultCategory = "Unspecified"
	DefaultMaxArcs  = 10
)

// DestinationPoint is a place customers visited, with how many of them went there.
type DestinationPoint struct {
	Name         string   `json:"name"`
	Location     GeoPoint `json:"location"`
	VisitorCount int      `json:"visitorCount"`
	Category     string   `json:"category"`
}

// OriginPoint is the restaurant every arc starts from.
type OriginPoint struct {
	Location GeoPoint `json:"location"`
	Label    string   `json:"label"`
}

// Dataset is everything one location contributes to a rendering pass.
type Dataset struct {
	Location     string             `json:"location"`
	DisplayName  string             `json:"displayName"`
	Origin       OriginPoint        `json:"origin"`
	Destinations []DestinationPoint `json:"destinations"`
	Fallback     bool               `json:"fallback"`
	RowsTotal    int                `json:"rowsTotal"`
	RowsKept     int                `json:"rowsKept"`
}

// Select ranks destinations by visitor count, highest first, keeping input
// order for ties, and returns at most max of them. The input is not modified.
func Select(points []DestinationPoint, max int) []DestinationPoint {
	if max <= 0 {
		max = DefaultMaxArcs
	}
	ranked := make([]DestinationPoint, len(points))
	copy(ranked, points)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].VisitorCount > ranked[j].VisitorCount
	})
	if len(ranked) > max {
		ranked = ranked[:max]
	}
	return ranked
}

// DetailField is one labelled row of a detail panel.
type DetailField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Detail is the panel shown for a selected marker.
type Detail struct {
	Title  string        `json:"title"`
	Fields []DetailField `json:"fields"`
}

func DestinationDetail(d DestinationPoint, rank int) *Detail {
	return &Detail{
		Title: d.Name,
		Fields: []DetailField{
			{Label: "Rank", Value: fmt.Sprintf("#%d", rank)},
			{Label: "Visitors", Value: fmt.Sprintf("%d", d.VisitorCount)},
			{Label: "Category", Value: d.Category},
			{Label: "Coordinates", Value: fmt.Sprintf("%.5f, %.5f", d.Location.Lat, d.Location.Lng)},
		},
	}
}

func OriginDetail(o OriginPoint, destinations int) *Detail {
	return &Detail{
		Title: o.Label,
		Fields: []DetailField{
			{Label: "Destinations", Value: fmt.Sprintf("%d", destinations)},
			{Label: "Coordinates", Value: fmt.Sprintf("%.5f, %.5f", o.Location.Lat, o.Location.Lng)},
		},
	}
}
