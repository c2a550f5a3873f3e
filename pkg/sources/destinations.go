package sources

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sudorandom/flow-map/pkg/flowengine"
)

const UnknownLocation = "Unknown Location"

var (
	nameColumns     = []string{"place_name", "MusteriTabelaAdi", "name", "Name"}
	categoryColumns = []string{"MusteriCesidi", "category", "Category"}

	leadingInt = regexp.MustCompile(`^[+-]?\d+`)
)

// ParseStats counts what happened to the rows of one destination file.
type ParseStats struct {
	Total   int `json:"total"`
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`
}

// NormalizeRow turns a raw row into a destination. Coordinates come from
// KoordinatX/KoordinatY (lat/lng) when both are set, otherwise from
// latitude/longitude. Rows without usable coordinates or a visitor count of
// at least one are rejected.
func NormalizeRow(row Row) (flowengine.DestinationPoint, bool) {
	var latV, lngV any
	switch {
	case truthy(row["KoordinatX"]) && truthy(row["KoordinatY"]):
		latV, lngV = row["KoordinatX"], row["KoordinatY"]
	case truthy(row["latitude"]) && truthy(row["longitude"]):
		latV, lngV = row["latitude"], row["longitude"]
	default:
		return flowengine.DestinationPoint{}, false
	}

	lat, ok := coordinate(latV)
	if !ok {
		return flowengine.DestinationPoint{}, false
	}
	lng, ok := coordinate(lngV)
	if !ok {
		return flowengine.DestinationPoint{}, false
	}
	loc := flowengine.GeoPoint{Lat: lat, Lng: lng}
	if !loc.Valid() {
		return flowengine.DestinationPoint{}, false
	}

	visitors, ok := visitorCount(row["visitor_count"])
	if !ok || visitors < 1 {
		return flowengine.DestinationPoint{}, false
	}

	name := row.First(nameColumns...)
	if name == "" {
		name = UnknownLocation
	}
	category := row.First(categoryColumns...)
	if category == "" {
		category = flowengine.DefaultCategory
	}

	return flowengine.DestinationPoint{
		Name:         name,
		Location:     loc,
		VisitorCount: visitors,
		Category:     category,
	}, true
}

// coordinate accepts numbers and strings with stray quotes or a comma
// decimal separator.
func coordinate(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x) && !math.IsInf(x, 0)
	case string:
		s := strings.NewReplacer(`"`, "", `'`, "", ",", ".").Replace(x)
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// visitorCount reads an integer the way a lenient integer parse would:
// numbers truncate and strings keep their leading digits.
func visitorCount(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(math.Trunc(x)), true
	case string:
		m := leadingInt.FindString(strings.TrimSpace(strings.Trim(x, `"'`)))
		if m == "" {
			return 0, false
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// NormalizeRows keeps the rows that normalize, in input order.
func NormalizeRows(rows []Row) ([]flowengine.DestinationPoint, ParseStats) {
	stats := ParseStats{Total: len(rows)}
	points := make([]flowengine.DestinationPoint, 0, len(rows))
	for _, r := range rows {
		if p, ok := NormalizeRow(r); ok {
			points = append(points, p)
		}
	}
	stats.Kept = len(points)
	stats.Dropped = stats.Total - stats.Kept
	return points, stats
}

// ParseDestinations reads a destination CSV and returns its valid rows.
func ParseDestinations(r io.Reader) ([]flowengine.DestinationPoint, ParseStats, error) {
	rows, err := ParseRows(r)
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("parse destinations: %w", err)
	}
	points, stats := NormalizeRows(rows)
	return points, stats, nil
}
