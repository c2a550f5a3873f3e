package flowengine

import (
	"errors"
	"fmt"
	"image/color"
	"math"
)

var (
	ErrCoincident      = errors.New("destination coincides with origin")
	ErrInvalidMaximum  = errors.New("maximum visitor count must be positive")
	ErrInvalidLocation = errors.New("coordinate out of range")
)

const curveSamples = 20

// ArcColor is an index into Palette.
type ArcColor int

var Palette = [...]color.RGBA{
	{255, 71, 87, 255},  // Red
	{255, 165, 2, 255},  // Orange
	{46, 213, 115, 255}, // Green
	{30, 144, 255, 255}, // Blue
	{165, 94, 234, 255}, // Purple
}

func PaletteColor(index int) ArcColor {
	n := len(Palette)
	return ArcColor(((index % n) + n) % n)
}

func (c ArcColor) RGBA() color.RGBA { return Palette[int(c)%len(Palette)] }

func (c ArcColor) Hex() string {
	rgba := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", rgba.R, rgba.G, rgba.B)
}

// Arc is the curve and styling for one origin→destination flow.
type Arc struct {
	Origin       GeoPoint   `json:"origin"`
	Destination  GeoPoint   `json:"destination"`
	ControlPoint GeoPoint   `json:"controlPoint"`
	Curve        []GeoPoint `json:"curve"`
	Color        ArcColor   `json:"color"`
	Normalized   float64    `json:"normalized"`
	StrokeWeight float64    `json:"strokeWeight"`
	MarkerRadius float64    `json:"markerRadius"`
	DashPeriod   float64    `json:"dashPeriod"`
}

// Normalize scales a visitor count into [0.3, 1.0] relative to the maximum.
func Normalize(visitorCount, maxVisitorCount int) float64 {
	return 0.3 + (float64(visitorCount)/float64(maxVisitorCount))*0.7
}

// BuildArc bends a quadratic Bézier curve from origin to destination. The
// control point sits off the midpoint, perpendicular to the chord, at a fifth
// of the chord length.
func BuildArc(origin, destination GeoPoint, visitorCount, maxVisitorCount, colorIndex int) (Arc, error) {
	if maxVisitorCount <= 0 {
		return Arc{}, ErrInvalidMaximum
	}
	if !origin.Valid() || !destination.Valid() {
		return Arc{}, ErrInvalidLocation
	}

	normalized := Normalize(visitorCount, maxVisitorCount)

	dLat := destination.Lat - origin.Lat
	dLng := destination.Lng - origin.Lng
	distance := math.Hypot(dLat, dLng)
	if distance == 0 {
		return Arc{}, ErrCoincident
	}

	mid := GeoPoint{Lat: (origin.Lat + destination.Lat) / 2, Lng: (origin.Lng + destination.Lng) / 2}
	controlHeight := distance * 0.2
	// (dLat, dLng) rotated by 90 degrees, unit length
	perpLat, perpLng := -dLng/distance, dLat/distance
	control := GeoPoint{Lat: mid.Lat + perpLat*controlHeight, Lng: mid.Lng + perpLng*controlHeight}

	curve := make([]GeoPoint, 0, curveSamples+1)
	for i := 0; i <= curveSamples; i++ {
		curve = append(curve, bezier(origin, control, destination, float64(i)/curveSamples))
	}

	return Arc{
		Origin:       origin,
		Destination:  destination,
		ControlPoint: control,
		Curve:        curve,
		Color:        PaletteColor(colorIndex),
		Normalized:   normalized,
		StrokeWeight: 2 + normalized*3,
		MarkerRadius: 5 + normalized*5,
		DashPeriod:   5 + normalized*5,
	}, nil
}

func bezier(p0, p1, p2 GeoPoint, t float64) GeoPoint {
	u := 1 - t
	a, b, c := u*u, 2*u*t, t*t
	return GeoPoint{
		Lat: a*p0.Lat + b*p1.Lat + c*p2.Lat,
		Lng: a*p0.Lng + b*p1.Lng + c*p2.Lng,
	}
}

// ArcResult pairs a destination with its arc, or the reason it has none.
type ArcResult struct {
	Rank        int
	Destination DestinationPoint
	Arc         Arc
	Err         error
}

// BuildArcs builds one arc per ranked destination. Colors follow rank order.
func BuildArcs(origin GeoPoint, ranked []DestinationPoint) []ArcResult {
	maxVisitors := 0
	for _, d := range ranked {
		if d.VisitorCount > maxVisitors {
			maxVisitors = d.VisitorCount
		}
	}
	results := make([]ArcResult, 0, len(ranked))
	for i, d := range ranked {
		arc, err := BuildArc(origin, d.Location, d.VisitorCount, maxVisitors, i)
		results = append(results, ArcResult{Rank: i + 1, Destination: d, Arc: arc, Err: err})
	}
	return results
}
