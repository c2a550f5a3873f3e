package sources

import "github.com/sudorandom/flow-map/pkg/flowengine"

var fallbackOffsets = []struct {
	name     string
	dLat     float64
	dLng     float64
	visitors int
	category string
}{
	{"Sample Office Park", 0.018, 0.012, 120, "Office"},
	{"Sample Residential Area", -0.015, 0.021, 95, "Residential"},
	{"Sample University", 0.024, -0.017, 80, "Education"},
	{"Sample Shopping Center", -0.011, -0.023, 60, "Retail"},
	{"Sample Transit Hub", 0.006, 0.031, 45, flowengine.DefaultCategory},
}

// FallbackDestinations is the small fixed set shown around an origin when
// its destination file cannot be fetched.
func FallbackDestinations(origin flowengine.OriginPoint) []flowengine.DestinationPoint {
	out := make([]flowengine.DestinationPoint, 0, len(fallbackOffsets))
	for _, f := range fallbackOffsets {
		p := flowengine.GeoPoint{Lat: origin.Location.Lat + f.dLat, Lng: origin.Location.Lng + f.dLng}
		if !p.Valid() {
			continue
		}
		out = append(out, flowengine.DestinationPoint{
			Name:         f.name,
			Location:     p,
			VisitorCount: f.visitors,
			Category:     f.category,
		})
	}
	return out
}
