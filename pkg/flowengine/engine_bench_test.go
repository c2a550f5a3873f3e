package flowengine

import (
	"testing"
)

// BenchmarkRenderBasemap measures a full background rebuild, which happens
// whenever the view or tile style changes.
func BenchmarkRenderBasemap(b *testing.B) {
	e := &Engine{}
	land := []byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},
		"geometry":{"type":"Polygon","coordinates":[[[28.9,40.9],[29.2,40.9],[29.2,41.1],[28.9,41.1],[28.9,40.9]]]}}]}`)
	if err := e.LoadBasemap(land); err != nil {
		b.Fatal(err)
	}
	style := TileStyles["dark"]
	vp := Viewport{Center: GeoPoint{Lat: 41, Lng: 29}, Zoom: 11, Width: 1920, Height: 1080}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		e.renderBasemap(vp, &style)
	}
}

// BenchmarkDashSegments measures the per-frame dash split of a full set of arcs.
// High allocations per op here usually mean the split is rebuilt more than needed.
func BenchmarkDashSegments(b *testing.B) {
	origin := GeoPoint{Lat: 41, Lng: 29}
	var dests []DestinationPoint
	for i := 0; i < DefaultMaxArcs; i++ {
		dests = append(dests, DestinationPoint{
			Location:     GeoPoint{Lat: 41 + float64(i)*0.01, Lng: 29.05 + float64(i)*0.005},
			VisitorCount: 100 - i,
		})
	}
	vp := Viewport{Center: origin, Zoom: 12, Width: 1920, Height: 1080}
	var lines [][][2]float64
	for _, r := range BuildArcs(origin, dests) {
		pts := make([][2]float64, len(r.Arc.Curve))
		for j, p := range r.Arc.Curve {
			x, y := vp.Project(p)
			pts[j] = [2]float64{x, y}
		}
		lines = append(lines, pts)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for _, pts := range lines {
			dashSegments(pts, 8, float64(i%16))
		}
	}
}
