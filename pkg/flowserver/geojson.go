package flowserver

import (
	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/flow-map/pkg/flowengine"
)

// ArcFeatures exports a dataset's top destinations as GeoJSON: the origin as
// a point, then for each destination in rank order its arc as a line string
// followed by its own point. A destination at the origin's coordinates has
// no curve, only the point.
func ArcFeatures(ds flowengine.Dataset, maxArcs int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	origin := geojson.NewPointFeature(lngLat(ds.Origin.Location))
	origin.SetProperty("role", "origin")
	origin.SetProperty("name", ds.Origin.Label)
	origin.SetProperty("location", ds.Location)
	fc.AddFeature(origin)

	ranked := flowengine.Select(ds.Destinations, maxArcs)
	for _, r := range flowengine.BuildArcs(ds.Origin.Location, ranked) {
		if r.Err == nil {
			fc.AddFeature(arcFeature(r))
		}
		p := geojson.NewPointFeature(lngLat(r.Destination.Location))
		p.SetProperty("role", "destination")
		p.SetProperty("rank", r.Rank)
		p.SetProperty("name", r.Destination.Name)
		p.SetProperty("visitors", r.Destination.VisitorCount)
		fc.AddFeature(p)
	}
	return fc
}

func arcFeature(r flowengine.ArcResult) *geojson.Feature {
	line := make([][]float64, len(r.Arc.Curve))
	for i, p := range r.Arc.Curve {
		line[i] = lngLat(p)
	}
	f := geojson.NewLineStringFeature(line)
	f.SetProperty("role", "arc")
	f.SetProperty("rank", r.Rank)
	f.SetProperty("name", r.Destination.Name)
	f.SetProperty("category", r.Destination.Category)
	f.SetProperty("visitors", r.Destination.VisitorCount)
	f.SetProperty("color", r.Arc.Color.Hex())
	f.SetProperty("weight", r.Arc.StrokeWeight)
	f.SetProperty("normalized", r.Arc.Normalized)
	return f
}

// GeoJSON orders positions longitude first.
func lngLat(p flowengine.GeoPoint) []float64 {
	return []float64{p.Lng, p.Lat}
}
