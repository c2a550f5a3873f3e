package flowengine

import (
	"errors"
	"math"
)

var (
	ErrDegenerateBounds = errors.New("bounds have zero extent")
	ErrViewportTooSmall = errors.New("viewport smaller than its padding")
)

const (
	tileSize       = 256.0
	MinZoom        = 0.0
	MaxZoom        = 18.0
	maxMercatorLat = 85.0511287798
)

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite and inside the
// latitude/longitude ranges.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return math.Abs(p.Lat) <= 90 && math.Abs(p.Lng) <= 180
}

// Bounds is a lat/lng bounding box.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

func BoundsOf(points ...GeoPoint) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{South: points[0].Lat, North: points[0].Lat, West: points[0].Lng, East: points[0].Lng}
	for _, p := range points[1:] {
		b = b.Extend(p)
	}
	return b
}

func (b Bounds) Extend(p GeoPoint) Bounds {
	b.South = math.Min(b.South, p.Lat)
	b.North = math.Max(b.North, p.Lat)
	b.West = math.Min(b.West, p.Lng)
	b.East = math.Max(b.East, p.Lng)
	return b
}

func (b Bounds) Contains(p GeoPoint) bool {
	return p.Lat >= b.South && p.Lat <= b.North && p.Lng >= b.West && p.Lng <= b.East
}

// mercator returns web-mercator world pixel coordinates at the given zoom.
func mercator(p GeoPoint, zoom float64) (x, y float64) {
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p.Lat))
	world := tileSize * math.Exp2(zoom)
	siny := math.Sin(lat * math.Pi / 180)
	x = (p.Lng + 180) / 360 * world
	y = (0.5 - math.Log((1+siny)/(1-siny))/(4*math.Pi)) * world
	return x, y
}

func unmercator(x, y, zoom float64) GeoPoint {
	world := tileSize * math.Exp2(zoom)
	lng := x/world*360 - 180
	n := math.Pi - 2*math.Pi*y/world
	lat := 180 / math.Pi * math.Atan(math.Sinh(n))
	return GeoPoint{Lat: lat, Lng: lng}
}

// Viewport is a web-mercator view of Width x Height pixels centered on Center.
type Viewport struct {
	Center GeoPoint `json:"center"`
	Zoom   float64  `json:"zoom"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
}

// Project converts a coordinate to screen pixels.
func (v Viewport) Project(p GeoPoint) (x, y float64) {
	cx, cy := mercator(v.Center, v.Zoom)
	px, py := mercator(p, v.Zoom)
	return px - cx + float64(v.Width)/2, py - cy + float64(v.Height)/2
}

// Unproject converts screen pixels back to a coordinate.
func (v Viewport) Unproject(x, y float64) GeoPoint {
	cx, cy := mercator(v.Center, v.Zoom)
	return unmercator(x+cx-float64(v.Width)/2, y+cy-float64(v.Height)/2, v.Zoom)
}

// FitBounds returns the viewport centered on b at the largest whole zoom
// level where b fits inside the view minus padding on every side.
func (v Viewport) FitBounds(b Bounds, padding float64) (Viewport, error) {
	availW := float64(v.Width) - 2*padding
	availH := float64(v.Height) - 2*padding
	if availW <= 0 || availH <= 0 {
		return v, ErrViewportTooSmall
	}

	x0, y0 := mercator(GeoPoint{Lat: b.North, Lng: b.West}, 0)
	x1, y1 := mercator(GeoPoint{Lat: b.South, Lng: b.East}, 0)
	dx, dy := math.Abs(x1-x0), math.Abs(y1-y0)
	if dx == 0 && dy == 0 {
		return v, ErrDegenerateBounds
	}

	scale := math.Inf(1)
	if dx > 0 {
		scale = availW / dx
	}
	if dy > 0 {
		scale = math.Min(scale, availH/dy)
	}
	zoom := math.Floor(math.Log2(scale))
	zoom = math.Max(MinZoom, math.Min(MaxZoom, zoom))

	out := v
	out.Zoom = zoom
	out.Center = unmercator((x0+x1)/2, (y0+y1)/2, 0)
	return out, nil
}
