package flowengine

import (
	"errors"
	"image/color"
)

var ErrSurfaceReleased = errors.New("surface already released")

type LayerID uint64

// LayerTag says which part of a rendering pass owns a layer.
type LayerTag string

const (
	TagBase        LayerTag = "base"
	TagArc         LayerTag = "arc"
	TagDestination LayerTag = "destination"
	TagOrigin      LayerTag = "origin"
)

// zOrder is the draw order of tags, bottom first.
func (t LayerTag) zOrder() int {
	switch t {
	case TagBase:
		return 0
	case TagArc:
		return 1
	case TagDestination:
		return 2
	case TagOrigin:
		return 3
	}
	return 4
}

type LayerKind string

const (
	KindTiles    LayerKind = "tiles"
	KindPolyline LayerKind = "polyline"
	KindMarker   LayerKind = "marker"
)

// Layer is one drawable thing on a surface.
type Layer struct {
	Tag        LayerTag   `json:"tag"`
	Kind       LayerKind  `json:"kind"`
	Tiles      *TileStyle `json:"tiles,omitempty"`
	Points     []GeoPoint `json:"points,omitempty"`
	Color      color.RGBA `json:"color"`
	Weight     float64    `json:"weight,omitempty"`
	Radius     float64    `json:"radius,omitempty"`
	Opacity    float64    `json:"opacity"`
	DashLength float64    `json:"dashLength,omitempty"`
	DashOffset float64    `json:"dashOffset,omitempty"`
	Detail     *Detail    `json:"detail,omitempty"`
}

// Surface is a live map the controller draws on.
type Surface interface {
	AddLayer(l Layer) (LayerID, error)
	RemoveLayer(id LayerID)
	SetDash(id LayerID, length, offset float64)
	SetMarkerStyle(id LayerID, radius, opacity float64)
	SetView(center GeoPoint, zoom float64)
	FitBounds(b Bounds, padding float64) error
	// Invalidate re-reads the container size.
	Invalidate()
	Release() error
}

// Container hands out a fresh surface each time a map is created on it.
type Container interface {
	Mount() (Surface, error)
}
