package sources

import (
	"errors"
	"fmt"
	"io"

	"github.com/sudorandom/flow-map/pkg/flowengine"
)

var ErrNoCoordinates = errors.New("no usable coordinates")

// ParseOrigin reads the single-row coordinates file of a location. Columns
// are lat/lng or Lat/Lng.
func ParseOrigin(r io.Reader, label string) (flowengine.OriginPoint, error) {
	rows, err := ParseRows(r)
	if err != nil {
		return flowengine.OriginPoint{}, fmt.Errorf("parse origin: %w", err)
	}
	for _, row := range rows {
		latV, lngV := row["lat"], row["lng"]
		if !truthy(latV) || !truthy(lngV) {
			latV, lngV = row["Lat"], row["Lng"]
		}
		lat, ok := coordinate(latV)
		if !ok {
			continue
		}
		lng, ok := coordinate(lngV)
		if !ok {
			continue
		}
		p := flowengine.GeoPoint{Lat: lat, Lng: lng}
		if !p.Valid() {
			continue
		}
		return flowengine.OriginPoint{Location: p, Label: label}, nil
	}
	return flowengine.OriginPoint{}, ErrNoCoordinates
}
