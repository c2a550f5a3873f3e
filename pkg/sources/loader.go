package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/sudorandom/flow-map/pkg/flowengine"
	"github.com/sudorandom/flow-map/pkg/utils"
)

var ErrUnknownLocation = errors.New("unknown location")

// Loader resolves locations and their CSVs through a Fetcher.
type Loader struct {
	fetcher *utils.Fetcher

	mu        sync.Mutex
	locations []Location
}

func NewLoader(f *utils.Fetcher) *Loader {
	return &Loader{fetcher: f}
}

// Locations reads locations.json once, falling back to DefaultLocations
// when it is missing or unreadable.
func (l *Loader) Locations(ctx context.Context) []Location {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locations != nil {
		return l.locations
	}

	data, err := l.fetcher.Fetch(ctx, LocationsFile)
	if err == nil {
		var locs []Location
		locs, err = ParseLocations(data)
		if err == nil && len(locs) > 0 {
			log.Printf("[loader] Loaded %d locations", len(locs))
			l.locations = locs
			return locs
		}
		if err == nil {
			err = errors.New("no locations listed")
		}
	}
	if ctx.Err() != nil {
		return DefaultLocations()
	}
	log.Printf("[loader] Using built-in locations: %v", err)
	l.locations = DefaultLocations()
	return l.locations
}

// Location looks a descriptor up by name.
func (l *Loader) Location(ctx context.Context, name string) (Location, error) {
	for _, loc := range l.Locations(ctx) {
		if loc.Name == name {
			return loc, nil
		}
	}
	return Location{}, fmt.Errorf("%w: %s", ErrUnknownLocation, name)
}

func (l *Loader) LocationNames(ctx context.Context) ([]string, error) {
	locs := l.Locations(ctx)
	names := make([]string, len(locs))
	for i, loc := range locs {
		names[i] = loc.Name
	}
	return names, nil
}

// Origin prefers the descriptor's coordinates and reads the coordinates
// file otherwise.
func (l *Loader) Origin(ctx context.Context, loc Location) (flowengine.OriginPoint, error) {
	if o, ok := loc.Origin(); ok {
		return o, nil
	}
	data, err := l.fetcher.Fetch(ctx, loc.CoordinatesPath())
	if err != nil {
		return flowengine.OriginPoint{}, fmt.Errorf("fetch origin of %s: %w", loc.Name, err)
	}
	o, err := ParseOrigin(bytes.NewReader(data), loc.Title())
	if err != nil {
		return flowengine.OriginPoint{}, fmt.Errorf("origin of %s: %w", loc.Name, err)
	}
	return o, nil
}

// Rows fetches and parses the raw destination rows, for the charts.
func (l *Loader) Rows(ctx context.Context, name string) ([]Row, error) {
	loc, err := l.Location(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := l.fetcher.Fetch(ctx, loc.DestinationsPath())
	if err != nil {
		return nil, fmt.Errorf("fetch rows of %s: %w", name, err)
	}
	rows, err := ParseRows(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("rows of %s: %w", name, err)
	}
	return rows, nil
}

// LoadDataset builds everything the map needs for one location. A failed
// destination fetch yields the fallback set; a malformed file yields none.
func (l *Loader) LoadDataset(ctx context.Context, name string) (flowengine.Dataset, error) {
	loc, err := l.Location(ctx, name)
	if err != nil {
		return flowengine.Dataset{}, err
	}
	origin, err := l.Origin(ctx, loc)
	if err != nil {
		return flowengine.Dataset{}, err
	}

	ds := flowengine.Dataset{Location: loc.Name, DisplayName: loc.Title(), Origin: origin}

	data, err := l.fetcher.Fetch(ctx, loc.DestinationsPath())
	if err != nil {
		if ctx.Err() != nil {
			return flowengine.Dataset{}, ctx.Err()
		}
		log.Printf("[loader] %s: destinations unavailable (%v), using fallback", name, err)
		ds.Destinations = FallbackDestinations(origin)
		ds.Fallback = true
		return ds, nil
	}

	points, stats, err := ParseDestinations(bytes.NewReader(data))
	if err != nil {
		log.Printf("[loader] %s: %v", name, err)
		return ds, nil
	}
	log.Printf("[loader] %s: kept %d of %d rows", name, stats.Kept, stats.Total)
	ds.Destinations = points
	ds.RowsTotal = stats.Total
	ds.RowsKept = stats.Kept
	return ds, nil
}
