package flowengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStale is returned for a load that finished after a newer one started.
var ErrStale = errors.New("superseded by a newer request")

// DatasetLoader resolves location names to datasets.
type DatasetLoader interface {
	LocationNames(ctx context.Context) ([]string, error)
	LoadDataset(ctx context.Context, name string) (Dataset, error)
}

// RequestTracker hands out increasing tickets; only the newest is current.
type RequestTracker struct {
	seq atomic.Uint64
}

func (t *RequestTracker) Next() uint64 { return t.seq.Add(1) }

func (t *RequestTracker) Current(ticket uint64) bool { return t.seq.Load() == ticket }

// Status is what the HUD shows about the selected location.
type Status struct {
	Location    string
	DisplayName string
	Loading     bool
	Fallback    bool
	Err         error
	RowsTotal   int
	RowsKept    int
	TileStyle   string
	Zoom        float64
	UpdatedAt   time.Time
}

// Controls is what the viewer's keyboard drives, locally or over a session.
type Controls interface {
	NextLocation()
	NextTileStyle()
	Retry()
	ZoomBy(delta float64)
	Status() Status
	Destinations() []DestinationPoint
}

// Dashboard wires a loader to a controller and keeps late responses from
// overwriting newer selections.
type Dashboard struct {
	loader  DatasetLoader
	ctrl    *Controller
	tracker RequestTracker
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	locations []string
	status    Status
}

func NewDashboard(loader DatasetLoader, ctrl *Controller) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := ctrl.Config()
	return &Dashboard{
		loader:  loader,
		ctrl:    ctrl,
		timeout: 30 * time.Second,
		ctx:     ctx,
		cancel:  cancel,
		status:  Status{TileStyle: cfg.TileStyle, Zoom: cfg.Zoom},
	}
}

func (d *Dashboard) Controller() *Controller { return d.ctrl }

// Locations loads (once) and returns the location names in picker order.
func (d *Dashboard) Locations(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	if d.locations != nil {
		out := append([]string(nil), d.locations...)
		d.mu.Unlock()
		return out, nil
	}
	d.mu.Unlock()

	names, err := d.loader.LocationNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	d.mu.Lock()
	d.locations = names
	d.mu.Unlock()
	return append([]string(nil), names...), nil
}

// Select loads a location and applies it unless a newer selection started
// in the meantime, in which case it returns ErrStale.
func (d *Dashboard) Select(ctx context.Context, name string) error {
	ticket := d.tracker.Next()
	d.mu.Lock()
	d.status.Location = name
	d.status.Loading = true
	d.status.Err = nil
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	ds, err := d.loader.LoadDataset(ctx, name)

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.tracker.Current(ticket) {
		log.Printf("[dashboard] Dropping stale response for %q", name)
		return ErrStale
	}
	d.status.Loading = false
	d.status.UpdatedAt = time.Now()
	if err != nil {
		d.status.Err = err
		log.Printf("[dashboard] Failed to load %q: %v", name, err)
		return err
	}
	d.status.DisplayName = ds.DisplayName
	d.status.Fallback = ds.Fallback
	d.status.RowsTotal = ds.RowsTotal
	d.status.RowsKept = ds.RowsKept
	if ds.Fallback {
		log.Printf("[dashboard] %s: showing fallback destinations", name)
	}
	d.ctrl.Load(ds.Origin, ds.Destinations)
	return nil
}

// SelectAsync runs Select in the background.
func (d *Dashboard) SelectAsync(name string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.Select(d.ctx, name); err != nil && !errors.Is(err, ErrStale) && d.ctx.Err() == nil {
			log.Printf("[dashboard] Selection of %q failed: %v", name, err)
		}
	}()
}

func (d *Dashboard) Retry() {
	d.mu.Lock()
	name := d.status.Location
	d.mu.Unlock()
	if name != "" {
		d.SelectAsync(name)
	}
}

func (d *Dashboard) NextLocation() {
	names, err := d.Locations(d.ctx)
	if err != nil || len(names) == 0 {
		log.Printf("[dashboard] No locations to cycle through: %v", err)
		return
	}
	d.mu.Lock()
	current := d.status.Location
	d.mu.Unlock()
	next := names[0]
	for i, n := range names {
		if n == current {
			next = names[(i+1)%len(names)]
			break
		}
	}
	d.SelectAsync(next)
}

func (d *Dashboard) NextTileStyle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.setTileStyleLocked(NextTileStyle(d.status.TileStyle))
}

// SetTileStyle swaps the basemap. Unknown names leave it unchanged.
func (d *Dashboard) SetTileStyle(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setTileStyleLocked(name)
}

func (d *Dashboard) setTileStyleLocked(name string) error {
	if err := d.ctrl.SetTileStyle(name); err != nil {
		log.Printf("[dashboard] Tile style %q: %v", name, err)
		return err
	}
	d.status.TileStyle = name
	return nil
}

func (d *Dashboard) ZoomBy(delta float64) {
	d.mu.Lock()
	zoom := d.status.Zoom + delta
	d.mu.Unlock()
	d.SetZoom(zoom)
}

// SetZoom rebuilds the map at zoom. Levels outside [MinZoom, MaxZoom] are
// ignored.
func (d *Dashboard) SetZoom(zoom float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if zoom < MinZoom || zoom > MaxZoom || zoom == d.status.Zoom {
		return
	}
	d.status.Zoom = zoom
	d.ctrl.SetZoom(zoom)
}

// Resize refits the map after the window changed size. The host must have
// the new size already.
func (d *Dashboard) Resize(width, height int) { d.ctrl.Resized() }

func (d *Dashboard) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Dashboard) Destinations() []DestinationPoint { return d.ctrl.Destinations() }

// Close stops pending loads and tears the map down.
func (d *Dashboard) Close() {
	d.cancel()
	d.wg.Wait()
	d.ctrl.Close()
}
