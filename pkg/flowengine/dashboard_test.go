package flowengine

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type gatedLoader struct {
	mu       sync.Mutex
	gates    map[string]chan struct{}
	datasets map[string]Dataset
	errs     map[string]error
}

func (l *gatedLoader) LocationNames(ctx context.Context) ([]string, error) {
	return []string{"kadikoy", "moda"}, nil
}

func (l *gatedLoader) LoadDataset(ctx context.Context, name string) (Dataset, error) {
	l.mu.Lock()
	gate := l.gates[name]
	l.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Dataset{}, ctx.Err()
		}
	}
	if err := l.errs[name]; err != nil {
		return Dataset{}, err
	}
	return l.datasets[name], nil
}

func twoLocations() *gatedLoader {
	return &gatedLoader{
		gates: map[string]chan struct{}{},
		errs:  map[string]error{},
		datasets: map[string]Dataset{
			"kadikoy": {Location: "kadikoy", DisplayName: "Kadıköy", Origin: testOrigin, Destinations: testDestinations()},
			"moda": {
				Location: "moda", DisplayName: "Moda",
				Origin:       OriginPoint{Location: GeoPoint{Lat: 40.98, Lng: 29.02}, Label: "Moda"},
				Destinations: testDestinations()[:1],
			},
		},
	}
}

func TestRequestTracker(t *testing.T) {
	var tr RequestTracker
	a := tr.Next()
	if !tr.Current(a) {
		t.Fatal("first ticket not current")
	}
	b := tr.Next()
	if tr.Current(a) || !tr.Current(b) {
		t.Errorf("after Next: current(a)=%v current(b)=%v", tr.Current(a), tr.Current(b))
	}
}

func TestDashboardDropsStaleResponse(t *testing.T) {
	loader := twoLocations()
	slow := make(chan struct{})
	loader.gates["kadikoy"] = slow

	c := NewController(fastConfig())
	c.AttachContainer(&spyContainer{})
	d := NewDashboard(loader, c)
	defer d.Close()

	done := make(chan error, 1)
	go func() { done <- d.Select(context.Background(), "kadikoy") }()

	// wait until the slow request holds its ticket
	waitFor(t, func() bool { return d.Status().Location == "kadikoy" })

	if err := d.Select(context.Background(), "moda"); err != nil {
		t.Fatal(err)
	}
	close(slow)
	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("slow select err = %v; want ErrStale", err)
	}

	st := d.Status()
	if st.Location != "moda" || st.DisplayName != "Moda" {
		t.Errorf("status = %+v; want moda", st)
	}
	if got := c.Destinations(); len(got) != 1 {
		t.Errorf("controller has %d destinations; want moda's 1", len(got))
	}
}

func TestDashboardErrorKeepsRetryable(t *testing.T) {
	loader := twoLocations()
	boom := errors.New("503")
	loader.errs["kadikoy"] = boom

	c := NewController(fastConfig())
	c.AttachContainer(&spyContainer{})
	d := NewDashboard(loader, c)
	defer d.Close()

	if err := d.Select(context.Background(), "kadikoy"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if st := d.Status(); !errors.Is(st.Err, boom) || st.Loading {
		t.Errorf("status = %+v", st)
	}

	delete(loader.errs, "kadikoy")
	if err := d.Select(context.Background(), d.Status().Location); err != nil {
		t.Fatal(err)
	}
	if st := d.Status(); st.Err != nil || c.State() != StateReady {
		t.Errorf("after retry: err=%v state=%v", st.Err, c.State())
	}
}

func TestDashboardCycling(t *testing.T) {
	c := NewController(fastConfig())
	h := NewSceneHost(800, 600)
	c.AttachContainer(h)
	d := NewDashboard(twoLocations(), c)
	defer d.Close()

	d.NextLocation()
	waitFor(t, func() bool { st := d.Status(); return st.Location == "kadikoy" && !st.Loading })
	d.NextLocation()
	waitFor(t, func() bool { st := d.Status(); return st.Location == "moda" && !st.Loading })

	d.NextTileStyle()
	if st := d.Status(); st.TileStyle != "light" {
		t.Errorf("tile style = %q; want light", st.TileStyle)
	}
	mounts := h.Mounts()
	d.ZoomBy(1)
	if h.Mounts() != mounts+1 {
		t.Error("zoom change did not rebuild the map")
	}
	d.ZoomBy(100)
	if st := d.Status(); st.Zoom != 13 {
		t.Errorf("zoom = %f; want 13", st.Zoom)
	}
}
