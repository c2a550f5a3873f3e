package flowengine

import (
	"errors"
	"testing"
)

func TestSceneLayerOrdering(t *testing.T) {
	h := NewSceneHost(800, 600)
	surf, _ := h.Mount()
	s := surf.(*Scene)

	origin, _ := s.AddLayer(Layer{Tag: TagOrigin, Kind: KindMarker})
	arc, _ := s.AddLayer(Layer{Tag: TagArc, Kind: KindPolyline})
	base, _ := s.AddLayer(Layer{Tag: TagBase, Kind: KindTiles})

	f := s.Frame()
	got := []LayerID{f.Layers[0].ID, f.Layers[1].ID, f.Layers[2].ID}
	want := []LayerID{base, arc, origin}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v; want %v", got, want)
		}
	}
}

func TestSceneMutationsBumpVersion(t *testing.T) {
	h := NewSceneHost(800, 600)
	surf, _ := h.Mount()
	s := surf.(*Scene)

	id, _ := s.AddLayer(Layer{Tag: TagArc, Kind: KindPolyline})
	v := s.Frame().Version
	s.SetDash(id, 10, 3)
	f := s.Frame()
	if f.Version == v {
		t.Error("SetDash did not bump version")
	}
	if f.Layers[0].DashLength != 10 || f.Layers[0].DashOffset != 3 {
		t.Errorf("dash = (%f, %f); want (10, 3)", f.Layers[0].DashLength, f.Layers[0].DashOffset)
	}

	v = f.Version
	s.SetDash(id+100, 1, 1)
	if s.Frame().Version != v {
		t.Error("unknown layer bumped version")
	}
}

func TestSceneReleaseDetaches(t *testing.T) {
	h := NewSceneHost(800, 600)
	surf, _ := h.Mount()
	if h.Current() == nil {
		t.Fatal("no current scene after mount")
	}
	if err := surf.Release(); err != nil {
		t.Fatal(err)
	}
	if h.Current() != nil {
		t.Error("released scene still current")
	}
	if _, err := surf.AddLayer(Layer{}); !errors.Is(err, ErrSurfaceReleased) {
		t.Errorf("AddLayer after release err = %v", err)
	}
	if err := surf.Release(); !errors.Is(err, ErrSurfaceReleased) {
		t.Errorf("second Release err = %v", err)
	}
}

func TestSceneInvalidatePicksUpResize(t *testing.T) {
	h := NewSceneHost(0, 0)
	surf, _ := h.Mount()
	s := surf.(*Scene)
	if err := s.FitBounds(BoundsOf(GeoPoint{0, 0}, GeoPoint{1, 1}), 40); !errors.Is(err, ErrViewportTooSmall) {
		t.Fatalf("fit on empty container err = %v", err)
	}
	h.Resize(1024, 768)
	if f := s.Frame(); f.Viewport.Width != 1024 || f.Viewport.Height != 768 {
		t.Errorf("viewport = %dx%d; want 1024x768", f.Viewport.Width, f.Viewport.Height)
	}
	if err := s.FitBounds(BoundsOf(GeoPoint{0, 0}, GeoPoint{1, 1}), 40); err != nil {
		t.Errorf("fit after resize: %v", err)
	}
}

func TestSceneMarkerHitTest(t *testing.T) {
	h := NewSceneHost(800, 600)
	surf, _ := h.Mount()
	center := GeoPoint{Lat: 41, Lng: 29}
	surf.SetView(center, 12)
	d := &Detail{Title: "Moda"}
	_, _ = surf.AddLayer(Layer{Tag: TagDestination, Kind: KindMarker, Points: []GeoPoint{center}, Radius: 8, Detail: d})

	l, ok := h.LayerAt(402, 301)
	if !ok || l.Detail.Title != "Moda" {
		t.Fatalf("hit = %v, %v; want Moda", l, ok)
	}
	if _, ok := h.LayerAt(10, 10); ok {
		t.Error("hit far from any marker")
	}
}

func TestControllerOnScene(t *testing.T) {
	h := NewSceneHost(1280, 720)
	c := NewController(fastConfig())
	c.AttachContainer(h)
	c.Load(testOrigin, testDestinations())

	f, ok := h.Snapshot()
	if !ok {
		t.Fatal("nothing mounted")
	}
	if f.Viewport.Zoom < 10 || f.Viewport.Zoom > MaxZoom {
		t.Errorf("fitted zoom = %f", f.Viewport.Zoom)
	}
	c.Close()
	if _, ok := h.Snapshot(); ok {
		t.Error("scene still mounted after Close")
	}
}
