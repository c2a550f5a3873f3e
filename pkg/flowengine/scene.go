package flowengine

import (
	"math"
	"sort"
	"sync"
)

// SceneLayer is a layer as stored on a Scene.
type SceneLayer struct {
	ID LayerID
	Layer
}

// Frame is a consistent copy of a scene for one draw.
type Frame struct {
	Version  uint64
	Viewport Viewport
	Layers   []SceneLayer
}

// Scene is an in-memory Surface. The viewer draws its frames; the server
// uses it to keep the state a remote client should be showing.
type Scene struct {
	mu       sync.Mutex
	host     *SceneHost
	viewport Viewport
	layers   map[LayerID]Layer
	next     LayerID
	version  uint64
	released bool
}

func (s *Scene) AddLayer(l Layer) (LayerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return 0, ErrSurfaceReleased
	}
	s.next++
	l.Points = append([]GeoPoint(nil), l.Points...)
	s.layers[s.next] = l
	s.version++
	return s.next, nil
}

func (s *Scene) RemoveLayer(id LayerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layers[id]; ok {
		delete(s.layers, id)
		s.version++
	}
}

func (s *Scene) SetDash(id LayerID, length, offset float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.layers[id]; ok {
		l.DashLength, l.DashOffset = length, offset
		s.layers[id] = l
		s.version++
	}
}

func (s *Scene) SetMarkerStyle(id LayerID, radius, opacity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.layers[id]; ok {
		l.Radius, l.Opacity = radius, opacity
		s.layers[id] = l
		s.version++
	}
}

func (s *Scene) SetView(center GeoPoint, zoom float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport.Center = center
	s.viewport.Zoom = math.Max(MinZoom, math.Min(MaxZoom, zoom))
	s.version++
}

func (s *Scene) FitBounds(b Bounds, padding float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.viewport.FitBounds(b, padding)
	if err != nil {
		return err
	}
	s.viewport = v
	s.version++
	return nil
}

func (s *Scene) Invalidate() {
	w, h := s.host.Size()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewport.Width != w || s.viewport.Height != h {
		s.viewport.Width, s.viewport.Height = w, h
		s.version++
	}
}

func (s *Scene) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrSurfaceReleased
	}
	s.released = true
	s.layers = make(map[LayerID]Layer)
	s.version++
	s.mu.Unlock()

	s.host.detach(s)
	return nil
}

func (s *Scene) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// Frame returns the layers bottom-up: by tag, then in insertion order.
func (s *Scene) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := Frame{Version: s.version, Viewport: s.viewport, Layers: make([]SceneLayer, 0, len(s.layers))}
	for id, l := range s.layers {
		f.Layers = append(f.Layers, SceneLayer{ID: id, Layer: l})
	}
	sort.Slice(f.Layers, func(i, j int) bool {
		a, b := f.Layers[i], f.Layers[j]
		if a.Tag.zOrder() != b.Tag.zOrder() {
			return a.Tag.zOrder() < b.Tag.zOrder()
		}
		return a.ID < b.ID
	})
	return f
}

// SceneHost is the container a Scene is mounted into. It tracks the current
// window size and the scene live on it, if any.
type SceneHost struct {
	mu            sync.Mutex
	width, height int
	current       *Scene
	mounts        int
}

func NewSceneHost(width, height int) *SceneHost {
	return &SceneHost{width: width, height: height}
}

func (h *SceneHost) Mount() (Surface, error) {
	return h.MountScene(), nil
}

// MountScene replaces the current scene with an empty one.
func (h *SceneHost) MountScene() *Scene {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &Scene{
		host:     h,
		layers:   make(map[LayerID]Layer),
		viewport: Viewport{Zoom: MinZoom, Width: h.width, Height: h.height},
	}
	h.current = s
	h.mounts++
	return s
}

func (h *SceneHost) detach(s *Scene) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == s {
		h.current = nil
	}
}

// Current is the scene mounted right now, or nil between passes.
func (h *SceneHost) Current() *Scene {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *SceneHost) Mounts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mounts
}

func (h *SceneHost) Size() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

// Resize records a new window size. The scene picks it up on its next
// Invalidate.
func (h *SceneHost) Resize(width, height int) {
	h.mu.Lock()
	h.width, h.height = width, height
	s := h.current
	h.mu.Unlock()
	if s != nil {
		s.Invalidate()
	}
}

// Snapshot is the current frame, or false when nothing is mounted.
func (h *SceneHost) Snapshot() (Frame, bool) {
	s := h.Current()
	if s == nil {
		return Frame{}, false
	}
	return s.Frame(), true
}

// LayerAt returns the topmost marker with a detail panel under the pixel.
func (h *SceneHost) LayerAt(x, y float64) (SceneLayer, bool) {
	f, ok := h.Snapshot()
	if !ok {
		return SceneLayer{}, false
	}
	return f.MarkerAt(x, y)
}

func (f Frame) MarkerAt(x, y float64) (SceneLayer, bool) {
	for i := len(f.Layers) - 1; i >= 0; i-- {
		l := f.Layers[i]
		if l.Kind != KindMarker || l.Detail == nil || len(l.Points) == 0 {
			continue
		}
		px, py := f.Viewport.Project(l.Points[0])
		r := math.Max(l.Radius, 6)
		if math.Hypot(px-x, py-y) <= r {
			return l, true
		}
	}
	return SceneLayer{}, false
}
