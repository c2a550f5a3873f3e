package flowengine

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log"
	"sync"
	"time"
)

// State is where a Controller is in its map lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ColorOrigin      = color.RGBA{255, 255, 255, 255}
	ColorOriginPulse = color.RGBA{255, 71, 87, 255}
)

// Config holds the knobs shared by every map variant.
type Config struct {
	TileStyle        string
	MaxArcs          int
	Zoom             float64
	ShowDestinations bool
	FitPadding       float64
	FlowPeriod       time.Duration
	PulsePeriod      time.Duration
	InvalidateDelay  time.Duration
}

func DefaultConfig() Config {
	return Config{
		TileStyle:        DefaultTileStyle,
		MaxArcs:          DefaultMaxArcs,
		Zoom:             12,
		ShowDestinations: true,
		FitPadding:       40,
		FlowPeriod:       DefaultFlowPeriod,
		PulsePeriod:      DefaultPulsePeriod,
		InvalidateDelay:  100 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TileStyle == "" {
		c.TileStyle = d.TileStyle
	}
	if c.MaxArcs <= 0 {
		c.MaxArcs = d.MaxArcs
	}
	if c.Zoom <= 0 {
		c.Zoom = d.Zoom
	}
	if c.FitPadding < 0 {
		c.FitPadding = d.FitPadding
	}
	if c.FlowPeriod <= 0 {
		c.FlowPeriod = d.FlowPeriod
	}
	if c.PulsePeriod <= 0 {
		c.PulsePeriod = d.PulsePeriod
	}
	if c.InvalidateDelay <= 0 {
		c.InvalidateDelay = d.InvalidateDelay
	}
	return c
}

// RenderingSession is everything one map instance owns: the surface, the
// layers added to it and the timers animating them.
type RenderingSession struct {
	mu      sync.Mutex
	alive   bool
	surface Surface
	layers  map[LayerID]LayerTag

	base *Scope
	arcs *Scope
}

func newRenderingSession(s Surface) *RenderingSession {
	return &RenderingSession{
		alive:   true,
		surface: s,
		layers:  make(map[LayerID]LayerTag),
		base:    NewScope(context.Background()),
		arcs:    NewScope(context.Background()),
	}
}

// mutate runs fn against the surface unless the session was disposed.
func (rs *RenderingSession) mutate(fn func(s Surface)) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if !rs.alive {
		return false
	}
	fn(rs.surface)
	return true
}

func (rs *RenderingSession) addLayer(l Layer) (LayerID, error) {
	var id LayerID
	var err error
	ok := rs.mutate(func(s Surface) {
		id, err = s.AddLayer(l)
		if err == nil {
			rs.layers[id] = l.Tag
		}
	})
	if !ok {
		return 0, ErrSurfaceReleased
	}
	return id, err
}

func (rs *RenderingSession) removeTagged(tags ...LayerTag) {
	rs.mutate(func(s Surface) {
		for id, tag := range rs.layers {
			for _, t := range tags {
				if tag == t {
					s.RemoveLayer(id)
					delete(rs.layers, id)
					break
				}
			}
		}
	})
}

// resetArcs stops the arc timers and removes arc and destination layers,
// leaving the base tiles and origin marker alone.
func (rs *RenderingSession) resetArcs() {
	rs.arcs.Cancel()
	rs.removeTagged(TagArc, TagDestination)
	rs.arcs = NewScope(context.Background())
}

func (rs *RenderingSession) layerCount(tag LayerTag) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	n := 0
	for _, t := range rs.layers {
		if t == tag {
			n++
		}
	}
	return n
}

// Dispose cancels every timer, removes every layer and releases the surface,
// in that order. It is safe to call more than once.
func (rs *RenderingSession) Dispose() {
	rs.mu.Lock()
	if !rs.alive {
		rs.mu.Unlock()
		return
	}
	rs.alive = false
	rs.mu.Unlock()

	rs.arcs.Cancel()
	rs.base.Cancel()

	for id := range rs.layers {
		rs.surface.RemoveLayer(id)
		delete(rs.layers, id)
	}
	if err := rs.surface.Release(); err != nil && !errors.Is(err, ErrSurfaceReleased) {
		log.Printf("[controller] Error releasing surface: %v", err)
	}
}

// Controller owns the map on one container: it creates it once an origin is
// known, redraws arcs when destinations change and tears everything down when
// the origin, zoom or host goes away.
type Controller struct {
	mu        sync.Mutex
	cfg       Config
	container Container
	origin    *OriginPoint
	ranked    []DestinationPoint
	state     State
	session   *RenderingSession
	arcs      []ArcResult
	// keepView holds a zoom chosen with SetZoom until the data changes.
	keepView  bool
}

func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg.withDefaults()}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Arcs returns the results of the current rendering pass in rank order.
func (c *Controller) Arcs() []ArcResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ArcResult, len(c.arcs))
	copy(out, c.arcs)
	return out
}

func (c *Controller) Destinations() []DestinationPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DestinationPoint, len(c.ranked))
	copy(out, c.ranked)
	return out
}

func (c *Controller) AttachContainer(ct Container) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.container == ct {
		return
	}
	c.disposeLocked()
	c.container = ct
	c.initLocked()
}

// Load replaces origin and destinations together. A new origin rebuilds the
// map; the same origin only redraws the arcs. An invalid origin leaves the
// map untouched.
func (c *Controller) Load(origin OriginPoint, destinations []DestinationPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !origin.Location.Valid() {
		log.Printf("[controller] Ignoring load with invalid origin %v", origin.Location)
		return
	}
	c.ranked = Select(destinations, c.cfg.MaxArcs)
	c.keepView = false
	if c.setOriginLocked(origin) {
		return
	}
	c.redrawLocked()
}

func (c *Controller) SetOrigin(origin OriginPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setOriginLocked(origin)
}

// setOriginLocked reports whether the map was rebuilt.
func (c *Controller) setOriginLocked(origin OriginPoint) bool {
	if !origin.Location.Valid() {
		log.Printf("[controller] Ignoring invalid origin %v", origin.Location)
		return false
	}
	if c.origin != nil && *c.origin == origin && c.state != StateDisposed {
		return false
	}
	c.origin = &origin
	c.keepView = false
	c.disposeLocked()
	c.initLocked()
	return true
}

func (c *Controller) SetZoom(zoom float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if zoom < MinZoom || zoom > MaxZoom || zoom == c.cfg.Zoom {
		return
	}
	c.cfg.Zoom = zoom
	c.keepView = true
	c.disposeLocked()
	c.initLocked()
}

func (c *Controller) SetDestinations(destinations []DestinationPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ranked = Select(destinations, c.cfg.MaxArcs)
	c.keepView = false
	c.redrawLocked()
}

// Resized makes the surface re-read its container size and refits the arcs
// to it.
func (c *Controller) Resized() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady || c.session == nil {
		return
	}
	c.session.mutate(func(s Surface) { s.Invalidate() })
	c.fitLocked()
}

// SetTileStyle swaps the base layer in place.
func (c *Controller) SetTileStyle(name string) error {
	style, err := LookupTileStyle(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.TileStyle = style.Name
	if c.state != StateReady {
		return nil
	}
	c.session.removeTagged(TagBase)
	_, err = c.session.addLayer(Layer{Tag: TagBase, Kind: KindTiles, Tiles: &style, Opacity: 1})
	return err
}

// Close tears the map down for good; the host is going away.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposeLocked()
	c.container = nil
	c.state = StateDisposed
}

func (c *Controller) disposeLocked() {
	if c.session != nil {
		c.session.Dispose()
		c.session = nil
	}
	c.arcs = nil
	if c.state != StateUninitialized {
		c.state = StateDisposed
	}
}

func (c *Controller) initLocked() {
	if c.state == StateInitializing || c.state == StateReady {
		return
	}
	if c.origin == nil || c.container == nil {
		return
	}
	c.state = StateInitializing
	if err := c.buildLocked(); err != nil {
		log.Printf("[controller] Map initialization failed: %v", err)
		if c.session != nil {
			c.session.Dispose()
			c.session = nil
		}
		c.state = StateUninitialized
		return
	}
	c.state = StateReady
	c.redrawLocked()
}

func (c *Controller) buildLocked() error {
	style, err := LookupTileStyle(c.cfg.TileStyle)
	if err != nil {
		return err
	}
	surface, err := c.container.Mount()
	if err != nil {
		return fmt.Errorf("mount surface: %w", err)
	}
	sess := newRenderingSession(surface)
	c.session = sess

	if _, err := sess.addLayer(Layer{Tag: TagBase, Kind: KindTiles, Tiles: &style, Opacity: 1}); err != nil {
		return fmt.Errorf("add base layer: %w", err)
	}

	origin := *c.origin
	pulse := NewPulse()
	ring, err := sess.addLayer(Layer{
		Tag: TagOrigin, Kind: KindMarker, Points: []GeoPoint{origin.Location},
		Color: ColorOriginPulse, Radius: pulse.Radius, Opacity: pulse.Opacity,
	})
	if err != nil {
		return fmt.Errorf("add origin pulse: %w", err)
	}
	if _, err := sess.addLayer(Layer{
		Tag: TagOrigin, Kind: KindMarker, Points: []GeoPoint{origin.Location},
		Color: ColorOrigin, Radius: 8, Opacity: 1, Detail: OriginDetail(origin, len(c.ranked)),
	}); err != nil {
		return fmt.Errorf("add origin marker: %w", err)
	}

	sess.mutate(func(s Surface) { s.SetView(origin.Location, c.cfg.Zoom) })

	sess.base.Every(c.cfg.PulsePeriod, func() {
		pulse.Step()
		sess.mutate(func(s Surface) { s.SetMarkerStyle(ring, pulse.Radius, pulse.Opacity) })
	})
	// the container may not have its final size yet
	sess.base.After(c.cfg.InvalidateDelay, func() {
		sess.mutate(func(s Surface) { s.Invalidate() })
	})
	return nil
}

// redrawLocked replaces the arc set of a ready map and refits the view.
func (c *Controller) redrawLocked() {
	if c.state != StateReady || c.session == nil {
		return
	}
	sess := c.session
	sess.resetArcs()
	c.arcs = nil
	if len(c.ranked) == 0 {
		return
	}

	origin := c.origin.Location
	results := BuildArcs(origin, c.ranked)
	for i := range results {
		if err := c.drawArc(sess, &results[i]); err != nil {
			results[i].Err = err
			log.Printf("[controller] Skipping arc to %q: %v", results[i].Destination.Name, err)
		}
	}
	c.arcs = results
	c.fitLocked()
}

// fitLocked fits the view to the origin and destinations. A zoom chosen with
// SetZoom stays centered on the origin instead.
func (c *Controller) fitLocked() {
	if c.keepView || len(c.ranked) == 0 {
		return
	}
	b := BoundsOf(c.origin.Location)
	for _, d := range c.ranked {
		b = b.Extend(d.Location)
	}
	var fitErr error
	c.session.mutate(func(s Surface) { fitErr = s.FitBounds(b, c.cfg.FitPadding) })
	if fitErr != nil {
		log.Printf("[controller] Could not fit bounds: %v", fitErr)
	}
}

// drawArc adds one destination's layers and flow animation. A panic from the
// surface is turned into an error so the remaining arcs still render.
func (c *Controller) drawArc(sess *RenderingSession, r *ArcResult) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	if r.Err != nil {
		if errors.Is(r.Err, ErrCoincident) && c.cfg.ShowDestinations {
			_, err := sess.addLayer(Layer{
				Tag: TagDestination, Kind: KindMarker, Points: []GeoPoint{r.Destination.Location},
				Color: PaletteColor(r.Rank - 1).RGBA(), Radius: 5, Opacity: 0.8,
				Detail: DestinationDetail(r.Destination, r.Rank),
			})
			if err != nil {
				return err
			}
		}
		return r.Err
	}

	arc := r.Arc
	dash := NewFlowDash(arc.DashPeriod)
	line, err := sess.addLayer(Layer{
		Tag: TagArc, Kind: KindPolyline, Points: arc.Curve,
		Color: arc.Color.RGBA(), Weight: arc.StrokeWeight, Opacity: 0.8,
		DashLength: dash.Length, DashOffset: dash.Offset,
	})
	if err != nil {
		return err
	}

	if c.cfg.ShowDestinations {
		if _, err := sess.addLayer(Layer{
			Tag: TagDestination, Kind: KindMarker, Points: []GeoPoint{arc.Destination},
			Color: arc.Color.RGBA(), Radius: arc.MarkerRadius, Opacity: 0.8,
			Detail: DestinationDetail(r.Destination, r.Rank),
		}); err != nil {
			return err
		}
	}

	sess.arcs.Every(c.cfg.FlowPeriod, func() {
		offset := dash.Step()
		sess.mutate(func(s Surface) { s.SetDash(line, dash.Length, offset) })
	})
	return nil
}
