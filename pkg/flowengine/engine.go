package flowengine

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	geojson "github.com/paulmach/go.geojson"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

// Engine is the ebiten game that draws whatever scene is mounted on its host.
type Engine struct {
	Width, Height int
	Scale         float64

	FrameCaptureDir string

	host     *SceneHost
	controls Controls

	basemap *geojson.FeatureCollection

	bgMu    sync.Mutex
	bgImage *ebiten.Image
	bgKey   string

	pulseImage *ebiten.Image
	fontSource *text.GoTextFaceSource
	monoSource *text.GoTextFaceSource

	selected *Detail
	showHelp bool
	quit     atomic.Bool
}

func NewEngine(width, height int, scale float64, host *SceneHost, controls Controls) *Engine {
	s, _ := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	m, _ := text.NewGoTextFaceSource(bytes.NewReader(gomono.TTF))

	return &Engine{
		Width:      width,
		Height:     height,
		Scale:      scale,
		host:       host,
		controls:   controls,
		fontSource: s,
		monoSource: m,
	}
}

// LoadBasemap parses a GeoJSON FeatureCollection of land polygons.
func (e *Engine) LoadBasemap(data []byte) error {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("parse basemap: %w", err)
	}
	e.bgMu.Lock()
	e.basemap = fc
	e.bgKey = ""
	e.bgMu.Unlock()
	return nil
}

// Quit ends the game loop on the next tick.
func (e *Engine) Quit() { e.quit.Store(true) }

func (e *Engine) Update() error {
	if e.quit.Load() {
		return ebiten.Termination
	}
	if e.controls != nil {
		switch {
		case inpututil.IsKeyJustPressed(ebiten.KeyTab):
			e.selected = nil
			e.controls.NextLocation()
		case inpututil.IsKeyJustPressed(ebiten.KeyT):
			e.controls.NextTileStyle()
		case inpututil.IsKeyJustPressed(ebiten.KeyR):
			e.controls.Retry()
		case inpututil.IsKeyJustPressed(ebiten.KeyEqual), inpututil.IsKeyJustPressed(ebiten.KeyKPAdd):
			e.controls.ZoomBy(1)
		case inpututil.IsKeyJustPressed(ebiten.KeyMinus), inpututil.IsKeyJustPressed(ebiten.KeyKPSubtract):
			e.controls.ZoomBy(-1)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyH) {
		e.showHelp = !e.showHelp
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		e.selected = nil
	}
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		x, y := ebiten.CursorPosition()
		if l, ok := e.host.LayerAt(float64(x), float64(y)); ok {
			e.selected = l.Detail
		} else {
			e.selected = nil
		}
	}
	return nil
}

func (e *Engine) Draw(screen *ebiten.Image) {
	frame, ok := e.host.Snapshot()
	if !ok {
		screen.Fill(TileStyles[DefaultTileStyle].Water)
		e.drawStatus(screen, nil)
		e.maybeCapture(screen)
		return
	}

	var style *TileStyle
	for _, l := range frame.Layers {
		switch l.Kind {
		case KindTiles:
			style = l.Tiles
			screen.DrawImage(e.background(frame.Viewport, l.Tiles), nil)
		case KindPolyline:
			e.drawPolyline(screen, frame.Viewport, l.Layer)
		case KindMarker:
			e.drawMarker(screen, frame.Viewport, l.Layer)
		}
	}

	e.drawLegend(screen)
	e.drawStatus(screen, style)
	e.drawDetail(screen)
	e.maybeCapture(screen)
}

func (e *Engine) Layout(w, h int) (int, int) {
	if w != e.Width || h != e.Height {
		e.Width, e.Height = w, h
		e.host.Resize(w, h)
		if r, ok := e.controls.(interface{ Resize(w, h int) }); ok {
			r.Resize(w, h)
		}
	}
	return e.Width, e.Height
}

func (e *Engine) drawPolyline(screen *ebiten.Image, vp Viewport, l Layer) {
	pts := make([][2]float64, len(l.Points))
	for i, p := range l.Points {
		x, y := vp.Project(p)
		pts[i] = [2]float64{x, y}
	}
	c := withAlpha(l.Color, l.Opacity)
	for _, s := range dashSegments(pts, e.px(l.DashLength), e.px(l.DashOffset)) {
		vector.StrokeLine(screen, float32(s[0]), float32(s[1]), float32(s[2]), float32(s[3]), float32(e.px(l.Weight)), c, true)
	}
}

func (e *Engine) drawMarker(screen *ebiten.Image, vp Viewport, l Layer) {
	if len(l.Points) == 0 {
		return
	}
	x, y := vp.Project(l.Points[0])
	r := e.px(l.Radius)
	if l.Tag == TagOrigin && l.Detail == nil {
		e.drawPulseRing(screen, x, y, r, l.Color, l.Opacity)
		return
	}
	vector.DrawFilledCircle(screen, float32(x), float32(y), float32(r), withAlpha(l.Color, l.Opacity), true)
	vector.StrokeCircle(screen, float32(x), float32(y), float32(r), float32(e.px(1.5)), color.RGBA{255, 255, 255, 200}, true)
}

func (e *Engine) drawPulseRing(screen *ebiten.Image, x, y, radius float64, c color.RGBA, alpha float64) {
	if e.pulseImage == nil {
		e.InitPulseTexture()
	}
	imgW := e.pulseImage.Bounds().Dx()
	halfW := float64(imgW) / 2
	op := &ebiten.DrawImageOptions{}
	op.Blend = ebiten.BlendLighter
	scale := radius / float64(imgW) * 2.0
	op.GeoM.Translate(-halfW, -halfW)
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(x, y)
	r, g, b := float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0
	op.ColorScale.Scale(float32(r*alpha), float32(g*alpha), float32(b*alpha), float32(alpha))
	screen.DrawImage(e.pulseImage, op)
}

// InitPulseTexture renders the soft ring drawn around the origin.
func (e *Engine) InitPulseTexture() {
	size := 128
	if e.Width > 2000 {
		size = 256
	}
	e.pulseImage = ebiten.NewImage(size, size)
	pixels := make([]byte, size*size*4)
	center, maxDist := float64(size)/2.0, float64(size)/2.0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			dist := math.Sqrt(dx*dx + dy*dy)
			if dist < maxDist {
				val, outer, inner := 0.0, 0.9, 0.7
				if dist > maxDist*outer {
					val = math.Cos(((dist - maxDist*(outer+((1-outer)/2))) / (maxDist * ((1 - outer) / 2))) * (math.Pi / 2))
				} else if dist > maxDist*inner {
					val = math.Sin(((dist - maxDist*inner) / (maxDist * (outer - inner))) * (math.Pi / 2))
				}
				pixels[(y*size+x)*4+3] = uint8(math.Max(0, val) * 255)
				pixels[(y*size+x)*4+0], pixels[(y*size+x)*4+1], pixels[(y*size+x)*4+2] = 255, 255, 255
			}
		}
	}
	e.pulseImage.WritePixels(pixels)
}

// background returns the basemap for the viewport, redrawing it only when
// the view, size or style changed.
func (e *Engine) background(vp Viewport, style *TileStyle) *ebiten.Image {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	key := fmt.Sprintf("%s|%.6f|%.6f|%.2f|%dx%d", style.Name, vp.Center.Lat, vp.Center.Lng, vp.Zoom, vp.Width, vp.Height)
	if e.bgImage != nil && e.bgKey == key {
		return e.bgImage
	}
	cpuImg := e.renderBasemap(vp, style)
	if e.bgImage != nil {
		e.bgImage.Deallocate()
	}
	e.bgImage = ebiten.NewImageFromImage(cpuImg)
	e.bgKey = key
	return e.bgImage
}

func (e *Engine) renderBasemap(vp Viewport, style *TileStyle) *image.RGBA {
	w, h := max(vp.Width, 1), max(vp.Height, 1)
	cpuImg := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(cpuImg, cpuImg.Bounds(), &image.Uniform{style.Water}, image.Point{}, draw.Src)
	if e.basemap == nil {
		return cpuImg
	}
	r := rasterizer{img: cpuImg, vp: vp}
	for _, f := range e.basemap.Features {
		if f.Geometry == nil {
			continue
		}
		if f.Geometry.IsPolygon() {
			r.fillPolygon(f.Geometry.Polygon, style.Land)
			for _, ring := range f.Geometry.Polygon {
				r.drawRing(ring, style.Outline)
			}
		} else if f.Geometry.IsMultiPolygon() {
			for _, poly := range f.Geometry.MultiPolygon {
				r.fillPolygon(poly, style.Land)
				for _, ring := range poly {
					r.drawRing(ring, style.Outline)
				}
			}
		}
	}
	return cpuImg
}

// rasterizer paints GeoJSON rings straight into an RGBA buffer.
type rasterizer struct {
	img *image.RGBA
	vp  Viewport
}

func (r rasterizer) project(coord []float64) (float64, float64) {
	if len(coord) < 2 {
		return 0, 0
	}
	return r.vp.Project(GeoPoint{Lat: coord[1], Lng: coord[0]})
}

func (r rasterizer) fillPolygon(rings [][][]float64, c color.RGBA) {
	if len(rings) == 0 {
		return
	}
	width, height := r.img.Bounds().Dx(), r.img.Bounds().Dy()
	type point struct{ x, y float64 }
	projectedRings := make([][]point, len(rings))
	minY, maxY := float64(height), 0.0
	for i, ring := range rings {
		projectedRings[i] = make([]point, len(ring))
		for j, p := range ring {
			x, y := r.project(p)
			projectedRings[i][j] = point{x, y}
			minY = math.Min(minY, y)
			maxY = math.Max(maxY, y)
		}
	}
	for y := max(int(minY), 0); y <= min(int(maxY), height-1); y++ {
		var nodes []int
		fy := float64(y)
		for _, ring := range projectedRings {
			for i := 0; i < len(ring); i++ {
				j := (i + 1) % len(ring)
				if (ring[i].y < fy && ring[j].y >= fy) || (ring[j].y < fy && ring[i].y >= fy) {
					nodeX := ring[i].x + (fy-ring[i].y)/(ring[j].y-ring[i].y)*(ring[j].x-ring[i].x)
					nodes = append(nodes, int(nodeX))
				}
			}
		}
		sort.Ints(nodes)
		for i := 0; i < len(nodes)-1; i += 2 {
			xs, xe := max(nodes[i], 0), min(nodes[i+1], width-1)
			for x := xs; x < xe; x++ {
				off := y*r.img.Stride + x*4
				r.img.Pix[off], r.img.Pix[off+1], r.img.Pix[off+2], r.img.Pix[off+3] = c.R, c.G, c.B, 255
			}
		}
	}
}

func (r rasterizer) drawRing(coords [][]float64, c color.RGBA) {
	for i := 0; i < len(coords)-1; i++ {
		x1, y1 := r.project(coords[i])
		x2, y2 := r.project(coords[i+1])
		r.drawLine(int(x1), int(y1), int(x2), int(y2), c)
	}
}

func (r rasterizer) drawLine(x1, y1, x2, y2 int, c color.RGBA) {
	width, height := r.img.Bounds().Dx(), r.img.Bounds().Dy()
	// zoomed far in, a ring edge can span millions of pixels
	if abs(x2-x1) > 4*width || abs(y2-y1) > 4*height {
		return
	}
	dx, dy := math.Abs(float64(x2-x1)), math.Abs(float64(y2-y1))
	sx, sy := -1, -1
	if x1 < x2 {
		sx = 1
	}
	if y1 < y2 {
		sy = 1
	}
	err := dx - dy
	for {
		if x1 >= 0 && x1 < width && y1 >= 0 && y1 < height {
			off := y1*r.img.Stride + x1*4
			r.img.Pix[off], r.img.Pix[off+1], r.img.Pix[off+2], r.img.Pix[off+3] = c.R, c.G, c.B, 255
		}
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// dashSegments cuts a screen polyline into the visible pieces of a
// (length, length) dash pattern shifted by offset. A point at distance s
// along the line is drawn when (s + offset) mod 2*length < length.
// length <= 0 means a solid line.
func dashSegments(pts [][2]float64, length, offset float64) [][4]float64 {
	var out [][4]float64
	if len(pts) < 2 {
		return out
	}
	if length <= 0 {
		for i := 0; i+1 < len(pts); i++ {
			out = append(out, [4]float64{pts[i][0], pts[i][1], pts[i+1][0], pts[i+1][1]})
		}
		return out
	}

	walked := 0.0
	for i := 0; i+1 < len(pts); i++ {
		x0, y0 := pts[i][0], pts[i][1]
		x1, y1 := pts[i+1][0], pts[i+1][1]
		segLen := math.Hypot(x1-x0, y1-y0)
		pos := 0.0
		for pos < segLen {
			on, run := dashPhase(walked+pos+offset, length)
			end := math.Min(segLen, pos+run)
			if end <= pos {
				end = segLen
			}
			if on {
				t0, t1 := pos/segLen, end/segLen
				out = append(out, [4]float64{
					x0 + (x1-x0)*t0, y0 + (y1-y0)*t0,
					x0 + (x1-x0)*t1, y0 + (y1-y0)*t1,
				})
			}
			pos = end
		}
		walked += segLen
	}
	return merge(out)
}

// dashEpsilon is how close to a dash boundary counts as on it.
const dashEpsilon = 1e-9

// dashPhase reports whether distance d falls inside a dash and how far it
// is to the next boundary. The distance is never below dashEpsilon.
func dashPhase(d, length float64) (on bool, run float64) {
	period := 2 * length
	phase := math.Mod(d, period)
	if phase < 0 {
		phase += period
	}
	if period-phase < dashEpsilon {
		phase = 0
	}
	if phase < length {
		if length-phase >= dashEpsilon {
			return true, length - phase
		}
		phase = length
	}
	return false, period - phase
}

// merge joins consecutive pieces that continue each other across vertices.
func merge(segs [][4]float64) [][4]float64 {
	if len(segs) < 2 {
		return segs
	}
	out := segs[:1]
	for _, s := range segs[1:] {
		last := &out[len(out)-1]
		if last[2] == s[0] && last[3] == s[1] && collinear(*last, s) {
			last[2], last[3] = s[2], s[3]
			continue
		}
		out = append(out, s)
	}
	return out
}

func collinear(a, b [4]float64) bool {
	cross := (a[2]-a[0])*(b[3]-b[1]) - (a[3]-a[1])*(b[2]-b[0])
	return math.Abs(cross) < 1e-9
}

func withAlpha(c color.RGBA, alpha float64) color.RGBA {
	alpha = math.Max(0, math.Min(1, alpha))
	return color.RGBA{
		R: uint8(float64(c.R) * alpha),
		G: uint8(float64(c.G) * alpha),
		B: uint8(float64(c.B) * alpha),
		A: uint8(255 * alpha),
	}
}

func (e *Engine) maybeCapture(screen *ebiten.Image) {
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		status := Status{}
		if e.controls != nil {
			status = e.controls.Status()
		}
		if err := e.captureFrame(screen, status.Location); err != nil {
			log.Printf("[viewer] Capture failed: %v", err)
		}
	}
}
