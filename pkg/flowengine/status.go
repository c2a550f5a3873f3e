package flowengine

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

var (
	colorPanel       = color.RGBA{0, 0, 0, 140}
	colorPanelBorder = color.RGBA{36, 42, 53, 255}
	colorError       = color.RGBA{255, 71, 87, 255}
	colorWarn        = color.RGBA{255, 165, 2, 255}
)

func (e *Engine) fontSizes() (margin, fontSize float64) {
	if e.Width > 2000 {
		margin, fontSize = 80, 32
	} else {
		margin, fontSize = 30, 16
	}
	return e.px(margin), e.px(fontSize)
}

// px scales a size in pixels by the engine's rendering scale.
func (e *Engine) px(v float64) float64 {
	if e.Scale <= 0 {
		return v
	}
	return v * e.Scale
}

func (e *Engine) panel(screen *ebiten.Image, x, y, w, h float64, accent color.RGBA) {
	vector.DrawFilledRect(screen, float32(x), float32(y), float32(w), float32(h), colorPanel, false)
	vector.StrokeRect(screen, float32(x), float32(y), float32(w), float32(h), 1, colorPanelBorder, false)
	vector.DrawFilledRect(screen, float32(x), float32(y), 4, float32(h), accent, false)
}

func (e *Engine) label(screen *ebiten.Image, s string, face *text.GoTextFace, x, y float64, alpha float32) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.Scale(1, 1, 1, alpha)
	text.Draw(screen, s, face, op)
}

// drawLegend lists the ranked destinations with their arc colors.
func (e *Engine) drawLegend(screen *ebiten.Image) {
	if e.fontSource == nil || e.controls == nil {
		return
	}
	dests := e.controls.Destinations()
	if len(dests) == 0 {
		return
	}
	margin, fontSize := e.fontSizes()
	face := &text.GoTextFace{Source: e.fontSource, Size: fontSize}
	mono := &text.GoTextFace{Source: e.monoSource, Size: fontSize * 0.9}
	spacing := fontSize * 1.6
	boxW := fontSize * 20
	boxH := spacing*float64(len(dests)) + fontSize*2.5
	x := float64(e.Width) - margin - boxW
	y := margin

	e.panel(screen, x, y, boxW, boxH, Palette[0])
	e.label(screen, "TOP DESTINATIONS", &text.GoTextFace{Source: e.fontSource, Size: fontSize * 0.8}, x+14, y+8, 0.5)

	for i, d := range dests {
		ty := y + fontSize*2 + float64(i)*spacing
		c := PaletteColor(i).RGBA()
		vector.DrawFilledCircle(screen, float32(x+22), float32(ty+fontSize/2), float32(fontSize/3), c, true)

		name := d.Name
		const maxLen = 22
		if len([]rune(name)) > maxLen {
			name = string([]rune(name)[:maxLen-3]) + "..."
		}
		e.label(screen, name, face, x+38, ty, 0.85)

		count := fmt.Sprintf("%d", d.VisitorCount)
		tw, _ := text.Measure(count, mono, 0)
		e.label(screen, count, mono, x+boxW-tw-14, ty, 0.6)
	}
}

// drawStatus draws the title block, the error or fallback banner and the
// key help.
func (e *Engine) drawStatus(screen *ebiten.Image, style *TileStyle) {
	if e.fontSource == nil {
		return
	}
	margin, fontSize := e.fontSizes()
	titleFace := &text.GoTextFace{Source: e.fontSource, Size: fontSize * 1.6}
	face := &text.GoTextFace{Source: e.fontSource, Size: fontSize}
	small := &text.GoTextFace{Source: e.fontSource, Size: fontSize * 0.75}

	var st Status
	if e.controls != nil {
		st = e.controls.Status()
	}
	title := st.DisplayName
	if title == "" {
		title = st.Location
	}
	if title == "" {
		title = "No location selected"
	}
	e.label(screen, title, titleFace, margin, margin, 0.95)

	sub := fmt.Sprintf("zoom %.0f · %s tiles", st.Zoom, st.TileStyle)
	if st.RowsTotal > 0 {
		sub += fmt.Sprintf(" · %d/%d rows", st.RowsKept, st.RowsTotal)
	}
	if st.Loading {
		sub += " · loading…"
	}
	e.label(screen, sub, small, margin, margin+fontSize*2.2, 0.6)

	bannerY := margin + fontSize*4
	switch {
	case st.Err != nil:
		msg := fmt.Sprintf("Could not load data: %v", st.Err)
		e.banner(screen, msg+"  [R] retry", face, margin, bannerY, colorError)
	case st.Fallback:
		e.banner(screen, "Destinations unavailable, showing sample data  [R] retry", face, margin, bannerY, colorWarn)
	}

	if style != nil && style.Attribution != "" {
		tw, _ := text.Measure(style.Attribution, small, 0)
		e.label(screen, style.Attribution, small, float64(e.Width)-tw-10, float64(e.Height)-fontSize-6, 0.5)
	}

	help := "[H] help"
	if e.showHelp {
		help = strings.Join([]string{
			"[Tab] next location", "[T] tile style", "[+/-] zoom",
			"[R] retry", "[P] capture", "[click] details", "[H] hide",
		}, "   ")
	}
	e.label(screen, help, small, margin, float64(e.Height)-fontSize-6, 0.5)
}

func (e *Engine) banner(screen *ebiten.Image, msg string, face *text.GoTextFace, x, y float64, accent color.RGBA) {
	tw, th := text.Measure(msg, face, 0)
	e.panel(screen, x, y, tw+28, th+14, accent)
	e.label(screen, msg, face, x+16, y+7, 0.9)
}

// drawDetail shows the panel of the last clicked marker.
func (e *Engine) drawDetail(screen *ebiten.Image) {
	d := e.selected
	if d == nil || e.fontSource == nil {
		return
	}
	margin, fontSize := e.fontSizes()
	face := &text.GoTextFace{Source: e.fontSource, Size: fontSize}
	titleFace := &text.GoTextFace{Source: e.fontSource, Size: fontSize * 1.2}
	spacing := fontSize * 1.5
	boxW := fontSize * 20
	boxH := fontSize*3 + spacing*float64(len(d.Fields))
	x := margin
	y := float64(e.Height)/2 - boxH/2

	e.panel(screen, x, y, boxW, boxH, Palette[3])
	e.label(screen, d.Title, titleFace, x+14, y+8, 0.95)
	for i, f := range d.Fields {
		ty := y + fontSize*2.6 + float64(i)*spacing
		e.label(screen, f.Label, face, x+14, ty, 0.5)
		tw, _ := text.Measure(f.Value, face, 0)
		e.label(screen, f.Value, face, x+boxW-tw-14, ty, 0.85)
	}
}
