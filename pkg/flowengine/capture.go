package flowengine

import (
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// captureFrame copies the screen and writes it as a PNG in the background.
func (e *Engine) captureFrame(img *ebiten.Image, location string) error {
	if e.FrameCaptureDir == "" {
		return nil
	}
	if err := os.MkdirAll(e.FrameCaptureDir, 0o755); err != nil {
		return fmt.Errorf("create capture directory: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	img.ReadPixels(rgba.Pix)

	path := filepath.Join(e.FrameCaptureDir, captureName(location, time.Now()))
	go func() {
		if err := writePNG(path, rgba); err != nil {
			log.Printf("[viewer] Error writing capture: %v", err)
			return
		}
		log.Printf("[viewer] Captured frame: %s", path)
	}()
	return nil
}

func captureName(location string, ts time.Time) string {
	if location == "" {
		location = "map"
	}
	location = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, location)
	return fmt.Sprintf("flow-%s-%s.png", location, ts.Format("20060102-150405.000"))
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}
