package flowengine

import (
	"errors"
	"fmt"
	"image/color"
	"sort"
)

var ErrUnknownTileStyle = errors.New("unknown tile style")

const DefaultTileStyle = "dark"

const (
	CartoDarkURL  = "https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png"
	CartoLightURL = "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png"
	OSMStreetsURL = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"

	cartoAttribution = "© OpenStreetMap contributors © CARTO"
	osmAttribution   = "© OpenStreetMap contributors"
)

// TileStyle is a base map look. Remote clients use URL; the local viewer
// paints the vector basemap with the colors.
type TileStyle struct {
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	Attribution string     `json:"attribution"`
	Water       color.RGBA `json:"water"`
	Land        color.RGBA `json:"land"`
	Outline     color.RGBA `json:"outline"`
	Text        color.RGBA `json:"text"`
}

var TileStyles = map[string]TileStyle{
	"dark": {
		Name: "dark", URL: CartoDarkURL, Attribution: cartoAttribution,
		Water:   color.RGBA{8, 10, 15, 255},
		Land:    color.RGBA{26, 29, 35, 255},
		Outline: color.RGBA{36, 42, 53, 255},
		Text:    color.RGBA{230, 230, 230, 255},
	},
	"light": {
		Name: "light", URL: CartoLightURL, Attribution: cartoAttribution,
		Water:   color.RGBA{212, 218, 220, 255},
		Land:    color.RGBA{250, 250, 248, 255},
		Outline: color.RGBA{190, 190, 190, 255},
		Text:    color.RGBA{40, 40, 40, 255},
	},
	"streets": {
		Name: "streets", URL: OSMStreetsURL, Attribution: osmAttribution,
		Water:   color.RGBA{170, 211, 223, 255},
		Land:    color.RGBA{242, 239, 233, 255},
		Outline: color.RGBA{200, 180, 160, 255},
		Text:    color.RGBA{30, 30, 30, 255},
	},
}

func LookupTileStyle(name string) (TileStyle, error) {
	if name == "" {
		name = DefaultTileStyle
	}
	s, ok := TileStyles[name]
	if !ok {
		return TileStyle{}, fmt.Errorf("%w: %s", ErrUnknownTileStyle, name)
	}
	return s, nil
}

func TileStyleNames() []string {
	names := make([]string, 0, len(TileStyles))
	for n := range TileStyles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NextTileStyle returns the style after name in alphabetical order, wrapping.
func NextTileStyle(name string) string {
	names := TileStyleNames()
	for i, n := range names {
		if n == name {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}
