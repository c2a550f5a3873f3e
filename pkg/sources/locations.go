package sources

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sudorandom/flow-map/pkg/flowengine"
)

// Location describes one restaurant and where its data lives.
type Location struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	FolderPath  string   `json:"folderPath,omitempty"`
	File        string   `json:"file,omitempty"`
}

func (l Location) Title() string {
	if l.DisplayName != "" {
		return l.DisplayName
	}
	return l.Name
}

// Origin returns the descriptor's own coordinates, if it carries valid ones.
func (l Location) Origin() (flowengine.OriginPoint, bool) {
	if l.Latitude == nil || l.Longitude == nil {
		return flowengine.OriginPoint{}, false
	}
	p := flowengine.GeoPoint{Lat: *l.Latitude, Lng: *l.Longitude}
	if !p.Valid() {
		return flowengine.OriginPoint{}, false
	}
	return flowengine.OriginPoint{Location: p, Label: l.Title()}, true
}

func (l Location) folder() string {
	if l.FolderPath != "" {
		return l.FolderPath
	}
	return path.Join(DataDir, l.Name)
}

// CoordinatesPath is the asset path of the origin file.
func (l Location) CoordinatesPath() string {
	return path.Join(l.folder(), CoordinatesFile)
}

// DestinationsPath is the asset path of the destination CSV. A bare file
// name is taken relative to the folder; anything with a slash is relative to
// the asset base.
func (l Location) DestinationsPath() string {
	switch {
	case l.File == "":
		return path.Join(l.folder(), DestinationsFile)
	case strings.Contains(l.File, "/"):
		return strings.TrimPrefix(l.File, "/")
	default:
		return path.Join(l.folder(), l.File)
	}
}

// ParseLocations decodes a locations.json array, dropping entries without a name.
func ParseLocations(data []byte) ([]Location, error) {
	var raw []Location
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", LocationsFile, err)
	}
	out := raw[:0]
	seen := make(map[string]bool)
	for _, l := range raw {
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" || seen[l.Name] {
			continue
		}
		seen[l.Name] = true
		out = append(out, l)
	}
	return out, nil
}

func ptr(f float64) *float64 { return &f }

// DefaultLocations is used when no locations.json can be read.
func DefaultLocations() []Location {
	return []Location{
		{Name: "kadikoy", DisplayName: "Kadıköy", Latitude: ptr(40.9903), Longitude: ptr(29.0205), FolderPath: "data/kadikoy"},
		{Name: "besiktas", DisplayName: "Beşiktaş", Latitude: ptr(41.0422), Longitude: ptr(29.0083), FolderPath: "data/besiktas"},
		{Name: "sisli", DisplayName: "Şişli", Latitude: ptr(41.0602), Longitude: ptr(28.9877), FolderPath: "data/sisli"},
	}
}

// ScanLocations builds descriptors from a data directory holding one folder
// per location. A folder counts when it has a CSV other than the coordinates
// file; the coordinates file, when readable, fills in latitude/longitude.
func ScanLocations(root, prefix string) ([]Location, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	var out []Location
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, e.Name())
		loc, ok, err := scanFolder(dir, e.Name(), prefix)
		if err != nil {
			log.Printf("[scan] Skipping %s: %v", dir, err)
			continue
		}
		if ok {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func scanFolder(dir, name, prefix string) (Location, bool, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return Location{}, false, err
	}
	var csvs []string
	hasCoords := false
	for _, f := range files {
		if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".csv") {
			continue
		}
		if f.Name() == CoordinatesFile {
			hasCoords = true
			continue
		}
		csvs = append(csvs, f.Name())
	}
	if len(csvs) == 0 {
		return Location{}, false, nil
	}
	sort.Strings(csvs)
	file := csvs[0]
	for _, c := range csvs {
		if c == DestinationsFile {
			file = c
		}
	}

	loc := Location{
		Name:        name,
		DisplayName: displayName(name),
		FolderPath:  path.Join(prefix, name),
	}
	if file != DestinationsFile {
		loc.File = file
	}
	if hasCoords {
		origin, err := readOrigin(filepath.Join(dir, CoordinatesFile), loc.DisplayName)
		switch {
		case err == nil:
			loc.Latitude = ptr(origin.Location.Lat)
			loc.Longitude = ptr(origin.Location.Lng)
		case errors.Is(err, ErrNoCoordinates), errors.Is(err, ErrEmptyCSV):
			log.Printf("[scan] %s: coordinates file has no usable row", name)
		default:
			return Location{}, false, err
		}
	}
	return loc, true, nil
}

func readOrigin(p, label string) (flowengine.OriginPoint, error) {
	f, err := os.Open(p)
	if err != nil {
		return flowengine.OriginPoint{}, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("[scan] Error closing %s: %v", p, err)
		}
	}()
	return ParseOrigin(f, label)
}

// displayName turns a folder name like "bagdat_caddesi" into "Bagdat Caddesi".
func displayName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
