package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sudorandom/flow-map/pkg/charts"
	"github.com/sudorandom/flow-map/pkg/flowengine"
	"github.com/sudorandom/flow-map/pkg/sources"
	"github.com/sudorandom/flow-map/pkg/utils"
)

type Globals struct {
	MaxArcs int  `help:"Number of top destinations to rank." default:"10"`
	JSON    bool `help:"Dump the dataset as JSON instead of the report."`
}

// LocationCmd inspects a location the way the viewer would load it.
type LocationCmd struct {
	Name    string        `arg:"" help:"Location name from locations.json."`
	Assets  string        `help:"Directory or http(s) URL with the location data." default:"." env:"FLOWMAP_ASSETS"`
	Timeout time.Duration `help:"Give up loading after this long." default:"30s"`
}

func (c *LocationCmd) Run(g *Globals) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	loader := sources.NewLoader(utils.NewFetcher(c.Assets, nil))
	ds, err := loader.LoadDataset(ctx, c.Name)
	if err != nil {
		return err
	}
	var rows []sources.Row
	if !ds.Fallback {
		if rows, err = loader.Rows(ctx, c.Name); err != nil {
			log.Printf("Could not reread rows for charts: %v", err)
		}
	}
	return output(g, ds, rows)
}

// FileCmd inspects a single destinations CSV against a given origin.
type FileCmd struct {
	Path   string `arg:"" help:"Destinations CSV." type:"existingfile"`
	Origin string `help:"Origin as lat,lng." required:""`
	Label  string `help:"Origin label." default:"origin"`
}

func (c *FileCmd) Run(g *Globals) error {
	origin, err := parseLatLng(c.Origin)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return err
	}
	points, stats, err := sources.ParseDestinations(bytes.NewReader(data))
	if err != nil {
		return err
	}
	rows, err := sources.ParseRows(bytes.NewReader(data))
	if err != nil {
		return err
	}
	ds := flowengine.Dataset{
		Location:     c.Path,
		DisplayName:  c.Path,
		Origin:       flowengine.OriginPoint{Location: origin, Label: c.Label},
		Destinations: points,
		RowsTotal:    stats.Total,
		RowsKept:     stats.Kept,
	}
	return output(g, ds, rows)
}

func parseLatLng(s string) (flowengine.GeoPoint, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return flowengine.GeoPoint{}, fmt.Errorf("origin %q: want lat,lng", s)
	}
	var p flowengine.GeoPoint
	var err error
	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return p, fmt.Errorf("origin latitude: %w", err)
	}
	if p.Lng, err = strconv.ParseFloat(strings.TrimSpace(lng), 64); err != nil {
		return p, fmt.Errorf("origin longitude: %w", err)
	}
	if !p.Valid() {
		return p, fmt.Errorf("origin %q: %w", s, flowengine.ErrInvalidLocation)
	}
	return p, nil
}

func output(g *Globals, ds flowengine.Dataset, rows []sources.Row) error {
	if g.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ds)
	}
	tables := make([]charts.Table, 0, len(charts.Kinds()))
	for _, k := range charts.Kinds() {
		if t, err := charts.Build(k, rows); err == nil {
			tables = append(tables, t)
		}
	}
	report(os.Stdout, ds, g.MaxArcs, tables)
	return nil
}

var cli struct {
	Globals

	Location LocationCmd `cmd:"" help:"Inspect a configured location."`
	File     FileCmd     `cmd:"" help:"Inspect a destinations CSV file."`
	Cache    CacheCmd    `cmd:"" help:"List or evict cached asset copies."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("flow-inspect"),
		kong.Description("Print how a location's data is parsed, ranked and drawn."),
		kong.UsageOnError(),
	)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
