package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/sudorandom/flow-map/pkg/sources"
)

var cli struct {
	Root   string `arg:"" optional:"" help:"Asset root holding the data directory." default:"." type:"existingdir"`
	Data   string `help:"Data directory under the root, one folder per location." default:"data"`
	Output string `help:"Where to write the descriptors, relative to the root. Use - for stdout." default:"locations.json" short:"o"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("location-scan"),
		kong.Description("Build locations.json from the per-location data folders."),
		kong.UsageOnError(),
	)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	locs, err := sources.ScanLocations(filepath.Join(cli.Root, cli.Data), filepath.ToSlash(cli.Data))
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}
	if len(locs) == 0 {
		log.Fatalf("No location folders with CSV data under %s", filepath.Join(cli.Root, cli.Data))
	}

	data, err := json.MarshalIndent(locs, "", "  ")
	if err != nil {
		log.Fatalf("Encode locations: %v", err)
	}
	data = append(data, '\n')

	if cli.Output == "-" {
		fmt.Print(string(data))
		return
	}
	out := filepath.Join(cli.Root, cli.Output)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		log.Fatalf("Write %s: %v", out, err)
	}
	for _, l := range locs {
		_, hasOrigin := l.Origin()
		log.Printf("[scan] %-20s %-28s origin=%v", l.Name, l.DestinationsPath(), hasOrigin)
	}
	log.Printf("Wrote %d locations to %s", len(locs), out)
}
