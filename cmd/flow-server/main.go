package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sudorandom/flow-map/pkg/flowengine"
	"github.com/sudorandom/flow-map/pkg/flowserver"
	"github.com/sudorandom/flow-map/pkg/sources"
	"github.com/sudorandom/flow-map/pkg/utils"
)

var cli struct {
	Addr     string        `help:"Listen address." default:":8080" env:"FLOWMAP_ADDR"`
	Assets   string        `help:"Directory or http(s) URL with locations.json and the per-location CSV folders." default:"." env:"FLOWMAP_ASSETS"`
	CacheDir string        `help:"Keep last-known-good copies of fetched assets here. Empty disables the cache." env:"FLOWMAP_CACHE_DIR"`
	CacheTTL time.Duration `help:"How long cached assets stay usable." default:"168h"`

	TileStyle        string  `help:"Basemap style for new sessions." enum:"dark,light,streets" default:"dark"`
	Zoom             float64 `help:"Initial zoom level for new sessions." default:"12"`
	MaxArcs          int     `help:"Number of top destinations drawn." default:"10"`
	HideDestinations bool    `help:"Draw arcs without destination markers."`
	AllowAnyOrigin   bool    `help:"Accept websocket sessions from pages served elsewhere."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("flow-server"),
		kong.Description("Serves customer flow data, charts and live map sessions."),
		kong.UsageOnError(),
	)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, err := utils.OpenFetcher(cli.Assets, cli.CacheDir, cli.CacheTTL)
	if err != nil {
		log.Fatalf("Failed to open asset cache: %v", err)
	}
	defer fetcher.Close()

	cfg := flowengine.DefaultConfig()
	cfg.TileStyle = cli.TileStyle
	cfg.Zoom = cli.Zoom
	cfg.MaxArcs = cli.MaxArcs
	cfg.ShowDestinations = !cli.HideDestinations

	loader := sources.NewLoader(fetcher)
	log.Printf("Serving %d locations from %s", len(loader.Locations(ctx)), cli.Assets)

	srv := flowserver.New(loader, flowserver.Options{Map: cfg, AllowAnyOrigin: cli.AllowAnyOrigin})
	if err := srv.ListenAndServe(ctx, cli.Addr); err != nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
}
