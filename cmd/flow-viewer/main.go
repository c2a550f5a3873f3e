package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/sudorandom/flow-map/pkg/flowengine"
	"github.com/sudorandom/flow-map/pkg/sources"
	"github.com/sudorandom/flow-map/pkg/utils"
)

var cli struct {
	Assets   string        `help:"Directory or http(s) URL with locations.json and the per-location CSV folders." default:"." env:"FLOWMAP_ASSETS"`
	CacheDir string        `help:"Keep last-known-good copies of fetched assets here. Empty disables the cache." env:"FLOWMAP_CACHE_DIR"`
	CacheTTL time.Duration `help:"How long cached assets stay usable." default:"168h"`
	Basemap  string        `help:"GeoJSON land polygons, relative to the assets." default:"${basemap}"`

	Location         string  `help:"Location to open first. Defaults to the first one listed." short:"l"`
	Remote           string  `help:"ws(s):// URL of a flow-server session. The server drives the map." placeholder:"URL"`
	TileStyle        string  `help:"Basemap style." enum:"dark,light,streets" default:"dark"`
	Zoom             float64 `help:"Initial zoom level." default:"12"`
	MaxArcs          int     `help:"Number of top destinations drawn." default:"10"`
	HideDestinations bool    `help:"Draw arcs without destination markers."`

	CaptureDir   string  `help:"Write a PNG of the frame here when P is pressed." type:"path"`
	Headless     bool    `help:"Run without a local window (Xvfb rendering active)."`
	Width        int     `help:"Internal rendering width." default:"1920"`
	Height       int     `help:"Internal rendering height." default:"1080"`
	Scale        float64 `help:"Multiplier for text, stroke and marker sizes." default:"1"`
	WindowWidth  int     `help:"Initial window width (non-headless only)." default:"1280"`
	WindowHeight int     `help:"Initial window height (non-headless only)." default:"720"`
	TPS          int     `help:"Ticks per second (engine updates)." default:"30"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("flow-viewer"),
		kong.Description("Animated map of where a restaurant's customers go."),
		kong.UsageOnError(),
		kong.Vars{"basemap": sources.BasemapFile},
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

	host := flowengine.NewSceneHost(cli.Width, cli.Height)

	var controls flowengine.Controls
	if cli.Remote != "" {
		url, err := flowengine.SessionURL(cli.Remote, cli.Location, cli.Width, cli.Height)
		if err != nil {
			log.Fatalf("Bad remote URL: %v", err)
		}
		client := flowengine.NewRemoteClient(url, host)
		go client.Run(ctx)
		controls = client
	} else {
		cfg := flowengine.DefaultConfig()
		cfg.TileStyle = cli.TileStyle
		cfg.Zoom = cli.Zoom
		cfg.MaxArcs = cli.MaxArcs
		cfg.ShowDestinations = !cli.HideDestinations

		ctrl := flowengine.NewController(cfg)
		dash := flowengine.NewDashboard(sources.NewLoader(fetcher), ctrl)
		defer dash.Close()
		ctrl.AttachContainer(host)
		if cli.Location != "" {
			dash.SelectAsync(cli.Location)
		} else {
			dash.NextLocation()
		}
		controls = dash
	}

	engine := flowengine.NewEngine(cli.Width, cli.Height, cli.Scale, host, controls)
	engine.FrameCaptureDir = cli.CaptureDir
	engine.InitPulseTexture()
	if data, err := fetcher.Fetch(ctx, cli.Basemap); err != nil {
		log.Printf("[viewer] No basemap (%v), drawing the background only", err)
	} else if err := engine.LoadBasemap(data); err != nil {
		log.Printf("[viewer] %v", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("[viewer] Interrupted, closing window...")
		engine.Quit()
	}()

	ebiten.SetTPS(cli.TPS)
	if cli.Headless {
		log.Println("Running in HEADLESS mode (Rendering active).")
	} else {
		ebiten.SetWindowSize(cli.WindowWidth, cli.WindowHeight)
		ebiten.SetWindowTitle("Customer Flow Map")
		ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	}
	if err := ebiten.RunGame(engine); err != nil && err != ebiten.Termination {
		log.Printf("Game loop ended: %v", err)
	}
}
