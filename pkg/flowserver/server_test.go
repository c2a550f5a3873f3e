package flowserver

import (
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sudorandom/flow-map/pkg/charts"
	"github.com/sudorandom/flow-map/pkg/flowengine"
	"github.com/sudorandom/flow-map/pkg/sources"
	"github.com/sudorandom/flow-map/pkg/utils"
)

const modaDestinations = "place_name,latitude,longitude,visitor_count,sales_channel,MusteriCesidi\n" +
	"Fenerbahçe,40.969,29.037,40,Dine-in,Home\n" +
	"Bağdat,40.963,29.065,90,Delivery,Office\n" +
	"Göztepe,40.978,29.061,60,Dine-in,Office\n" +
	"Nowhere,,,10,Dine-in,Home\n"

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fastMapConfig() flowengine.Config {
	cfg := flowengine.DefaultConfig()
	cfg.FlowPeriod = 5 * time.Millisecond
	cfg.PulsePeriod = 5 * time.Millisecond
	cfg.InvalidateDelay = time.Millisecond
	return cfg
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, sources.LocationsFile, `[
		{"name":"moda","displayName":"Moda","latitude":40.98,"longitude":29.02},
		{"name":"kadikoy","displayName":"Kadıköy","latitude":40.99,"longitude":29.03}
	]`)
	writeFile(t, root, "data/moda/destinations.csv", modaDestinations)
	writeFile(t, root, "data/kadikoy/destinations.csv", modaDestinations)

	srv := New(sources.NewLoader(utils.NewFetcher(root, nil)), Options{Map: fastMapConfig()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)
	if resp := get(t, ts.URL+"/healthz"); resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestLocations(t *testing.T) {
	_, ts := newTestServer(t)
	var locs []sources.Location
	if err := json.NewDecoder(get(t, ts.URL+"/api/locations").Body).Decode(&locs); err != nil {
		t.Fatal(err)
	}
	if len(locs) != 2 || locs[0].Name != "moda" || locs[1].DisplayName != "Kadıköy" {
		t.Errorf("locations = %+v", locs)
	}
}

func TestDataset(t *testing.T) {
	_, ts := newTestServer(t)
	var ds flowengine.Dataset
	if err := json.NewDecoder(get(t, ts.URL+"/api/locations/moda").Body).Decode(&ds); err != nil {
		t.Fatal(err)
	}
	if ds.RowsTotal != 4 || ds.RowsKept != 3 || ds.Origin.Label != "Moda" {
		t.Errorf("dataset = %+v", ds)
	}

	resp := get(t, ts.URL+"/api/locations/atlantis")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown location status = %d; want 404", resp.StatusCode)
	}
}

func TestArcs(t *testing.T) {
	_, ts := newTestServer(t)
	resp := get(t, ts.URL+"/api/locations/moda/arcs?max=2")
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("content type = %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Features) != 5 {
		t.Fatalf("got %d features; want origin, 2 arcs and 2 destinations", len(fc.Features))
	}
	if !fc.Features[0].Geometry.IsPoint() || fc.Features[0].Geometry.Point[0] != 29.02 {
		t.Errorf("origin feature = %+v", fc.Features[0].Geometry)
	}
	first := fc.Features[1]
	if !first.Geometry.IsLineString() || len(first.Geometry.LineString) < 2 {
		t.Fatalf("arc geometry = %+v", first.Geometry)
	}
	if name, _ := first.PropertyString("name"); name != "Bağdat" {
		t.Errorf("top arc = %q; want Bağdat", name)
	}
	if c, _ := first.PropertyString("color"); c != flowengine.PaletteColor(0).Hex() {
		t.Errorf("top arc color = %q", c)
	}
	end := first.Geometry.LineString[len(first.Geometry.LineString)-1]
	if end[0] != 29.065 || end[1] != 40.963 {
		t.Errorf("arc ends at %v; want Bağdat in lng,lat order", end)
	}
}

func TestArcFeaturesCoincidentHasNoCurve(t *testing.T) {
	origin := flowengine.GeoPoint{Lat: 41, Lng: 29}
	ds := flowengine.Dataset{
		Origin: flowengine.OriginPoint{Location: origin},
		Destinations: []flowengine.DestinationPoint{
			{Name: "here", Location: origin, VisitorCount: 50},
			{Name: "there", Location: flowengine.GeoPoint{Lat: 41.1, Lng: 29.1}, VisitorCount: 5},
		},
	}
	fc := ArcFeatures(ds, 10)
	lines := 0
	for _, f := range fc.Features {
		if f.Geometry.IsLineString() {
			lines++
		}
	}
	if len(fc.Features) != 4 || lines != 1 {
		t.Errorf("got %d features, %d arcs; want origin, one arc and two destinations", len(fc.Features), lines)
	}
}

func TestChartJSON(t *testing.T) {
	_, ts := newTestServer(t)
	var table charts.Table
	if err := json.NewDecoder(get(t, ts.URL+"/api/locations/moda/charts/channels?format=json").Body).Decode(&table); err != nil {
		t.Fatal(err)
	}
	if table.Total != 200 || table.Slices[0].Label != "Dine-in" || table.Slices[0].Visitors != 110 {
		t.Errorf("table = %+v", table)
	}
}

func TestChartPNG(t *testing.T) {
	_, ts := newTestServer(t)
	for _, style := range []string{"pie", "bar"} {
		resp := get(t, ts.URL+"/api/locations/moda/charts/customers?style="+style+"&w=320&h=240")
		if resp.Header.Get("Content-Type") != "image/png" {
			t.Fatalf("%s: content type = %q", style, resp.Header.Get("Content-Type"))
		}
		cfg, err := png.DecodeConfig(resp.Body)
		if err != nil {
			t.Fatalf("%s: %v", style, err)
		}
		if cfg.Width != 320 || cfg.Height != 240 {
			t.Errorf("%s: size = %dx%d", style, cfg.Width, cfg.Height)
		}
	}

	if resp := get(t, ts.URL+"/api/locations/moda/charts/pets"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown kind status = %d; want 404", resp.StatusCode)
	}
}

func TestChartUpstreamFailureIsRetryable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/"+sources.LocationsFile {
			_, _ = w.Write([]byte(`[{"name":"moda","latitude":40.98,"longitude":29.02}]`))
			return
		}
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	srv := New(sources.NewLoader(utils.NewFetcher(upstream.URL, nil)), Options{})
	defer srv.Close()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := get(t, ts.URL+"/api/locations/moda/charts/segments")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d; want 502", resp.StatusCode)
	}
	var apiErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatal(err)
	}
	if !apiErr.Retry || apiErr.Error == "" {
		t.Errorf("error body = %+v", apiErr)
	}

	// the map itself still renders from the fallback set
	var ds flowengine.Dataset
	if err := json.NewDecoder(get(t, ts.URL+"/api/locations/moda").Body).Decode(&ds); err != nil {
		t.Fatal(err)
	}
	if !ds.Fallback {
		t.Error("dataset should be the fallback set")
	}
}

func countTag(f flowengine.Frame, tag flowengine.LayerTag) int {
	n := 0
	for _, l := range f.Layers {
		if l.Tag == tag {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	_, ts := newTestServer(t)
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/session"
	url, err := flowengine.SessionURL(base, "moda", 800, 600)
	if err != nil {
		t.Fatal(err)
	}

	host := flowengine.NewSceneHost(800, 600)
	client := flowengine.NewRemoteClient(url, host)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		client.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	waitFor(t, "arcs on the client", func() bool {
		f, ok := host.Snapshot()
		return ok && countTag(f, flowengine.TagArc) == 3 && countTag(f, flowengine.TagBase) == 1
	})
	waitFor(t, "status", func() bool {
		st := client.Status()
		return st.Location == "moda" && !st.Loading && st.RowsKept == 3
	})
	waitFor(t, "destinations", func() bool { return len(client.Destinations()) == 3 })

	f, _ := host.Snapshot()
	if f.Viewport.Zoom < 10 {
		t.Errorf("client viewport zoom = %v; want the server's fitted view", f.Viewport.Zoom)
	}

	before := client.Status().TileStyle
	client.NextTileStyle()
	waitFor(t, "tile style change", func() bool { return client.Status().TileStyle != before })
	waitFor(t, "new base layer", func() bool {
		f, ok := host.Snapshot()
		if !ok {
			return false
		}
		for _, l := range f.Layers {
			if l.Tag == flowengine.TagBase && l.Tiles != nil {
				return l.Tiles.Name == client.Status().TileStyle
			}
		}
		return false
	})

	mounts := host.Mounts()
	client.NextLocation()
	waitFor(t, "second location", func() bool {
		st := client.Status()
		return st.Location == "kadikoy" && !st.Loading && host.Mounts() > mounts
	})
}
