package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sudorandom/flow-map/pkg/charts"
	"github.com/sudorandom/flow-map/pkg/flowengine"
)

func TestReport(t *testing.T) {
	origin := flowengine.GeoPoint{Lat: 41, Lng: 29}
	ds := flowengine.Dataset{
		Location:    "moda",
		DisplayName: "Moda",
		Origin:      flowengine.OriginPoint{Location: origin, Label: "Moda"},
		Destinations: []flowengine.DestinationPoint{
			{Name: "Small", Location: flowengine.GeoPoint{Lat: 41.1, Lng: 29.1}, VisitorCount: 5},
			{Name: "Big", Location: flowengine.GeoPoint{Lat: 40.9, Lng: 29.2}, VisitorCount: 50},
			{Name: "Same", Location: origin, VisitorCount: 20},
		},
		RowsTotal: 4,
		RowsKept:  3,
	}
	tables := []charts.Table{{Title: "Sales Channels", Total: 75, Slices: []charts.Slice{{Label: "Dine-in", Visitors: 75, Share: 100}}}}

	var buf bytes.Buffer
	report(&buf, ds, 10, tables)
	out := buf.String()

	for _, want := range []string{"Rows dropped: 1", "Top 3 of 3", "SALES CHANNELS (75 visitors)", "no arc: "} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Big") > strings.Index(out, "Small") {
		t.Errorf("destinations not ranked by visitors:\n%s", out)
	}
	if !strings.Contains(out, flowengine.PaletteColor(0).Hex()) {
		t.Errorf("top arc color missing:\n%s", out)
	}
}

func TestParseLatLng(t *testing.T) {
	if p, err := parseLatLng("40.98, 29.02"); err != nil || p.Lat != 40.98 || p.Lng != 29.02 {
		t.Errorf("parseLatLng = %v, %v", p, err)
	}
	for _, bad := range []string{"40.98", "north,29", "95,29"} {
		if _, err := parseLatLng(bad); err == nil {
			t.Errorf("parseLatLng(%q) should fail", bad)
		}
	}
}
