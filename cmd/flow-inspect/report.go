package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sudorandom/flow-map/pkg/charts"
	"github.com/sudorandom/flow-map/pkg/flowengine"
)

const rule = "--------------------------------------------------\n"

func report(w io.Writer, ds flowengine.Dataset, maxArcs int, tables []charts.Table) {
	fmt.Fprintf(w, "Location: %s (%s)\n", ds.DisplayName, ds.Location)
	fmt.Fprint(w, rule)
	fmt.Fprintf(w, "Origin:       %s @ %.5f, %.5f\n", ds.Origin.Label, ds.Origin.Location.Lat, ds.Origin.Location.Lng)
	fmt.Fprintf(w, "Rows read:    %d\n", ds.RowsTotal)
	fmt.Fprintf(w, "Rows kept:    %d\n", ds.RowsKept)
	fmt.Fprintf(w, "Rows dropped: %d\n", ds.RowsTotal-ds.RowsKept)
	if ds.Fallback {
		fmt.Fprintf(w, "NOTE: destinations could not be loaded, showing %d sample points\n", len(ds.Destinations))
	}
	fmt.Fprint(w, rule)

	ranked := flowengine.Select(ds.Destinations, maxArcs)
	fmt.Fprintf(w, "Top %d of %d destinations:\n", len(ranked), len(ds.Destinations))
	for _, r := range flowengine.BuildArcs(ds.Origin.Location, ranked) {
		d := r.Destination
		fmt.Fprintf(w, "  %2d. %-24s %6d visitors  %-12s", r.Rank, d.Name, d.VisitorCount, d.Category)
		if r.Err != nil {
			fmt.Fprintf(w, "  no arc: %v\n", r.Err)
			continue
		}
		a := r.Arc
		fmt.Fprintf(w, "  %s weight %.1f radius %.1f dash %.1f ctrl %.5f,%.5f\n",
			a.Color.Hex(), a.StrokeWeight, a.MarkerRadius, a.DashPeriod, a.ControlPoint.Lat, a.ControlPoint.Lng)
	}
	fmt.Fprint(w, rule)

	for _, t := range tables {
		fmt.Fprintf(w, "%s (%d visitors):\n", strings.ToUpper(t.Title), t.Total)
		for _, s := range t.Slices {
			fmt.Fprintf(w, "  %-24s %6d  %5.1f%%\n", s.Label, s.Visitors, s.Share)
		}
		fmt.Fprint(w, rule)
	}
}
