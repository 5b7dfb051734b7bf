// Package monitor renders debug views of a capture session: an interactive
// go-echarts page and static gonum/plot images of the checkpoint rings.
package monitor

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/ringcapture/internal/checkpoint"
	"github.com/banshee-data/ringcapture/internal/geom"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/spatial/r3"
)

// Source is the part of a capture session the monitor reads.
type Source interface {
	Layout() *checkpoint.Layout
	CheckpointStatuses() []checkpoint.Entry
}

// statusOrder fixes series order so colors stay stable between renders.
var statusOrder = []checkpoint.Status{
	checkpoint.StatusUninitialized,
	checkpoint.StatusPointed,
	checkpoint.StatusCaptured,
}

var statusColors = map[checkpoint.Status]string{
	checkpoint.StatusUninitialized: "#9e9e9e",
	checkpoint.StatusPointed:       "#fdd835",
	checkpoint.StatusCaptured:      "#43a047",
}

// azimuthDeg is the angle of p around the layout center in the horizontal
// plane, in [0, 360).
func azimuthDeg(layout *checkpoint.Layout, p checkpoint.Pose) float64 {
	return geom.AzimuthDeg(r3.Sub(p.Position, layout.Center))
}

// groupByStatus splits the layout poses by their current status. Entries
// that do not name a layout index are ignored.
func groupByStatus(layout *checkpoint.Layout, statuses []checkpoint.Entry) map[checkpoint.Status][]checkpoint.Pose {
	out := make(map[checkpoint.Status][]checkpoint.Pose, len(statusOrder))
	for _, e := range statuses {
		if e.Index < 0 || e.Index >= len(layout.Poses) {
			continue
		}
		out[e.Status] = append(out[e.Status], layout.Poses[e.Index])
	}
	return out
}

// RenderRingChart writes an HTML page with two scatter charts of the
// checkpoints, colored by status: a top view (X/Z) and an unrolled side
// view (azimuth/height).
func RenderRingChart(w io.Writer, layout *checkpoint.Layout, statuses []checkpoint.Entry) error {
	if layout == nil || layout.Len() == 0 {
		return fmt.Errorf("monitor: empty layout")
	}
	groups := groupByStatus(layout, statuses)

	captured := len(groups[checkpoint.StatusCaptured])
	subtitle := fmt.Sprintf("rings=%d checkpoints=%d captured=%d", len(layout.Rings), layout.Len(), captured)

	pad := layout.Radius * 1.15
	top := charts.NewScatter()
	top.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Capture Rings", Width: "720px", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: "Checkpoints (top view)", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithXAxisOpts(opts.XAxis{Min: layout.Center.X - pad, Max: layout.Center.X + pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: layout.Center.Z - pad, Max: layout.Center.Z + pad, Name: "Z (m)", NameLocation: "middle", NameGap: 35}),
	)

	side := charts.NewScatter()
	side.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "720px", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Checkpoints (azimuth / height)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: 360, Name: "Azimuth (°)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Height (m)", NameLocation: "middle", NameGap: 35}),
	)

	for _, st := range statusOrder {
		poses := groups[st]
		topData := make([]opts.ScatterData, 0, len(poses))
		sideData := make([]opts.ScatterData, 0, len(poses))
		for _, p := range poses {
			name := fmt.Sprintf("#%d ring %d slot %d", p.Index, p.Ring, p.Slot)
			topData = append(topData, opts.ScatterData{Name: name, Value: []interface{}{p.Position.X, p.Position.Z}})
			sideData = append(sideData, opts.ScatterData{Name: name, Value: []interface{}{azimuthDeg(layout, p), p.Position.Y - layout.Center.Y}})
		}
		style := charts.WithItemStyleOpts(opts.ItemStyle{Color: statusColors[st]})
		size := charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10})
		top.AddSeries(string(st), topData, style, size)
		side.AddSeries(string(st), sideData, style, size)
	}

	page := components.NewPage()
	page.PageTitle = "Capture Rings"
	page.AddCharts(top, side)
	return page.Render(w)
}

// ChartHandler serves RenderRingChart for the current state of src.
func ChartHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := RenderRingChart(&buf, src.Layout(), src.CheckpointStatuses()); err != nil {
			http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}
