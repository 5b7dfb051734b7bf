package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"

	"github.com/banshee-data/ringcapture/internal/checkpoint"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// PlotSize is the edge length of a ring plot image.
const PlotSize = 6 * vg.Inch

var plotColors = map[checkpoint.Status]color.Color{
	checkpoint.StatusUninitialized: color.RGBA{R: 158, G: 158, B: 158, A: 255},
	checkpoint.StatusPointed:       color.RGBA{R: 253, G: 216, B: 53, A: 255},
	checkpoint.StatusCaptured:      color.RGBA{R: 67, G: 160, B: 71, A: 255},
}

// ringSegments is the number of line segments used to draw each ring.
const ringSegments = 96

// NewRingPlot builds a top-view plot of the layout: one circle per ring and
// one glyph per checkpoint, colored by status.
func NewRingPlot(layout *checkpoint.Layout, statuses []checkpoint.Entry) (*plot.Plot, error) {
	if layout == nil || layout.Len() == 0 {
		return nil, fmt.Errorf("monitor: empty layout")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Capture rings (%d checkpoints)", layout.Len())
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Z (m)"
	p.Add(plotter.NewGrid())

	for _, ring := range layout.Rings {
		r := layout.Radius * ring.RadiusScale
		pts := make(plotter.XYs, ringSegments+1)
		for i := range pts {
			theta := 2 * math.Pi * float64(i) / ringSegments
			pts[i] = plotter.XY{X: layout.Center.X + r*math.Cos(theta), Y: layout.Center.Z + r*math.Sin(theta)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("ring %d: %w", ring.Number, err)
		}
		line.Color = color.Gray{Y: 200}
		line.Width = vg.Points(0.5)
		p.Add(line)
	}

	groups := groupByStatus(layout, statuses)
	for _, st := range statusOrder {
		poses := groups[st]
		if len(poses) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(poses))
		for i, pose := range poses {
			pts[i] = plotter.XY{X: pose.Position.X, Y: pose.Position.Z}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("%s checkpoints: %w", st, err)
		}
		sc.GlyphStyle.Color = plotColors[st]
		sc.GlyphStyle.Radius = vg.Points(3)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add(string(st), sc)
	}

	pad := layout.Radius * 1.15
	p.X.Min, p.X.Max = layout.Center.X-pad, layout.Center.X+pad
	p.Y.Min, p.Y.Max = layout.Center.Z-pad, layout.Center.Z+pad
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SaveRingPlot writes the ring plot to path. The image format follows the
// file extension (png, svg, pdf, ...).
func SaveRingPlot(path string, layout *checkpoint.Layout, statuses []checkpoint.Entry) error {
	p, err := NewRingPlot(layout, statuses)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := p.Save(PlotSize, PlotSize, path); err != nil {
		return fmt.Errorf("failed to save ring plot: %w", err)
	}
	return nil
}

// WriteRingPNG renders the ring plot as PNG to w.
func WriteRingPNG(w io.Writer, layout *checkpoint.Layout, statuses []checkpoint.Entry) error {
	p, err := NewRingPlot(layout, statuses)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(PlotSize, PlotSize, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// PlotHandler serves the current ring plot of src as PNG.
func PlotHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := WriteRingPNG(&buf, src.Layout(), src.CheckpointStatuses()); err != nil {
			http.Error(w, fmt.Sprintf("failed to render plot: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}
}

// AttachRoutes mounts /debug/rings (interactive chart) and
// /debug/rings.png.
func AttachRoutes(mux *http.ServeMux, src Source) {
	mux.HandleFunc("/debug/rings", ChartHandler(src))
	mux.HandleFunc("/debug/rings.png", PlotHandler(src))
}
