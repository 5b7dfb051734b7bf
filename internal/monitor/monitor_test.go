package monitor

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/ringcapture/internal/checkpoint"
	"github.com/banshee-data/ringcapture/internal/geom"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

type fakeSource struct {
	layout   *checkpoint.Layout
	statuses []checkpoint.Entry
}

func (f fakeSource) Layout() *checkpoint.Layout             { return f.layout }
func (f fakeSource) CheckpointStatuses() []checkpoint.Entry { return f.statuses }

func testSource(t *testing.T) fakeSource {
	t.Helper()
	layout, err := checkpoint.NewLayout(geom.Vec{}, 0.21, 0.02, 20, checkpoint.DefaultRingSpecs(3, 0.2))
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	store := checkpoint.NewStore(layout)
	store.MarkReady()
	for _, i := range []int{0, 1, 2, 21} {
		if _, err := store.SetStatus(i, checkpoint.StatusCaptured); err != nil {
			t.Fatalf("SetStatus(%d): %v", i, err)
		}
	}
	store.ApplyResolution(45, true)
	return fakeSource{layout: layout, statuses: store.Snapshot()}
}

func TestGroupByStatus(t *testing.T) {
	src := testSource(t)
	statuses := append(src.statuses, checkpoint.Entry{Index: 999, Status: checkpoint.StatusCaptured})

	groups := groupByStatus(src.layout, statuses)
	if got := len(groups[checkpoint.StatusCaptured]); got != 4 {
		t.Errorf("captured = %d, want 4", got)
	}
	if got := len(groups[checkpoint.StatusPointed]); got != 1 {
		t.Errorf("pointed = %d, want 1", got)
	}
	if got := len(groups[checkpoint.StatusUninitialized]); got != 55 {
		t.Errorf("uninitialized = %d, want 55", got)
	}
}

func TestAzimuthDeg(t *testing.T) {
	src := testSource(t)
	for _, tc := range []struct {
		index int
		want  float64
	}{
		{0, 0},
		{5, 90},
		{10, 180},
		{15, 270},
	} {
		got := azimuthDeg(src.layout, src.layout.Poses[tc.index])
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("azimuthDeg(%d) = %v, want %v", tc.index, got, tc.want)
		}
	}
}

func TestAzimuthDegStaysBelowFullTurn(t *testing.T) {
	src := testSource(t)
	c := src.layout.Center
	p := checkpoint.Pose{Position: geom.Vec{X: c.X + 1, Y: c.Y, Z: c.Z - 1e-17}}
	if got := azimuthDeg(src.layout, p); got < 0 || got >= 360 {
		t.Errorf("azimuthDeg just below +X = %v, want in [0, 360)", got)
	}
}

func TestRenderRingChart(t *testing.T) {
	src := testSource(t)
	var buf bytes.Buffer
	if err := RenderRingChart(&buf, src.layout, src.statuses); err != nil {
		t.Fatalf("RenderRingChart: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Capture Rings", "captured=4", "uninitialized", "pointed", "#45 ring 3 slot 5"} {
		if !strings.Contains(out, want) {
			t.Errorf("chart output missing %q", want)
		}
	}
}

func TestRenderRingChart_EmptyLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderRingChart(&buf, nil, nil); err == nil {
		t.Error("expected error for nil layout")
	}
}

func TestSaveRingPlot(t *testing.T) {
	src := testSource(t)
	path := filepath.Join(t.TempDir(), "plots", "rings.png")

	if err := SaveRingPlot(path, src.layout, src.statuses); err != nil {
		t.Fatalf("SaveRingPlot: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Error("saved plot is not a PNG")
	}
}

func TestNewRingPlot_EmptyLayout(t *testing.T) {
	if _, err := NewRingPlot(&checkpoint.Layout{}, nil); err == nil {
		t.Error("expected error for empty layout")
	}
}

func TestRoutes(t *testing.T) {
	mux := http.NewServeMux()
	AttachRoutes(mux, testSource(t))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/rings", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("chart status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("chart content type = %q", ct)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/rings.png", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("plot status = %d", w.Code)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), pngMagic) {
		t.Error("plot response is not a PNG")
	}
}

func TestPlotHandler_Error(t *testing.T) {
	w := httptest.NewRecorder()
	PlotHandler(fakeSource{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/rings.png", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
