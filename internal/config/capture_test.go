package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/ringcapture/internal/checkpoint"
	"github.com/banshee-data/ringcapture/internal/geom"
	"github.com/banshee-data/ringcapture/internal/guidance"
	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyCaptureConfig()

	if got := cfg.GetRingCount(); got != 2 {
		t.Errorf("GetRingCount() = %d, want 2", got)
	}
	if got := cfg.GetCheckpointsPerRing(); got != 20 {
		t.Errorf("GetCheckpointsPerRing() = %d, want 20", got)
	}
	if got := cfg.GetRingRadius(); got != 0.21 {
		t.Errorf("GetRingRadius() = %f, want 0.21", got)
	}
	if got := cfg.GetAutoCaptureInterval(); got != 900*time.Millisecond {
		t.Errorf("GetAutoCaptureInterval() = %v, want 900ms", got)
	}
	if got := cfg.GetCountdownUpdateInterval(); got != 33*time.Millisecond {
		t.Errorf("GetCountdownUpdateInterval() = %v, want 33ms", got)
	}
	if got := cfg.GetMaxInFlightCaptures(); got != 2 {
		t.Errorf("GetMaxInFlightCaptures() = %d, want 2", got)
	}
	if diff := cmp.Diff(guidance.DefaultThresholds(), cfg.Thresholds()); diff != "" {
		t.Errorf("Thresholds() mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.GetCenter(); got != (geom.Vec{}) {
		t.Errorf("GetCenter() = %v, want origin", got)
	}

	want := []checkpoint.RingSpec{
		{Height: 0.035, RadiusScale: 1},
		{Height: 0.1, RadiusScale: 0.866},
	}
	if diff := cmp.Diff(want, cfg.RingSpecs()); diff != "" {
		t.Errorf("RingSpecs() mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultsFileMatchesAccessors(t *testing.T) {
	path, err := FindDefaultConfig(".")
	if err != nil {
		t.Fatalf("FindDefaultConfig: %v", err)
	}
	cfg, err := LoadCaptureConfig(path)
	if err != nil {
		t.Fatalf("Failed to load %s: %v", path, err)
	}
	empty := EmptyCaptureConfig()

	if diff := cmp.Diff(empty.RingSpecs(), cfg.RingSpecs()); diff != "" {
		t.Errorf("defaults file ring specs differ from accessors (-accessor +file):\n%s", diff)
	}
	if diff := cmp.Diff(empty.Thresholds(), cfg.Thresholds()); diff != "" {
		t.Errorf("defaults file thresholds differ from accessors (-accessor +file):\n%s", diff)
	}
	if cfg.GetAutoCaptureInterval() != empty.GetAutoCaptureInterval() {
		t.Errorf("auto_capture_interval = %v, want %v", cfg.GetAutoCaptureInterval(), empty.GetAutoCaptureInterval())
	}
	if cfg.GetMaxInFlightCaptures() != empty.GetMaxInFlightCaptures() {
		t.Errorf("max_in_flight_captures = %d, want %d", cfg.GetMaxInFlightCaptures(), empty.GetMaxInFlightCaptures())
	}
}

func TestLoadCaptureConfig(t *testing.T) {
	path := writeConfig(t, "capture.json", `{
  "ring_count": 1,
  "checkpoints_per_ring": 12,
  "ring_radius": 0.3,
  "ring_heights": [0.05],
  "center": [1, 0.5, -2],
  "distance_threshold": 0.6,
  "auto_capture_interval": "1.5s"
}`)

	cfg, err := LoadCaptureConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if got := cfg.GetCheckpointsPerRing(); got != 12 {
		t.Errorf("GetCheckpointsPerRing() = %d, want 12", got)
	}
	if got := cfg.GetAutoCaptureInterval(); got != 1500*time.Millisecond {
		t.Errorf("GetAutoCaptureInterval() = %v, want 1.5s", got)
	}
	// Omitted fields keep their defaults.
	if got := cfg.GetAlignmentAngleThresholdDeg(); got != 10 {
		t.Errorf("GetAlignmentAngleThresholdDeg() = %f, want 10", got)
	}

	layout, err := cfg.Layout()
	if err != nil {
		t.Fatalf("Layout() error: %v", err)
	}
	if layout.Len() != 12 {
		t.Errorf("layout has %d checkpoints, want 12", layout.Len())
	}
	if want := (geom.Vec{X: 1, Y: 0.5, Z: -2}); layout.Center != want {
		t.Errorf("layout center = %v, want %v", layout.Center, want)
	}
	if h := layout.Rings[0].Height; h != 0.05 {
		t.Errorf("ring height = %f, want 0.05", h)
	}
}

func TestLoadCaptureConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "capture.yaml", `{}`, ".json extension"},
		{"bad json", "capture.json", `{"ring_count": }`, "failed to parse"},
		{"ring count too high", "capture.json", `{"ring_count": 4}`, "ring_count"},
		{"ring count zero", "capture.json", `{"ring_count": 0}`, "ring_count"},
		{"no checkpoints", "capture.json", `{"checkpoints_per_ring": 0}`, "checkpoints_per_ring"},
		{"negative radius", "capture.json", `{"ring_radius": -0.1}`, "ring_radius"},
		{"short heights", "capture.json", `{"ring_count": 3, "ring_heights": [0.1, 0.2]}`, "ring_heights"},
		{"zero radius scale", "capture.json", `{"ring_count": 1, "ring_radius_scales": [0]}`, "ring_radius_scales"},
		{"elevation range", "capture.json", `{"elevation_angle_threshold_deg": 120}`, "elevation_angle_threshold_deg"},
		{"bad interval", "capture.json", `{"auto_capture_interval": "soon"}`, "auto_capture_interval"},
		{"negative interval", "capture.json", `{"countdown_update_interval": "-1s"}`, "countdown_update_interval"},
		{"in flight zero", "capture.json", `{"max_in_flight_captures": 0}`, "max_in_flight_captures"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadCaptureConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadCaptureConfigMissingFile(t *testing.T) {
	_, err := LoadCaptureConfig(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestFindDefaultConfigSearchesParents(t *testing.T) {
	root := t.TempDir()
	want := filepath.Join(root, DefaultConfigPath)
	if err := os.MkdirAll(filepath.Dir(want), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(want, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "cmd", "tools", "ring-plot")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindDefaultConfig(nested)
	if err != nil {
		t.Fatalf("FindDefaultConfig: %v", err)
	}
	if got != want {
		t.Errorf("FindDefaultConfig = %q, want %q", got, want)
	}
}

func TestFindDefaultConfigMissing(t *testing.T) {
	_, err := FindDefaultConfig(t.TempDir())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoadCaptureConfigTooLarge(t *testing.T) {
	body := `{"ring_count": 2, "pad": "` + strings.Repeat("x", maxFileSize) + `"}`
	path := writeConfig(t, "big.json", body)
	_, err := LoadCaptureConfig(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}
