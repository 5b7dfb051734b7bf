package config

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/ringcapture/internal/checkpoint"
	"github.com/banshee-data/ringcapture/internal/geom"
	"github.com/banshee-data/ringcapture/internal/guidance"
)

// DefaultConfigPath is the path to the canonical capture defaults file.
const DefaultConfigPath = "config/capture.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// CaptureConfig is the root configuration of a capture session. Every field
// is optional; the Get* accessors supply defaults for anything omitted, so
// partial files are safe.
type CaptureConfig struct {
	// Layout params
	RingCount          *int        `json:"ring_count,omitempty"`
	CheckpointsPerRing *int        `json:"checkpoints_per_ring,omitempty"`
	RingRadius         *float64    `json:"ring_radius,omitempty"`
	MarkerScale        *float64    `json:"marker_scale,omitempty"`
	RingHeights        []float64   `json:"ring_heights,omitempty"`       // offsets from center, per ring
	RingRadiusScales   []float64   `json:"ring_radius_scales,omitempty"` // multiplier of ring_radius, per ring
	Center             *[3]float64 `json:"center,omitempty"`

	// Guidance thresholds
	DistanceThreshold          *float64 `json:"distance_threshold,omitempty"`
	ElevationAngleThresholdDeg *float64 `json:"elevation_angle_threshold_deg,omitempty"`
	AlignmentAngleThresholdDeg *float64 `json:"alignment_angle_threshold_deg,omitempty"`

	// Capture params
	AutoCaptureInterval     *string `json:"auto_capture_interval,omitempty"`     // duration string like "900ms"
	CountdownUpdateInterval *string `json:"countdown_update_interval,omitempty"` // duration string like "33ms"
	MaxInFlightCaptures     *int    `json:"max_in_flight_captures,omitempty"`
}

var (
	defaultRingHeights      = []float64{checkpoint.FirstRingHeight, 0.1, 0.18}
	defaultRingRadiusScales = []float64{1.0, checkpoint.SecondRingRadiusScale, 0.5}
)

// EmptyCaptureConfig returns a CaptureConfig with all fields unset.
func EmptyCaptureConfig() *CaptureConfig {
	return &CaptureConfig{}
}

// LoadCaptureConfig reads a capture session configuration from a .json
// file of at most 1MB and validates the fields it sets.
func LoadCaptureConfig(path string) (*CaptureConfig, error) {
	path = filepath.Clean(path)
	if ext := filepath.Ext(path); ext != ".json" {
		return nil, fmt.Errorf("capture config %s: want .json extension, got %q", path, ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("capture config %s: %w", path, err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("capture config %s: too large (max %d bytes)", path, maxFileSize)
	}

	cfg := EmptyCaptureConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("capture config %s: failed to parse: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("capture config %s: %w", path, err)
	}
	return cfg, nil
}

// FindDefaultConfig returns the path of DefaultConfigPath under dir or the
// nearest parent of dir that has one.
func FindDefaultConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, DefaultConfigPath)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found: %w", DefaultConfigPath, fs.ErrNotExist)
		}
		dir = parent
	}
}

// Validate checks the values that are set.
func (c *CaptureConfig) Validate() error {
	if c.RingCount != nil {
		if *c.RingCount < 1 || *c.RingCount > checkpoint.MaxRings {
			return fmt.Errorf("ring_count must be between 1 and %d, got %d", checkpoint.MaxRings, *c.RingCount)
		}
	}
	if c.CheckpointsPerRing != nil && *c.CheckpointsPerRing <= 0 {
		return fmt.Errorf("checkpoints_per_ring must be positive, got %d", *c.CheckpointsPerRing)
	}
	if c.RingRadius != nil && !(*c.RingRadius > 0) {
		return fmt.Errorf("ring_radius must be positive, got %f", *c.RingRadius)
	}
	if c.MarkerScale != nil && *c.MarkerScale < 0 {
		return fmt.Errorf("marker_scale must be non-negative, got %f", *c.MarkerScale)
	}

	ringCount := c.GetRingCount()
	if c.RingHeights != nil && len(c.RingHeights) < ringCount {
		return fmt.Errorf("ring_heights has %d entries, ring_count needs %d", len(c.RingHeights), ringCount)
	}
	for i, h := range c.RingHeights {
		if math.IsNaN(h) || math.IsInf(h, 0) {
			return fmt.Errorf("ring_heights[%d] is not finite", i)
		}
	}
	if c.RingRadiusScales != nil && len(c.RingRadiusScales) < ringCount {
		return fmt.Errorf("ring_radius_scales has %d entries, ring_count needs %d", len(c.RingRadiusScales), ringCount)
	}
	for i, s := range c.RingRadiusScales {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("ring_radius_scales[%d] must be positive, got %f", i, s)
		}
	}

	if c.DistanceThreshold != nil && !(*c.DistanceThreshold > 0) {
		return fmt.Errorf("distance_threshold must be positive, got %f", *c.DistanceThreshold)
	}
	if c.ElevationAngleThresholdDeg != nil {
		if v := *c.ElevationAngleThresholdDeg; v < 0 || v > 90 {
			return fmt.Errorf("elevation_angle_threshold_deg must be between 0 and 90, got %f", v)
		}
	}
	if c.AlignmentAngleThresholdDeg != nil {
		if v := *c.AlignmentAngleThresholdDeg; v < 0 || v > 180 {
			return fmt.Errorf("alignment_angle_threshold_deg must be between 0 and 180, got %f", v)
		}
	}

	if err := validateInterval("auto_capture_interval", c.AutoCaptureInterval); err != nil {
		return err
	}
	if err := validateInterval("countdown_update_interval", c.CountdownUpdateInterval); err != nil {
		return err
	}
	if c.MaxInFlightCaptures != nil && *c.MaxInFlightCaptures < 1 {
		return fmt.Errorf("max_in_flight_captures must be at least 1, got %d", *c.MaxInFlightCaptures)
	}
	return nil
}

func validateInterval(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, *v)
	}
	return nil
}

// GetRingCount returns the ring_count value or the default.
func (c *CaptureConfig) GetRingCount() int {
	if c.RingCount == nil {
		return 2
	}
	return *c.RingCount
}

// GetCheckpointsPerRing returns the checkpoints_per_ring value or the default.
func (c *CaptureConfig) GetCheckpointsPerRing() int {
	if c.CheckpointsPerRing == nil {
		return 20
	}
	return *c.CheckpointsPerRing
}

// GetRingRadius returns the ring_radius value or the default.
func (c *CaptureConfig) GetRingRadius() float64 {
	if c.RingRadius == nil {
		return 0.21
	}
	return *c.RingRadius
}

// GetMarkerScale returns the marker_scale value or the default.
func (c *CaptureConfig) GetMarkerScale() float64 {
	if c.MarkerScale == nil {
		return 0.02
	}
	return *c.MarkerScale
}

// GetRingHeights returns ring_heights or the defaults.
func (c *CaptureConfig) GetRingHeights() []float64 {
	if c.RingHeights == nil {
		return append([]float64(nil), defaultRingHeights...)
	}
	return append([]float64(nil), c.RingHeights...)
}

// GetRingRadiusScales returns ring_radius_scales or the defaults.
func (c *CaptureConfig) GetRingRadiusScales() []float64 {
	if c.RingRadiusScales == nil {
		return append([]float64(nil), defaultRingRadiusScales...)
	}
	return append([]float64(nil), c.RingRadiusScales...)
}

// GetCenter returns the center value or the origin.
func (c *CaptureConfig) GetCenter() geom.Vec {
	if c.Center == nil {
		return geom.Vec{}
	}
	return geom.Vec{X: c.Center[0], Y: c.Center[1], Z: c.Center[2]}
}

// GetDistanceThreshold returns the distance_threshold value or the default.
func (c *CaptureConfig) GetDistanceThreshold() float64 {
	if c.DistanceThreshold == nil {
		return 0.4
	}
	return *c.DistanceThreshold
}

// GetElevationAngleThresholdDeg returns the elevation_angle_threshold_deg value or the default.
func (c *CaptureConfig) GetElevationAngleThresholdDeg() float64 {
	if c.ElevationAngleThresholdDeg == nil {
		return 15
	}
	return *c.ElevationAngleThresholdDeg
}

// GetAlignmentAngleThresholdDeg returns the alignment_angle_threshold_deg value or the default.
func (c *CaptureConfig) GetAlignmentAngleThresholdDeg() float64 {
	if c.AlignmentAngleThresholdDeg == nil {
		return 10
	}
	return *c.AlignmentAngleThresholdDeg
}

// GetAutoCaptureInterval parses auto_capture_interval. The default is one
// frame of a 108 s rotation split into 120 frames.
func (c *CaptureConfig) GetAutoCaptureInterval() time.Duration {
	return parseDurationOr(c.AutoCaptureInterval, 900*time.Millisecond)
}

// GetCountdownUpdateInterval parses countdown_update_interval (about 30 Hz by default).
func (c *CaptureConfig) GetCountdownUpdateInterval() time.Duration {
	return parseDurationOr(c.CountdownUpdateInterval, 33*time.Millisecond)
}

// GetMaxInFlightCaptures returns the max_in_flight_captures value or the default.
func (c *CaptureConfig) GetMaxInFlightCaptures() int {
	if c.MaxInFlightCaptures == nil {
		return 2
	}
	return *c.MaxInFlightCaptures
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// RingSpecs returns one RingSpec per configured ring.
func (c *CaptureConfig) RingSpecs() []checkpoint.RingSpec {
	n := c.GetRingCount()
	heights := c.GetRingHeights()
	scales := c.GetRingRadiusScales()
	specs := make([]checkpoint.RingSpec, 0, n)
	for i := 0; i < n && i < len(heights) && i < len(scales); i++ {
		specs = append(specs, checkpoint.RingSpec{Height: heights[i], RadiusScale: scales[i]})
	}
	return specs
}

// Layout builds the checkpoint layout the configuration describes.
func (c *CaptureConfig) Layout() (*checkpoint.Layout, error) {
	return checkpoint.NewLayout(c.GetCenter(), c.GetRingRadius(), c.GetMarkerScale(), c.GetCheckpointsPerRing(), c.RingSpecs())
}

// Thresholds returns the guidance acceptance thresholds.
func (c *CaptureConfig) Thresholds() guidance.Thresholds {
	return guidance.Thresholds{
		DistanceM:    c.GetDistanceThreshold(),
		ElevationDeg: c.GetElevationAngleThresholdDeg(),
		AlignmentDeg: c.GetAlignmentAngleThresholdDeg(),
	}
}
