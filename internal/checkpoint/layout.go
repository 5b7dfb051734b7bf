package checkpoint

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/ringcapture/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidConfiguration is returned when ring geometry cannot produce a
// usable set of checkpoints. Guidance must not start after this error.
var ErrInvalidConfiguration = errors.New("invalid checkpoint configuration")

const (
	// MaxRings is the largest supported number of concentric rings.
	MaxRings = 3

	// SecondRingRadiusScale shrinks the second ring to cos(30°) of the base
	// radius so it sits on a higher elevation band of the same hemisphere.
	// It is the default only; ring_radius_scales in the capture config
	// overrides it.
	SecondRingRadiusScale = 0.866

	// FirstRingHeight is the height of the lowest ring above the target
	// anchor, in metres.
	FirstRingHeight = 0.035
)

// RingSpec describes one ring relative to the layout center.
type RingSpec struct {
	Height      float64 `json:"height"`       // vertical offset from the center (m)
	RadiusScale float64 `json:"radius_scale"` // multiplier applied to the base radius
}

// Ring is a generated ring and the index range it occupies.
type Ring struct {
	Number      int     `json:"number"` // 1-based
	Height      float64 `json:"height"`
	RadiusScale float64 `json:"radius_scale"`
	Offset      int     `json:"offset"` // index of the ring's first checkpoint
	Count       int     `json:"count"`
}

// Contains reports whether the global checkpoint index belongs to r.
func (r Ring) Contains(index int) bool {
	return index >= r.Offset && index < r.Offset+r.Count
}

// Pose is the fixed position and facing of one checkpoint.
type Pose struct {
	Index     int      `json:"index"` // global index across all rings
	Ring      int      `json:"ring"`  // 1-based ring number
	Slot      int      `json:"slot"`  // position within the ring, from angle 0
	Position  geom.Vec `json:"position"`
	Direction geom.Vec `json:"direction"` // unit vector towards the center
}

// Layout is the complete checkpoint geometry of a session.
type Layout struct {
	Center        geom.Vec `json:"center"`
	Radius        float64  `json:"radius"`
	Scale         float64  `json:"scale"` // marker scale, carried for presentation
	PointsPerRing int      `json:"points_per_ring"`
	Rings         []Ring   `json:"rings"`
	Poses         []Pose   `json:"poses"`
}

// DefaultRingSpecs returns the standard ring stack for a target whose
// bounding hemisphere is hemisphereHeight tall. Ring one hugs the base,
// ring two sits at half height on the cos(30°) radius, ring three at full
// height on half the radius.
func DefaultRingSpecs(ringCount int, hemisphereHeight float64) []RingSpec {
	all := []RingSpec{
		{Height: FirstRingHeight, RadiusScale: 1.0},
		{Height: hemisphereHeight * 0.5, RadiusScale: SecondRingRadiusScale},
		{Height: hemisphereHeight, RadiusScale: 0.5},
	}
	if ringCount < 1 {
		return nil
	}
	if ringCount > len(all) {
		ringCount = len(all)
	}
	return append([]RingSpec(nil), all[:ringCount]...)
}

// GenerateRing places count checkpoints on one ring at equal angular steps
// starting from angle 0. Indices start at offset so consecutive rings
// number their checkpoints without gaps.
func GenerateRing(center geom.Vec, radius float64, count int, spec RingSpec, offset, ring int) ([]Pose, error) {
	switch {
	case count <= 0:
		return nil, fmt.Errorf("%w: checkpoint count must be positive, got %d", ErrInvalidConfiguration, count)
	case !(radius > 0) || math.IsInf(radius, 0):
		return nil, fmt.Errorf("%w: radius must be positive, got %v", ErrInvalidConfiguration, radius)
	case !(spec.RadiusScale > 0) || math.IsInf(spec.RadiusScale, 0):
		return nil, fmt.Errorf("%w: ring %d radius scale must be positive, got %v", ErrInvalidConfiguration, ring, spec.RadiusScale)
	case math.IsNaN(spec.Height) || math.IsInf(spec.Height, 0):
		return nil, fmt.Errorf("%w: ring %d height is not finite", ErrInvalidConfiguration, ring)
	case !geom.IsFinite(center):
		return nil, fmt.Errorf("%w: center is not finite", ErrInvalidConfiguration)
	}

	r := radius * spec.RadiusScale
	step := 2 * math.Pi / float64(count)
	poses := make([]Pose, count)
	for i := 0; i < count; i++ {
		theta := step * float64(i)
		pos := r3.Add(center, geom.Vec{X: r * math.Cos(theta), Y: spec.Height, Z: r * math.Sin(theta)})
		dir, _ := geom.Normalize(r3.Sub(center, pos))
		poses[i] = Pose{
			Index:     offset + i,
			Ring:      ring,
			Slot:      i,
			Position:  pos,
			Direction: dir,
		}
	}
	return poses, nil
}

// NewLayout generates every ring of a session. Each ring carries
// pointsPerRing checkpoints; ring n's indices follow ring n-1's.
func NewLayout(center geom.Vec, radius, scale float64, pointsPerRing int, specs []RingSpec) (*Layout, error) {
	if len(specs) < 1 || len(specs) > MaxRings {
		return nil, fmt.Errorf("%w: ring count must be between 1 and %d, got %d", ErrInvalidConfiguration, MaxRings, len(specs))
	}
	if math.IsNaN(scale) || scale < 0 {
		return nil, fmt.Errorf("%w: marker scale must be non-negative, got %v", ErrInvalidConfiguration, scale)
	}

	l := &Layout{
		Center:        center,
		Radius:        radius,
		Scale:         scale,
		PointsPerRing: pointsPerRing,
		Rings:         make([]Ring, 0, len(specs)),
	}
	offset := 0
	for i, spec := range specs {
		poses, err := GenerateRing(center, radius, pointsPerRing, spec, offset, i+1)
		if err != nil {
			return nil, err
		}
		l.Rings = append(l.Rings, Ring{
			Number:      i + 1,
			Height:      spec.Height,
			RadiusScale: spec.RadiusScale,
			Offset:      offset,
			Count:       len(poses),
		})
		l.Poses = append(l.Poses, poses...)
		offset += len(poses)
	}
	return l, nil
}

// Len is the total number of checkpoints.
func (l *Layout) Len() int { return len(l.Poses) }

// AngularStepDeg is the spacing between neighbouring checkpoints of a ring.
func (l *Layout) AngularStepDeg() float64 {
	if l.PointsPerRing <= 0 {
		return 0
	}
	return 360 / float64(l.PointsPerRing)
}

// RingOf returns the ring holding the checkpoint index.
func (l *Layout) RingOf(index int) (Ring, bool) {
	for _, r := range l.Rings {
		if r.Contains(index) {
			return r, true
		}
	}
	return Ring{}, false
}
