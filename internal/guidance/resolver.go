// Package guidance decides, once per tracking update, whether the camera is
// standing at a checkpoint and looking the right way, and if not, why not.
package guidance

import (
	"math"

	"github.com/banshee-data/ringcapture/internal/checkpoint"
	"github.com/banshee-data/ringcapture/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// CaptureError classifies why a camera pose did not resolve to a
// checkpoint. It is advisory and drives on-screen hints; it is never fatal.
type CaptureError string

const (
	ErrorNone         CaptureError = "none"          // resolved, or guidance not yet active
	ErrorTooFar       CaptureError = "too_far"       // outside the distance threshold, or a malformed pose
	ErrorBadElevation CaptureError = "bad_elevation" // too high or too low for the nearest checkpoint
	ErrorNotAligned   CaptureError = "not_aligned"   // not facing along the checkpoint direction
)

// Hint returns short operator guidance for the error.
func (e CaptureError) Hint() string {
	switch e {
	case ErrorTooFar:
		return "Move closer to the object"
	case ErrorBadElevation:
		return "Adjust the camera height"
	case ErrorNotAligned:
		return "Point the camera at the object"
	default:
		return ""
	}
}

// Thresholds are the gates a pose must pass to match a checkpoint.
type Thresholds struct {
	DistanceM    float64 `json:"distance_m"`    // max distance from the ring center
	ElevationDeg float64 `json:"elevation_deg"` // max |elevation| relative to the checkpoint
	AlignmentDeg float64 `json:"alignment_deg"` // max angle between camera forward and checkpoint facing
}

// DefaultThresholds returns the standard gates: 0.4 m, 15°, 10°.
func DefaultThresholds() Thresholds {
	return Thresholds{DistanceM: 0.4, ElevationDeg: 15, AlignmentDeg: 10}
}

// Resolution is the outcome of one guidance frame.
//
// Index is the resolved checkpoint, or -1. Candidate is the checkpoint the
// pose was tested against (-1 if rejected before bucketing) so a UI can
// point the operator at it. The measurement fields hold the values computed
// before the pose was accepted or rejected and are zero when not reached.
type Resolution struct {
	Index     int          `json:"index"`
	Error     CaptureError `json:"error"`
	Candidate int          `json:"candidate"`
	Ring      int          `json:"ring"`

	DistanceM    float64 `json:"distance_m"`
	AzimuthDeg   float64 `json:"azimuth_deg"`
	ElevationDeg float64 `json:"elevation_deg"`
	AlignmentDeg float64 `json:"alignment_deg"`
}

// Matched reports whether a checkpoint was resolved.
func (r Resolution) Matched() bool { return r.Index >= 0 }

func noMatch(e CaptureError) Resolution {
	return Resolution{Index: -1, Candidate: -1, Error: e}
}

// Resolve evaluates one camera pose against a layout. It is a pure function
// of its arguments; the gates run in order and stop at the first failure:
// distance, ring selection, azimuth bucketing, elevation, alignment.
//
// Bucketing relies on the checkpoints of a ring being spaced at exactly
// equal angles from angle 0, as GenerateRing lays them out; any other
// layout needs a real nearest-neighbour search.
func Resolve(pose geom.CameraPose, layout *checkpoint.Layout, th Thresholds) Resolution {
	if layout == nil || len(layout.Rings) == 0 {
		return noMatch(ErrorNone)
	}

	// A pose that is not finite, or whose forward vector has no direction,
	// is treated as infinitely far away.
	if !geom.IsFinite(pose.Position) {
		return noMatch(ErrorTooFar)
	}
	if _, ok := geom.Normalize(pose.Forward); !ok {
		return noMatch(ErrorTooFar)
	}

	rel := r3.Sub(pose.Position, layout.Center)
	dist := r3.Norm(rel)
	if !(dist <= th.DistanceM) {
		res := noMatch(ErrorTooFar)
		if !math.IsInf(dist, 0) {
			res.DistanceM = dist
		}
		return res
	}

	// Nearest ring by height; ties go to the lower ring.
	ring := layout.Rings[0]
	best := math.Abs(rel.Y - ring.Height)
	for _, r := range layout.Rings[1:] {
		if d := math.Abs(rel.Y - r.Height); d < best {
			ring, best = r, d
		}
	}

	az := geom.AzimuthDeg(rel)
	step := 360 / float64(ring.Count)
	slot := int(math.Round(az/step)) % ring.Count
	cp := layout.Poses[ring.Offset+slot]

	res := Resolution{
		Index:      -1,
		Error:      ErrorNone,
		Candidate:  cp.Index,
		Ring:       ring.Number,
		DistanceM:  dist,
		AzimuthDeg: az,
	}

	cpHeight := cp.Position.Y - layout.Center.Y
	res.ElevationDeg = geom.ElevationDeg(rel.Y-cpHeight, geom.HorizontalNorm(rel))
	if math.Abs(res.ElevationDeg) > th.ElevationDeg {
		res.Error = ErrorBadElevation
		return res
	}

	angle, ok := geom.AngleBetweenDeg(cp.Direction, pose.Forward)
	if !ok || angle > th.AlignmentDeg {
		if ok {
			res.AlignmentDeg = angle
		}
		res.Error = ErrorNotAligned
		return res
	}
	res.AlignmentDeg = angle
	res.Index = cp.Index
	return res
}

// Resolver binds Resolve to a checkpoint store. Until the store is marked
// ready every pose resolves to no checkpoint with ErrorNone; callers must
// not read that as a capturable state.
type Resolver struct {
	store      *checkpoint.Store
	thresholds Thresholds
}

// NewResolver creates a Resolver over store.
func NewResolver(store *checkpoint.Store, th Thresholds) *Resolver {
	return &Resolver{store: store, thresholds: th}
}

// Thresholds returns the gates in use.
func (r *Resolver) Thresholds() Thresholds { return r.thresholds }

// Resolve evaluates pose against the store's layout.
func (r *Resolver) Resolve(pose geom.CameraPose) Resolution {
	if !r.store.Ready() {
		return noMatch(ErrorNone)
	}
	return Resolve(pose, r.store.Layout(), r.thresholds)
}
