// Package geom holds the small amount of vector math shared by checkpoint
// layout and capture guidance. Vectors are gonum r3 vectors in the tracking
// frame: Y is up and the horizontal plane is X/Z.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec is a 3D vector in the tracking frame.
type Vec = r3.Vec

const (
	degPerRad = 180 / math.Pi
	radPerDeg = math.Pi / 180
)

// CameraPose is a single tracking update: where the camera is and which way
// it looks. Forward need not be normalised.
type CameraPose struct {
	Position Vec `json:"position"`
	Forward  Vec `json:"forward"`
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * degPerRad }

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * radPerDeg }

// IsFinite reports whether every component of v is a finite number.
func IsFinite(v Vec) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// Normalize returns the unit vector along v. The second result is false when
// v is zero-length or not finite, in which case the zero vector is returned.
func Normalize(v Vec) (Vec, bool) {
	if !IsFinite(v) {
		return Vec{}, false
	}
	n := r3.Norm(v)
	if n == 0 || math.IsInf(n, 0) {
		return Vec{}, false
	}
	return r3.Scale(1/n, v), true
}

// HorizontalNorm is the length of v projected onto the X/Z plane.
func HorizontalNorm(v Vec) float64 {
	return math.Hypot(v.X, v.Z)
}

// AzimuthDeg returns the angle of v around the vertical axis, measured from
// +X towards +Z, in [0, 360).
func AzimuthDeg(v Vec) float64 {
	deg := Degrees(math.Atan2(v.Z, v.X))
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// ElevationDeg returns the signed angle above the horizontal plane for a
// height difference dy seen across a horizontal distance.
func ElevationDeg(dy, horizontal float64) float64 {
	return Degrees(math.Atan2(dy, horizontal))
}

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// AngleBetweenDeg returns the angle between a and b in degrees. The dot
// product of the normalised vectors is clamped to [-1, 1] before acos, so
// nearly parallel inputs never produce NaN. ok is false when either vector
// is degenerate.
func AngleBetweenDeg(a, b Vec) (deg float64, ok bool) {
	ua, okA := Normalize(a)
	ub, okB := Normalize(b)
	if !okA || !okB {
		return math.NaN(), false
	}
	return Degrees(math.Acos(Clamp(r3.Dot(ua, ub), -1, 1))), true
}
