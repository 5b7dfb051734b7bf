package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestAzimuthDeg(t *testing.T) {
	tests := []struct {
		name string
		v    Vec
		want float64
	}{
		{"positive x", Vec{X: 1}, 0},
		{"positive z", Vec{Z: 1}, 90},
		{"negative x", Vec{X: -1}, 180},
		{"negative z", Vec{Z: -1}, 270},
		{"just below zero", Vec{X: math.Cos(Radians(-1)), Z: math.Sin(Radians(-1))}, 359},
		{"height ignored", Vec{X: 1, Y: 5, Z: 1}, 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AzimuthDeg(tt.v)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, 360.0)
		})
	}
}

func TestAngleBetweenDeg(t *testing.T) {
	deg, ok := AngleBetweenDeg(Vec{X: -1}, Vec{X: -2})
	assert.True(t, ok)
	assert.Equal(t, 0.0, deg)

	deg, ok = AngleBetweenDeg(Vec{X: 1}, Vec{Z: 3})
	assert.True(t, ok)
	assert.InDelta(t, 90, deg, 1e-9)

	deg, ok = AngleBetweenDeg(Vec{X: 1}, Vec{X: -1})
	assert.True(t, ok)
	assert.InDelta(t, 180, deg, 1e-9)
}

func TestAngleBetweenDegNearlyParallel(t *testing.T) {
	// Vectors whose normalised dot product rounds above 1.
	a := Vec{X: 0.1, Y: 0.2, Z: 0.3}
	b := Vec{X: 0.1 * 3, Y: 0.2 * 3, Z: 0.3 * 3}
	deg, ok := AngleBetweenDeg(a, b)
	assert.True(t, ok)
	assert.False(t, math.IsNaN(deg))
	assert.True(t, scalar.EqualWithinAbs(deg, 0, 1e-6))
}

func TestAngleBetweenDegDegenerate(t *testing.T) {
	_, ok := AngleBetweenDeg(Vec{}, Vec{X: 1})
	assert.False(t, ok)

	_, ok = AngleBetweenDeg(Vec{X: math.NaN()}, Vec{X: 1})
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	u, ok := Normalize(Vec{X: 3, Z: 4})
	assert.True(t, ok)
	assert.InDelta(t, 0.6, u.X, 1e-12)
	assert.InDelta(t, 0.8, u.Z, 1e-12)

	_, ok = Normalize(Vec{X: math.Inf(1)})
	assert.False(t, ok)
}

func TestElevationDeg(t *testing.T) {
	assert.InDelta(t, 45, ElevationDeg(1, 1), 1e-9)
	assert.InDelta(t, -45, ElevationDeg(-1, 1), 1e-9)
	assert.Equal(t, 0.0, ElevationDeg(0, 0.3))
}
