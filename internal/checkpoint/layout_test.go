package checkpoint

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/ringcapture/internal/geom"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestGenerateRing_EqualSteps(t *testing.T) {
	center := geom.Vec{X: 1, Y: 0.5, Z: -2}
	poses, err := GenerateRing(center, 0.21, 20, RingSpec{Height: 0, RadiusScale: 1}, 0, 1)
	require.NoError(t, err)
	require.Len(t, poses, 20)

	for i, p := range poses {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, i, p.Slot)
		assert.Equal(t, 1, p.Ring)

		rel := r3.Sub(p.Position, center)
		assert.InDelta(t, 0.21, geom.HorizontalNorm(rel), 1e-12)
		assert.InDelta(t, float64(i)*18, geom.AzimuthDeg(rel), 1e-9, "slot %d", i)

		// Facing inward: the direction is the unit vector back to the center.
		assert.InDelta(t, 1, r3.Norm(p.Direction), 1e-12)
		assert.InDelta(t, -1, r3.Dot(p.Direction, r3.Scale(1/r3.Norm(rel), rel)), 1e-12)
	}

	first := poses[0]
	assert.InDelta(t, 1.21, first.Position.X, 1e-12)
	assert.InDelta(t, -1, first.Direction.X, 1e-12)
}

func TestGenerateRing_HeightAndScale(t *testing.T) {
	poses, err := GenerateRing(geom.Vec{}, 0.2, 4, RingSpec{Height: 0.1, RadiusScale: SecondRingRadiusScale}, 20, 2)
	require.NoError(t, err)

	assert.Equal(t, 20, poses[0].Index)
	assert.Equal(t, 23, poses[3].Index)
	for _, p := range poses {
		assert.InDelta(t, 0.1, p.Position.Y, 1e-12)
		assert.InDelta(t, 0.2*SecondRingRadiusScale, geom.HorizontalNorm(p.Position), 1e-12)
		assert.Less(t, p.Direction.Y, 0.0, "elevated ring looks down towards the center")
	}
}

func TestGenerateRing_Degenerate(t *testing.T) {
	tests := []struct {
		name   string
		radius float64
		count  int
		spec   RingSpec
	}{
		{"zero count", 0.2, 0, RingSpec{RadiusScale: 1}},
		{"negative count", 0.2, -3, RingSpec{RadiusScale: 1}},
		{"zero radius", 0, 20, RingSpec{RadiusScale: 1}},
		{"negative radius", -1, 20, RingSpec{RadiusScale: 1}},
		{"nan radius", math.NaN(), 20, RingSpec{RadiusScale: 1}},
		{"zero radius scale", 0.2, 20, RingSpec{}},
		{"infinite height", 0.2, 20, RingSpec{Height: math.Inf(1), RadiusScale: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poses, err := GenerateRing(geom.Vec{}, tt.radius, tt.count, tt.spec, 0, 1)
			assert.True(t, errors.Is(err, ErrInvalidConfiguration), "got %v", err)
			assert.Nil(t, poses)
		})
	}
}

func TestNewLayout_TwoRings(t *testing.T) {
	specs := DefaultRingSpecs(2, 0.2)
	l, err := NewLayout(geom.Vec{}, 0.21, 0.02, 20, specs)
	require.NoError(t, err)

	assert.Equal(t, 40, l.Len())
	assert.Equal(t, 18.0, l.AngularStepDeg())

	want := []Ring{
		{Number: 1, Height: FirstRingHeight, RadiusScale: 1, Offset: 0, Count: 20},
		{Number: 2, Height: 0.1, RadiusScale: SecondRingRadiusScale, Offset: 20, Count: 20},
	}
	if diff := cmp.Diff(want, l.Rings); diff != "" {
		t.Errorf("rings mismatch (-want +got):\n%s", diff)
	}

	r, ok := l.RingOf(25)
	require.True(t, ok)
	assert.Equal(t, 2, r.Number)
	_, ok = l.RingOf(40)
	assert.False(t, ok)

	for i, p := range l.Poses {
		assert.Equal(t, i, p.Index)
	}
}

func TestNewLayout_RingCount(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		l, err := NewLayout(geom.Vec{}, 0.21, 0.02, 12, DefaultRingSpecs(n, 0.2))
		require.NoError(t, err)
		assert.Len(t, l.Rings, n)
		assert.Equal(t, 12*n, l.Len())
	}

	specs := append(DefaultRingSpecs(3, 0.2), RingSpec{Height: 0.3, RadiusScale: 0.2})
	_, err := NewLayout(geom.Vec{}, 0.21, 0.02, 12, specs)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewLayout(geom.Vec{}, 0.21, 0.02, 12, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewLayout(geom.Vec{}, 0.21, 0.02, 0, DefaultRingSpecs(1, 0.2))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestDefaultRingSpecs(t *testing.T) {
	assert.Nil(t, DefaultRingSpecs(0, 0.2))
	assert.Len(t, DefaultRingSpecs(5, 0.2), MaxRings)

	specs := DefaultRingSpecs(3, 0.3)
	assert.Equal(t, FirstRingHeight, specs[0].Height)
	assert.InDelta(t, 0.15, specs[1].Height, 1e-12)
	assert.InDelta(t, 0.3, specs[2].Height, 1e-12)
}
