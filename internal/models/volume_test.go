package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestVoxelVolume verifies that voxel volume is the product of the spacings.
func TestVoxelVolume(t *testing.T) {
	g := Geometry{Spacing: [3]float64{0.5, 0.5, 3.0}}
	assert.InDelta(t, 0.75, g.VoxelVolume(), 1e-12)
}

// TestIndexing verifies the x-fastest memory layout of LabeledVolume.
func TestIndexing(t *testing.T) {
	geom := Geometry{
		Spacing:   [3]float64{1, 1, 1},
		Direction: IdentityDirection(),
		Extent:    [3]int{3, 4, 5},
	}
	vol := NewLabeledVolume(geom)
	require.Len(t, vol.Data, 60)

	vol.Set(2, 3, 4, LabelGTVn)
	assert.Equal(t, LabelGTVn, vol.At(2, 3, 4))
	assert.Equal(t, LabelGTVn, vol.Data[59])
	assert.Equal(t, LabelBackground, vol.At(0, 0, 0))
}

// TestIndexToPhysical verifies the affine index-to-physical mapping with a
// non-trivial direction matrix.
func TestIndexToPhysical(t *testing.T) {
	g := Geometry{
		Spacing: [3]float64{2, 3, 4},
		Origin:  [3]float64{10, 20, 30},
		// 90 degree rotation about z: grid x runs along physical y.
		Direction: [3][3]float64{
			{0, -1, 0},
			{1, 0, 0},
			{0, 0, 1},
		},
		Extent: [3]int{5, 5, 5},
	}

	p := g.IndexToPhysical(1, 0, 0)
	assert.InDelta(t, 10.0, p[0], 1e-12)
	assert.InDelta(t, 22.0, p[1], 1e-12)
	assert.InDelta(t, 30.0, p[2], 1e-12)

	p = g.IndexToPhysical(0, 1, 2)
	assert.InDelta(t, 10.0-3.0, p[0], 1e-12)
	assert.InDelta(t, 20.0, p[1], 1e-12)
	assert.InDelta(t, 30.0+8.0, p[2], 1e-12)
}

// TestSameGrid verifies grid identity comparison and that spacing is
// excluded from it.
func TestSameGrid(t *testing.T) {
	base := Geometry{
		Spacing:   [3]float64{1, 1, 1},
		Origin:    [3]float64{0, 0, 0},
		Direction: IdentityDirection(),
		Extent:    [3]int{10, 10, 10},
	}

	t.Run("identical grids match", func(t *testing.T) {
		assert.True(t, base.SameGrid(base, 1e-6))
	})

	t.Run("origin drift within tolerance matches", func(t *testing.T) {
		g := base
		g.Origin[0] += 1e-9
		assert.True(t, base.SameGrid(g, 1e-6))
	})

	t.Run("origin shift beyond tolerance differs", func(t *testing.T) {
		g := base
		g.Origin[2] += 0.5
		assert.False(t, base.SameGrid(g, 1e-6))
	})

	t.Run("extent mismatch differs", func(t *testing.T) {
		g := base
		g.Extent[1] = 11
		assert.False(t, base.SameGrid(g, 1e-6))
	})

	t.Run("direction mismatch differs", func(t *testing.T) {
		g := base
		g.Direction[0][1] = 0.01
		assert.False(t, base.SameGrid(g, 1e-6))
	})

	t.Run("spacing difference is ignored", func(t *testing.T) {
		g := base
		g.Spacing = [3]float64{2, 2, 2}
		assert.True(t, base.SameGrid(g, 1e-6))
		assert.False(t, base.SpacingEquals(g, 1e-6))
	})
}

// TestClone verifies that Clone produces an independent copy.
func TestClone(t *testing.T) {
	geom := Geometry{
		Spacing:   [3]float64{1, 1, 1},
		Direction: IdentityDirection(),
		Extent:    [3]int{2, 2, 2},
	}
	vol := NewLabeledVolume(geom)
	vol.Set(0, 0, 0, LabelGTVp)

	clone := vol.Clone()
	clone.Set(0, 0, 0, LabelGTVn)

	assert.Equal(t, LabelGTVp, vol.At(0, 0, 0))
	assert.Equal(t, LabelGTVn, clone.At(0, 0, 0))
}
