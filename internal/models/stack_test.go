package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(t *testing.T, g Grid) *Image {
	t.Helper()
	img, err := NewImage(g)
	require.NoError(t, err)
	for i := range img.Data {
		img.Data[i] = float64(i)
	}
	return img
}

func TestNewStackSliceTransforms(t *testing.T) {
	g := testGrid()
	st, err := NewStack("s0", testImage(t, g), nil)
	require.NoError(t, err)
	require.Equal(t, g.Size[2], st.NumSlices())

	// Slice k's transform must place in-plane pixel (x, y) at the physical
	// position of voxel (x, y, k).
	for k, sl := range st.Slices() {
		assert.Equal(t, k, sl.Index)
		assert.Equal(t, g.Size[0], sl.Nx)
		assert.Equal(t, g.Size[1], sl.Ny)

		got := sl.Transform().Apply([3]float64{2, 3, 0})
		want := g.PointFromIndex(2, 3, float64(k))
		for a := 0; a < 3; a++ {
			assert.InDelta(t, want[a], got[a], 1e-12)
		}
	}
}

func TestNewStackSliceData(t *testing.T) {
	g := testGrid()
	img := testImage(t, g)
	st, err := NewStack("s0", img, nil)
	require.NoError(t, err)

	sl := st.Slices()[2]
	assert.Equal(t, img.At(1, 3, 2), sl.Data[3*g.Size[0]+1])
}

func TestNewStackDefaultMask(t *testing.T) {
	g := testGrid()
	st, err := NewStack("s0", testImage(t, g), nil)
	require.NoError(t, err)

	for _, m := range st.Mask.Data {
		require.Equal(t, 1.0, m)
	}
}

func TestNewStackMaskGridMismatch(t *testing.T) {
	g := testGrid()
	img := testImage(t, g)

	og := g
	og.Size[0]++
	mask, err := NewImage(og)
	require.NoError(t, err)

	_, err = NewStack("s0", img, mask)
	var geomErr *InvalidGeometryError
	require.ErrorAs(t, err, &geomErr)
	assert.Equal(t, "mask", geomErr.Field)
}

func TestSetTransformRejectsInvalid(t *testing.T) {
	g := testGrid()
	st, err := NewStack("s0", testImage(t, g), nil)
	require.NoError(t, err)

	sl := st.Slices()[0]
	prev := sl.Transform()

	err = sl.SetTransform(AffineTransform{})
	var geomErr *GeometryError
	require.ErrorAs(t, err, &geomErr)

	// A rejected transform leaves the previous one in place.
	assert.Equal(t, prev, sl.Transform())
}
