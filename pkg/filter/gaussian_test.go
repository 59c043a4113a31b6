package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volrecon/internal/models"
)

func constantImage(t *testing.T, value float64) *models.Image {
	t.Helper()
	im, err := models.NewImage(models.Grid{
		Size:      [3]int{12, 10, 8},
		Spacing:   [3]float64{1, 1, 2},
		Direction: models.IdentityDirection,
	})
	require.NoError(t, err)
	for i := range im.Data {
		im.Data[i] = value
	}
	return im
}

func impulseImage(t *testing.T) *models.Image {
	t.Helper()
	im := constantImage(t, 0)
	im.Set(6, 5, 4, 1)
	return im
}

func TestSmoothPreservesConstants(t *testing.T) {
	for _, k := range []Kernel{FIR, Deriche, YoungVanVliet} {
		im := constantImage(t, 3.5)
		out := Smooth(im, 1.2, k)
		for i, v := range out.Data {
			if math.Abs(v-3.5) > 1e-9 {
				t.Fatalf("kernel %v: voxel %d = %g, want 3.5", k, i, v)
			}
		}
	}
}

func TestSmoothZeroSigmaIsCopy(t *testing.T) {
	im := impulseImage(t)
	out := Smooth(im, 0, FIR)
	assert.Equal(t, im.Data, out.Data)

	// The copy is independent of the input.
	out.Data[0] = 99
	assert.Equal(t, 0.0, im.Data[0])
}

func TestSmoothSpreadsImpulse(t *testing.T) {
	im := impulseImage(t)
	out := Smooth(im, 1.0, FIR)

	peak := out.At(6, 5, 4)
	assert.Less(t, peak, 1.0)
	assert.Greater(t, peak, 0.0)
	assert.Greater(t, out.At(7, 5, 4), 0.0)

	// Mass is conserved away from boundaries.
	sum := 0.0
	for _, v := range out.Data {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestSmoothAnisotropicSpacing(t *testing.T) {
	// Spacing along z is twice the in-plane spacing, so stepping one voxel
	// along z covers more physical distance than one voxel along x.
	im := impulseImage(t)
	out := Smooth(im, 2.0, FIR)
	assert.Greater(t, out.At(7, 5, 4), out.At(6, 5, 5))
}

func TestSmoothTruncatedCutoff(t *testing.T) {
	im := impulseImage(t)

	wide := SmoothTruncated(im, 1.0, 4)
	narrow := SmoothTruncated(im, 1.0, 1)

	// A tighter cut-off keeps more mass near the impulse.
	assert.Greater(t, narrow.At(6, 5, 4), wide.At(6, 5, 4))
}

func TestRecursiveKernelsApproximateFIR(t *testing.T) {
	for _, k := range []Kernel{Deriche, YoungVanVliet} {
		ref := Smooth(impulseImage(t), 2.0, FIR)
		got := Smooth(impulseImage(t), 2.0, k)

		// Recursive approximations should stay close to the sampled kernel
		// at the impulse center.
		assert.InDelta(t, ref.At(6, 5, 4), got.At(6, 5, 4), 0.02)
	}
}

func TestShrink(t *testing.T) {
	im := constantImage(t, 0)
	for z := 0; z < 8; z++ {
		for y := 0; y < 10; y++ {
			for x := 0; x < 12; x++ {
				im.Set(x, y, z, float64(x%2))
			}
		}
	}

	out := Shrink(im, 2)
	assert.Equal(t, [3]int{6, 5, 4}, out.Grid.Size)
	assert.Equal(t, [3]float64{2, 2, 4}, out.Grid.Spacing)

	// Each pooled block averages one 0 and one 1 along x.
	for _, v := range out.Data {
		assert.InDelta(t, 0.5, v, 1e-12)
	}

	// The shrunk origin sits at the center of the first block.
	want := im.Grid.PointFromIndex(0.5, 0.5, 0.5)
	assert.Equal(t, want, out.Grid.Origin)
}

func TestShrinkFactorOne(t *testing.T) {
	im := impulseImage(t)
	out := Shrink(im, 1)
	assert.Equal(t, im.Grid, out.Grid)
	assert.Equal(t, im.Data, out.Data)
}
