package sda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volrecon/internal/models"
)

func isoGrid(n int) models.Grid {
	return models.Grid{
		Size:      [3]int{n, n, n},
		Spacing:   [3]float64{1, 1, 1},
		Direction: models.IdentityDirection,
	}
}

func constantStack(t *testing.T, g models.Grid, value float64) *models.Stack {
	t.Helper()
	img, err := models.NewImage(g)
	require.NoError(t, err)
	for i := range img.Data {
		img.Data[i] = value
	}
	st, err := models.NewStack("stack", img, nil)
	require.NoError(t, err)
	return st
}

func emptyVolume(t *testing.T, g models.Grid) *models.Volume {
	t.Helper()
	intensity, err := models.NewImage(g)
	require.NoError(t, err)
	mask, err := models.NewImage(g)
	require.NoError(t, err)
	v, err := models.NewVolume("vol", intensity, mask)
	require.NoError(t, err)
	return v
}

func TestRunConstantStack(t *testing.T) {
	g := isoGrid(10)
	st := constantStack(t, g, 5)
	vol := emptyVolume(t, g)

	a := New([]*models.Stack{st}, []models.RigidTransform{models.IdentityRigid()}, vol)
	require.NoError(t, a.Run())

	// A single fully covering constant stack reconstructs to that constant;
	// the Shepard quotient cancels the smoothing exactly on constants.
	for i, v := range vol.Intensity().Data {
		assert.InDeltaf(t, 5.0, v, 1e-6, "voxel %d", i)
		assert.Equal(t, 1.0, vol.Mask().Data[i])
	}
}

func TestRunKernelVariants(t *testing.T) {
	for _, k := range []Kernel{ShepardYVV, ShepardDeriche} {
		g := isoGrid(10)
		vol := emptyVolume(t, g)
		a := New([]*models.Stack{constantStack(t, g, 2)}, []models.RigidTransform{models.IdentityRigid()}, vol)
		a.SetKernel(k)
		a.SetSigma(1.0)
		require.NoError(t, a.Run())

		for _, v := range vol.Intensity().Data {
			assert.InDelta(t, 2.0, v, 1e-6)
		}
	}
}

func TestRunPartialCoverage(t *testing.T) {
	// The stack covers only the lower-left octant of the volume.
	stackGrid := isoGrid(6)
	volGrid := isoGrid(12)

	st := constantStack(t, stackGrid, 3)
	vol := emptyVolume(t, volGrid)

	a := New([]*models.Stack{st}, []models.RigidTransform{models.IdentityRigid()}, vol)
	require.NoError(t, a.Run())

	mask := vol.Mask()
	assert.Equal(t, 1.0, mask.At(2, 2, 2))
	assert.Equal(t, 0.0, mask.At(10, 10, 10))

	// Intensity outside the union mask is forced to zero.
	assert.Equal(t, 0.0, vol.Intensity().At(10, 10, 10))
	assert.InDelta(t, 3.0, vol.Intensity().At(2, 2, 2), 0.05)
}

func TestRunTwoStacksUnionMask(t *testing.T) {
	g := isoGrid(8)

	st1 := constantStack(t, g, 4)
	st2 := constantStack(t, g, 4)
	// Blank half of each stack's mask so only their union covers the grid.
	for i := 0; i < len(st1.Mask.Data)/2; i++ {
		st1.Mask.Data[i] = 0
	}
	for i := len(st2.Mask.Data) / 2; i < len(st2.Mask.Data); i++ {
		st2.Mask.Data[i] = 0
	}

	vol := emptyVolume(t, g)
	a := New([]*models.Stack{st1, st2},
		[]models.RigidTransform{models.IdentityRigid(), models.IdentityRigid()}, vol)
	require.NoError(t, a.Run())

	for i, m := range vol.Mask().Data {
		require.Equalf(t, 1.0, m, "voxel %d", i)
	}
	for _, v := range vol.Intensity().Data {
		assert.InDelta(t, 4.0, v, 1e-6)
	}
}
