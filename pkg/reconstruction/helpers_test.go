package reconstruction

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"volrecon/internal/models"
	"volrecon/pkg/registration"
)

// anisoGrid is a typical acquisition geometry: fine in-plane, coarse
// through-plane.
func anisoGrid() models.Grid {
	return models.Grid{
		Size:      [3]int{8, 8, 4},
		Spacing:   [3]float64{1, 1, 3},
		Direction: models.IdentityDirection,
	}
}

func isoGrid(n int) models.Grid {
	return models.Grid{
		Size:      [3]int{n, n, n},
		Spacing:   [3]float64{1, 1, 1},
		Direction: models.IdentityDirection,
	}
}

func constantStack(t *testing.T, name string, g models.Grid, value float64) *models.Stack {
	t.Helper()
	img, err := models.NewImage(g)
	require.NoError(t, err)
	for i := range img.Data {
		img.Data[i] = value
	}
	st, err := models.NewStack(name, img, nil)
	require.NoError(t, err)
	return st
}

func emptyVolume(t *testing.T, g models.Grid) *models.Volume {
	t.Helper()
	intensity, err := models.NewImage(g)
	require.NoError(t, err)
	mask, err := models.NewImage(g)
	require.NoError(t, err)
	for i := range mask.Data {
		mask.Data[i] = 1
	}
	v, err := models.NewVolume("vol", intensity, mask)
	require.NoError(t, err)
	return v
}

// fakeRegistrar returns a canned transform and report for every stack.
// Align runs concurrently across stacks, so the call counter is atomic.
type fakeRegistrar struct {
	transform models.RigidTransform
	report    registration.Report
	calls     atomic.Int32
}

func (f *fakeRegistrar) Align(fixed, moving *models.Image) (models.RigidTransform, registration.Report, error) {
	f.calls.Add(1)
	return f.transform, f.report, nil
}

// fakeAligner returns a canned stack list.
type fakeAligner struct {
	stacks []*models.Stack
	err    error
}

func (f *fakeAligner) Run() ([]*models.Stack, error) {
	return f.stacks, f.err
}

var errAlignFailed = errors.New("align failed")

type failingRegistrar struct{}

func (failingRegistrar) Align(fixed, moving *models.Image) (models.RigidTransform, registration.Report, error) {
	return models.RigidTransform{}, registration.Report{}, errAlignFailed
}

// assertInteriorConstant checks the volume against a constant, skipping the
// last through-plane voxels where the isotropic grid pokes past the coarse
// source stack's interpolation domain.
func assertInteriorConstant(t *testing.T, vol *models.Volume, want, delta float64) {
	t.Helper()
	g := vol.Grid()
	for z := 0; z < g.Size[2]-3; z++ {
		for y := 0; y < g.Size[1]; y++ {
			for x := 0; x < g.Size[0]; x++ {
				v := vol.Intensity().At(x, y, z)
				if v < want-delta || v > want+delta {
					t.Fatalf("voxel (%d,%d,%d) = %g, want %g within %g", x, y, z, v, want, delta)
				}
			}
		}
	}
}
