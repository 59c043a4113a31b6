package reconstruction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volrecon/internal/models"
	"volrecon/pkg/registration"
	"volrecon/pkg/sda"
)

func TestNewFirstEstimateValidation(t *testing.T) {
	st := constantStack(t, "a", anisoGrid(), 1)

	_, err := NewFirstEstimate(nil, "vol", 0, nil, nil)
	assert.Error(t, err)

	_, err = NewFirstEstimate([]*models.Stack{st}, "vol", 1, nil, nil)
	assert.Error(t, err)
	_, err = NewFirstEstimate([]*models.Stack{st}, "vol", -1, nil, nil)
	assert.Error(t, err)
}

func TestNewFirstEstimateBuildsVolumeImmediately(t *testing.T) {
	st := constantStack(t, "a", anisoGrid(), 1)

	fe, err := NewFirstEstimate([]*models.Stack{st}, "vol", 0, nil, nil)
	require.NoError(t, err)

	// The reference grid exists before Compute and is derived from the
	// target stack.
	assert.Equal(t, [3]int{8, 8, 12}, fe.Volume().Grid().Size)
	assert.Equal(t, ApproachSDA, fe.ReconstructionApproach())

	// The transform table defaults to identity.
	for _, tr := range fe.Transforms() {
		assert.True(t, tr.IsIdentity())
	}
}

func TestFirstEstimateRejectsSRR(t *testing.T) {
	st := constantStack(t, "a", anisoGrid(), 1)
	fe, err := NewFirstEstimate([]*models.Stack{st}, "vol", 0, nil, nil)
	require.NoError(t, err)

	before := fe.ReconstructionApproach()

	err = fe.SetReconstructionApproach(ApproachSRR)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	// A rejected strategy leaves the selection unchanged.
	assert.Equal(t, before, fe.ReconstructionApproach())
}

func TestFirstEstimateConfigValidation(t *testing.T) {
	st := constantStack(t, "a", anisoGrid(), 1)
	fe, err := NewFirstEstimate([]*models.Stack{st}, "vol", 0, nil, nil)
	require.NoError(t, err)

	var cfgErr *ConfigurationError

	require.ErrorAs(t, fe.SetSDAKernel("Median"), &cfgErr)
	assert.Equal(t, sda.ShepardYVV, fe.SDAKernel())

	require.ErrorAs(t, fe.SetSDASigma(-1), &cfgErr)
	require.ErrorAs(t, fe.SetSDASigma(0), &cfgErr)
	assert.Equal(t, 0.6, fe.SDASigma())

	require.NoError(t, fe.SetSDAKernel(sda.ShepardDeriche))
	require.NoError(t, fe.SetSDASigma(0.8))
	assert.Equal(t, sda.ShepardDeriche, fe.SDAKernel())
	assert.Equal(t, 0.8, fe.SDASigma())
}

func TestComputeAverageWithoutRegistration(t *testing.T) {
	g := anisoGrid()
	stacks := []*models.Stack{
		constantStack(t, "a", g, 4),
		constantStack(t, "b", g, 4),
	}

	fe, err := NewFirstEstimate(stacks, "vol", 0, nil, nil)
	require.NoError(t, err)
	require.NoError(t, fe.SetReconstructionApproach(ApproachAverage))
	require.NoError(t, fe.Compute())

	// The last iso planes poke past the coarse stack's interpolation
	// domain, so only the interior is checked.
	assertInteriorConstant(t, fe.Volume(), 4.0, 1e-12)
}

func TestComputeSDA(t *testing.T) {
	g := anisoGrid()
	stacks := []*models.Stack{constantStack(t, "a", g, 3)}

	fe, err := NewFirstEstimate(stacks, "vol", 0, nil, nil)
	require.NoError(t, err)
	require.NoError(t, fe.Compute())

	assertInteriorConstant(t, fe.Volume(), 3.0, 0.05)
}

func TestComputeInPlaneAlignmentRequiresAligner(t *testing.T) {
	st := constantStack(t, "a", anisoGrid(), 1)
	fe, err := NewFirstEstimate([]*models.Stack{st}, "vol", 0, nil, nil)
	require.NoError(t, err)

	fe.UseInPlaneAlignment(true)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, fe.Compute(), &cfgErr)
}

func TestComputeRegistrationRequiresRegistrar(t *testing.T) {
	st := constantStack(t, "a", anisoGrid(), 1)
	fe, err := NewFirstEstimate([]*models.Stack{st}, "vol", 0, nil, nil)
	require.NoError(t, err)

	fe.RegisterStacksBeforeEstimate(true)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, fe.Compute(), &cfgErr)
}

func TestComputeInPlaneAlignmentFeedsAlignedStacks(t *testing.T) {
	g := anisoGrid()
	original := constantStack(t, "a", g, 1)
	aligned := constantStack(t, "a-aligned", g, 9)

	fe, err := NewFirstEstimate([]*models.Stack{original}, "vol", 0, nil,
		&fakeAligner{stacks: []*models.Stack{aligned}})
	require.NoError(t, err)
	fe.UseInPlaneAlignment(true)
	require.NoError(t, fe.SetReconstructionApproach(ApproachAverage))
	require.NoError(t, fe.Compute())

	// The aligned stack, not the original, fed the estimate.
	assertInteriorConstant(t, fe.Volume(), 9.0, 1e-12)
}

func TestComputeInPlaneAlignmentCountMismatch(t *testing.T) {
	g := anisoGrid()
	st := constantStack(t, "a", g, 1)

	fe, err := NewFirstEstimate([]*models.Stack{st}, "vol", 0, nil,
		&fakeAligner{stacks: nil})
	require.NoError(t, err)
	fe.UseInPlaneAlignment(true)
	assert.Error(t, fe.Compute())
}

func TestComputeRegistersAndPropagates(t *testing.T) {
	g := anisoGrid()
	stacks := []*models.Stack{
		constantStack(t, "a", g, 2),
		constantStack(t, "b", g, 2),
	}

	beforeSlice := stacks[0].Slices()[0].Transform()

	reg := &fakeRegistrar{
		transform: models.RigidTransform{Translation: [3]float64{1, 0, 0}},
		report:    registration.Report{Converged: true, Iterations: 12, FinalMetric: 0.9},
	}

	fe, err := NewFirstEstimate(stacks, "vol", 0, reg, nil)
	require.NoError(t, err)
	fe.RegisterStacksBeforeEstimate(true)
	fe.SetWorkers(2)
	require.NoError(t, fe.SetReconstructionApproach(ApproachAverage))
	require.NoError(t, fe.Compute())

	assert.Equal(t, int32(2), reg.calls.Load())
	for _, tr := range fe.Transforms() {
		assert.Equal(t, reg.transform, tr)
	}
	for _, report := range fe.AlignmentReports() {
		assert.True(t, report.Converged)
		assert.Equal(t, 12, report.Iterations)
	}

	// The rigid alignment was composed onto the original slices.
	want := reg.transform.ToAffine().Compose(beforeSlice)
	assert.Equal(t, want, stacks[0].Slices()[0].Transform())
}

func TestComputeNonConvergenceIsAccepted(t *testing.T) {
	g := anisoGrid()
	stacks := []*models.Stack{constantStack(t, "a", g, 2)}

	reg := &fakeRegistrar{
		transform: models.IdentityRigid(),
		report:    registration.Report{Converged: false, Iterations: 2000},
	}

	fe, err := NewFirstEstimate(stacks, "vol", 0, reg, nil)
	require.NoError(t, err)
	fe.RegisterStacksBeforeEstimate(true)
	require.NoError(t, fe.SetReconstructionApproach(ApproachAverage))

	// A non-converged registration is a degraded result, never an error.
	require.NoError(t, fe.Compute())
	assert.False(t, fe.AlignmentReports()[0].Converged)
}

func TestEndToEndWithEngine(t *testing.T) {
	if testing.Short() {
		t.Skip("registration engine run")
	}

	g := isoGrid(16)
	g.Spacing[2] = 2
	g.Size[2] = 8

	// Three stacks of the same sphere; the grids coincide so registration
	// should stay near identity and the common region averages cleanly.
	var stacks []*models.Stack
	for _, name := range []string{"a", "b", "c"} {
		img, err := models.NewImage(g)
		require.NoError(t, err)
		for z := 0; z < g.Size[2]; z++ {
			for y := 0; y < g.Size[1]; y++ {
				for x := 0; x < g.Size[0]; x++ {
					p := g.PointFromIndex(float64(x), float64(y), float64(z))
					d2 := (p[0]-7.5)*(p[0]-7.5) + (p[1]-7.5)*(p[1]-7.5) + (p[2]-7.5)*(p[2]-7.5)
					if d2 < 25 {
						img.Set(x, y, z, 10)
					}
				}
			}
		}
		st, err := models.NewStack(name, img, nil)
		require.NoError(t, err)
		stacks = append(stacks, st)
	}

	engine, err := registration.NewEngine(registration.Params{
		ShrinkFactors:   []int{2, 1},
		SmoothingSigmas: []float64{1, 0},
		HistogramBins:   32,
		InitialStep:     0.5,
		MinStep:         0.05,
		MaxIterations:   100,
	})
	require.NoError(t, err)

	fe, err := NewFirstEstimate(stacks, "vol", 0, engine, nil)
	require.NoError(t, err)
	fe.RegisterStacksBeforeEstimate(true)
	require.NoError(t, fe.SetReconstructionApproach(ApproachAverage))
	require.NoError(t, fe.Compute())

	vol := fe.Volume()
	covered := 0
	for _, m := range vol.Mask().Data {
		if m > 0 {
			covered++
		}
	}
	assert.Greater(t, covered, 0)

	// Deep inside the sphere the average must be close to the acquired
	// value even with small residual alignment error.
	assert.InDelta(t, 10.0, vol.Intensity().At(7, 7, 7), 1.0)
}

func TestComputeRegistrarErrorSurfaces(t *testing.T) {
	g := anisoGrid()
	stacks := []*models.Stack{constantStack(t, "a", g, 2)}

	fe, err := NewFirstEstimate(stacks, "vol", 0, failingRegistrar{}, nil)
	require.NoError(t, err)
	fe.RegisterStacksBeforeEstimate(true)

	err = fe.Compute()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errAlignFailed))
}
