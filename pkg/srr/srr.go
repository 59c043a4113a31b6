// Package srr solves the super-resolution reconstruction inverse problem
// with Tikhonov regularization: it minimizes the summed squared mismatch
// between the simulated acquisition of the volume estimate and every
// acquired stack, plus a zero- or first-order smoothness penalty, by plain
// gradient iterations.
//
// The acquisition model per stack is a Gaussian point-spread blur on the
// volume grid followed by resampling onto the stack grid at its current
// rigid position; the adjoint warps the residual back and blurs again.
package srr

import (
	"fmt"
	"math"

	"volrecon/internal/models"
	"volrecon/pkg/filter"
	"volrecon/pkg/resample"
)

// Regularization selects the Tikhonov order.
type Regularization string

const (
	// TK0 penalizes the solution's squared norm
	TK0 Regularization = "TK0"

	// TK1 penalizes the squared norm of the solution's gradient
	TK1 Regularization = "TK1"
)

// DTDComputation selects how the TK1 differential operator D'D is applied.
type DTDComputation string

const (
	// Laplace applies D'D directly as a 6-neighbor Laplacian stencil
	Laplace DTDComputation = "Laplace"

	// FiniteDifference composes forward differences with their adjoints
	// per axis; it differs from Laplace only in boundary treatment
	FiniteDifference DTDComputation = "FiniteDifference"
)

// fwhmToSigma converts a full-width-at-half-maximum to a Gaussian sigma.
const fwhmToSigma = 2.3548200450309493

// Solver holds the inverse-problem state. Stacks, the transform table and
// the volume are borrowed from the owning pipeline; Run overwrites the
// volume in place.
type Solver struct {
	stacks     []*models.Stack
	transforms []models.RigidTransform
	volume     *models.Volume

	alphaCut float64
	alpha    float64
	iterMax  int
	reg      Regularization
	dtd      DTDComputation
}

// New builds a solver with the documented defaults: cut-off 3, alpha 0.1,
// 20 iterations, TK0 with Laplace D'D.
func New(stacks []*models.Stack, transforms []models.RigidTransform, volume *models.Volume) *Solver {
	return &Solver{
		stacks:     stacks,
		transforms: transforms,
		volume:     volume,
		alphaCut:   3,
		alpha:      0.1,
		iterMax:    20,
		reg:        TK0,
		dtd:        Laplace,
	}
}

// SetAlphaCut sets the Gaussian blur cut-off distance in sigmas.
func (s *Solver) SetAlphaCut(alphaCut float64) { s.alphaCut = alphaCut }

// SetAlpha sets the regularization weight.
func (s *Solver) SetAlpha(alpha float64) { s.alpha = alpha }

// SetIterMax sets the gradient iteration budget.
func (s *Solver) SetIterMax(iterMax int) { s.iterMax = iterMax }

// SetRegularization sets the Tikhonov order.
func (s *Solver) SetRegularization(reg Regularization) { s.reg = reg }

// SetDTDComputation sets the TK1 differential operator variant. It has no
// effect under TK0.
func (s *Solver) SetDTDComputation(dtd DTDComputation) { s.dtd = dtd }

// SetStacks replaces the stack list the next Run reads from.
func (s *Solver) SetStacks(stacks []*models.Stack) { s.stacks = stacks }

// Run iterates the regularized least-squares descent and commits the result
// to the volume in one step. The volume's mask is left as-is: slice
// positions do not change here, so coverage does not either.
func (s *Solver) Run() error {
	grid := s.volume.Grid()
	n := grid.NumVoxels()

	x := make([]float64, n)
	copy(x, s.volume.Intensity().Data)

	// Conservative step: blur and resampling have operator norm at most
	// one, the discrete Laplacian at most twelve.
	tau := 1 / (float64(len(s.stacks)) + s.alpha*12 + 1)

	grad := make([]float64, n)
	for it := 0; it < s.iterMax; it++ {
		for i := range grad {
			grad[i] = 0
		}

		for k := range s.stacks {
			if err := s.accumulateDataGradient(x, k, grad); err != nil {
				return err
			}
		}

		s.accumulateRegularization(x, grid, grad)

		for i := range x {
			x[i] -= tau * grad[i]
		}
	}

	mask := make([]float64, n)
	copy(mask, s.volume.Mask().Data)
	return s.volume.SetData(x, mask)
}

// accumulateDataGradient adds A'(Ax - y) for stack k onto grad.
func (s *Solver) accumulateDataGradient(x []float64, k int, grad []float64) error {
	stack := s.stacks[k]
	grid := s.volume.Grid()

	// Slice-selection blur: sigma from the stack's through-plane
	// resolution, treating slice thickness as the FWHM.
	sigma := stack.Grid().Spacing[2] / fwhmToSigma

	blurred := filter.SmoothTruncated(&models.Image{Grid: grid, Data: x}, sigma, s.alphaCut)

	t := s.transforms[k].ToAffine()
	tInv, err := t.Inverse()
	if err != nil {
		return fmt.Errorf("transform of stack %q: %w", stack.Name, err)
	}

	// Simulate the acquisition of the current estimate on the stack grid.
	sim, err := resample.Resample(blurred, stack.Grid(), tInv, resample.Linear, 0)
	if err != nil {
		return fmt.Errorf("simulating stack %q: %w", stack.Name, err)
	}

	// Residual against the acquired data, restricted to acquired voxels.
	for i, m := range stack.Mask.Data {
		if m > 0 {
			sim.Data[i] -= stack.Image.Data[i]
		} else {
			sim.Data[i] = 0
		}
	}

	// Adjoint: warp the residual back onto the volume grid and blur.
	back, err := resample.Resample(sim, grid, t, resample.Linear, 0)
	if err != nil {
		return fmt.Errorf("back-projecting residual of stack %q: %w", stack.Name, err)
	}
	backBlurred := filter.SmoothTruncated(back, sigma, s.alphaCut)

	for i := range grad {
		grad[i] += backBlurred.Data[i]
	}
	return nil
}

// accumulateRegularization adds alpha times the penalty gradient onto grad.
func (s *Solver) accumulateRegularization(x []float64, grid models.Grid, grad []float64) {
	if s.alpha == 0 {
		return
	}
	switch s.reg {
	case TK1:
		var dtd []float64
		if s.dtd == FiniteDifference {
			dtd = dtdFiniteDifference(x, grid)
		} else {
			dtd = dtdLaplace(x, grid)
		}
		for i := range grad {
			grad[i] += s.alpha * dtd[i]
		}
	default: // TK0
		for i := range grad {
			grad[i] += s.alpha * x[i]
		}
	}
}

// dtdLaplace applies D'D as the negated 6-neighbor Laplacian with Neumann
// boundaries (missing neighbors mirror the center voxel).
func dtdLaplace(x []float64, g models.Grid) []float64 {
	nx, ny, nz := g.Size[0], g.Size[1], g.Size[2]
	out := make([]float64, len(x))

	idx := func(xx, yy, zz int) int { return (zz*ny+yy)*nx + xx }
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for xx := 0; xx < nx; xx++ {
				c := x[idx(xx, y, z)]
				acc := 0.0
				if xx > 0 {
					acc += c - x[idx(xx-1, y, z)]
				}
				if xx < nx-1 {
					acc += c - x[idx(xx+1, y, z)]
				}
				if y > 0 {
					acc += c - x[idx(xx, y-1, z)]
				}
				if y < ny-1 {
					acc += c - x[idx(xx, y+1, z)]
				}
				if z > 0 {
					acc += c - x[idx(xx, y, z-1)]
				}
				if z < nz-1 {
					acc += c - x[idx(xx, y, z+1)]
				}
				out[idx(xx, y, z)] = acc
			}
		}
	}
	return out
}

// dtdFiniteDifference applies D'D as per-axis forward differences followed
// by their adjoints. Interior voxels match the Laplacian stencil; the two
// variants differ only in how the domain boundary is handled.
func dtdFiniteDifference(x []float64, g models.Grid) []float64 {
	nx, ny, nz := g.Size[0], g.Size[1], g.Size[2]
	out := make([]float64, len(x))
	diff := make([]float64, len(x))

	idx := func(xx, yy, zz int) int { return (zz*ny+yy)*nx + xx }

	for axis := 0; axis < 3; axis++ {
		var step [3]int
		step[axis] = 1
		ext := [3]int{nx, ny, nz}

		// Forward difference; the last sample along the axis has none.
		for z := 0; z < nz; z++ {
			for y := 0; y < ny; y++ {
				for xx := 0; xx < nx; xx++ {
					pos := [3]int{xx, y, z}
					i := idx(xx, y, z)
					if pos[axis]+1 < ext[axis] {
						diff[i] = x[idx(xx+step[0], y+step[1], z+step[2])] - x[i]
					} else {
						diff[i] = 0
					}
				}
			}
		}

		// Adjoint of the forward difference (negative backward difference).
		for z := 0; z < nz; z++ {
			for y := 0; y < ny; y++ {
				for xx := 0; xx < nx; xx++ {
					pos := [3]int{xx, y, z}
					i := idx(xx, y, z)
					v := 0.0
					if pos[axis]+1 < ext[axis] {
						v -= diff[i]
					}
					if pos[axis] > 0 {
						v += diff[idx(xx-step[0], y-step[1], z-step[2])]
					}
					out[i] += v
				}
			}
		}
	}
	return out
}

// Residual returns the current summed squared data mismatch of the volume
// estimate, useful as a convergence diagnostic.
func (s *Solver) Residual() (float64, error) {
	total := 0.0
	for k, stack := range s.stacks {
		sigma := stack.Grid().Spacing[2] / fwhmToSigma
		blurred := filter.SmoothTruncated(s.volume.Intensity(), sigma, s.alphaCut)

		t := s.transforms[k].ToAffine()
		tInv, err := t.Inverse()
		if err != nil {
			return 0, err
		}
		sim, err := resample.Resample(blurred, stack.Grid(), tInv, resample.Linear, 0)
		if err != nil {
			return 0, err
		}
		for i, m := range stack.Mask.Data {
			if m > 0 {
				d := sim.Data[i] - stack.Image.Data[i]
				total += d * d
			}
		}
	}
	if math.IsNaN(total) {
		return 0, fmt.Errorf("residual is NaN")
	}
	return total, nil
}
