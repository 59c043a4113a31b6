// Package sda implements a Shepard-like scattered data approximation for
// reconstructing a volume from arbitrarily positioned stacks: accumulated
// intensity contributions and their coverage weights are both smoothed with
// a recursive Gaussian, and the volume is their quotient. The kernel variant
// selects the recursive filter implementation.
package sda

import (
	"fmt"

	"volrecon/internal/models"
	"volrecon/pkg/filter"
	"volrecon/pkg/resample"
)

// Kernel names the recursive Gaussian used for the Shepard smoothing.
type Kernel string

const (
	// ShepardYVV smooths with the Young-van Vliet recursion
	ShepardYVV Kernel = "Shepard-YVV"

	// ShepardDeriche smooths with the Deriche recursion
	ShepardDeriche Kernel = "Shepard-Deriche"
)

// Approximation reconstructs a shared Volume from the stacks at their
// current rigid positions. The transform table is borrowed from the owning
// pipeline; entry i positions stack i.
type Approximation struct {
	stacks     []*models.Stack
	transforms []models.RigidTransform
	volume     *models.Volume

	sigma  float64
	kernel Kernel
}

// New builds an approximation over the pipeline's stacks, transform table
// and volume. Sigma and kernel are set by the owning pipeline before Run.
func New(stacks []*models.Stack, transforms []models.RigidTransform, volume *models.Volume) *Approximation {
	return &Approximation{
		stacks:     stacks,
		transforms: transforms,
		volume:     volume,
		sigma:      0.6,
		kernel:     ShepardYVV,
	}
}

// SetSigma sets the Gaussian smoothing sigma in mm.
func (a *Approximation) SetSigma(sigma float64) {
	a.sigma = sigma
}

// SetKernel sets the recursive Gaussian variant.
func (a *Approximation) SetKernel(k Kernel) {
	a.kernel = k
}

// SetStacks replaces the stack list the next Run reads from. The pipeline
// uses this to feed in-plane-aligned stack versions without touching the
// originals.
func (a *Approximation) SetStacks(stacks []*models.Stack) {
	a.stacks = stacks
}

// Run recomputes the volume in place. The new intensity and mask buffers are
// built off to the side and committed in one step, so an error leaves the
// volume unchanged.
func (a *Approximation) Run() error {
	grid := a.volume.Grid()
	n := grid.NumVoxels()

	numSum := make([]float64, n)
	weightSum := make([]float64, n)
	maskUnion := make([]float64, n)

	for i, stack := range a.stacks {
		t := a.transforms[i].ToAffine()

		warped, err := resample.Resample(stack.Image, grid, t, resample.Linear, 0)
		if err != nil {
			return fmt.Errorf("resampling stack %q: %w", stack.Name, err)
		}
		warpedMask, err := resample.Resample(stack.Mask, grid, t, resample.Nearest, 0)
		if err != nil {
			return fmt.Errorf("resampling mask of stack %q: %w", stack.Name, err)
		}

		for j := 0; j < n; j++ {
			if warpedMask.Data[j] > 0 {
				numSum[j] += warped.Data[j]
				weightSum[j]++
				maskUnion[j] = 1
			}
		}
	}

	k := filter.YoungVanVliet
	if a.kernel == ShepardDeriche {
		k = filter.Deriche
	}
	num := filter.Smooth(&models.Image{Grid: grid, Data: numSum}, a.sigma, k)
	den := filter.Smooth(&models.Image{Grid: grid, Data: weightSum}, a.sigma, k)

	const eps = 1e-8
	out := make([]float64, n)
	for j := 0; j < n; j++ {
		if den.Data[j] > eps {
			out[j] = num.Data[j] / den.Data[j]
		}
	}

	return a.volume.SetData(out, maskUnion)
}
