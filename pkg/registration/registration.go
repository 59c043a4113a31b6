// Package registration computes rigid-body alignments between 3-D images.
//
// The engine mirrors a classic multi-resolution intensity-based setup:
// geometric-center initialization, a shrink/smooth pyramid, a histogram
// mutual-information similarity metric and a regular-step gradient descent
// optimizer with parameter scales derived from physical point shifts.
//
// Non-convergence is not an error. When the optimizer exhausts its iteration
// budget the last transform estimate is returned as-is; the Report carries
// the convergence diagnostics for callers that want them.
package registration

import (
	"fmt"

	"volrecon/internal/models"
)

// Params tunes the registration engine.
type Params struct {
	// ShrinkFactors are the pyramid downsampling factors, coarse to fine
	ShrinkFactors []int

	// SmoothingSigmas are the per-level Gaussian sigmas in physical units
	// (mm), matched index-wise with ShrinkFactors
	SmoothingSigmas []float64

	// HistogramBins is the bin count of the mutual-information histogram
	HistogramBins int

	// InitialStep is the optimizer's starting step length
	InitialStep float64

	// MinStep ends optimization once the step length shrinks below it
	MinStep float64

	// MaxIterations caps optimizer iterations per pyramid level
	MaxIterations int
}

// DefaultParams returns the engine defaults: shrink factors [4,2,1] with
// smoothing sigmas [2,1,0] mm, 100 histogram bins, and a regular-step
// gradient descent running from step 0.5 down to 0.05 within 2000 iterations.
func DefaultParams() Params {
	return Params{
		ShrinkFactors:   []int{4, 2, 1},
		SmoothingSigmas: []float64{2, 1, 0},
		HistogramBins:   100,
		InitialStep:     0.5,
		MinStep:         0.05,
		MaxIterations:   2000,
	}
}

// Report describes how an alignment run ended. Registration that stops on
// the iteration cap is degraded, not failed; the transform is still usable.
type Report struct {
	// Converged is true when every pyramid level stopped because the step
	// length fell below the minimum step rather than on the iteration cap
	Converged bool

	// Iterations is the total optimizer iteration count across levels
	Iterations int

	// FinalMetric is the mutual information at the returned transform
	FinalMetric float64
}

// Registrar aligns a fixed image with a moving image. The returned transform
// maps physical points of the moving image's space into the fixed image's
// space, which is the convention the resampler wants when warping the fixed
// image onto the moving image's grid.
type Registrar interface {
	Align(fixed, moving *models.Image) (models.RigidTransform, Report, error)
}

// Engine is the default Registrar implementation.
type Engine struct {
	params Params
}

// NewEngine builds an engine with the given parameters.
func NewEngine(p Params) (*Engine, error) {
	if len(p.ShrinkFactors) == 0 || len(p.ShrinkFactors) != len(p.SmoothingSigmas) {
		return nil, fmt.Errorf("shrink factors and smoothing sigmas must be non-empty and matched, got %d and %d",
			len(p.ShrinkFactors), len(p.SmoothingSigmas))
	}
	if p.HistogramBins < 2 {
		return nil, fmt.Errorf("histogram bins must be at least 2, got %d", p.HistogramBins)
	}
	return &Engine{params: p}, nil
}
