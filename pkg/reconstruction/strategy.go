package reconstruction

import (
	"fmt"
	"math"

	"volrecon/pkg/sda"
	"volrecon/pkg/srr"
)

// Approach names a reconstruction strategy. The selector is a closed
// three-way variant; each orchestrator accepts the subset that makes sense
// for its stage.
type Approach string

const (
	// ApproachAverage is the counted-average union aggregation
	ApproachAverage Approach = "Average"

	// ApproachSDA is the scattered data approximation
	ApproachSDA Approach = "SDA"

	// ApproachSRR is the Tikhonov super-resolution reconstruction
	ApproachSRR Approach = "SRR"
)

// SDAConfig is the tuned state of the SDA strategy. Switching to another
// strategy never resets it.
type SDAConfig struct {
	// Sigma is the recursive Gaussian smoothing sigma in mm
	Sigma float64

	// Kernel is the recursive Gaussian variant
	Kernel sda.Kernel
}

// SRRConfig is the tuned state of the regularized-inverse strategy.
type SRRConfig struct {
	// AlphaCut is the Gaussian blur cut-off distance in sigmas
	AlphaCut float64

	// Alpha is the regularization weight
	Alpha float64

	// IterMax caps the solver iterations
	IterMax int

	// Regularization is the Tikhonov order, TK0 or TK1
	Regularization srr.Regularization

	// DTDComputation selects the TK1 differential operator variant
	DTDComputation srr.DTDComputation
}

func validateSigma(param string, sigma float64) error {
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return &ConfigurationError{
			Param:   param,
			Value:   fmt.Sprintf("%g", sigma),
			Allowed: "finite values > 0",
		}
	}
	return nil
}

func validateSDAKernel(k sda.Kernel) error {
	switch k {
	case sda.ShepardYVV, sda.ShepardDeriche:
		return nil
	}
	return &ConfigurationError{
		Param:   "SDA kernel",
		Value:   string(k),
		Allowed: "'Shepard-YVV' or 'Shepard-Deriche'",
	}
}

func validateSRRRegularization(r srr.Regularization) error {
	switch r {
	case srr.TK0, srr.TK1:
		return nil
	}
	return &ConfigurationError{
		Param:   "SRR approach",
		Value:   string(r),
		Allowed: "'TK0' or 'TK1'",
	}
}

func validateSRRDTD(d srr.DTDComputation) error {
	switch d {
	case srr.Laplace, srr.FiniteDifference:
		return nil
	}
	return &ConfigurationError{
		Param:   "D'D computation type",
		Value:   string(d),
		Allowed: "'Laplace' or 'FiniteDifference'",
	}
}
