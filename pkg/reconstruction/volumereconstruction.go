package reconstruction

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"volrecon/internal/models"
	"volrecon/pkg/sda"
	"volrecon/pkg/srr"
)

// VolumeReconstruction refines an existing volume from stacks whose
// positions have already been established: each Run executes exactly one
// configured strategy (SDA or SRR) and overwrites the volume. It is
// stateless across calls except for the volume's content and the
// strategies' tuned configuration.
type VolumeReconstruction struct {
	stacks     []*models.Stack
	transforms []models.RigidTransform
	volume     *models.Volume

	approach Approach
	sdaCfg   SDAConfig
	srrCfg   SRRConfig
}

func defaultSRRConfig() SRRConfig {
	return SRRConfig{
		AlphaCut:       3,
		Alpha:          0.1,
		IterMax:        20,
		Regularization: srr.TK0,
		DTDComputation: srr.Laplace,
	}
}

// NewVolumeReconstruction sets up the orchestrator over already-positioned
// stacks. The transform table is typically the one produced by the
// first-estimate stage; a nil table means all-identity (stacks positioned
// by their native geometry alone).
func NewVolumeReconstruction(stacks []*models.Stack, transforms []models.RigidTransform, volume *models.Volume) (*VolumeReconstruction, error) {
	if len(stacks) == 0 {
		return nil, fmt.Errorf("no stacks given")
	}
	if transforms == nil {
		transforms = make([]models.RigidTransform, len(stacks))
	}
	if len(transforms) != len(stacks) {
		return nil, fmt.Errorf("transform table has %d entries, want %d", len(transforms), len(stacks))
	}

	return &VolumeReconstruction{
		stacks:     stacks,
		transforms: transforms,
		volume:     volume,
		approach:   ApproachSRR,
		sdaCfg:     SDAConfig{Sigma: 1.0, Kernel: sda.ShepardYVV},
		srrCfg:     defaultSRRConfig(),
	}, nil
}

// Volume returns the current estimate of the high-resolution volume.
func (v *VolumeReconstruction) Volume() *models.Volume {
	return v.volume
}

// SetReconstructionApproach selects the refinement strategy, SDA or SRR.
// Switching is a pure configuration change; the other strategy's tuned
// parameters are untouched.
func (v *VolumeReconstruction) SetReconstructionApproach(a Approach) error {
	switch a {
	case ApproachSDA, ApproachSRR:
		v.approach = a
		return nil
	}
	return &ConfigurationError{
		Param:   "reconstruction approach",
		Value:   string(a),
		Allowed: "'SDA' or 'SRR'",
	}
}

// ReconstructionApproach returns the selected strategy.
func (v *VolumeReconstruction) ReconstructionApproach() Approach {
	return v.approach
}

// SetSDASigma sets the SDA smoothing sigma in mm.
func (v *VolumeReconstruction) SetSDASigma(sigma float64) error {
	if err := validateSigma("SDA sigma", sigma); err != nil {
		return err
	}
	v.sdaCfg.Sigma = sigma
	return nil
}

// SDASigma returns the SDA smoothing sigma.
func (v *VolumeReconstruction) SDASigma() float64 {
	return v.sdaCfg.Sigma
}

// SetSDAKernel sets the SDA recursive Gaussian variant.
func (v *VolumeReconstruction) SetSDAKernel(k sda.Kernel) error {
	if err := validateSDAKernel(k); err != nil {
		return err
	}
	v.sdaCfg.Kernel = k
	return nil
}

// SDAKernel returns the SDA recursive Gaussian variant.
func (v *VolumeReconstruction) SDAKernel() sda.Kernel {
	return v.sdaCfg.Kernel
}

// SetSRRAlphaCut sets the Gaussian blur cut-off distance in sigmas.
func (v *VolumeReconstruction) SetSRRAlphaCut(alphaCut float64) error {
	if err := validateSigma("SRR alpha cut", alphaCut); err != nil {
		return err
	}
	v.srrCfg.AlphaCut = alphaCut
	return nil
}

// SRRAlphaCut returns the Gaussian blur cut-off distance.
func (v *VolumeReconstruction) SRRAlphaCut() float64 {
	return v.srrCfg.AlphaCut
}

// SetSRRAlpha sets the regularization weight.
func (v *VolumeReconstruction) SetSRRAlpha(alpha float64) error {
	if alpha < 0 {
		return &ConfigurationError{
			Param:   "SRR alpha",
			Value:   fmt.Sprintf("%g", alpha),
			Allowed: "values >= 0",
		}
	}
	v.srrCfg.Alpha = alpha
	return nil
}

// SRRAlpha returns the regularization weight.
func (v *VolumeReconstruction) SRRAlpha() float64 {
	return v.srrCfg.Alpha
}

// SetSRRIterMax sets the solver iteration budget.
func (v *VolumeReconstruction) SetSRRIterMax(iterMax int) error {
	if iterMax < 1 {
		return &ConfigurationError{
			Param:   "SRR iter max",
			Value:   fmt.Sprintf("%d", iterMax),
			Allowed: "values >= 1",
		}
	}
	v.srrCfg.IterMax = iterMax
	return nil
}

// SRRIterMax returns the solver iteration budget.
func (v *VolumeReconstruction) SRRIterMax() int {
	return v.srrCfg.IterMax
}

// SetSRRApproach sets the Tikhonov regularization order, TK0 or TK1.
func (v *VolumeReconstruction) SetSRRApproach(reg srr.Regularization) error {
	if err := validateSRRRegularization(reg); err != nil {
		return err
	}
	v.srrCfg.Regularization = reg
	return nil
}

// SRRApproach returns the Tikhonov regularization order.
func (v *VolumeReconstruction) SRRApproach() srr.Regularization {
	return v.srrCfg.Regularization
}

// SetSRRDTDComputationType sets how the TK1 differential operator D'D is
// computed, via a Laplace stencil or sequential finite differences.
func (v *VolumeReconstruction) SetSRRDTDComputationType(dtd srr.DTDComputation) error {
	if err := validateSRRDTD(dtd); err != nil {
		return err
	}
	v.srrCfg.DTDComputation = dtd
	return nil
}

// SRRDTDComputationType returns the TK1 differential operator variant.
func (v *VolumeReconstruction) SRRDTDComputationType() srr.DTDComputation {
	return v.srrCfg.DTDComputation
}

// Run executes the configured strategy once, overwriting the volume with
// the refined reconstruction.
func (v *VolumeReconstruction) Run() error {
	switch v.approach {
	case ApproachSDA:
		log.Info().Float64("sigma", v.sdaCfg.Sigma).Str("kernel", string(v.sdaCfg.Kernel)).
			Msg("running scattered data approximation")
		solver := sda.New(v.stacks, v.transforms, v.volume)
		solver.SetSigma(v.sdaCfg.Sigma)
		solver.SetKernel(v.sdaCfg.Kernel)
		return solver.Run()
	default:
		log.Info().Float64("alpha", v.srrCfg.Alpha).Int("iterMax", v.srrCfg.IterMax).
			Str("regularization", string(v.srrCfg.Regularization)).
			Msg("running super-resolution reconstruction (Tikhonov)")
		solver := srr.New(v.stacks, v.transforms, v.volume)
		solver.SetAlphaCut(v.srrCfg.AlphaCut)
		solver.SetAlpha(v.srrCfg.Alpha)
		solver.SetIterMax(v.srrCfg.IterMax)
		solver.SetRegularization(v.srrCfg.Regularization)
		solver.SetDTDComputation(v.srrCfg.DTDComputation)
		return solver.Run()
	}
}
