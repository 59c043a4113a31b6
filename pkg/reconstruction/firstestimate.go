package reconstruction

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"volrecon/internal/models"
	"volrecon/pkg/registration"
	"volrecon/pkg/sda"
)

// InPlaneAligner is the in-plane slice-to-slice registration collaborator:
// it aligns slices within each stack and returns resampled, planarly aligned
// stack versions. The originals are never touched by it.
type InPlaneAligner interface {
	Run() ([]*models.Stack, error)
}

// FirstEstimate computes the first estimate of the high-resolution volume
// from the acquired stacks. The steps, gated by two independent flags, are:
//
//  1. in-plane alignment of all stacks (optional),
//  2. isotropic resampling of the chosen target stack into the volume,
//  3. rigid registration of every stack to the volume (optional), with
//     the resulting transforms propagated onto the original slices,
//  4. one reconstruction strategy (Average or SDA) overwriting the volume.
type FirstEstimate struct {
	stacks []*models.Stack
	volume *models.Volume
	target int
	name   string

	registrar registration.Registrar
	inPlane   InPlaneAligner
	workers   int

	useInPlaneAlignment bool
	registerStacks      bool

	// rigid holds one transform per stack, identity until an alignment
	// round runs. Slice-level updates are never fed back into the stack
	// volumes, so the stack-level alignment has to be kept here.
	rigid   []models.RigidTransform
	reports []registration.Report

	approach Approach
	sdaCfg   SDAConfig
}

// NewFirstEstimate sets up the orchestrator. The target stack defines the
// space and coordinate system of the reconstruction; its index must be in
// range. The reference grid and the initial volume content are derived
// immediately from the target stack.
func NewFirstEstimate(stacks []*models.Stack, name string, target int, registrar registration.Registrar, inPlane InPlaneAligner) (*FirstEstimate, error) {
	if len(stacks) == 0 {
		return nil, fmt.Errorf("no stacks given")
	}
	if target < 0 || target >= len(stacks) {
		return nil, fmt.Errorf("target stack %d out of range [0,%d)", target, len(stacks))
	}

	volume, err := IsotropicVolume(stacks[target], name)
	if err != nil {
		return nil, err
	}

	return &FirstEstimate{
		stacks:    stacks,
		volume:    volume,
		target:    target,
		name:      name,
		registrar: registrar,
		inPlane:   inPlane,
		rigid:     make([]models.RigidTransform, len(stacks)),
		reports:   make([]registration.Report, len(stacks)),
		approach:  ApproachSDA,
		sdaCfg:    SDAConfig{Sigma: 0.6, Kernel: sda.ShepardYVV},
	}, nil
}

// UseInPlaneAlignment enables or disables in-plane alignment of the slices
// within each stack before the volume estimate. Default off.
func (f *FirstEstimate) UseInPlaneAlignment(flag bool) {
	f.useInPlaneAlignment = flag
}

// RegisterStacksBeforeEstimate enables or disables rigid registration of
// every stack to the target volume. When off, the stacks' originally given
// physical positions are used as-is. Default off.
func (f *FirstEstimate) RegisterStacksBeforeEstimate(flag bool) {
	f.registerStacks = flag
}

// SetWorkers caps the number of concurrent per-stack registrations.
// Zero or negative means no cap.
func (f *FirstEstimate) SetWorkers(n int) {
	f.workers = n
}

// Volume returns the current estimate of the high-resolution volume.
func (f *FirstEstimate) Volume() *models.Volume {
	return f.volume
}

// Transforms returns the per-stack rigid transform table. Entries default
// to identity until a registration round has run. The table is shared with
// downstream reconstruction.
func (f *FirstEstimate) Transforms() []models.RigidTransform {
	return f.rigid
}

// AlignmentReports returns the per-stack convergence diagnostics of the
// last registration round. Non-convergence is a degraded result, not an
// error; these reports are the only place it surfaces.
func (f *FirstEstimate) AlignmentReports() []registration.Report {
	return f.reports
}

// SetReconstructionApproach selects the strategy for the first estimate,
// Average or SDA. Other strategies' tuned parameters are unaffected.
func (f *FirstEstimate) SetReconstructionApproach(a Approach) error {
	switch a {
	case ApproachAverage, ApproachSDA:
		f.approach = a
		return nil
	}
	return &ConfigurationError{
		Param:   "reconstruction approach",
		Value:   string(a),
		Allowed: "'Average' or 'SDA'",
	}
}

// ReconstructionApproach returns the selected strategy.
func (f *FirstEstimate) ReconstructionApproach() Approach {
	return f.approach
}

// SetSDASigma sets the SDA smoothing sigma in mm.
func (f *FirstEstimate) SetSDASigma(sigma float64) error {
	if err := validateSigma("SDA sigma", sigma); err != nil {
		return err
	}
	f.sdaCfg.Sigma = sigma
	return nil
}

// SDASigma returns the SDA smoothing sigma.
func (f *FirstEstimate) SDASigma() float64 {
	return f.sdaCfg.Sigma
}

// SetSDAKernel sets the SDA recursive Gaussian variant.
func (f *FirstEstimate) SetSDAKernel(k sda.Kernel) error {
	if err := validateSDAKernel(k); err != nil {
		return err
	}
	f.sdaCfg.Kernel = k
	return nil
}

// SDAKernel returns the SDA recursive Gaussian variant.
func (f *FirstEstimate) SDAKernel() sda.Kernel {
	return f.sdaCfg.Kernel
}

// Compute runs the first-estimate pipeline and overwrites the volume.
// The stacks fed to the numeric steps are the in-plane-aligned versions
// when that flag is set; slice transform updates always go to the original
// slices.
func (f *FirstEstimate) Compute() error {
	working := f.stacks

	if f.useInPlaneAlignment {
		log.Info().Msg("in-plane alignment of slices within each stack is performed")
		if f.inPlane == nil {
			return &ConfigurationError{
				Param:   "in-plane aligner",
				Value:   "nil",
				Allowed: "a collaborator when in-plane alignment is enabled",
			}
		}
		aligned, err := f.inPlane.Run()
		if err != nil {
			return fmt.Errorf("in-plane alignment: %w", err)
		}
		if len(aligned) != len(f.stacks) {
			return fmt.Errorf("in-plane alignment returned %d stacks, want %d", len(aligned), len(f.stacks))
		}
		working = aligned

		// The reference grid follows the planarly aligned target stack.
		volume, err := IsotropicVolume(working[f.target], f.name)
		if err != nil {
			return err
		}
		f.volume = volume
	} else {
		log.Info().Msg("in-plane alignment of slices within each stack is NOT performed")
	}

	if f.registerStacks {
		log.Info().Msg("rigid registration between each stack and target is performed")
		if f.registrar == nil {
			return &ConfigurationError{
				Param:   "registrar",
				Value:   "nil",
				Allowed: "a collaborator when stack registration is enabled",
			}
		}
		if err := f.rigidlyRegisterStacks(working); err != nil {
			return err
		}
	} else {
		log.Info().Msg("rigid registration between each stack and target is NOT performed")
	}

	switch f.approach {
	case ApproachAverage:
		log.Info().Msg("running averaging of stacks")
		return runAveraging(working, f.rigid, f.volume)
	default:
		log.Info().Float64("sigma", f.sdaCfg.Sigma).Str("kernel", string(f.sdaCfg.Kernel)).
			Msg("running scattered data approximation")
		solver := sda.New(working, f.rigid, f.volume)
		solver.SetSigma(f.sdaCfg.Sigma)
		solver.SetKernel(f.sdaCfg.Kernel)
		return solver.Run()
	}
}

// rigidlyRegisterStacks aligns every working stack with the current volume.
// The per-stack registrations are independent, so they run concurrently:
// each goroutine reads the shared volume and writes only its own transform
// slot. All registrations complete before any slice transform is updated.
func (f *FirstEstimate) rigidlyRegisterStacks(working []*models.Stack) error {
	var g errgroup.Group
	if f.workers > 0 {
		g.SetLimit(f.workers)
	}

	for i := range working {
		i := i
		g.Go(func() error {
			t, report, err := f.registrar.Align(working[i].Image, f.volume.Intensity())
			if err != nil {
				return fmt.Errorf("registering stack %q: %w", working[i].Name, err)
			}
			f.rigid[i] = t
			f.reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, report := range f.reports {
		evt := log.Info()
		if !report.Converged {
			// Accepted policy: the last estimate is kept, no retry.
			evt = log.Warn()
		}
		evt.Str("stack", working[i].Name).
			Bool("converged", report.Converged).
			Int("iterations", report.Iterations).
			Float64("metric", report.FinalMetric).
			Msg("stack registered to volume")
	}

	// Slice transforms of the ORIGINAL stacks are updated regardless of
	// which stack versions fed the numerics.
	return propagateSliceTransforms(f.stacks, f.rigid)
}
