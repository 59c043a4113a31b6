package main

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"volrecon/pkg/config"
	"volrecon/pkg/reconstruction"
	"volrecon/pkg/registration"
	"volrecon/pkg/sda"
	"volrecon/pkg/srr"
	"volrecon/pkg/visualization"
	"volrecon/pkg/volio"
)

func main() {
	inputDir := flag.String("input", "", "Directory containing stack headers (*.vol.yaml)")
	outputDir := flag.String("output", "reconstructed", "Directory to write the reconstructed volume")
	configPath := flag.String("config", "volrecon.yaml", "Path to the configuration file")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration file and exit")
	refine := flag.Bool("refine", true, "Run the refinement pass after the first estimate")
	exportSlices := flag.Bool("export-slices", false, "Export volume cross-sections along all axes")
	slicesDir := flag.String("slices-dir", "slices", "Directory to save exported cross-sections")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatal().Err(err).Msg("writing default configuration")
		}
		log.Info().Str("path", *configPath).Msg("default configuration written")
		return
	}

	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	if cfg.Output.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	stacks, err := volio.LoadStacks(*inputDir)
	if err != nil {
		log.Fatal().Err(err).Msg("loading stacks")
	}
	log.Info().Int("stacks", len(stacks)).Str("dir", *inputDir).Msg("stacks loaded")

	engine, err := registration.NewEngine(registration.Params{
		ShrinkFactors:   cfg.Registration.ShrinkFactors,
		SmoothingSigmas: cfg.Registration.SmoothingSigmas,
		HistogramBins:   cfg.Registration.HistogramBins,
		InitialStep:     cfg.Registration.InitialStep,
		MinStep:         cfg.Registration.MinStep,
		MaxIterations:   cfg.Registration.MaxIterations,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("building registration engine")
	}

	start := time.Now()

	fe, err := reconstruction.NewFirstEstimate(stacks, cfg.Pipeline.VolumeName, cfg.Pipeline.TargetStack, engine, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("setting up first estimate")
	}
	fe.SetWorkers(cfg.Pipeline.Workers)
	fe.UseInPlaneAlignment(cfg.Pipeline.UseInPlaneAlignment)
	fe.RegisterStacksBeforeEstimate(cfg.Pipeline.RegisterStacks)
	if err := fe.SetReconstructionApproach(reconstruction.Approach(cfg.FirstEstimate.Approach)); err != nil {
		log.Fatal().Err(err).Msg("configuring first estimate")
	}
	if err := fe.SetSDASigma(cfg.FirstEstimate.SDASigma); err != nil {
		log.Fatal().Err(err).Msg("configuring first estimate")
	}
	if err := fe.SetSDAKernel(sda.Kernel(cfg.FirstEstimate.SDAKernel)); err != nil {
		log.Fatal().Err(err).Msg("configuring first estimate")
	}

	log.Info().Str("approach", string(fe.ReconstructionApproach())).Msg("computing first estimate")
	if err := fe.Compute(); err != nil {
		log.Fatal().Err(err).Msg("first estimate failed")
	}

	volume := fe.Volume()

	if *refine {
		vr, err := reconstruction.NewVolumeReconstruction(stacks, fe.Transforms(), volume)
		if err != nil {
			log.Fatal().Err(err).Msg("setting up reconstruction")
		}
		if err := vr.SetReconstructionApproach(reconstruction.Approach(cfg.Reconstruction.Approach)); err != nil {
			log.Fatal().Err(err).Msg("configuring reconstruction")
		}
		if err := vr.SetSDASigma(cfg.Reconstruction.SDASigma); err != nil {
			log.Fatal().Err(err).Msg("configuring reconstruction")
		}
		if err := vr.SetSDAKernel(sda.Kernel(cfg.Reconstruction.SDAKernel)); err != nil {
			log.Fatal().Err(err).Msg("configuring reconstruction")
		}
		if err := vr.SetSRRAlphaCut(cfg.Reconstruction.SRRAlphaCut); err != nil {
			log.Fatal().Err(err).Msg("configuring reconstruction")
		}
		if err := vr.SetSRRAlpha(cfg.Reconstruction.SRRAlpha); err != nil {
			log.Fatal().Err(err).Msg("configuring reconstruction")
		}
		if err := vr.SetSRRIterMax(cfg.Reconstruction.SRRIterMax); err != nil {
			log.Fatal().Err(err).Msg("configuring reconstruction")
		}
		if err := vr.SetSRRApproach(srr.Regularization(cfg.Reconstruction.SRRApproach)); err != nil {
			log.Fatal().Err(err).Msg("configuring reconstruction")
		}
		if err := vr.SetSRRDTDComputationType(srr.DTDComputation(cfg.Reconstruction.SRRDTDComputation)); err != nil {
			log.Fatal().Err(err).Msg("configuring reconstruction")
		}

		log.Info().Str("approach", string(vr.ReconstructionApproach())).Msg("refining volume")
		if err := vr.Run(); err != nil {
			log.Fatal().Err(err).Msg("reconstruction failed")
		}
		volume = vr.Volume()
	}

	if err := volio.SaveVolume(volume, *outputDir); err != nil {
		log.Fatal().Err(err).Msg("saving volume")
	}

	if *exportSlices {
		viewer := visualization.NewViewer(volume)
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(*slicesDir, axis)
			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				log.Warn().Err(err).Str("axis", axis).Msg("exporting cross-sections")
			}
		}
		log.Info().Str("dir", *slicesDir).Msg("cross-sections exported")
	}

	g := volume.Grid()
	log.Info().
		Ints("size", g.Size[:]).
		Floats64("spacing", g.Spacing[:]).
		Dur("elapsed", time.Since(start)).
		Str("dir", *outputDir).
		Msg("reconstruction complete")
}
