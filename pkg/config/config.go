// Package config provides configuration loading and management for volrecon.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Pipeline parameters
	Pipeline struct {
		// VolumeName is the name given to the reconstructed volume
		VolumeName string `yaml:"volumeName"`

		// TargetStack is the index of the stack defining the space and
		// coordinate system of the reconstruction
		TargetStack int `yaml:"targetStack"`

		// UseInPlaneAlignment enables in-plane alignment of the slices
		// within each stack before the first volume estimate
		UseInPlaneAlignment bool `yaml:"useInPlaneAlignment"`

		// RegisterStacks enables rigid registration of each stack to the
		// target volume before the first estimate
		RegisterStacks bool `yaml:"registerStacks"`

		// Workers caps the number of concurrent per-stack registrations
		Workers int `yaml:"workers"`
	} `yaml:"pipeline"`

	// Registration engine parameters
	Registration struct {
		// ShrinkFactors are the multi-resolution pyramid factors, coarse
		// to fine
		ShrinkFactors []int `yaml:"shrinkFactors"`

		// SmoothingSigmas are the per-level Gaussian sigmas in mm
		SmoothingSigmas []float64 `yaml:"smoothingSigmas"`

		// HistogramBins is the mutual-information histogram bin count
		HistogramBins int `yaml:"histogramBins"`

		// InitialStep is the optimizer's starting step length
		InitialStep float64 `yaml:"initialStep"`

		// MinStep is the optimizer's convergence step length
		MinStep float64 `yaml:"minStep"`

		// MaxIterations caps optimizer iterations per level
		MaxIterations int `yaml:"maxIterations"`
	} `yaml:"registration"`

	// FirstEstimate strategy parameters
	FirstEstimate struct {
		// Approach is the first-estimate strategy, 'Average' or 'SDA'
		Approach string `yaml:"approach"`

		// SDASigma is the SDA smoothing sigma in mm
		SDASigma float64 `yaml:"sdaSigma"`

		// SDAKernel is 'Shepard-YVV' or 'Shepard-Deriche'
		SDAKernel string `yaml:"sdaKernel"`
	} `yaml:"firstEstimate"`

	// Reconstruction refinement parameters
	Reconstruction struct {
		// Approach is the refinement strategy, 'SDA' or 'SRR'
		Approach string `yaml:"approach"`

		// SDASigma is the SDA smoothing sigma in mm
		SDASigma float64 `yaml:"sdaSigma"`

		// SDAKernel is 'Shepard-YVV' or 'Shepard-Deriche'
		SDAKernel string `yaml:"sdaKernel"`

		// SRRAlphaCut is the Gaussian blur cut-off distance in sigmas
		SRRAlphaCut float64 `yaml:"srrAlphaCut"`

		// SRRAlpha is the regularization weight
		SRRAlpha float64 `yaml:"srrAlpha"`

		// SRRIterMax caps the solver iterations
		SRRIterMax int `yaml:"srrIterMax"`

		// SRRApproach is the Tikhonov order, 'TK0' or 'TK1'
		SRRApproach string `yaml:"srrApproach"`

		// SRRDTDComputation is 'Laplace' or 'FiniteDifference'
		SRRDTDComputation string `yaml:"srrDtdComputation"`
	} `yaml:"reconstruction"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Pipeline.VolumeName = "reconstruction"
	cfg.Pipeline.TargetStack = 0
	cfg.Pipeline.UseInPlaneAlignment = false
	cfg.Pipeline.RegisterStacks = false
	cfg.Pipeline.Workers = runtime.NumCPU()

	cfg.Registration.ShrinkFactors = []int{4, 2, 1}
	cfg.Registration.SmoothingSigmas = []float64{2, 1, 0}
	cfg.Registration.HistogramBins = 100
	cfg.Registration.InitialStep = 0.5
	cfg.Registration.MinStep = 0.05
	cfg.Registration.MaxIterations = 2000

	cfg.FirstEstimate.Approach = "SDA"
	cfg.FirstEstimate.SDASigma = 0.6
	cfg.FirstEstimate.SDAKernel = "Shepard-YVV"

	cfg.Reconstruction.Approach = "SRR"
	cfg.Reconstruction.SDASigma = 1.0
	cfg.Reconstruction.SDAKernel = "Shepard-YVV"
	cfg.Reconstruction.SRRAlphaCut = 3
	cfg.Reconstruction.SRRAlpha = 0.1
	cfg.Reconstruction.SRRIterMax = 20
	cfg.Reconstruction.SRRApproach = "TK0"
	cfg.Reconstruction.SRRDTDComputation = "Laplace"

	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
