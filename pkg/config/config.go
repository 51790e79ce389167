// Package config provides configuration loading and management for volreg3d.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"volreg3d/pkg/registration"
	"volreg3d/pkg/volume"
	"volreg3d/pkg/window"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Registration parameters
	Registration struct {
		// WindowDimStart is the block size (x, y, z) of the block pass
		WindowDimStart [3]int `yaml:"windowDimStart,flow"`

		// WindowDimEnd is the smallest block size of a coarse-to-fine refinement
		WindowDimEnd [3]int `yaml:"windowDimEnd,flow"`

		// WindowType names the apodization window, e.g. "hann" or "tukey"
		WindowType window.Type `yaml:"windowType"`

		// PValueLevel is the largest peak p-value accepted as reliable
		PValueLevel float64 `yaml:"pValueLevel"`

		// Fallback is "keep-measured" or "fallback-to-seed"
		Fallback string `yaml:"fallback"`

		// NumCores specifies how many CPU cores to use for the block pass
		NumCores int `yaml:"numCores"`
	} `yaml:"registration"`

	// Output parameters
	Output struct {
		// FieldFile is where the displacement field is written as YAML
		FieldFile string `yaml:"fieldFile"`

		// RenderDir receives displacement magnitude slices; empty disables rendering
		RenderDir string `yaml:"renderDir"`

		// Smooth renders a kriged field instead of flat blocks
		Smooth bool `yaml:"smooth"`

		// RenderStep is the voxel spacing of the kriged render grid
		RenderStep int `yaml:"renderStep"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Registration.WindowDimStart = [3]int{32, 32, 32}
	cfg.Registration.WindowDimEnd = [3]int{16, 16, 16}
	cfg.Registration.WindowType = window.Hann
	cfg.Registration.PValueLevel = 0.01
	cfg.Registration.Fallback = registration.KeepMeasured.String()
	cfg.Registration.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Output.FieldFile = "displacement.yaml"
	cfg.Output.RenderDir = ""
	cfg.Output.Smooth = false
	cfg.Output.RenderStep = 4
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

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

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

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

// RegistrationData builds the registration inputs for two volumes from the
// configured block sizes, window and confidence level.
func (c *Config) RegistrationData(reference, moving volume.Volume) *registration.Data {
	r := c.Registration
	return &registration.Data{
		Volume1:        reference,
		Volume2:        moving,
		WindowDimStart: volume.NewDimensions(r.WindowDimStart[0], r.WindowDimStart[1], r.WindowDimStart[2]),
		WindowDimEnd:   volume.NewDimensions(r.WindowDimEnd[0], r.WindowDimEnd[1], r.WindowDimEnd[2]),
		WindowType:     r.WindowType,
		PValueLevel:    r.PValueLevel,
	}
}

// ToRegistrationOptions converts the engine settings into registration
// options. An unknown fallback policy is an error.
func (c *Config) ToRegistrationOptions() ([]registration.Option, error) {
	policy, err := registration.ParseFallbackPolicy(c.Registration.Fallback)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return []registration.Option{
		registration.WithMaxWorkers(c.Registration.NumCores),
		registration.WithFallback(policy),
	}, nil
}
