// Package config provides configuration loading and management for watershed3d.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"watershed3d/pkg/filter"
	"watershed3d/pkg/grid"
	"watershed3d/pkg/watershed"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// Connectivity is the neighbor topology: 6, 18 or 26
		Connectivity int `yaml:"connectivity"`

		// Workers specifies how many goroutines the parallel passes may use
		Workers int `yaml:"workers"`
	} `yaml:"processing"`

	// Pre-filter parameters
	Filter struct {
		// Steps are applied to the scalar field in order before flooding
		Steps []filter.Step `yaml:"steps,omitempty"`
	} `yaml:"filter"`

	// Watershed cleanup parameters
	Cleanup struct {
		// Mode is remove, fill or none
		Mode string `yaml:"mode"`

		// MaxPasses bounds the number of remove sweeps
		MaxPasses int `yaml:"maxPasses"`
	} `yaml:"cleanup"`

	// Output parameters
	Output struct {
		// Binary writes the VTK output with binary data instead of ASCII
		Binary bool `yaml:"binary"`

		// Boundary adds a boundary mask array to the VTK output
		Boundary bool `yaml:"boundary"`

		// ScalarName selects the input array and names it in the output.
		// Empty means the first array of the input file.
		ScalarName string `yaml:"scalarName"`

		// ShuffleSeed permutes the exported region codes so neighboring
		// basins get visibly different colors. 0 keeps basin ids as they are.
		ShuffleSeed int64 `yaml:"shuffleSeed"`

		// SaveIntermediaryResults determines whether to save intermediary processing results
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary results are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Visualization parameters
	Visualization struct {
		// SlicesDir receives x, y and z slice images of the result. Empty disables them.
		SlicesDir string `yaml:"slicesDir"`

		// PlotPath receives a basin size chart. Empty disables it.
		PlotPath string `yaml:"plotPath"`
	} `yaml:"visualization"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.Connectivity = int(grid.Face6)
	cfg.Processing.Workers = runtime.NumCPU() // Use all available cores by default

	// No smoothing unless asked for
	cfg.Filter.Steps = nil

	// Set default cleanup parameters
	cfg.Cleanup.Mode = string(watershed.CleanupRemove)
	cfg.Cleanup.MaxPasses = watershed.DefaultMaxCleanupPasses

	// Set default output parameters
	cfg.Output.Binary = false
	cfg.Output.Boundary = false
	cfg.Output.ScalarName = ""
	cfg.Output.ShuffleSeed = 0
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = false

	return cfg
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var err error
	if !grid.Connectivity(c.Processing.Connectivity).Valid() {
		err = multierr.Append(err, &grid.ConfigError{
			Field: "processing.connectivity",
			Msg:   fmt.Sprintf("got %d, want 6, 18 or 26", c.Processing.Connectivity),
		})
	}
	if c.Processing.Workers < 1 {
		err = multierr.Append(err, &grid.ConfigError{
			Field: "processing.workers",
			Msg:   fmt.Sprintf("got %d, want at least 1", c.Processing.Workers),
		})
	}
	for i, step := range c.Filter.Steps {
		if serr := step.Validate(); serr != nil {
			err = multierr.Append(err, &grid.ConfigError{
				Field: fmt.Sprintf("filter.steps[%d]", i),
				Msg:   serr.Error(),
			})
		}
	}
	if _, merr := watershed.ParseCleanupMode(c.Cleanup.Mode); merr != nil {
		err = multierr.Append(err, &grid.ConfigError{Field: "cleanup.mode", Msg: merr.Error()})
	}
	if c.Cleanup.MaxPasses < 0 {
		err = multierr.Append(err, &grid.ConfigError{
			Field: "cleanup.maxPasses",
			Msg:   fmt.Sprintf("got %d, want 0 or more", c.Cleanup.MaxPasses),
		})
	}
	if c.Output.SaveIntermediaryResults && c.Output.IntermediaryDir == "" {
		err = multierr.Append(err, &grid.ConfigError{
			Field: "output.intermediaryDir",
			Msg:   "must be set when saveIntermediaryResults is on",
		})
	}
	return err
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
