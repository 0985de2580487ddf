// Package config provides configuration loading and management for the
// volmorph command-line tool. It handles loading configuration from
// YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the tool configuration loaded from YAML.
type Config struct {
	// Distance transform parameters
	Distance struct {
		// Mask is the chamfer mask name (chessboard, city-block,
		// borgefors, quasi-euclidean, chess-knight, svensson)
		Mask string `yaml:"mask"`

		// FloatWeights selects floating-point instead of short-integer
		// chamfer weights
		FloatWeights bool `yaml:"floatWeights"`

		// Normalize divides distances by the unit-step weight
		Normalize bool `yaml:"normalize"`
	} `yaml:"distance"`

	// Watershed parameters
	Watershed struct {
		// Connectivity is the neighbor relation: 4 or 8 for 2D images
		Connectivity int `yaml:"connectivity"`

		// Dynamic is the minima-merging depth h; larger values merge
		// shallower minima and produce fewer basins
		Dynamic float64 `yaml:"dynamic"`

		// HMin and HMax bound the intensities that participate in
		// flooding; equal values mean the whole range
		HMin float64 `yaml:"hMin"`
		HMax float64 `yaml:"hMax"`
	} `yaml:"watershed"`

	// Labeling parameters
	Labeling struct {
		// MinSize is the component size threshold for the size opening
		MinSize int `yaml:"minSize"`

		// DilationRadius is the growth radius for label dilation
		DilationRadius float64 `yaml:"dilationRadius"`
	} `yaml:"labeling"`

	// Output parameters
	Output struct {
		// Verbose controls per-stage progress logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Distance.Mask = "borgefors"
	cfg.Distance.FloatWeights = false
	cfg.Distance.Normalize = true

	cfg.Watershed.Connectivity = 4
	cfg.Watershed.Dynamic = 0
	cfg.Watershed.HMin = 0
	cfg.Watershed.HMax = 0

	cfg.Labeling.MinSize = 1
	cfg.Labeling.DilationRadius = 0

	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
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

// CreateDefaultConfigFile creates a default configuration file at the
// specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
