// Package config provides configuration loading and management for the
// cohort evaluation tool. It handles loading configuration from YAML
// files and provides default values.
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
	// Evaluation parameters
	Evaluation struct {
		// NumCores specifies how many cases to evaluate concurrently
		NumCores int `yaml:"numCores"`

		// FailFast aborts the whole run on the first case error instead
		// of skipping the case and reporting it at the end
		FailFast bool `yaml:"failFast"`
	} `yaml:"evaluation"`

	// Cohort layout parameters
	Cohort struct {
		// GroundTruthDir holds one DICOM series directory per patient
		GroundTruthDir string `yaml:"groundTruthDir"`

		// PredictionDir holds the matching prediction series
		PredictionDir string `yaml:"predictionDir"`

		// GroundTruthSuffix is stripped from a ground-truth entry name
		// to obtain the patient identifier
		GroundTruthSuffix string `yaml:"groundTruthSuffix"`

		// PredictionSuffix is appended to the patient identifier to find
		// the prediction entry
		PredictionSuffix string `yaml:"predictionSuffix"`
	} `yaml:"cohort"`

	// Output parameters
	Output struct {
		// CSVPath, when non-empty, receives the per-case metric table
		CSVPath string `yaml:"csvPath"`

		// SaveOverlays enables per-slice QC overlay export per case
		SaveOverlays bool `yaml:"saveOverlays"`

		// OverlayDir is the directory for QC overlays, one subdirectory
		// per patient
		OverlayDir string `yaml:"overlayDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default evaluation parameters
	cfg.Evaluation.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Evaluation.FailFast = false

	// Set default cohort layout
	cfg.Cohort.GroundTruthSuffix = "_gt"
	cfg.Cohort.PredictionSuffix = "_pred"

	// Set default output parameters
	cfg.Output.CSVPath = "case_metrics.csv"
	cfg.Output.SaveOverlays = false
	cfg.Output.OverlayDir = "qc_overlays"
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
