// Package config provides configuration loading and management for dtiqc.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
// The pipeline writes its outputs under fixed step directories below
// Paths.OutputDir; everything here is passed explicitly into the QC
// checker and report compiler at construction.
type Config struct {
	// Paths locates the pipeline output tree and the MNI template.
	Paths struct {
		// OutputDir is the root of the processed output tree. Required.
		OutputDir string `yaml:"outputDir"`

		// TemplatePath is the MNI reference volume used for
		// registration overlap scoring.
		TemplatePath string `yaml:"templatePath"`
	} `yaml:"paths"`

	// Session describes the acquisition layout.
	Session struct {
		// ScansPerSession is the expected number of DWI scans per
		// session. Within-session registration QC only applies when
		// this is greater than one.
		ScansPerSession int `yaml:"scansPerSession"`
	} `yaml:"session"`

	// Thresholds holds the Dice classification boundaries.
	Thresholds struct {
		// DicePass: metric at or above this passes.
		DicePass float64 `yaml:"dicePass"`

		// DiceWarn: metric at or above this (but below DicePass)
		// warns; anything lower fails.
		DiceWarn float64 `yaml:"diceWarn"`

		// MaskFraction is the fraction of the mean intensity used to
		// binarize volumes before overlap scoring.
		MaskFraction float64 `yaml:"maskFraction"`
	} `yaml:"thresholds"`

	// Report controls report rendering.
	Report struct {
		// Thumbnails enables slice thumbnail rendering in HTML
		// reports. This is resolved once at startup and threaded
		// through as a constructor parameter.
		Thumbnails bool `yaml:"thumbnails"`

		// ThumbnailWidth is the rendered thumbnail width in pixels.
		ThumbnailWidth int `yaml:"thumbnailWidth"`
	} `yaml:"report"`
}

// Step directory names under the output root, fixed by the upstream
// preprocessing pipeline.
const (
	B0CorrectionDirName   = "B0_correction"
	SkullStripDirName     = "Skull_stripping"
	EddyCorrectionDirName = "Eddy_correction"
	RegWithinDirName      = "Reg_within_and_merged"
	RegMNIDirName         = "Reg_MNI"
	DtifitDirName         = "Dtifit"
	QCDirName             = "QC"
)

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Session.ScansPerSession = 1

	cfg.Thresholds.DicePass = 0.8
	cfg.Thresholds.DiceWarn = 0.7
	cfg.Thresholds.MaskFraction = 0.1

	cfg.Report.Thumbnails = true
	cfg.Report.ThumbnailWidth = 300

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

// SaveConfig saves the configuration to a YAML file.
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

// Validate checks that the configuration is structurally usable. A bad
// output root is the one fatal startup condition; per-subject data
// problems degrade to MISSING rows later instead.
func (c *Config) Validate() error {
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("paths.outputDir is required")
	}
	if info, err := os.Stat(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("output root %s: %w", c.Paths.OutputDir, err)
	} else if !info.IsDir() {
		return fmt.Errorf("output root %s is not a directory", c.Paths.OutputDir)
	}
	if c.Thresholds.DiceWarn > c.Thresholds.DicePass {
		return fmt.Errorf("thresholds.diceWarn %v exceeds thresholds.dicePass %v",
			c.Thresholds.DiceWarn, c.Thresholds.DicePass)
	}
	return nil
}

// QCRoot returns the QC output tree root.
func (c *Config) QCRoot() string { return filepath.Join(c.Paths.OutputDir, QCDirName) }

// RegMNIRoot returns the MNI registration step root.
func (c *Config) RegMNIRoot() string { return filepath.Join(c.Paths.OutputDir, RegMNIDirName) }

// RegWithinRoot returns the within-session registration step root.
func (c *Config) RegWithinRoot() string { return filepath.Join(c.Paths.OutputDir, RegWithinDirName) }

// SkullStripRoot returns the skull stripping step root.
func (c *Config) SkullStripRoot() string { return filepath.Join(c.Paths.OutputDir, SkullStripDirName) }

// B0CorrectionRoot returns the B0 field correction step root.
func (c *Config) B0CorrectionRoot() string {
	return filepath.Join(c.Paths.OutputDir, B0CorrectionDirName)
}

// EddyRoot returns the eddy correction step root.
func (c *Config) EddyRoot() string { return filepath.Join(c.Paths.OutputDir, EddyCorrectionDirName) }

// DtifitRoot returns the tensor fitting step root.
func (c *Config) DtifitRoot() string { return filepath.Join(c.Paths.OutputDir, DtifitDirName) }
