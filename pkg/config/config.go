// Package config provides configuration loading and management for brainmap.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"brainmap/internal/models"
)

// View is one fixed panel of the rendered figure
type View struct {
	// Axis is the slicing axis: "x" (sagittal), "y" (coronal) or "z" (axial)
	Axis string `yaml:"axis"`

	// PositionMM is the MNI coordinate of the cut along Axis
	PositionMM float64 `yaml:"positionMM"`

	// Title is drawn above the panel
	Title string `yaml:"title"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores bounds how many regions are rasterized concurrently
		NumCores int `yaml:"numCores"`

		// SigmaMM is the Gaussian kernel width in millimetres
		SigmaMM float64 `yaml:"sigmaMM"`

		// RadiusSigmas truncates the kernel at this many sigmas
		RadiusSigmas float64 `yaml:"radiusSigmas"`

		// Threshold zeroes normalized activation below this value
		Threshold float64 `yaml:"threshold"`

		// Opacity scales the overlay coverage before blending
		Opacity float64 `yaml:"opacity"`

		// BackgroundQuantile picks the template intensity mapped to white
		BackgroundQuantile float64 `yaml:"backgroundQuantile"`
	} `yaml:"processing"`

	// Anatomical template parameters
	Template struct {
		// CacheDir is where the downloaded template is kept
		CacheDir string `yaml:"cacheDir"`

		// Filename is the cache key inside CacheDir
		Filename string `yaml:"filename"`

		// Sources are tried in order until one yields a valid template
		Sources []string `yaml:"sources"`

		// FetchTimeout bounds each download attempt
		FetchTimeout time.Duration `yaml:"fetchTimeout"`

		// DefaultAffine is used when the template header carries no sform
		DefaultAffine models.Affine `yaml:"defaultAffine"`
	} `yaml:"template"`

	// Rendering parameters
	Render struct {
		WidthInches  float64 `yaml:"widthInches"`
		HeightInches float64 `yaml:"heightInches"`
		DPI          int     `yaml:"dpi"`

		// Upscale enlarges each slice before it is drawn
		Upscale int `yaml:"upscale"`

		// Title is the figure heading
		Title string `yaml:"title"`

		Views []View `yaml:"views"`
	} `yaml:"render"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.SigmaMM = 6.0
	cfg.Processing.RadiusSigmas = 3.0
	cfg.Processing.Threshold = 0.1
	cfg.Processing.Opacity = 0.7
	cfg.Processing.BackgroundQuantile = 0.99

	// Set default template parameters
	cfg.Template.CacheDir = "templates"
	cfg.Template.Filename = "mni152_t1_2mm.nii"
	cfg.Template.Sources = []string{
		"https://templateflow.s3.amazonaws.com/tpl-MNI152NLin2009cAsym/tpl-MNI152NLin2009cAsym_res-02_T1w.nii.gz",
		"https://github.com/Jfortin1/MNITemplate/raw/master/inst/extdata/MNI152_T1_2mm.nii.gz",
	}
	cfg.Template.FetchTimeout = 60 * time.Second
	cfg.Template.DefaultAffine = models.MNI152Affine2mm

	// Set default rendering parameters
	cfg.Render.WidthInches = 20
	cfg.Render.HeightInches = 8
	cfg.Render.DPI = 100
	cfg.Render.Upscale = 4
	cfg.Render.Title = "Your Brain Activity"
	cfg.Render.Views = []View{
		{Axis: "x", PositionMM: -40, Title: "Left Side View"},
		{Axis: "x", PositionMM: 40, Title: "Right Side View"},
		{Axis: "z", PositionMM: 20, Title: "Top View"},
	}

	// Set default output parameters
	cfg.Output.Verbose = false

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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	p := c.Processing
	if p.NumCores < 1 {
		return fmt.Errorf("processing.numCores must be at least 1, got %d", p.NumCores)
	}
	if p.SigmaMM <= 0 {
		return fmt.Errorf("processing.sigmaMM must be positive, got %g", p.SigmaMM)
	}
	if p.RadiusSigmas <= 0 {
		return fmt.Errorf("processing.radiusSigmas must be positive, got %g", p.RadiusSigmas)
	}
	if p.Threshold < 0 || p.Threshold >= 1 {
		return fmt.Errorf("processing.threshold must be in [0, 1), got %g", p.Threshold)
	}
	if p.Opacity < 0 || p.Opacity > 1 {
		return fmt.Errorf("processing.opacity must be in [0, 1], got %g", p.Opacity)
	}
	if p.BackgroundQuantile <= 0 || p.BackgroundQuantile > 1 {
		return fmt.Errorf("processing.backgroundQuantile must be in (0, 1], got %g", p.BackgroundQuantile)
	}

	if c.Template.Filename == "" {
		return fmt.Errorf("template.filename must not be empty")
	}
	if len(c.Template.Sources) == 0 {
		return fmt.Errorf("template.sources must list at least one URL")
	}
	if c.Template.FetchTimeout <= 0 {
		return fmt.Errorf("template.fetchTimeout must be positive")
	}
	if !c.Template.DefaultAffine.Valid() {
		return fmt.Errorf("template.defaultAffine has a zero voxel size")
	}

	r := c.Render
	if r.WidthInches <= 0 || r.HeightInches <= 0 || r.DPI <= 0 {
		return fmt.Errorf("render size and dpi must be positive")
	}
	if r.Upscale < 1 {
		return fmt.Errorf("render.upscale must be at least 1, got %d", r.Upscale)
	}
	if len(r.Views) == 0 {
		return fmt.Errorf("render.views must list at least one view")
	}
	for i, v := range r.Views {
		switch v.Axis {
		case "x", "y", "z":
		default:
			return fmt.Errorf("render.views[%d]: invalid axis %q (must be x, y, or z)", i, v.Axis)
		}
	}

	return nil
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
