// Package config provides configuration loading and management for segedit.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"segedit/internal/models"
	"segedit/pkg/intensity"
	"segedit/pkg/orientation"
	"segedit/pkg/segmentation"
)

// Error is the class for invalid or unreadable configuration
var Error = errs.Class("config")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many workers parallel label scans use
		NumCores int `yaml:"numCores"`

		// ProgressEvery is the number of voxels between progress reports and cancellation checks
		ProgressEvery int `yaml:"progressEvery"`
	} `yaml:"processing"`

	// Undo history parameters
	Undo struct {
		// BudgetBytes bounds the memory held by undo deltas. Zero disables eviction.
		BudgetBytes int64 `yaml:"budgetBytes"`

		// CompressionLevel is the zstd level used for deltas: fastest, default, better or best
		CompressionLevel string `yaml:"compressionLevel"`
	} `yaml:"undo"`

	// Initial drawing settings
	Segmentation struct {
		// Coverage is PaintOverAll, PaintOverBackgroundOnly or PaintOverLabel
		Coverage      string `yaml:"coverage"`
		DrawingLabel  uint16 `yaml:"drawingLabel"`
		DrawOverLabel uint16 `yaml:"drawOverLabel"`
		InvertDrawing bool   `yaml:"invertDrawing"`
	} `yaml:"segmentation"`

	// Display parameters
	Display struct {
		// RAI holds the display-to-anatomy codes of the three windows
		RAI [orientation.NumWindows]string `yaml:"rai,flow"`
	} `yaml:"display"`

	// Statistics parameters
	Statistics struct {
		// Spacing is the voxel size in mm
		Spacing [3]float64 `yaml:"spacing,flow"`

		// IntensityScale and IntensityShift map stored grey values to native ones.
		// A scale of 1 and shift of 0 is the identity.
		IntensityScale float64 `yaml:"intensityScale"`
		IntensityShift float64 `yaml:"intensityShift"`
	} `yaml:"statistics"`

	// Logging parameters
	Logging struct {
		// Level is debug, info, warn or error
		Level string `yaml:"level"`

		// Development switches to human readable console logs
		Development bool `yaml:"development"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.ProgressEvery = 1 << 20

	cfg.Undo.BudgetBytes = 256 << 20
	cfg.Undo.CompressionLevel = "default"

	cfg.Segmentation.Coverage = segmentation.PaintOverAll.String()
	cfg.Segmentation.DrawingLabel = 1

	for w, code := range orientation.DefaultDisplay {
		cfg.Display.RAI[w] = code.String()
	}

	cfg.Statistics.Spacing = models.UnitSpacing
	cfg.Statistics.IntensityScale = 1

	cfg.Logging.Level = "info"
	cfg.Logging.Development = false

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
		return nil, Error.New("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, Error.New("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Error.New("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return Error.New("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return Error.New("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if c.Processing.NumCores < 0 {
		return Error.New("processing.numCores must not be negative, got %d", c.Processing.NumCores)
	}
	if c.Processing.ProgressEvery < 0 {
		return Error.New("processing.progressEvery must not be negative, got %d", c.Processing.ProgressEvery)
	}
	if c.Undo.BudgetBytes < 0 {
		return Error.New("undo.budgetBytes must not be negative, got %d", c.Undo.BudgetBytes)
	}
	if c.Undo.CompressionLevel != "" {
		if ok, _ := zstd.EncoderLevelFromString(c.Undo.CompressionLevel); !ok {
			return Error.New("undo.compressionLevel %q is not one of fastest, default, better, best", c.Undo.CompressionLevel)
		}
	}
	if _, err := c.DrawingSettings(); err != nil {
		return err
	}
	if _, err := c.DisplayCodes(); err != nil {
		return err
	}
	for a, s := range c.Statistics.Spacing {
		if s <= 0 {
			return Error.New("statistics.spacing[%d] must be positive, got %g", a, s)
		}
	}
	if _, err := c.IntensityMapping(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return Error.New("logging.level: %w", err)
	}
	return nil
}

// DrawingSettings converts the segmentation section
func (c *Config) DrawingSettings() (segmentation.DrawingSettings, error) {
	mode, err := segmentation.ParseCoverageMode(c.Segmentation.Coverage)
	if err != nil {
		return segmentation.DrawingSettings{}, Error.New("segmentation.coverage: %w", err)
	}
	return segmentation.DrawingSettings{
		DrawingLabel:  models.Label(c.Segmentation.DrawingLabel),
		DrawOverLabel: models.Label(c.Segmentation.DrawOverLabel),
		Mode:          mode,
		InvertDrawing: c.Segmentation.InvertDrawing,
	}, nil
}

// DisplayCodes parses the display section
func (c *Config) DisplayCodes() ([orientation.NumWindows]orientation.Code, error) {
	var codes [orientation.NumWindows]orientation.Code
	for w, s := range c.Display.RAI {
		code, err := orientation.ParseCode(s)
		if err != nil {
			return codes, Error.New("display.rai[%d]: %w", w, err)
		}
		codes[w] = code
	}
	// the windows must look along three different axes
	if _, err := orientation.New(orientation.MustParseCode("RAI"), codes); err != nil {
		return codes, Error.New("display.rai: %w", err)
	}
	return codes, nil
}

// Spacing returns the voxel spacing for statistics
func (c *Config) Spacing() models.Spacing {
	return models.Spacing(c.Statistics.Spacing)
}

// IntensityMapping returns the grey value mapping for statistics
func (c *Config) IntensityMapping() (intensity.Mapping, error) {
	if c.Statistics.IntensityScale == 1 && c.Statistics.IntensityShift == 0 {
		return intensity.Identity(), nil
	}
	m, err := intensity.NewLinear(c.Statistics.IntensityScale, c.Statistics.IntensityShift)
	if err != nil {
		return intensity.Mapping{}, Error.New("statistics: %w", err)
	}
	return m, nil
}

// NewLogger builds the logger described by the logging section
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, Error.New("logging.level: %w", err)
	}

	var zc zap.Config
	if c.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	log, err := zc.Build()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return log, nil
}

func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
