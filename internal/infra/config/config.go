// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Logging  LoggingConfig           `yaml:"logging"`
	History  HistoryConfig           `yaml:"history"`
	Playback PlaybackConfig          `yaml:"playback"`
	Segments SegmentsConfig          `yaml:"segments"`
	Renderer RendererConfig          `yaml:"renderer"`
	Filters  map[string]FilterConfig `yaml:"filters"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
	File   string `yaml:"file"`
}

// HistoryConfig represents undo history configuration.
type HistoryConfig struct {
	Depth int `yaml:"depth" default:"10" validate:"gte=1,lte=100"`
}

// PlaybackConfig represents playback synchronizer configuration.
type PlaybackConfig struct {
	TimeSyncIntervalMs     int `yaml:"time_sync_interval_ms" default:"16" validate:"gte=1,lte=1000"`
	FrameCaptureIntervalMs int `yaml:"frame_capture_interval_ms" default:"66" validate:"gte=1,lte=1000"`
	SegmentReuseWindowMs   int `yaml:"segment_reuse_window_ms" default:"100" validate:"gte=0,lte=5000"`
}

// SegmentsConfig represents segment render output configuration.
type SegmentsConfig struct {
	Dir string `yaml:"dir" default:".framebox/segments"`
}

// RendererConfig represents the renderer backend configuration.
type RendererConfig struct {
	Type     string         `yaml:"type" default:"null" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// FilterConfig represents an audio filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for selected fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied and no file
// loaded.
func Default() (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "default config invalid")
	}
	return &cfg, nil
}

// overrideFromEnv applies environment variable overrides.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("FRAMEBOX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FRAMEBOX_RENDERER"); v != "" {
		c.Renderer.Type = v
	}
	if v := os.Getenv("FRAMEBOX_SEGMENT_DIR"); v != "" {
		c.Segments.Dir = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// The frame capture cadence must not outpace the time-sync tick.
	if c.Playback.FrameCaptureIntervalMs < c.Playback.TimeSyncIntervalMs {
		return errors.Newf("frame_capture_interval_ms (%d) must not be smaller than time_sync_interval_ms (%d)",
			c.Playback.FrameCaptureIntervalMs, c.Playback.TimeSyncIntervalMs)
	}

	return nil
}

// IsFilterEnabled checks if an audio filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings for an audio filter.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
