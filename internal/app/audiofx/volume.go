package audiofx

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/framebox/framebox/internal/domain/clip"
)

// VolumeConfig represents the configuration for VolumeFilter.
type VolumeConfig struct {
	MaxPercent float64 `yaml:"max_percent" mapstructure:"max_percent" default:"200" validate:"gte=100,lte=400"`
}

// VolumeFilter maps the clip volume (0.0-2.0) onto the renderer's
// percent-based volume parameter and carries the mute flag.
type VolumeFilter struct {
	config *VolumeConfig
}

// NewVolumeFilter creates a new volume filter.
func NewVolumeFilter() *VolumeFilter {
	return &VolumeFilter{}
}

func (f *VolumeFilter) Name() string {
	return "volume_filter"
}

func (f *VolumeFilter) Description() string {
	return "Applies clip volume and mute state to the renderer"
}

func (f *VolumeFilter) ValidateConfig(settings map[string]any) error {
	var config VolumeConfig

	if err := mapstructure.Decode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	f.config = &config
	return nil
}

func (f *VolumeFilter) AppliesTo(c clip.Clip) bool {
	// Volume and mute always apply; an unset volume means 1.0.
	return true
}

func (f *VolumeFilter) Apply(ctx context.Context, sink AudioSink, c clip.Clip) error {
	percent := c.EffectiveVolume() * 100
	if percent < 0 {
		percent = 0
	}
	max := 200.0
	if f.config != nil {
		max = f.config.MaxPercent
	}
	if percent > max {
		percent = max
	}
	return sink.ApplyVolumeFilter(ctx, percent, c.Muted)
}

func init() {
	Register("volume_filter", func() Filter {
		return &VolumeFilter{}
	})
}
