package audiofx

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/framebox/framebox/internal/domain/clip"
)

// FadeConfig represents the configuration for FadeFilter.
type FadeConfig struct {
	MinFadeMs float64 `yaml:"min_fade_ms" mapstructure:"min_fade_ms" default:"0" validate:"gte=0"`
}

// FadeFilter applies linear fade-in/fade-out filters parameterized by the
// clip's fade lengths and visible duration.
type FadeFilter struct {
	config *FadeConfig
}

// NewFadeFilter creates a new fade filter.
func NewFadeFilter() *FadeFilter {
	return &FadeFilter{}
}

func (f *FadeFilter) Name() string {
	return "fade_filter"
}

func (f *FadeFilter) Description() string {
	return "Applies linear fade-in/fade-out to the renderer"
}

func (f *FadeFilter) ValidateConfig(settings map[string]any) error {
	var config FadeConfig

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

func (f *FadeFilter) AppliesTo(c clip.Clip) bool {
	return c.HasFades()
}

func (f *FadeFilter) Apply(ctx context.Context, sink AudioSink, c clip.Clip) error {
	// Fades whose sum exceeds the visible span are skipped, not errors.
	if !c.FadesValid() {
		zlog.Warn().Msgf("audiofx: clip %s fades (%d+%d) exceed visible duration %d, skipping",
			c.ID, c.FadeIn, c.FadeOut, c.VisibleDuration())
		return nil
	}

	fadeIn, fadeOut := c.FadeIn, c.FadeOut
	if f.config != nil {
		min := int64(f.config.MinFadeMs)
		if fadeIn > 0 && fadeIn < min {
			fadeIn = min
		}
		if fadeOut > 0 && fadeOut < min {
			fadeOut = min
		}
	}
	return sink.ApplyFadeFilter(ctx, fadeIn, fadeOut, c.VisibleDuration())
}

func init() {
	Register("fade_filter", func() Filter {
		return &FadeFilter{}
	})
}
