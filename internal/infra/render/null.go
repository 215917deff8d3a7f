package render

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/framebox/framebox/internal/app/playback"
)

// NullSettings represents the configuration for the null backend.
type NullSettings struct {
	Width       int     `yaml:"width" mapstructure:"width" default:"1280" validate:"gt=0"`
	Height      int     `yaml:"height" mapstructure:"height" default:"720" validate:"gt=0"`
	DurationSec float64 `yaml:"duration_sec" mapstructure:"duration_sec" default:"3600" validate:"gt=0"`
}

// NullRenderer simulates the renderer command surface without a media
// engine: the play position advances on wall clock while playing. Used
// for headless runs and tests.
type NullRenderer struct {
	mu sync.Mutex

	settings NullSettings

	loaded    string
	playing   bool
	position  float64 // seconds into the loaded file
	updatedAt time.Time

	volumePercent float64
	muted         bool
	fadeApplied   bool
}

// NewNullRenderer creates a null renderer from a settings map.
func NewNullRenderer(settings map[string]any) (*NullRenderer, error) {
	var s NullSettings
	if err := mapstructure.Decode(settings, &s); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&s); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(s); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &NullRenderer{
		settings:      s,
		volumePercent: 100,
		updatedAt:     time.Now(),
	}, nil
}

func (r *NullRenderer) Load(ctx context.Context, filePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = filePath
	r.playing = false
	r.position = 0
	r.updatedAt = time.Now()
	return nil
}

func (r *NullRenderer) Play(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded == "" {
		return errors.New("nothing loaded")
	}
	r.advanceLocked()
	r.playing = true
	return nil
}

func (r *NullRenderer) Pause(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advanceLocked()
	r.playing = false
	return nil
}

func (r *NullRenderer) Seek(ctx context.Context, seconds float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	r.position = seconds
	r.updatedAt = time.Now()
	return nil
}

func (r *NullRenderer) GetTime(ctx context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advanceLocked()
	return r.position, nil
}

func (r *NullRenderer) GetDuration(ctx context.Context) (float64, error) {
	return r.settings.DurationSec, nil
}

func (r *NullRenderer) GetDimensions(ctx context.Context) (int, int, error) {
	return r.settings.Width, r.settings.Height, nil
}

func (r *NullRenderer) CaptureFrame(ctx context.Context) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.settings.Width, r.settings.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img, nil
}

func (r *NullRenderer) ApplyVolumeFilter(ctx context.Context, percent float64, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volumePercent = percent
	r.muted = muted
	return nil
}

func (r *NullRenderer) ApplyFadeFilter(ctx context.Context, fadeInMs, fadeOutMs, clipDurationMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fadeInMs+fadeOutMs > clipDurationMs {
		return errors.New("fades exceed clip duration")
	}
	r.fadeApplied = true
	return nil
}

func (r *NullRenderer) ClearAudioFilters(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volumePercent = 100
	r.muted = false
	r.fadeApplied = false
	return nil
}

// advanceLocked moves the position forward by the wall time elapsed since
// the last update while playing. Must be called with lock held.
func (r *NullRenderer) advanceLocked() {
	now := time.Now()
	if r.playing {
		r.position += now.Sub(r.updatedAt).Seconds()
		if r.position > r.settings.DurationSec {
			r.position = r.settings.DurationSec
		}
	}
	r.updatedAt = now
}

func init() {
	Register("null", func(settings map[string]any) (playback.Renderer, error) {
		return NewNullRenderer(settings)
	})
}
