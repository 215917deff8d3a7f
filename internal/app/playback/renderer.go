package playback

import (
	"context"
	"image"
	"math"
)

// Renderer is the external media renderer command surface. It loads one
// media file at a time and reports/controls the play position. All
// commands are asynchronous and fallible; positions are fractional
// seconds at this boundary.
type Renderer interface {
	Load(ctx context.Context, filePath string) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	GetTime(ctx context.Context) (float64, error)
	GetDuration(ctx context.Context) (float64, error)
	GetDimensions(ctx context.Context) (width, height int, err error)
	CaptureFrame(ctx context.Context) (image.Image, error)
	ApplyVolumeFilter(ctx context.Context, percent float64, muted bool) error
	ApplyFadeFilter(ctx context.Context, fadeInMs, fadeOutMs, clipDurationMs int64) error
	ClearAudioFilters(ctx context.Context) error
}

// MsToSeconds converts core milliseconds to renderer seconds.
func MsToSeconds(ms int64) float64 {
	return float64(ms) / 1000.0
}

// SecondsToMs converts renderer seconds back to core milliseconds.
// Rounding keeps the ms->s->ms round trip within 1 ms for durations up
// to several hours.
func SecondsToMs(s float64) int64 {
	return int64(math.Round(s * 1000.0))
}
