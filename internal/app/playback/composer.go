package playback

import (
	"context"

	"github.com/framebox/framebox/internal/app/composition"
	"github.com/framebox/framebox/internal/domain/timeline"
)

// SegmentType classifies a multi-track region.
type SegmentType string

const (
	SegmentTypeSimple  SegmentType = "simple"  // Playable directly from the topmost clip
	SegmentTypeComplex SegmentType = "complex" // Needs a flattened pre-render
)

// Classification is the result of classifying a multi-track region.
type Classification struct {
	Type SegmentType
}

// SegmentResult is the result of rendering a segment to a flat file.
type SegmentResult struct {
	OutputPath string
}

// TimelineRender is the result of rendering the whole timeline.
type TimelineRender struct {
	OutputPath string
	DurationMs int64
}

// RenderProgress is a percent-complete update emitted while the composer
// renders a segment or timeline.
type RenderProgress struct {
	Percent int
	Stage   string
}

// Composer is the external segment/timeline compositor command surface.
// It classifies and renders arbitrary multi-track regions or whole
// timelines to flat files.
type Composer interface {
	ClassifySegment(ctx context.Context, activeClips []composition.ActiveClip) (Classification, error)
	RenderSegment(ctx context.Context, activeClips []composition.ActiveClip, startTimeMs, durationMs int64) (SegmentResult, error)
	RenderFullTimeline(ctx context.Context, tl timeline.Timeline) (TimelineRender, error)
}

// ProgressNotifier is optionally implemented by composers that emit
// asynchronous percent-complete progress updates.
type ProgressNotifier interface {
	Progress() <-chan RenderProgress
}
